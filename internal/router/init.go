package router

import (
	"context"
	"time"

	"github.com/oksasatya/go-ddd-friendship/config"
	"github.com/oksasatya/go-ddd-friendship/internal/application"
	"github.com/oksasatya/go-ddd-friendship/internal/container"
	repo "github.com/oksasatya/go-ddd-friendship/internal/domain/repository"
	esinfra "github.com/oksasatya/go-ddd-friendship/internal/infrastructure/elasticsearch"
	"github.com/oksasatya/go-ddd-friendship/internal/infrastructure/memory"
	"github.com/oksasatya/go-ddd-friendship/internal/infrastructure/notify"
	pginfra "github.com/oksasatya/go-ddd-friendship/internal/infrastructure/postgres"
	handlers "github.com/oksasatya/go-ddd-friendship/internal/interface/http"
	"github.com/oksasatya/go-ddd-friendship/internal/router/modules"
	"github.com/oksasatya/go-ddd-friendship/pkg/helpers"
)

type repositories struct {
	Users       repo.UserRepository
	Friendships repo.FriendshipRepository
}

// buildRepositories picks the store named by STORE_DRIVER. The memory
// store is also used when no Postgres pool was provided.
func buildRepositories(cfg *config.Config) repositories {
	pool := container.GetPGPool()
	if cfg.StoreDriver == config.StoreMemory || pool == nil {
		s := container.GetMemoryStore()
		if s == nil {
			s = memory.NewStore()
			container.SetMemoryStore(s)
		}
		return repositories{Users: s.Users(), Friendships: s.Friendships()}
	}
	return repositories{
		Users:       pginfra.NewUserRepository(pool),
		Friendships: pginfra.NewFriendshipRepository(pool),
	}
}

func jwtManager(cfg *config.Config) *helpers.JWTManager {
	if m := container.GetJWT(); m != nil {
		return m
	}
	m := helpers.NewJWTManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL, cfg.AppName)
	container.SetJWT(m)
	return m
}

type UserModuleDeps struct {
	Service *application.UserService
	Handler *handlers.UserHandler
}

func buildUserDeps(cfg *config.Config, repos repositories) UserModuleDeps {
	var index repo.UserIndex
	if es := container.GetES(); es != nil {
		index = esinfra.NewUserIndex(es, cfg.ESUsersIndex)
	}
	var avatars application.AvatarStore
	if gcs := container.GetGCS(); gcs != nil && cfg.GCSBucket != "" {
		avatars = helpers.NewGCSUploader(gcs, cfg.GCSBucket)
	}

	service := application.NewUserService(
		repos.Users,
		index,
		jwtManager(cfg),
		avatars,
		container.GetRedis(),
		container.GetLogger(),
	)
	if index != nil {
		go backfillIndex(service)
	}
	handler := handlers.NewUserHandler(service, container.GetLogger(), cfg.CookieDomain, cfg.CookieSecure)
	return UserModuleDeps{Service: service, Handler: handler}
}

// reindexTimeout bounds the startup backfill of the users index.
const reindexTimeout = 10 * time.Minute

// backfillIndex copies existing users into the search index. Search is
// served from the database until it completes.
func backfillIndex(svc *application.UserService) {
	ctx, cancel := context.WithTimeout(context.Background(), reindexTimeout)
	defer cancel()
	if _, err := svc.Reindex(ctx); err != nil {
		svc.Logger.WithError(err).Warn("users index backfill failed, search stays on the database")
	}
}

type FriendshipModuleDeps struct {
	Service *application.FriendshipService
	Handler *handlers.FriendshipHandler
}

func buildFriendshipDeps(cfg *config.Config, repos repositories) FriendshipModuleDeps {
	var notifier application.Notifier
	if pub := container.GetRabbitPub(); pub != nil && cfg.MailSendEnabled {
		notifier = notify.NewQueueNotifier(pub, cfg.AppName, cfg.PendingRequestsURL)
	}
	service := application.NewFriendshipService(repos.Users, repos.Friendships, notifier, container.GetLogger())
	return FriendshipModuleDeps{Service: service, Handler: handlers.NewFriendshipHandler(service)}
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry) {
	cfg := container.GetConfig()
	repos := buildRepositories(cfg)
	jwt := jwtManager(cfg)

	userDeps := buildUserDeps(cfg, repos)
	friendshipDeps := buildFriendshipDeps(cfg, repos)

	r.Add(modules.NewUserModule(userDeps.Handler, jwt))
	r.Add(modules.NewFriendshipModule(friendshipDeps.Handler, jwt, cfg.FriendRequestRateLimit, cfg.FriendRequestRateWindow))
	if cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(application.StatsName))
	}
}
