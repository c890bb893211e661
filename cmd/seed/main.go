package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/oksasatya/go-ddd-friendship/config"
	"github.com/oksasatya/go-ddd-friendship/internal/application"
	repo "github.com/oksasatya/go-ddd-friendship/internal/domain/repository"
	esinfra "github.com/oksasatya/go-ddd-friendship/internal/infrastructure/elasticsearch"
	pginfra "github.com/oksasatya/go-ddd-friendship/internal/infrastructure/postgres"
	"github.com/oksasatya/go-ddd-friendship/pkg/helpers"
)

// seed creates the administrative account given by SEED_ADMIN_EMAIL and
// SEED_ADMIN_PASSWORD. The schema must already be migrated (cmd/main.go
// does it on start). Running it twice is harmless.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env, cfg.LogLevel)

	email := os.Getenv("SEED_ADMIN_EMAIL")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Fatal("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD are required")
	}

	ctx := context.Background()
	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	// The seeded account is indexed like any signup so the API can find it.
	var index repo.UserIndex
	if addrs := cfg.ESAddrs(); len(addrs) > 0 {
		es, err := helpers.NewESClient(helpers.ESOptions{
			Addrs:      addrs,
			Username:   cfg.ElasticsearchUser,
			Password:   cfg.ElasticsearchPass,
			Timeout:    cfg.ESTimeout,
			MaxRetries: cfg.ESMaxRetries,
		})
		if err != nil {
			log.Fatalf("failed to init elasticsearch: %v", err)
		}
		ui := esinfra.NewUserIndex(es, cfg.ESUsersIndex)
		if err := ui.EnsureIndex(ctx); err != nil {
			logger.WithError(err).Warn("ensure users index failed; the API backfills it on start")
		}
		index = ui
	}

	svc := application.NewUserService(pginfra.NewUserRepository(pool), index, nil, nil, nil, logger)
	u, err := svc.CreateSuperuser(ctx, application.CreateUserInput{
		Email:    email,
		Password: password,
		Name:     os.Getenv("SEED_ADMIN_NAME"),
	})
	switch {
	case errors.Is(err, application.ErrEmailTaken):
		fmt.Printf("superuser %s already exists\n", email)
	case err != nil:
		log.Fatalf("failed to seed superuser: %v", err)
	default:
		fmt.Printf("seeded superuser: id=%d email=%s\n", u.ID, u.Email)
	}
}
