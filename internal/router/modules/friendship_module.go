package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-ddd-friendship/internal/container"
	handlers "github.com/oksasatya/go-ddd-friendship/internal/interface/http"
	"github.com/oksasatya/go-ddd-friendship/internal/interface/middleware"
	"github.com/oksasatya/go-ddd-friendship/pkg/helpers"
)

// FriendRequestScope names the throttle applied to sending requests.
const FriendRequestScope = "friend_request"

type FriendshipModule struct {
	Handler *handlers.FriendshipHandler
	JWT     *helpers.JWTManager

	// SendLimit requests per SendWindow per user on POST /friend-request/.
	SendLimit  int
	SendWindow time.Duration
}

func NewFriendshipModule(h *handlers.FriendshipHandler, jwt *helpers.JWTManager, sendLimit int, sendWindow time.Duration) *FriendshipModule {
	return &FriendshipModule{Handler: h, JWT: jwt, SendLimit: sendLimit, SendWindow: sendWindow}
}

func (m *FriendshipModule) Register(rg *gin.RouterGroup) {
	rdb := container.GetRedis()
	if rdb == nil {
		container.GetLogger().Warn("redis not configured; friend_request throttle counts per process")
	}

	auth := rg.Group("/")
	auth.Use(middleware.Auth(rdb, m.JWT))
	{
		limiter := middleware.NewLimiter(rdb, container.GetLogger())
		sendRule := middleware.Rule{Max: m.SendLimit, Window: m.SendWindow}
		sendLimiter := limiter.Handler(sendRule, middleware.KeyByUserIDAndScope(FriendRequestScope), nil)
		auth.POST("/friend-request/", sendLimiter, m.Handler.SendRequest)
		auth.POST("/accept-friend-request/:id/", m.Handler.AcceptRequest)
		auth.DELETE("/reject-request/:id/", m.Handler.RejectRequest)
		auth.DELETE("/cancel-request/:id/", m.Handler.CancelRequest)
		auth.GET("/friends/", m.Handler.Friends)
		auth.GET("/pending-requests/", m.Handler.PendingRequests)
		auth.GET("/sent-requests/", m.Handler.SentRequests)
	}
}
