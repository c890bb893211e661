package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-ddd-friendship/internal/container"
	handlers "github.com/oksasatya/go-ddd-friendship/internal/interface/http"
	"github.com/oksasatya/go-ddd-friendship/internal/interface/middleware"
	"github.com/oksasatya/go-ddd-friendship/pkg/helpers"
)

// UserModule wires account and profile routes.
// Public: POST /signup/, POST /login/, POST /refresh/
// Protected: POST /logout/, GET|PUT /profile/, PUT /profile/avatar/, GET /search/
type UserModule struct {
	Handler *handlers.UserHandler
	JWT     *helpers.JWTManager
}

func NewUserModule(h *handlers.UserHandler, jwt *helpers.JWTManager) *UserModule {
	return &UserModule{Handler: h, JWT: jwt}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	rdb := container.GetRedis()
	limiter := middleware.NewLimiter(rdb, container.GetLogger())

	// Public with rate limiting
	signupLimiter := limiter.Handler(middleware.Rule{Max: 10, Window: time.Minute}, middleware.KeyByIPAndPath(), nil)
	loginLimiter := limiter.Handler(middleware.Rule{Max: 10, Window: time.Minute}, middleware.KeyByIPAndPath(), nil)
	refreshLimiter := limiter.Handler(middleware.Rule{Max: 60, Window: time.Minute}, middleware.KeyByIP(), nil)

	rg.POST("/signup/", signupLimiter, m.Handler.Signup)
	rg.POST("/login/", loginLimiter, m.Handler.Login)
	rg.POST("/refresh/", refreshLimiter, m.Handler.Refresh)

	// Protected
	auth := rg.Group("/")
	auth.Use(middleware.Auth(rdb, m.JWT))
	auth.Use(limiter.Handler(middleware.Rule{Max: 120, Window: time.Minute}, middleware.KeyByUserID(), nil))
	{
		auth.POST("/logout/", m.Handler.Logout)
		auth.GET("/profile/", m.Handler.GetProfile)
		auth.PUT("/profile/", m.Handler.UpdateProfile)
		auth.PUT("/profile/avatar/", m.Handler.UploadAvatar)
		auth.GET("/search/", m.Handler.Search)
	}
}
