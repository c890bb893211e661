package modules

import (
	"expvar"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-ddd-friendship/internal/container"
	"github.com/oksasatya/go-ddd-friendship/internal/interface/middleware"
)

// DebugModule serves expvar data to internal networks only.
// GET /debug/vars          everything published by the process
// GET /debug/counters/:name one published map, e.g. "friendship"
type DebugModule struct {
	Counters []string
}

func NewDebugModule(counters ...string) *DebugModule {
	return &DebugModule{Counters: counters}
}

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	limiter := middleware.NewLimiter(container.GetRedis(), container.GetLogger())
	dbg := rg.Group("/debug",
		middleware.RequireAllowed(middleware.AllowPrivateIP()),
		limiter.Handler(middleware.Rule{Max: 120, Window: time.Minute}, middleware.KeyByIP(), nil),
	)
	dbg.GET("/vars", gin.WrapH(expvar.Handler()))
	dbg.GET("/counters/:name", m.counters)
}

func (m *DebugModule) counters(c *gin.Context) {
	name := c.Param("name")
	v := expvar.Get(name)
	if v == nil || !slices.Contains(m.Counters, name) {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(v.String()))
}
