// Package web serves the gadget administration pages and their JSON surface.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gadgets/internal/config"
	"gadgets/internal/gadget"
	"gadgets/internal/logger"
	"gadgets/internal/storage"
)

//go:embed views/*.tmpl
var viewFiles embed.FS

// Server wires the HTTP routes to the gadget service.
type Server struct {
	cfg     *config.Config
	db      *gorm.DB
	gadgets *gadget.Service
	log     *zap.Logger
	views   *template.Template
}

// New parses the templates and builds a Server.
func New(cfg *config.Config, db *gorm.DB, svc *gadget.Service, log *zap.Logger) (*Server, error) {
	views, err := template.New("").Funcs(viewFuncs()).ParseFS(viewFiles, "views/*.tmpl")
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, db: db, gadgets: svc, log: log, views: views}, nil
}

// Handler returns the root handler: method override and body limit in front
// of the gin engine.
func (s *Server) Handler() http.Handler {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(logger.GinMiddleware(s.log), logger.Recovery(s.log))
	r.SetHTMLTemplate(s.views)

	store := cookie.NewStore([]byte(s.cfg.Session.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(s.cfg.Session.Name, store))

	if local, ok := s.gadgets.Storage().(*storage.Local); ok && strings.HasPrefix(local.PublicURL(), "/") {
		r.Static(local.PublicURL(), local.Root())
	}

	r.GET("/health", s.health)

	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusSeeOther, gadgetsPath)
	})
	r.GET("/login", s.loginForm)
	r.POST("/login", s.login)
	r.POST("/logout", s.logout)

	h := &GadgetHandler{svc: s.gadgets, views: s.views}
	g := r.Group(gadgetsPath, s.mustLogin())
	g.GET("", h.Index)
	g.POST("", h.Store)
	g.PATCH("/:id", h.Update)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Destroy)

	return methodOverride(r, s.cfg.HTTP.MaxBodySize)
}

func (s *Server) health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "db": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func viewFuncs() template.FuncMap {
	return template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"fieldError": func(verr *gadget.ValidationError, field string) string {
			if verr == nil {
				return ""
			}
			return verr.First(field)
		},
	}
}
