// Package httpapi exposes the record service over a JSON HTTP API built on
// gin. Sessions live server-side and are addressed by a cookie.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/qfolders/qfolders/internal/logging"
	"github.com/qfolders/qfolders/internal/server/models"
	"github.com/qfolders/qfolders/internal/server/services"
	"github.com/qfolders/qfolders/internal/server/sessions"
)

// Credentials is the part of services.CredentialManager the API uses.
type Credentials interface {
	Authenticate(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context, s *models.Session)
	Register(ctx context.Context, email, password, redirectURL string) error
	ResendConfirmation(ctx context.Context, email, redirectURL string) error
}

// Records is the part of services.RecordService the API uses.
type Records interface {
	CreateFolder(ctx context.Context, s *models.Session, name string) (*models.Folder, error)
	ListFolders(ctx context.Context, s *models.Session) ([]*models.Folder, error)
	GetFolder(ctx context.Context, s *models.Session, id string) (*models.Folder, error)
	DeleteFolder(ctx context.Context, s *models.Session, id string) error
	CreateQuestion(ctx context.Context, s *models.Session, folderID string, in services.QuestionInput) (*models.Question, error)
	GetQuestion(ctx context.Context, s *models.Session, id string) (*models.Question, *models.Folder, error)
	UpdateQuestion(ctx context.Context, s *models.Session, id string, in services.QuestionInput) (*models.Question, error)
	DeleteQuestion(ctx context.Context, s *models.Session, id string) error
	OpenAttachment(ctx context.Context, s *models.Session, id string) (*models.Attachment, *services.Download, error)
	Contributions(ctx context.Context, s *models.Session, from, to time.Time) ([]models.ContributionDay, int, error)
}

// Options configures NewHandler.
type Options struct {
	SiteURL            string
	Cookie             CookieOptions
	AttachmentMaxBytes int64
	AllowedOrigins     []string
	LoginRatePerMinute int
	// Health reports whether the backing stores are reachable.
	Health func(ctx context.Context) error
}

// Handler serves the API.
type Handler struct {
	credentials Credentials
	records     Records
	sessions    sessions.Store
	logger      logging.Logger

	siteURL   string
	cookie    CookieOptions
	maxUpload int64
	origins   []string
	limiter   *RateLimiter
	render    *renderer
	health    func(ctx context.Context) error
	now       func() time.Time
}

func NewHandler(c Credentials, r Records, store sessions.Store, logger logging.Logger, opts Options) *Handler {
	if opts.Cookie.Name == "" {
		opts.Cookie.Name = "qf_session"
	}
	if opts.AttachmentMaxBytes <= 0 {
		opts.AttachmentMaxBytes = services.DefaultAttachmentMaxBytes
	}
	return &Handler{
		credentials: c,
		records:     r,
		sessions:    store,
		logger:      logger,
		siteURL:     opts.SiteURL,
		cookie:      opts.Cookie,
		maxUpload:   opts.AttachmentMaxBytes,
		origins:     opts.AllowedOrigins,
		limiter:     NewRateLimiter(opts.LoginRatePerMinute),
		render:      newRenderer(),
		health:      opts.Health,
		now:         time.Now,
	}
}

// Router builds the gin engine with every route and middleware.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(h.requestLogger(), h.recovery())
	r.Use(cors.New(h.corsConfig()))

	r.GET("/healthz", h.Healthz)

	r.Use(h.loadSession())

	r.POST("/register", h.limiter.Middleware(), h.Register)
	r.POST("/login", h.limiter.Middleware(), h.Login)
	r.POST("/logout", h.Logout)
	r.POST("/auth/resend-confirmation", h.limiter.Middleware(), h.ResendConfirmation)
	r.GET("/auth/confirmed", h.Confirmed)

	authed := r.Group("")
	authed.Use(h.requireSession())

	authed.GET("/folders", h.ListFolders)
	authed.POST("/folders", h.CreateFolder)
	authed.GET("/folders/:id", h.GetFolder)
	authed.DELETE("/folders/:id", h.DeleteFolder)
	authed.POST("/folders/:id/questions", h.limitBody(), h.CreateQuestion)

	authed.GET("/questions/:id", h.GetQuestion)
	authed.PUT("/questions/:id", h.limitBody(), h.UpdateQuestion)
	authed.DELETE("/questions/:id", h.DeleteQuestion)
	authed.GET("/questions/:id/attachment", h.DownloadAttachment)

	authed.GET("/contributions", h.Contributions)

	r.NoRoute(func(c *gin.Context) {
		respond(c, http.StatusNotFound, 40400, "route not found", nil)
	})
	return r
}

func (h *Handler) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(h.origins) == 0 || (len(h.origins) == 1 && h.origins[0] == "*") {
		// Credentials cannot be combined with a wildcard origin.
		cfg.AllowCredentials = false
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = h.origins
	}
	return cfg
}
