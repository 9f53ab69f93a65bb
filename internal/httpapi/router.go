// Package httpapi exposes attendance, classes, corrections and audit over
// a JSON HTTP API.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"smartattend/internal/attendance"
	"smartattend/internal/audit"
	"smartattend/internal/auth"
	"smartattend/internal/httpmiddleware"
	"smartattend/internal/metrics"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the services the API serves.
type Deps struct {
	Auth        *auth.Service
	Tokens      *attendance.TokenManager
	Verifier    *attendance.Verifier
	Classes     *attendance.ClassService
	Corrections *attendance.CorrectionService
	Standing    *attendance.StandingService
	Records     attendance.RecordStore
	Audit       *audit.Service
	Recorder    audit.Recorder
	Metrics     *metrics.Metrics

	MetricsHandler http.Handler
	Health         map[string]HealthCheck
	Logger         *slog.Logger

	QRSize          int
	RateLimitPerMin int
	CORSOrigins     []string

	// Limiter and CheckinLimiter default to NewLimiter and
	// NewCheckinLimiter. Callers that pass their own can sweep them.
	Limiter        *httpmiddleware.TokenBucket
	CheckinLimiter *httpmiddleware.TokenBucket
}

// NewLimiter limits every request per client address.
func NewLimiter(perMinute int) *httpmiddleware.TokenBucket {
	return httpmiddleware.NewTokenBucket(perMinute, perMinute, nil)
}

// NewCheckinLimiter throttles check-ins per student; secrets are short
// enough to guess otherwise.
func NewCheckinLimiter() *httpmiddleware.TokenBucket {
	return httpmiddleware.NewTokenBucket(5, 10, func(c *gin.Context) string {
		claims, _ := auth.ClaimsFrom(c)
		return claims.Subject
	})
}

type handler struct {
	Deps
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Limiter == nil {
		d.Limiter = NewLimiter(d.RateLimitPerMin)
	}
	if d.CheckinLimiter == nil {
		d.CheckinLimiter = NewCheckinLimiter()
	}
	if d.Recorder == nil && d.Audit != nil {
		d.Recorder = d.Audit
	}
	h := &handler{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(d.Logger, "/healthz", "/metrics"))
	if d.Metrics != nil {
		r.Use(d.Metrics.GinMiddleware())
	}
	r.Use(corsMiddleware(d.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(d.Limiter.GinMiddleware())

	if d.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}
	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	v1.POST("/auth/login", h.login)
	v1.POST("/auth/logout", h.logout)

	authed := v1.Group("", auth.Bearer(d.Auth))
	teacher := auth.RequireRole(auth.RoleTeacher)
	student := auth.RequireRole(auth.RoleStudent)

	authed.GET("/classes", h.listClasses)
	authed.PATCH("/classes/:id", teacher, h.renameClass)
	authed.POST("/classes/:id/tokens", teacher, h.issueToken)
	authed.DELETE("/classes/:id/tokens", teacher, h.revokeToken)
	authed.GET("/classes/:id/tokens/qr", teacher, h.tokenQR)

	authed.POST("/checkins", student, d.CheckinLimiter.GinMiddleware(), h.checkin)
	authed.GET("/records", h.listRecords)

	authed.POST("/corrections", student, h.requestCorrection)
	authed.GET("/corrections", teacher, h.pendingCorrections)
	authed.POST("/corrections/:id/approve", teacher, h.approveCorrection)
	authed.POST("/corrections/:id/reject", teacher, h.rejectCorrection)

	authed.GET("/me/standing", student, h.standing)
	authed.GET("/audit", h.recentAudit)
	authed.GET("/audit/summary", h.auditSummary)

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders: []string{httpmiddleware.RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func (h *handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.Health {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// record writes an audit entry for the authenticated caller.
func (h *handler) record(c *gin.Context, action audit.Action, detail string) {
	if h.Recorder == nil {
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	h.Recorder.Record(c.Request.Context(), audit.Entry{
		UserID: claims.Subject,
		Role:   string(claims.Role),
		Action: action,
		Detail: detail,
	})
}
