// Package api exposes the synchronizer to the app over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"remindsync/internal/notification"
	"remindsync/internal/reminder"
	"remindsync/internal/remindersync"
	logx "remindsync/pkg/logx"
)

// Backend is what the handlers drive.
type Backend interface {
	EnsurePermissions(ctx context.Context) bool
	Setup(p notification.Policy) bool
	Synchronize(ctx context.Context, rs []reminder.Reminder, opt remindersync.Options) remindersync.Result
	CancelReminder(ctx context.Context, id string)
	Scheduled(ctx context.Context) []notification.Scheduled
	PendingWebhooks() []string
}

type Server struct {
	log logx.Logger
	srv *http.Server
}

func New(addr string, b Backend, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "http"))
	r := NewRouter(b, log)
	return &Server{
		log: log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		s.log.Warn("http shutdown", logx.Err(err))
		return err
	}
	s.log.Info("http stopped")
	return nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(b Backend, log logx.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	h := &handlers{b: b, log: log}
	r.GET("/healthz", h.health)

	notifications := r.Group("/api/notifications")
	{
		notifications.POST("/permission", h.permission)
		notifications.POST("/setup", h.setup)
		notifications.GET("/scheduled", h.scheduled)
	}
	reminders := r.Group("/api/reminders")
	{
		reminders.POST("/sync", h.sync)
		reminders.DELETE("/:id", h.cancel)
	}
	r.GET("/api/webhooks/pending", h.pending)
	return r
}

func requestLogger(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
		)
	}
}
