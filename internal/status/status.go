// Package status serves a small operator HTTP endpoint.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"feedrelay/internal/model"
	"feedrelay/internal/storage"
)

// Server exposes health and subscription listings over HTTP.
type Server struct {
	store storage.Storage
	log   *slog.Logger
	addr  string
}

// New creates a Server listening on addr.
func New(addr string, store storage.Storage, log *slog.Logger) *Server {
	return &Server{store: store, log: log, addr: addr}
}

type subscriptionView struct {
	ID          int64      `json:"id"`
	ChannelID   int64      `json:"channel_id"`
	ChannelName string     `json:"channel_name"`
	FeedURL     string     `json:"feed_url"`
	Watermark   *time.Time `json:"watermark"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newSubscriptionView(s model.Subscription) subscriptionView {
	v := subscriptionView{
		ID:          s.ID,
		ChannelID:   s.ChannelID,
		ChannelName: s.ChannelName,
		FeedURL:     s.FeedURL,
		CreatedAt:   s.CreatedAt,
	}
	if s.Watermark.After(model.Epoch) {
		w := s.Watermark
		v.Watermark = &w
	}
	return v
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)
	r.GET("/subscriptions", s.subscriptions)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.log.Error("health check", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) subscriptions(c *gin.Context) {
	var channelID int64
	if raw := c.Query("channel_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel_id"})
			return
		}
		channelID = id
	}

	subs, err := s.store.ListSubscriptions(c.Request.Context(), channelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]subscriptionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, newSubscriptionView(sub))
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": views})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
