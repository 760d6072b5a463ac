package sse

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kyrelia/astraldrift/cache"
	"github.com/kyrelia/astraldrift/config"
	mw "github.com/kyrelia/astraldrift/middleware"
	"github.com/kyrelia/astraldrift/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const announceChannel = "announce"

// PilotChannel is the pub/sub channel carrying one pilot's notifications:
// quest completions, triggered events, level-ups. Hook handlers publish
// here; connected clients receive them as SSE "notice" events.
func PilotChannel(pilotID int64) string {
	return "pilot:" + strconv.FormatInt(pilotID, 10)
}

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub cache.PubSub
	sec    config.SecurityConfig
	c      cache.Cache
	db     *gorm.DB
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, db *gorm.DB, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, db: db, sec: sec, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>&pilot_id=<id>.
// It streams server-sent events to authenticated clients: global
// announcements, plus the pilot's own notifications when pilot_id is given.
func (h *Handler) ServeSSE(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.c.Exists(ctx, "session:"+tokenStr)
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	channels := []string{announceChannel}
	if pidStr := c.Query("pilot_id"); pidStr != "" {
		pilotID, err := strconv.ParseInt(pidStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pilot_id"})
			return
		}
		var p model.Pilot
		if err := h.db.Select("id, account_id").First(&p, pilotID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "pilot not found"})
			return
		}
		if p.AccountID != claims.AccountID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your pilot"})
			return
		}
		channels = append(channels, PilotChannel(pilotID))
	}

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, channels...)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	// Send initial connected event.
	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			name := "notice"
			if msg.Channel == announceChannel {
				name = "announce"
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// Announce publishes an announcement message to all SSE subscribers.
func (h *Handler) Announce(ctx context.Context, message string) error {
	return h.pubsub.Publish(ctx, announceChannel, message)
}

// Notify publishes a notification to one pilot's stream.
func (h *Handler) Notify(ctx context.Context, pilotID int64, payload string) error {
	return h.pubsub.Publish(ctx, PilotChannel(pilotID), payload)
}
