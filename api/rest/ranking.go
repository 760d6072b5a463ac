package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kyrelia/astraldrift/cache"
	"github.com/kyrelia/astraldrift/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RankingHandler handles leaderboard REST endpoints.
type RankingHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	logger *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(db *gorm.DB, c cache.Cache, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{db: db, cache: c, logger: logger}
}

// RankingKey is the sorted set holding pilot experience. Hook handlers
// increment it on level-ups and quest completions; the scheduler rebuilds it
// from the DB so evicted or restarted caches converge.
const RankingKey = "ranking:exp"
const rankingTop = 100

// RankEntry is one row in the leaderboard.
type RankEntry struct {
	Rank      int    `json:"rank"`
	PilotID   int64  `json:"pilot_id"`
	PilotName string `json:"pilot_name"`
	Level     int    `json:"level"`
	Exp       int64  `json:"exp"`
}

// TopExp returns the top pilots sorted by experience.
// GET /api/ranking/exp?limit=20
func (h *RankingHandler) TopExp(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= rankingTop {
		limit = l
	}

	// Try the cached sorted set first.
	ctx := c.Request.Context()
	members, err := h.cache.ZRevRangeWithScores(ctx, RankingKey, 0, int64(limit-1))
	if err == nil && len(members) > 0 {
		entries := make([]RankEntry, 0, len(members))
		for i, m := range members {
			pilotID, err := strconv.ParseInt(m.Member, 10, 64)
			if err != nil {
				continue
			}
			entries = append(entries, RankEntry{
				Rank:    i + 1,
				PilotID: pilotID,
				Exp:     int64(m.Score),
			})
		}
		h.enrichNames(entries)
		c.JSON(http.StatusOK, gin.H{"ranking": entries})
		return
	}

	// Fall back to the DB and repopulate the cache on the way out.
	var pilots []model.Pilot
	h.db.Select("id, name, level, experience").
		Order("experience DESC").
		Limit(limit).
		Find(&pilots)

	entries := make([]RankEntry, len(pilots))
	for i, p := range pilots {
		entries[i] = RankEntry{
			Rank:      i + 1,
			PilotID:   p.ID,
			PilotName: p.Name,
			Level:     p.Level,
			Exp:       p.Experience,
		}
		_ = h.cache.ZAdd(ctx, RankingKey, float64(p.Experience), strconv.FormatInt(p.ID, 10))
	}
	c.JSON(http.StatusOK, gin.H{"ranking": entries})
}

// RefreshRanking handles POST /api/admin/ranking/refresh.
func (h *RankingHandler) RefreshRanking(c *gin.Context) {
	n, err := h.Rebuild(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": n})
}

// Rebuild repopulates the ranking sorted set from the DB. Also called
// periodically by the scheduler.
func (h *RankingHandler) Rebuild(ctx context.Context) (int, error) {
	var pilots []model.Pilot
	if err := h.db.Select("id, experience").Order("experience DESC").Limit(rankingTop).Find(&pilots).Error; err != nil {
		return 0, err
	}
	for _, p := range pilots {
		if err := h.cache.ZAdd(ctx, RankingKey, float64(p.Experience), strconv.FormatInt(p.ID, 10)); err != nil {
			h.logger.Warn("ranking rebuild zadd failed", zap.Int64("pilot_id", p.ID), zap.Error(err))
		}
	}
	return len(pilots), nil
}

func (h *RankingHandler) enrichNames(entries []RankEntry) {
	if len(entries) == 0 {
		return
	}
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.PilotID
	}
	var pilots []model.Pilot
	h.db.Select("id, name, level, experience").Where("id IN ?", ids).Find(&pilots)
	byID := make(map[int64]model.Pilot, len(pilots))
	for _, p := range pilots {
		byID[p.ID] = p
	}
	for i := range entries {
		if p, ok := byID[entries[i].PilotID]; ok {
			entries[i].PilotName = p.Name
			entries[i].Level = p.Level
			entries[i].Exp = p.Experience
		}
	}
}
