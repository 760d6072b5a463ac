package rest_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kyrelia/astraldrift/api/rest"
	"github.com/kyrelia/astraldrift/cache"
	"github.com/kyrelia/astraldrift/config"
	"github.com/kyrelia/astraldrift/game/clock"
	"github.com/kyrelia/astraldrift/game/event"
	"github.com/kyrelia/astraldrift/game/world"
	mw "github.com/kyrelia/astraldrift/middleware"
	"github.com/kyrelia/astraldrift/resource"
	"github.com/kyrelia/astraldrift/scheduler"
	"github.com/kyrelia/astraldrift/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminKey = "test-admin-key"

type testApp struct {
	db    *gorm.DB
	cache cache.Cache
	wm    *world.Manager
	r     *gin.Engine
}

// newTestApp wires the full REST surface against an in-memory DB, a local
// cache and a fast-ticking world manager with random events disabled.
func newTestApp(t *testing.T) *testApp {
	return newTestAppEvents(t, event.Config{Categories: map[event.Category]event.CategoryConfig{}})
}

// newTestAppEvents is newTestApp with custom event pacing, for tests that
// need the generator firing.
func newTestAppEvents(t *testing.T, events event.Config) *testApp {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	sec := config.SecurityConfig{
		JWTSecret: "test-secret",
		JWTTTLH:   72 * time.Hour,
	}
	game := config.GameConfig{
		StartingCredits:  500,
		StartingLocation: "meridian_station",
	}

	content := resource.DefaultLoader()
	wm := world.NewManager(db, content, world.ManagerConfig{
		TickInterval: 10 * time.Millisecond,
		ExpPerLevel:  1000,
		Events:       events,
	}, clock.SystemClock{}, logger)
	t.Cleanup(wm.StopAll)

	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	authH := rest.NewAuthHandler(db, c, sec)
	pilotH := rest.NewPilotHandler(db, wm, game)
	questH := rest.NewQuestHandler(db, wm)
	eventH := rest.NewEventHandler(db, wm)
	contentH := rest.NewContentHandler(content)
	rankH := rest.NewRankingHandler(db, c, logger)
	adminH := rest.NewAdminHandler(db, wm, sched, logger)

	r := gin.New()
	r.POST("/api/auth/login", authH.Login)
	authd := r.Group("/api", mw.Auth(sec, c))
	authd.POST("/auth/logout", authH.Logout)
	authd.POST("/auth/refresh", authH.Refresh)

	pilots := authd.Group("/pilots")
	pilots.GET("", pilotH.List)
	pilots.POST("", pilotH.Create)
	pilots.GET("/:id", pilotH.Get)
	pilots.DELETE("/:id", pilotH.Delete)
	pilots.POST("/:id/travel", pilotH.Travel)
	pilots.POST("/:id/dock", pilotH.Dock)
	pilots.POST("/:id/actions", pilotH.Action)
	pilots.GET("/:id/quests", questH.List)
	pilots.POST("/:id/quests/:questID/start", questH.Start)
	pilots.POST("/:id/quests/:questID/abandon", questH.Abandon)
	pilots.GET("/:id/factions/:faction/arcs", questH.FactionArcs)
	pilots.GET("/:id/factions/:faction/tiers", questH.StorylineTiers)
	pilots.GET("/:id/events", eventH.Active)
	pilots.GET("/:id/events/history", eventH.History)
	pilots.GET("/:id/events/stats", eventH.Stats)
	pilots.POST("/:id/events/:eventID/choice", eventH.Choose)

	r.GET("/api/content/quests", contentH.Quests)
	r.GET("/api/content/arcs", contentH.Arcs)
	r.GET("/api/content/seasonal", contentH.Seasonal)
	r.GET("/api/ranking/exp", rankH.TopExp)

	admin := r.Group("/api/admin", mw.AdminAuth(testAdminKey))
	admin.GET("/metrics", adminH.Metrics)
	admin.POST("/save", adminH.SaveAll)
	admin.POST("/cleanup", adminH.CleanupIdle)
	admin.POST("/accounts/:id/ban", adminH.BanAccount)
	admin.GET("/audit", adminH.AuditLogs)
	admin.POST("/ranking/refresh", rankH.RefreshRanking)

	return &testApp{db: db, cache: c, wm: wm, r: r}
}

func (a *testApp) request(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func (a *testApp) adminRequest(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(mw.AdminKeyHeader, testAdminKey)
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// login registers (or re-authenticates) a user and returns the token.
func (a *testApp) login(t *testing.T, username string) string {
	t.Helper()
	w := a.request(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": "pass1234",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	token, _ := resp["token"].(string)
	require.NotEmpty(t, token)
	return token
}

// createPilot makes a pilot through the API and returns its id.
func (a *testApp) createPilot(t *testing.T, token, name string) int64 {
	t.Helper()
	w := a.request(http.MethodPost, "/api/pilots", token, map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode(t, w)
	pilot := resp["pilot"].(map[string]interface{})
	return int64(pilot["id"].(float64))
}

// waitForAvailableQuest polls until the quest shows up in the pilot's
// available set; the session tick has to run at least once after load.
func (a *testApp) waitForAvailableQuest(t *testing.T, token string, pilotID int64, questID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		w := a.request(http.MethodGet, fmt.Sprintf("/api/pilots/%d/quests?status=available", pilotID), token, nil)
		if w.Code != http.StatusOK {
			return false
		}
		var resp struct {
			Quests []struct {
				ID string `json:"id"`
			} `json:"quests"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			return false
		}
		for _, q := range resp.Quests {
			if q.ID == questID {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
