package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kyrelia/astraldrift/api/rest"
	"github.com/kyrelia/astraldrift/api/sse"
	"github.com/kyrelia/astraldrift/audit"
	"github.com/kyrelia/astraldrift/cache"
	"github.com/kyrelia/astraldrift/config"
	"github.com/kyrelia/astraldrift/game/clock"
	"github.com/kyrelia/astraldrift/game/event"
	"github.com/kyrelia/astraldrift/game/hook"
	"github.com/kyrelia/astraldrift/game/quest"
	"github.com/kyrelia/astraldrift/game/world"
	mw "github.com/kyrelia/astraldrift/middleware"
	"github.com/kyrelia/astraldrift/resource"
	"github.com/kyrelia/astraldrift/scheduler"
	"github.com/kyrelia/astraldrift/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const adminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with all game subsystems wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	WM     *world.Manager
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	Sec    config.SecurityConfig
}

// NewTestServer creates a fully wired game server for integration testing,
// mirroring the dependency wiring in main.go. Random events are disabled;
// use NewTestServerWithEvents for generator-driven tests.
func NewTestServer(t *testing.T) *TestServer {
	return NewTestServerWithEvents(t, event.Config{Categories: map[event.Category]event.CategoryConfig{}})
}

// NewTestServerWithEvents is NewTestServer with custom event pacing.
func NewTestServerWithEvents(t *testing.T, events event.Config) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}
	game := config.GameConfig{
		StartingCredits:  500,
		StartingLocation: "meridian_station",
	}

	// ---- World ----
	content := resource.DefaultLoader()
	wm := world.NewManager(db, content, world.ManagerConfig{
		TickInterval: 10 * time.Millisecond,
		ExpPerLevel:  1000,
		Events:       events,
	}, clock.SystemClock{}, logger)

	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	// ---- Session hook wiring (mirrors main.go) ----
	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })
	wm.OnSession(func(s *world.Session, hooks *hook.Center) {
		pilotID := s.PilotID
		accountID := s.AccountID()
		name := s.Name()
		questHook := func(action string) hook.Fn {
			return func(ctx context.Context, ev string, data interface{}) (interface{}, error) {
				n, ok := data.(*quest.Notice)
				if !ok {
					return nil, nil
				}
				auditSvc.Log(audit.Entry{
					PilotID:   &pilotID,
					AccountID: &accountID,
					PilotName: name,
					Action:    action,
					Detail:    map[string]interface{}{"quest_id": n.QuestID, "reason": n.Reason},
				})
				payload, _ := json.Marshal(map[string]interface{}{
					"type":     "quest",
					"event":    ev,
					"quest_id": n.QuestID,
					"status":   n.Status,
				})
				_ = pubsub.Publish(context.Background(), sse.PilotChannel(pilotID), string(payload))
				return nil, nil
			}
		}
		hooks.Register(hook.OnQuestStarted, 0, "notify", questHook("quest_started"))
		hooks.Register(hook.OnQuestComplete, 0, "notify", questHook("quest_completed"))
		hooks.Register(hook.OnQuestFailed, 0, "notify", questHook("quest_failed"))
		hooks.Register(hook.OnArcComplete, 0, "notify", questHook("arc_completed"))
	})

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes (mirrors main.go) ----
	authH := apirest.NewAuthHandler(db, c, sec)
	pilotH := apirest.NewPilotHandler(db, wm, game)
	questH := apirest.NewQuestHandler(db, wm)
	eventH := apirest.NewEventHandler(db, wm)
	contentH := apirest.NewContentHandler(content)
	rankH := apirest.NewRankingHandler(db, c, logger)
	adminH := apirest.NewAdminHandler(db, wm, sched, logger)
	sseH := sse.NewHandler(pubsub, c, db, sec, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(sec, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(sec, c), authH.Refresh)

		pilotsG := api.Group("/pilots")
		pilotsG.Use(mw.Auth(sec, c))
		pilotsG.GET("", pilotH.List)
		pilotsG.POST("", pilotH.Create)
		pilotsG.GET("/:id", pilotH.Get)
		pilotsG.DELETE("/:id", pilotH.Delete)
		pilotsG.POST("/:id/travel", pilotH.Travel)
		pilotsG.POST("/:id/dock", pilotH.Dock)
		pilotsG.POST("/:id/actions", pilotH.Action)
		pilotsG.GET("/:id/quests", questH.List)
		pilotsG.POST("/:id/quests/:questID/start", questH.Start)
		pilotsG.POST("/:id/quests/:questID/abandon", questH.Abandon)
		pilotsG.GET("/:id/factions/:faction/arcs", questH.FactionArcs)
		pilotsG.GET("/:id/factions/:faction/tiers", questH.StorylineTiers)
		pilotsG.GET("/:id/events", eventH.Active)
		pilotsG.GET("/:id/events/history", eventH.History)
		pilotsG.GET("/:id/events/stats", eventH.Stats)
		pilotsG.POST("/:id/events/:eventID/choice", eventH.Choose)

		contentG := api.Group("/content")
		contentG.GET("/quests", contentH.Quests)
		contentG.GET("/arcs", contentH.Arcs)
		contentG.GET("/seasonal", contentH.Seasonal)

		rankG := api.Group("/ranking")
		rankG.GET("/exp", rankH.TopExp)

		adminG := api.Group("/admin")
		adminG.Use(mw.AdminAuth(adminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/save", adminH.SaveAll)
		adminG.POST("/cleanup", adminH.CleanupIdle)
		adminG.POST("/accounts/:id/ban", adminH.BanAccount)
		adminG.GET("/audit", adminH.AuditLogs)
		adminG.POST("/ranking/refresh", rankH.RefreshRanking)
	}

	r.GET("/sse", sseH.ServeSSE)

	// ---- Start server ----
	server := httptest.NewServer(r)

	return &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		WM:     wm,
		Server: server,
		URL:    server.URL,
		Sec:    sec,
	}
}

// Close shuts down the test server and all game systems.
func (ts *TestServer) Close() {
	ts.WM.StopAll()
	ts.Server.Close()
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("POST", ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostAdmin sends a POST request carrying the admin key header.
func (ts *TestServer) PostAdmin(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("POST", ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(mw.AdminKeyHeader, adminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// GetAdmin sends a GET request carrying the admin key header.
func (ts *TestServer) GetAdmin(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set(mw.AdminKeyHeader, adminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// Login logs in (auto-registers on first call) and returns the token and account ID.
func (ts *TestServer) Login(t *testing.T, username, password string) (token string, accountID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	token = result["token"].(string)
	accountID = int64(result["account_id"].(float64))
	return
}

// CreatePilot creates a pilot and returns its ID.
func (ts *TestServer) CreatePilot(t *testing.T, token, name string) int64 {
	t.Helper()
	resp := ts.PostJSON(t, "/api/pilots", map[string]string{"name": name}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	pilot := result["pilot"].(map[string]interface{})
	return int64(pilot["id"].(float64))
}

// WaitForAvailableQuest polls the quest list until the quest surfaces.
func (ts *TestServer) WaitForAvailableQuest(t *testing.T, token string, pilotID int64, questID string) {
	t.Helper()
	url := fmt.Sprintf("%s/api/pilots/%d/quests?status=available", ts.URL, pilotID)
	require.Eventually(t, func() bool {
		req, err := http.NewRequest("GET", url, nil)
		if err != nil {
			return false
		}
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var result struct {
			Quests []struct {
				ID string `json:"id"`
			} `json:"quests"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return false
		}
		for _, q := range result.Quests {
			if q.ID == questID {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

// UniqueID returns a short unique string suitable for usernames/pilot names.
var testCounter uint64

func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}
