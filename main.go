package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kyrelia/astraldrift/api/rest"
	"github.com/kyrelia/astraldrift/api/sse"
	"github.com/kyrelia/astraldrift/audit"
	"github.com/kyrelia/astraldrift/cache"
	"github.com/kyrelia/astraldrift/config"
	dbadapter "github.com/kyrelia/astraldrift/db"
	gameclock "github.com/kyrelia/astraldrift/game/clock"
	"github.com/kyrelia/astraldrift/game/event"
	"github.com/kyrelia/astraldrift/game/hook"
	"github.com/kyrelia/astraldrift/game/quest"
	"github.com/kyrelia/astraldrift/game/world"
	mw "github.com/kyrelia/astraldrift/middleware"
	"github.com/kyrelia/astraldrift/model"
	"github.com/kyrelia/astraldrift/resource"
	"github.com/kyrelia/astraldrift/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Game Content ----
	var content *resource.ContentLoader
	if cfg.Content.DataPath != "" {
		content = resource.NewLoader(cfg.Content.DataPath)
		if err := content.Load(); err != nil {
			log.Fatalf("content: %v", err)
		}
		logger.Info("Game content loaded", zap.String("path", cfg.Content.DataPath),
			zap.Int("quests", len(content.Quests)))
	} else {
		content = resource.DefaultLoader()
		logger.Info("Using built-in starter content")
	}

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- World ----
	evCfg := event.DefaultConfig()
	if cfg.Events.GlobalRate > 0 {
		evCfg.GlobalRate = cfg.Events.GlobalRate
	}
	if cfg.Events.CheckIntervalS > 0 {
		evCfg.CheckInterval = time.Duration(cfg.Events.CheckIntervalS) * time.Second
	}
	if cfg.Events.MaxActive > 0 {
		evCfg.MaxActive = cfg.Events.MaxActive
	}
	if cfg.Events.LevelBonusPerLvl > 0 {
		evCfg.LevelBonus = cfg.Events.LevelBonusPerLvl
	}

	wm := world.NewManager(db, content, world.ManagerConfig{
		TickInterval: time.Duration(cfg.Game.TickMs) * time.Millisecond,
		ExpPerLevel:  cfg.Game.ExpPerLevel,
		Events:       evCfg,
	}, gameclock.SystemClock{}, logger)
	defer wm.StopAll()

	// ---- Session hook wiring: audit trail + SSE notifications ----
	// Hook handlers run inside the session's tick, so they must not call
	// back into locked session methods; they use only the payload and the
	// session's immutable identity.
	wm.OnSession(func(s *world.Session, hooks *hook.Center) {
		pilotID := s.PilotID
		accountID := s.AccountID()
		name := s.Name()

		notifyPilot := func(payload interface{}) {
			data, err := json.Marshal(payload)
			if err != nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = pubsub.Publish(ctx, sse.PilotChannel(pilotID), string(data))
		}

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
				notifyPilot(map[string]interface{}{
					"type":     "quest",
					"event":    ev,
					"quest_id": n.QuestID,
					"title":    n.Title,
					"status":   n.Status,
					"reason":   n.Reason,
				})
				return nil, nil
			}
		}
		hooks.Register(hook.OnQuestStarted, 0, "notify", questHook("quest_started"))
		hooks.Register(hook.OnQuestComplete, 0, "notify", questHook("quest_completed"))
		hooks.Register(hook.OnQuestFailed, 0, "notify", questHook("quest_failed"))
		hooks.Register(hook.OnArcComplete, 0, "notify", questHook("arc_completed"))

		eventHook := func(action string) hook.Fn {
			return func(ctx context.Context, evName string, data interface{}) (interface{}, error) {
				ev, ok := data.(*event.Event)
				if !ok {
					return nil, nil
				}
				auditSvc.Log(audit.Entry{
					PilotID:   &pilotID,
					AccountID: &accountID,
					PilotName: name,
					Action:    action,
					Detail:    map[string]interface{}{"event_id": ev.ID, "subtype": ev.Subtype},
				})
				notifyPilot(map[string]interface{}{
					"type":     "event",
					"event":    evName,
					"event_id": ev.ID,
					"category": ev.Category,
					"title":    ev.Title,
					"status":   ev.Status,
				})
				return nil, nil
			}
		}
		hooks.Register(hook.OnEventTriggered, 0, "notify", eventHook("event_triggered"))
		hooks.Register(hook.OnEventResolved, 0, "notify", eventHook("event_resolved"))
		hooks.Register(hook.OnEventExpired, 0, "notify", eventHook("event_expired"))

		hooks.Register(hook.OnPilotLevelUp, 0, "notify", func(ctx context.Context, evName string, data interface{}) (interface{}, error) {
			level, _ := data.(int)
			auditSvc.Log(audit.Entry{
				PilotID:   &pilotID,
				AccountID: &accountID,
				PilotName: name,
				Action:    "level_up",
				Detail:    map[string]interface{}{"level": level},
			})
			notifyPilot(map[string]interface{}{"type": "level_up", "level": level})
			return nil, nil
		})
	})

	// ---- Handlers ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	pilotH := apirest.NewPilotHandler(db, wm, cfg.Game)
	questH := apirest.NewQuestHandler(db, wm)
	eventH := apirest.NewEventHandler(db, wm)
	contentH := apirest.NewContentHandler(content)
	rankH := apirest.NewRankingHandler(db, c, logger)
	adminH := apirest.NewAdminHandler(db, wm, sched, logger)
	sseH := sse.NewHandler(pubsub, c, db, cfg.Security, logger)

	// ---- Periodic Scheduler Tasks ----
	sched.AddTicker("auto_save", time.Duration(cfg.Game.SaveIntervalS)*time.Second, func() {
		wm.SaveAll()
	})
	sched.AddTicker("session_cleanup", 5*time.Minute, func() {
		idle := time.Duration(cfg.Game.SessionIdleMin) * time.Minute
		if n := wm.CleanupIdle(idle); n > 0 {
			logger.Info("idle sessions stopped", zap.Int("count", n))
		}
	})
	sched.AddTicker("ranking_refresh", time.Minute, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := rankH.Rebuild(ctx); err != nil {
			logger.Warn("ranking refresh failed", zap.Error(err))
		}
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		pilotsG := api.Group("/pilots")
		pilotsG.Use(mw.Auth(cfg.Security, c))
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
		adminG.Use(mw.IPWhitelist(cfg.Security.AdminIPWhitelist))
		adminG.Use(mw.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/save", adminH.SaveAll)
		adminG.POST("/cleanup", adminH.CleanupIdle)
		adminG.POST("/accounts/:id/ban", adminH.BanAccount)
		adminG.GET("/audit", adminH.AuditLogs)
		adminG.POST("/ranking/refresh", rankH.RefreshRanking)
	}

	// ---- SSE ----
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
