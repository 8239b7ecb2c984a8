package api

import (
	"context"

	"github.com/Gamechiefx/flashmath-backend/internal/api/handlers"
	"github.com/Gamechiefx/flashmath-backend/internal/api/middleware"
	"github.com/Gamechiefx/flashmath-backend/internal/config"
	"github.com/Gamechiefx/flashmath-backend/internal/notify"
	"github.com/Gamechiefx/flashmath-backend/internal/repository"
	"github.com/Gamechiefx/flashmath-backend/internal/service"
	"github.com/Gamechiefx/flashmath-backend/internal/store"
	"github.com/Gamechiefx/flashmath-backend/internal/websocket"
	"github.com/Gamechiefx/flashmath-backend/pkg/database"
	"github.com/Gamechiefx/flashmath-backend/pkg/distributed"
	"github.com/Gamechiefx/flashmath-backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SetupRouter API 라우터 설정. db와 redisClient는 nil일 수 있다 .
// db가 없으면 인메모리 파티 스토어, redis가 없으면 단일 인스턴스
// 모드로 동작한다. 반환된 shutdown은 백그라운드 구성요소를 정리한다.
func SetupRouter(cfg *config.Config, db *database.DB, redisClient *redis.Client) (*gin.Engine, func()) {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Party 스토어: DB가 있으면 영속, 없으면 인메모리
	var parties store.PartyStore
	if db != nil {
		parties = repository.NewPartyRepository(db)
	} else {
		parties = store.NewMemoryPartyStore()
		logger.Info("No DATABASE_URL set, using in-memory party store")
	}
	teams := store.NewTeamStore()
	matches := store.NewMatchStore()

	// WebSocket Hub 초기화 및 시작
	wsHub := websocket.NewHub(logger.Base())
	go wsHub.Run()

	// 알림 경로: 로컬 허브, redis가 있으면 인스턴스 간 브리지
	var notifier notify.Notifier = notify.NewHubNotifier(wsHub)
	var bridge *notify.RedisBridge
	if redisClient != nil {
		bridge = notify.NewRedisBridge(redisClient, notifier, logger.Base())
		if err := bridge.Start(context.Background()); err != nil {
			logger.Error("Failed to start redis event bridge", "error", err)
		} else {
			notifier = bridge
		}
	}

	// Kafka 매치 이벤트 프로듀서 (브로커 미설정 시 no-op)
	producer := notify.NewMatchProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger.Base())

	// Service 계층 초기화
	opts := service.Options{
		TeamSize:         cfg.TeamSize,
		AllowDualRole:    cfg.AllowDualRole,
		SelectionTimeout: cfg.SelectionTimeout,
		SweepInterval:    cfg.SweepInterval,
	}
	services := service.NewServices(service.Deps{
		Parties:  parties,
		Teams:    teams,
		Matches:  matches,
		Notifier: notifier,
		Producer: producer,
		Logger:   logger.Base(),
	}, opts)

	if redisClient != nil {
		services.Queue.SetLockManager(distributed.NewLockManager(redisClient))
	}
	services.Queue.Start()
	logger.Info("QueueService sweep started", "interval", cfg.SweepInterval)

	// Handler 초기화
	partyHandler := handlers.NewPartyHandler(services.Party)
	queueHandler := handlers.NewQueueHandler(services.Queue)
	teamHandler := handlers.NewTeamHandler(services.Role)
	matchHandler := handlers.NewMatchHandler(services.Match)
	wsHandler := handlers.NewWebSocketHandler(wsHub)

	// Health check
	router.GET("/health", handlers.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		// WebSocket endpoint
		v1.GET("/ws", middleware.Auth(cfg), wsHandler.HandleWebSocket)

		// Party routes
		partyGroup := v1.Group("/parties")
		partyGroup.Use(middleware.Auth(cfg))
		{
			partyGroup.POST("", partyHandler.CreateParty)
			partyGroup.GET("/me", middleware.PollRateLimit(), partyHandler.GetMyParty)
			partyGroup.GET("/:id", partyHandler.GetParty)
			partyGroup.POST("/:id/join", partyHandler.JoinParty)
			partyGroup.POST("/:id/leave", partyHandler.LeaveParty)
			partyGroup.PUT("/:id/mode", partyHandler.SetTargetMode)
			partyGroup.PUT("/:id/igl", partyHandler.AssignIGL)
			partyGroup.PUT("/:id/anchor", partyHandler.AssignAnchor)
			partyGroup.PUT("/:id/ready", partyHandler.ToggleReady)

			// Queue lifecycle (파티 단위)
			partyGroup.POST("/:id/queue/teammates", middleware.QueueActionRateLimit(), queueHandler.JoinTeammateQueue)
			partyGroup.GET("/:id/queue/teammates", middleware.PollRateLimit(), queueHandler.CheckForTeammates)
			partyGroup.POST("/:id/queue/opponents", middleware.QueueActionRateLimit(), queueHandler.JoinTeamQueue)
			partyGroup.GET("/:id/queue/opponents", middleware.PollRateLimit(), queueHandler.CheckTeamMatch)
			partyGroup.DELETE("/:id/queue", queueHandler.CancelQueue)
			partyGroup.POST("/:id/queue/ack", queueHandler.AcknowledgeMatch)
		}

		// Team routes (역할 선택)
		teamGroup := v1.Group("/teams")
		teamGroup.Use(middleware.Auth(cfg))
		{
			teamGroup.GET("/:id", teamHandler.GetTeam)
			teamGroup.POST("/:id/igl", teamHandler.SelectIGL)
			teamGroup.POST("/:id/anchor", teamHandler.SelectAnchor)
			teamGroup.POST("/:id/confirm", teamHandler.ConfirmSelection)
		}

		// Match routes
		matchGroup := v1.Group("/matches")
		matchGroup.Use(middleware.Auth(cfg))
		{
			matchGroup.GET("/:id", matchHandler.GetMatch)
			matchGroup.GET("/party/:partyId", matchHandler.ListMatchesByParty)
			matchGroup.POST("/ai", middleware.QueueActionRateLimit(), matchHandler.CreateAIMatch)
		}
	}

	shutdown := func() {
		services.Queue.Stop()
		if bridge != nil {
			bridge.Stop()
		}
		if err := producer.Close(); err != nil {
			logger.Error("Failed to close match producer", "error", err)
		}
	}
	return router, shutdown
}
