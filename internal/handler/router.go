package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/acoda/backend/internal/config"
	accountHandler "github.com/zhouzirui/acoda/backend/internal/handler/account"
	billingHandler "github.com/zhouzirui/acoda/backend/internal/handler/billing"
	chatHandler "github.com/zhouzirui/acoda/backend/internal/handler/chat"
	memoryHandler "github.com/zhouzirui/acoda/backend/internal/handler/memory"
	personaHandler "github.com/zhouzirui/acoda/backend/internal/handler/persona"
	speechHandler "github.com/zhouzirui/acoda/backend/internal/handler/speech"
	streamHandler "github.com/zhouzirui/acoda/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/acoda/backend/internal/middleware"
	personaModel "github.com/zhouzirui/acoda/backend/internal/model/persona"
	accountService "github.com/zhouzirui/acoda/backend/internal/service/account"
	billingService "github.com/zhouzirui/acoda/backend/internal/service/billing"
	chatService "github.com/zhouzirui/acoda/backend/internal/service/chat"
	memoryService "github.com/zhouzirui/acoda/backend/internal/service/memory"
	"github.com/zhouzirui/acoda/backend/internal/service/orchestrator"
	speechService "github.com/zhouzirui/acoda/backend/internal/service/speech"
	"github.com/zhouzirui/acoda/backend/pkg/utils"
)

// Deps 汇总路由需要的服务
type Deps struct {
	Personas     personaModel.Store
	Accounts     *accountService.Service
	Memory       *memoryService.Service
	Sessions     *chatService.Service
	Orchestrator *orchestrator.Orchestrator
	Speech       *speechService.Service
	Billing      *billingService.Service

	FrontendURL  string
	RateLimit    config.RateLimitConfig
	DefaultVoice string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.FrontendURL))
	if deps.RateLimit.Enabled {
		r.Use(middlewarePkg.NewRateLimiter(deps.RateLimit.RequestsPerSecond, deps.RateLimit.Burst).Handler)
	}

	r.Get("/health", handleHealth)

	r.Route("/api", func(api chi.Router) {
		personaHandler.New(deps.Personas).RegisterRoutes(api)
		accountHandler.New(deps.Accounts).RegisterRoutes(api)
		memoryHandler.New(deps.Memory).RegisterRoutes(api)

		chatHandler.New(deps.Sessions, deps.Orchestrator).RegisterRoutes(api)
		streamHandler.New(deps.Orchestrator).RegisterRoutes(api)

		// 语音未配置时路由仍然注册，由处理器返回 503
		speechHandler.New(deps.Speech, deps.Personas).RegisterRoutes(api)
		speechHandler.NewWebSocketHandler(deps.Speech, deps.Accounts, deps.Sessions, deps.Orchestrator, deps.DefaultVoice).RegisterWebSocketRoutes(api)

		billingHandler.New(deps.Billing).RegisterRoutes(api)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
