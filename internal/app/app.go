// Package app assembles stores and services from configuration. Both the API
// server and the admin CLI start from here.
package app

import (
	"context"
	"fmt"

	"github.com/zhouzirui/acoda/backend/internal/config"
	"github.com/zhouzirui/acoda/backend/internal/handler"
	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/internal/model/persona"
	speechModel "github.com/zhouzirui/acoda/backend/internal/model/speech"
	"github.com/zhouzirui/acoda/backend/internal/service/account"
	"github.com/zhouzirui/acoda/backend/internal/service/ai"
	"github.com/zhouzirui/acoda/backend/internal/service/billing"
	"github.com/zhouzirui/acoda/backend/internal/service/chat"
	"github.com/zhouzirui/acoda/backend/internal/service/emotion"
	"github.com/zhouzirui/acoda/backend/internal/service/memory"
	"github.com/zhouzirui/acoda/backend/internal/service/orchestrator"
	"github.com/zhouzirui/acoda/backend/internal/service/speech"
	"github.com/zhouzirui/acoda/backend/internal/store"
	"github.com/zhouzirui/acoda/backend/internal/store/memstore"
	"github.com/zhouzirui/acoda/backend/internal/store/sqlstore"
)

// StoreHandle is a store.Store that owns resources.
type StoreHandle interface {
	store.Store
	Close() error
}

// OpenStore selects the backend named by cfg.Driver. SQL backends are migrated on open.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (StoreHandle, error) {
	switch cfg.Driver {
	case "", "memory":
		logger.WithComponent("store").Warn("using in-memory store, data is lost on restart")
		return memstore.New(), nil
	case "sqlite":
		return openSQL(ctx, sqlstore.SQLite, cfg.SQLitePath)
	case "postgres":
		return openSQL(ctx, sqlstore.Postgres, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func openSQL(ctx context.Context, dialect sqlstore.Dialect, dsn string) (StoreHandle, error) {
	st, err := sqlstore.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Services 持有一次进程生命周期内的全部服务
type Services struct {
	Store        StoreHandle
	Personas     *persona.MemoryStore
	Accounts     *account.Service
	Memory       *memory.Service
	Sessions     *chat.Service
	Orchestrator *orchestrator.Orchestrator
	Speech       *speech.Service
	Billing      *billing.Service
}

// NewServices builds every service on top of st.
func NewServices(ctx context.Context, cfg *config.Config, st StoreHandle) (*Services, error) {
	log := logger.WithComponent("app")

	personas := persona.NewMemoryStore(persona.Seed())

	accounts := account.NewService(st, account.Config{
		DailyLimit: cfg.Usage.FreeDailyLimit,
		Location:   cfg.Usage.Location,
	})

	gateway, err := ai.NewGateway(ctx, cfg.AI)
	if err != nil {
		// 模型初始化失败时仍然启动，对话走降级回复
		log.WithError(err).Warn("failed to initialize language model, continuing without it")
		gateway = ai.Unconfigured{}
	}

	var summarizer memory.Summarizer = memory.DigestSummarizer{}
	if cfg.Memory.Summarizer == "llm" {
		summarizer = memory.NewLLMSummarizer(gateway)
	}
	memories := memory.NewService(st, memory.Config{
		FreeRetention: cfg.Memory.FreeRetention,
		ProRetention:  cfg.Memory.ProRetention,
		Summarizer:    summarizer,
	})

	sessions := chat.NewService(st)

	// 仅 Ark 网关暴露 eino ChatModel，其余情况 llm 标签模式退化为启发式
	var tagger emotion.Tagger
	if ark, ok := gateway.(*ai.ArkGateway); ok {
		tagger, err = emotion.NewTagger(ctx, cfg.AI.ControlTagsMode, ark.ChatModel(), cfg.AI.EmotionHistoryLimit)
	} else {
		tagger, err = emotion.NewTagger(ctx, cfg.AI.ControlTagsMode, nil, cfg.AI.EmotionHistoryLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize control tagger: %w", err)
	}
	log.WithField("mode", cfg.AI.ControlTagsMode).Info("control tagger ready")

	orch := orchestrator.New(accounts, memories, sessions, ai.NewPromptBuilder(personas.Default()), gateway, tagger)

	speechSvc := speech.NewService(NewSpeechConfig(cfg.Speech))
	if speechSvc.Enabled() {
		log.Info("speech service initialized successfully")
	} else {
		log.Warn("语音服务凭证未配置，语音接口将返回 503")
	}

	billingSvc := billing.NewService(cfg.Stripe, accounts, nil)
	if !billingSvc.Enabled() {
		log.Warn("stripe not configured, billing endpoints will return 503")
	}

	return &Services{
		Store:        st,
		Personas:     personas,
		Accounts:     accounts,
		Memory:       memories,
		Sessions:     sessions,
		Orchestrator: orch,
		Speech:       speechSvc,
		Billing:      billingSvc,
	}, nil
}

// RouterDeps exposes the services to the HTTP layer.
func (s *Services) RouterDeps(cfg *config.Config) handler.Deps {
	return handler.Deps{
		Personas:     s.Personas,
		Accounts:     s.Accounts,
		Memory:       s.Memory,
		Sessions:     s.Sessions,
		Orchestrator: s.Orchestrator,
		Speech:       s.Speech,
		Billing:      s.Billing,
		FrontendURL:  cfg.Server.FrontendURL,
		RateLimit:    cfg.RateLimit,
		DefaultVoice: cfg.Speech.TTSVoice,
	}
}

// NewSpeechConfig maps environment configuration onto the Azure client config.
func NewSpeechConfig(c config.SpeechConfig) *speechModel.SpeechConfig {
	return &speechModel.SpeechConfig{
		SubscriptionKey: c.SubscriptionKey,
		Region:          c.Region,
		STTEndpoint:     c.STTEndpoint,
		TTSEndpoint:     c.TTSEndpoint,
		ASRLanguage:     c.ASRLanguage,
		TTSVoice:        c.TTSVoice,
		TTSOutputFormat: c.TTSOutputFormat,
		TTSLanguage:     c.TTSLanguage,
		Timeout:         c.Timeout,
	}
}
