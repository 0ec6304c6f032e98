package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	AI        AIConfig
	Memory    MemoryConfig
	Usage     UsageConfig
	Speech    SpeechConfig
	Stripe    StripeConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	storeCfg, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	memoryCfg, err := loadMemoryConfig()
	if err != nil {
		return nil, err
	}

	usage, err := loadUsageConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Store:     storeCfg,
		AI:        ai,
		Memory:    memoryCfg,
		Usage:     usage,
		Speech:    speech,
		Stripe:    loadStripeConfig(server.FrontendURL),
		RateLimit: rateLimit,
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr        string
	FrontendURL string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	frontend := strings.TrimRight(getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"), "/")

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, FrontendURL: frontend}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, FrontendURL: frontend}, nil
}

// StoreConfig 选择持久化后端。
type StoreConfig struct {
	Driver      string // memory, sqlite, postgres
	DatabaseURL string
	SQLitePath  string
}

func loadStoreConfig() (StoreConfig, error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))

	defaultDriver := "memory"
	if databaseURL != "" {
		defaultDriver = "postgres"
	}

	driver := strings.ToLower(getEnvOrDefault("STORE_DRIVER", defaultDriver))
	switch driver {
	case "memory", "sqlite":
	case "postgres":
		if databaseURL == "" {
			return StoreConfig{}, fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value: %q", driver)
	}

	return StoreConfig{
		Driver:      driver,
		DatabaseURL: databaseURL,
		SQLitePath:  getEnvOrDefault("SQLITE_PATH", "acoda.db"),
	}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	// Provider 为 ark、openai 或 azure；为空时按已配置的凭证推断。
	Provider string

	// Ark
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string

	// OpenAI 兼容接口
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Azure OpenAI
	AzureAPIKey     string
	AzureEndpoint   string
	AzureDeployment string
	AzureAPIVersion string

	Temperature *float64
	TopP        *float64
	MaxTokens   *int

	StreamResponse      bool
	ControlTagsMode     string // static, heuristic, llm
	EmotionHistoryLimit int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.ResolvedProvider() {
	case "ark":
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	case "openai":
		return c.OpenAIAPIKey != ""
	case "azure":
		return c.AzureAPIKey != "" && c.AzureEndpoint != "" && c.AzureDeployment != ""
	default:
		return false
	}
}

// ResolvedProvider returns the configured provider or infers one from credentials.
func (c AIConfig) ResolvedProvider() string {
	if c.Provider != "" {
		return c.Provider
	}
	switch {
	case c.AzureAPIKey != "" && c.AzureEndpoint != "":
		return "azure"
	case c.OpenAIAPIKey != "":
		return "openai"
	case c.APIKey != "" || c.AccessKey != "":
		return "ark"
	default:
		return ""
	}
}

// TemperatureOr returns the configured temperature or fallback.
func (c AIConfig) TemperatureOr(fallback float32) float32 {
	if c.Temperature == nil {
		return fallback
	}
	return float32(*c.Temperature)
}

// MaxTokensOr returns the configured max tokens or fallback.
func (c AIConfig) MaxTokensOr(fallback int) int {
	if c.MaxTokens == nil {
		return fallback
	}
	return *c.MaxTokens
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Model == "" || (c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "")) {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	temperature := c.TemperatureOr(0.7)
	maxTokens := c.MaxTokensOr(500)

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("LLM_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	provider := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	switch provider {
	case "", "ark", "openai", "azure":
	default:
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value: %q", provider)
	}

	tagsMode := strings.ToLower(getEnvOrDefault("CONTROL_TAGS_MODE", "static"))
	switch tagsMode {
	case "static", "heuristic", "llm":
	default:
		return AIConfig{}, fmt.Errorf("invalid CONTROL_TAGS_MODE value: %q", tagsMode)
	}

	emotionHistory := 6
	if historyOverride, err := parseOptionalIntEnv("AI_EMOTION_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if historyOverride != nil {
		emotionHistory = max(1, *historyOverride)
	}

	return AIConfig{
		Provider:            provider,
		APIKey:              strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:           strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:           strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:               strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:             getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:              getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIAPIKey:        strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:       strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		OpenAIModel:         getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		AzureAPIKey:         strings.TrimSpace(os.Getenv("AZURE_OPENAI_API_KEY")),
		AzureEndpoint:       strings.TrimSpace(os.Getenv("AZURE_OPENAI_ENDPOINT")),
		AzureDeployment:     strings.TrimSpace(os.Getenv("AZURE_OPENAI_DEPLOYMENT")),
		AzureAPIVersion:     getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),
		Temperature:         temperature,
		TopP:                topP,
		MaxTokens:           maxTokens,
		StreamResponse:      stream,
		ControlTagsMode:     tagsMode,
		EmotionHistoryLimit: emotionHistory,
	}, nil
}

// MemoryConfig 控制记忆摘要策略与保留期。
type MemoryConfig struct {
	Summarizer    string // digest, llm
	FreeRetention time.Duration
	ProRetention  time.Duration
}

func loadMemoryConfig() (MemoryConfig, error) {
	summarizer := strings.ToLower(getEnvOrDefault("MEMORY_SUMMARIZER", "digest"))
	if summarizer != "digest" && summarizer != "llm" {
		return MemoryConfig{}, fmt.Errorf("invalid MEMORY_SUMMARIZER value: %q", summarizer)
	}

	freeDays, err := parseOptionalIntEnv("MEMORY_FREE_RETENTION_DAYS")
	if err != nil {
		return MemoryConfig{}, err
	}
	proDays, err := parseOptionalIntEnv("MEMORY_PRO_RETENTION_DAYS")
	if err != nil {
		return MemoryConfig{}, err
	}

	cfg := MemoryConfig{
		Summarizer:    summarizer,
		FreeRetention: 24 * time.Hour,
		ProRetention:  90 * 24 * time.Hour,
	}
	if freeDays != nil && *freeDays > 0 {
		cfg.FreeRetention = time.Duration(*freeDays) * 24 * time.Hour
	}
	if proDays != nil && *proDays > 0 {
		cfg.ProRetention = time.Duration(*proDays) * 24 * time.Hour
	}
	if cfg.FreeRetention >= cfg.ProRetention {
		return MemoryConfig{}, fmt.Errorf("FREE memory retention (%s) must be shorter than PRO (%s)", cfg.FreeRetention, cfg.ProRetention)
	}
	return cfg, nil
}

// UsageConfig 描述每日语音配额。
type UsageConfig struct {
	FreeDailyLimit int
	Location       *time.Location
}

func loadUsageConfig() (UsageConfig, error) {
	limit := 10
	if override, err := parseOptionalIntEnv("FREE_DAILY_VOICE_LIMIT"); err != nil {
		return UsageConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return UsageConfig{}, fmt.Errorf("FREE_DAILY_VOICE_LIMIT must be positive, got %d", *override)
		}
		limit = *override
	}

	tz := getEnvOrDefault("USAGE_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return UsageConfig{}, fmt.Errorf("invalid USAGE_TIMEZONE value %q: %w", tz, err)
	}

	return UsageConfig{FreeDailyLimit: limit, Location: loc}, nil
}

// SpeechConfig 描述 Azure 语音服务相关配置
type SpeechConfig struct {
	SubscriptionKey string
	Region          string
	STTEndpoint     string
	TTSEndpoint     string
	ASRLanguage     string
	TTSVoice        string
	TTSOutputFormat string
	TTSLanguage     string
	Timeout         int
	Enabled         bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	key := strings.TrimSpace(os.Getenv("AZURE_SPEECH_KEY"))
	region := strings.TrimSpace(os.Getenv("AZURE_SPEECH_REGION"))

	return SpeechConfig{
		SubscriptionKey: key,
		Region:          region,
		STTEndpoint:     strings.TrimSpace(os.Getenv("AZURE_SPEECH_STT_ENDPOINT")),
		TTSEndpoint:     strings.TrimSpace(os.Getenv("AZURE_SPEECH_TTS_ENDPOINT")),
		ASRLanguage:     getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-US"),
		TTSVoice:        getEnvOrDefault("SPEECH_TTS_VOICE", "en-US-JennyNeural"),
		TTSOutputFormat: getEnvOrDefault("SPEECH_TTS_FORMAT", "audio-24khz-48kbitrate-mono-mp3"),
		TTSLanguage:     getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US"),
		Timeout:         timeoutSeconds,
		Enabled:         key != "" && region != "",
	}, nil
}

// StripeConfig 描述订阅计费配置。
type StripeConfig struct {
	SecretKey       string
	WebhookSecret   string
	PriceIDPro      string
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// Enabled reports whether checkout can be offered.
func (c StripeConfig) Enabled() bool {
	return c.SecretKey != "" && c.PriceIDPro != ""
}

func loadStripeConfig(frontendURL string) StripeConfig {
	return StripeConfig{
		SecretKey:       strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		WebhookSecret:   strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		PriceIDPro:      strings.TrimSpace(os.Getenv("STRIPE_PRICE_ID_PRO")),
		SuccessURL:      getEnvOrDefault("STRIPE_SUCCESS_URL", frontendURL+"/billing/success"),
		CancelURL:       getEnvOrDefault("STRIPE_CANCEL_URL", frontendURL+"/billing/cancel"),
		PortalReturnURL: getEnvOrDefault("STRIPE_PORTAL_RETURN_URL", frontendURL+"/settings/billing"),
	}
}

// RateLimitConfig 控制每个客户端的请求速率。
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	enabled, err := parseBoolEnv("RATE_LIMIT_ENABLED", true)
	if err != nil {
		return RateLimitConfig{}, err
	}

	rps := 10.0
	if override, err := parseOptionalFloatEnv("RATE_LIMIT_RPS"); err != nil {
		return RateLimitConfig{}, err
	} else if override != nil && *override > 0 {
		rps = *override
	}

	burst := 20
	if override, err := parseOptionalIntEnv("RATE_LIMIT_BURST"); err != nil {
		return RateLimitConfig{}, err
	} else if override != nil && *override > 0 {
		burst = *override
	}

	return RateLimitConfig{Enabled: enabled, RequestsPerSecond: rps, Burst: burst}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
