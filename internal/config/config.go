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
	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/ai/openaimodel"
)

// Supported chat model providers.
const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	QA       QAConfig
	Document DocumentConfig
	Session  SessionConfig
	Export   ExportConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	qa, err := loadQAConfig()
	if err != nil {
		return nil, err
	}

	doc, err := loadDocumentConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	export, err := loadExportConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		QA:       qa,
		Document: doc,
		Session:  session,
		Export:   export,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider    string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	switch c.Provider {
	case ProviderArk:
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	default:
		return c.APIKey != ""
	}
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s credentials or model missing", c.Provider)
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	switch c.Provider {
	case ProviderArk:
		chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
		if err != nil {
			return nil, err
		}
		return chatModel, nil
	case ProviderOpenAI:
		clientCfg := openai.DefaultConfig(c.APIKey)
		if c.BaseURL != "" {
			clientCfg.BaseURL = c.BaseURL
		}
		return openaimodel.New(openai.NewClientWithConfig(clientCfg), openaimodel.Config{
			Model:       c.Model,
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   c.MaxTokens,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER %q", c.Provider)
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderOpenAI))
	if provider != ProviderOpenAI && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	if provider == ProviderArk {
		return loadArkConfig()
	}

	temperature, err := parseOptionalFloatEnv("OPENAI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		defaultTemperature := 0.7
		temperature = &defaultTemperature
	}

	topP, err := parseOptionalFloatEnv("OPENAI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("OPENAI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:    ProviderOpenAI,
		APIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Model:       getEnvOrDefault("OPENAI_MODEL", openai.GPT3Dot5Turbo),
		BaseURL:     strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func loadArkConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:    ProviderArk,
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// QAConfig 控制问答重试策略与上下文截断。
type QAConfig struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxJitter    time.Duration
	ContextLimit int
}

func loadQAConfig() (QAConfig, error) {
	cfg := QAConfig{
		MaxRetries:   3,
		BaseDelay:    time.Second,
		MaxJitter:    100 * time.Millisecond,
		ContextLimit: 4000,
	}

	if v, err := parseOptionalIntEnv("QA_MAX_RETRIES"); err != nil {
		return QAConfig{}, err
	} else if v != nil {
		if *v < 1 {
			return QAConfig{}, fmt.Errorf("invalid QA_MAX_RETRIES value %d: must be at least 1", *v)
		}
		cfg.MaxRetries = *v
	}

	if v, err := parseOptionalDurationEnv("QA_BASE_DELAY"); err != nil {
		return QAConfig{}, err
	} else if v != nil {
		cfg.BaseDelay = *v
	}

	if v, err := parseOptionalDurationEnv("QA_MAX_JITTER"); err != nil {
		return QAConfig{}, err
	} else if v != nil {
		cfg.MaxJitter = *v
	}

	if v, err := parseOptionalIntEnv("QA_CONTEXT_LIMIT"); err != nil {
		return QAConfig{}, err
	} else if v != nil {
		if *v < 1 {
			return QAConfig{}, fmt.Errorf("invalid QA_CONTEXT_LIMIT value %d: must be positive", *v)
		}
		cfg.ContextLimit = *v
	}

	return cfg, nil
}

// DocumentConfig 描述上传文档限制。
type DocumentConfig struct {
	MaxUploadBytes int64
}

func loadDocumentConfig() (DocumentConfig, error) {
	maxBytes := int64(20 << 20)
	v, err := parseOptionalIntEnv("UPLOAD_MAX_BYTES")
	if err != nil {
		return DocumentConfig{}, err
	}
	if v != nil {
		if *v < 1 {
			return DocumentConfig{}, fmt.Errorf("invalid UPLOAD_MAX_BYTES value %d: must be positive", *v)
		}
		maxBytes = int64(*v)
	}
	return DocumentConfig{MaxUploadBytes: maxBytes}, nil
}

// SessionConfig 描述会话生命周期。
type SessionConfig struct {
	TTL time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	ttl := 2 * time.Hour
	v, err := parseOptionalDurationEnv("SESSION_TTL")
	if err != nil {
		return SessionConfig{}, err
	}
	if v != nil {
		ttl = *v
	}
	return SessionConfig{TTL: ttl}, nil
}

// ExportConfig 描述对话导出选项。
type ExportConfig struct {
	EscapeLaTeX bool
}

func loadExportConfig() (ExportConfig, error) {
	escape, err := parseBoolEnv("EXPORT_ESCAPE_LATEX", false)
	if err != nil {
		return ExportConfig{}, err
	}
	return ExportConfig{EscapeLaTeX: escape}, nil
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

// parseOptionalDurationEnv accepts Go durations ("1500ms") or bare seconds ("1.5").
func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return nil, fmt.Errorf("invalid %s value %q: must not be negative", key, value)
		}
		d := time.Duration(secs * float64(time.Second))
		return &d, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	if d < 0 {
		return nil, fmt.Errorf("invalid %s value %q: must not be negative", key, value)
	}
	return &d, nil
}
