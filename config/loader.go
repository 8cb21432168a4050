// =============================================================================
// 📦 Agora 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + .env 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithDotEnv(".env").
//	    WithEnvPrefix("AGORA").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → .env → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Agora 的完整配置结构
type Config struct {
	Server       ServerConfig       `yaml:"server" env:"SERVER"`
	Database     DatabaseConfig     `yaml:"database" env:"DATABASE"`
	Redis        RedisConfig        `yaml:"redis" env:"REDIS"`
	LLM          LLMConfig          `yaml:"llm" env:"LLM"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`
	Latency      LatencyConfig      `yaml:"latency" env:"LATENCY"`
	Log          LogConfig          `yaml:"log" env:"LOG"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" env:"TELEMETRY"`

	// Personas 首次启动时写入的种子人格（仅 YAML）
	Personas []PersonaSeed `yaml:"personas" env:"-"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// 同时设置时 API 端口以 HTTPS 提供服务
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`

	// DefaultRoom 兼容旧版 LED 控制器的 /api/led-status 所读取的房间
	DefaultRoom string `yaml:"default_room" env:"DEFAULT_ROOM"`

	// API Key 鉴权（为空则关闭）
	APIKeys          []string `yaml:"api_keys" env:"API_KEYS"`
	AllowQueryAPIKey bool     `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS       float64  `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst     int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// JWT 鉴权，启用后审核人身份取自 user_id claim
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig JWT 鉴权配置
type JWTConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时执行 AutoMigrate（生产环境建议使用 agora migrate）
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	// 启动时连接失败的重试次数与首次退避间隔
	ConnectRetries    int           `yaml:"connect_retries" env:"CONNECT_RETRIES"`
	ConnectRetryDelay time.Duration `yaml:"connect_retry_delay" env:"CONNECT_RETRY_DELAY"`
}

// RedisConfig Redis 配置（状态快照缓存）
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	Addr         string        `yaml:"addr" env:"ADDR"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" env:"DB"`
	PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	TLS          bool          `yaml:"tls" env:"TLS"`
	StatusTTL    time.Duration `yaml:"status_ttl" env:"STATUS_TTL"`
}

// LLMConfig LLM 配置，每个模型家族一组凭据
type LLMConfig struct {
	OpenAIAPIKey      string `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	AnthropicAPIKey   string `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL  string `yaml:"anthropic_base_url" env:"ANTHROPIC_BASE_URL"`
	OpenRouterAPIKey  string `yaml:"openrouter_api_key" env:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string `yaml:"openrouter_base_url" env:"OPENROUTER_BASE_URL"`

	// DefaultModel 未知模型回退与对话模拟使用的模型
	DefaultModel string `yaml:"default_model" env:"DEFAULT_MODEL"`
	// Timeout 单次 HTTP 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// BreakerThreshold 某家族连续失败多少次后熔断，0 关闭熔断
	BreakerThreshold int           `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" env:"BREAKER_COOLDOWN"`

	// Models 追加到静态模型表的条目: model id → family（openai / anthropic / openrouter）
	Models map[string]string `yaml:"models" env:"-"`
}

// OrchestratorConfig 分析编排配置
type OrchestratorConfig struct {
	// ContextWindow 参与分析的最近条目数
	ContextWindow int `yaml:"context_window" env:"CONTEXT_WINDOW"`
	// MaxContextTokens 上下文 Token 上限，0 表示不限制
	MaxContextTokens int `yaml:"max_context_tokens" env:"MAX_CONTEXT_TOKENS"`
	// PersonaTimeout 单个人格调用的超时
	PersonaTimeout time.Duration `yaml:"persona_timeout" env:"PERSONA_TIMEOUT"`
	// MaxParallel 同时进行的人格调用数
	MaxParallel int     `yaml:"max_parallel" env:"MAX_PARALLEL"`
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int     `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// LatencyConfig 延迟日志配置
type LatencyConfig struct {
	// Sink: gorm, mongo
	Sink            string        `yaml:"sink" env:"SINK"`
	MongoURI        string        `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase   string        `yaml:"mongo_database" env:"MONGO_DATABASE"`
	MongoCollection string        `yaml:"mongo_collection" env:"MONGO_COLLECTION"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// PersonaSeed 种子人格
type PersonaSeed struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Prompt      string  `yaml:"prompt"`
	Color       string  `yaml:"color"`
	Voice       string  `yaml:"voice"`
	Model       string  `yaml:"model"`
	Multiplier  float64 `yaml:"multiplier"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	dotEnvPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGORA",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithDotEnv 设置 .env 文件路径，文件中的值不会覆盖已存在的环境变量
func (l *Loader) WithDotEnv(path string) *Loader {
	l.dotEnvPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → .env → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if l.dotEnvPath != "" {
		if err := godotenv.Load(l.dotEnvPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load dotenv file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Orchestrator.ContextWindow <= 0 {
		errs = append(errs, "orchestrator.context_window must be positive")
	}
	if c.Orchestrator.MaxParallel <= 0 {
		errs = append(errs, "orchestrator.max_parallel must be positive")
	}
	if c.Orchestrator.PersonaTimeout <= 0 {
		errs = append(errs, "orchestrator.persona_timeout must be positive")
	}
	if c.LLM.DefaultModel == "" {
		errs = append(errs, "llm.default_model is required")
	}
	switch c.Latency.Sink {
	case "gorm", "mongo":
	default:
		errs = append(errs, fmt.Sprintf("unknown latency sink %q", c.Latency.Sink))
	}
	if c.Latency.Sink == "mongo" && c.Latency.MongoURI == "" {
		errs = append(errs, "latency.mongo_uri is required for mongo sink")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server.tls_cert_file and server.tls_key_file must be set together")
	}
	if c.Server.JWT.Enabled && c.Server.JWT.Secret == "" && c.Server.JWT.PublicKey == "" {
		errs = append(errs, "jwt requires secret or public_key")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
