package config

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
)

// Relay providers.
const (
	ProviderDialogflow = "dialogflow"
	ProviderArk        = "ark"
	ProviderNone       = "none"
)

// DefaultFallbackReply is returned when the intent engine has no confident answer.
const DefaultFallbackReply = "I didn't understand."

// DefaultArkSystemPrompt frames the LLM relay when ARK_SYSTEM_PROMPT is unset.
const DefaultArkSystemPrompt = "You are a concise and friendly assistant answering visitors of a personal website."

// Config aggregates every setting of the service.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Relay   RelayConfig
	Session SessionConfig
	Log     LogConfig
}

// Load reads the configuration from the environment. Call godotenv first if a .env file
// should be honoured.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig(v)
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig(v)
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig(v)
	if err != nil {
		return nil, err
	}

	log, err := loadLogConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Store: store, Relay: relay, Session: session, Log: log}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "5000")
	v.SetDefault("cors_origin", "http://localhost:3000")
	v.SetDefault("max_message_length", 256)

	v.SetDefault("mongodb_database", "chat")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_max_idle_conns", 5)
	v.SetDefault("db_conn_max_lifetime", "5m")
	v.SetDefault("redis_key_prefix", "chat:")

	v.SetDefault("relay_timeout", "10s")
	v.SetDefault("relay_language", "fr")
	v.SetDefault("relay_fallback_reply", DefaultFallbackReply)
	v.SetDefault("ark_base_url", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ark_region", "cn-beijing")
	v.SetDefault("ark_history_limit", 10)
	v.SetDefault("ark_system_prompt", DefaultArkSystemPrompt)

	v.SetDefault("session_scoped", true)
	v.SetDefault("session_cookie_name", "chat_session")
	v.SetDefault("session_header", "X-Session-Id")
	v.SetDefault("cookie_secure", false)
	v.SetDefault("cookie_samesite", "lax")
	v.SetDefault("cookie_max_age", "8760h")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// ServerConfig describes the HTTP surface.
type ServerConfig struct {
	Addr             string
	AllowedOrigins   []string
	StaticDir        string
	MaxMessageLength int
}

func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := strings.TrimSpace(v.GetString("port"))
	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	addr := port
	if !strings.Contains(port, ":") {
		// PORT may also be ":5000" or "127.0.0.1:5000".
		addr = ":" + port
	}

	maxLen, err := parseInt(v, "max_message_length")
	if err != nil {
		return ServerConfig{}, err
	}
	if maxLen < 1 {
		return ServerConfig{}, fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", maxLen)
	}

	return ServerConfig{
		Addr:             addr,
		AllowedOrigins:   splitList(v.GetString("cors_origin")),
		StaticDir:        strings.TrimSpace(v.GetString("static_dir")),
		MaxMessageLength: maxLen,
	}, nil
}

// StoreConfig selects and parameterises the message store backend.
type StoreConfig struct {
	Driver          string
	MongoURI        string
	MongoDatabase   string
	PostgresDSN     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RedisURL        string
	RedisKeyPrefix  string
}

func loadStoreConfig(v *viper.Viper) (StoreConfig, error) {
	cfg := StoreConfig{
		Driver:         strings.ToLower(strings.TrimSpace(v.GetString("store_driver"))),
		MongoURI:       strings.TrimSpace(v.GetString("mongodb_uri")),
		MongoDatabase:  strings.TrimSpace(v.GetString("mongodb_database")),
		PostgresDSN:    strings.TrimSpace(v.GetString("database_url")),
		RedisURL:       strings.TrimSpace(v.GetString("redis_url")),
		RedisKeyPrefix: v.GetString("redis_key_prefix"),
	}

	var err error
	if cfg.MaxOpenConns, err = parseInt(v, "db_max_open_conns"); err != nil {
		return StoreConfig{}, err
	}
	if cfg.MaxIdleConns, err = parseInt(v, "db_max_idle_conns"); err != nil {
		return StoreConfig{}, err
	}
	if cfg.ConnMaxLifetime, err = parseDuration(v, "db_conn_max_lifetime"); err != nil {
		return StoreConfig{}, err
	}

	if cfg.Driver == "" {
		cfg.Driver = inferDriver(cfg)
	}

	switch cfg.Driver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return StoreConfig{}, fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
	case DriverMongo:
		if cfg.MongoURI == "" {
			return StoreConfig{}, fmt.Errorf("STORE_DRIVER=mongo requires MONGODB_URI")
		}
	case DriverRedis:
		if cfg.RedisURL == "" {
			return StoreConfig{}, fmt.Errorf("STORE_DRIVER=redis requires REDIS_URL")
		}
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value %q", cfg.Driver)
	}

	return cfg, nil
}

func inferDriver(cfg StoreConfig) string {
	switch {
	case cfg.MongoURI != "":
		return DriverMongo
	case cfg.PostgresDSN != "":
		return DriverPostgres
	case cfg.RedisURL != "":
		return DriverRedis
	default:
		return DriverMemory
	}
}

// RelayConfig describes the intent engine connection.
type RelayConfig struct {
	Provider      string
	Timeout       time.Duration
	Language      string
	FallbackReply string
	Dialogflow    DialogflowConfig
	Ark           ArkConfig
}

// DialogflowConfig holds the Dialogflow agent identity and service account.
type DialogflowConfig struct {
	ProjectID   string
	ClientEmail string
	PrivateKey  string
}

// Enabled reports whether a Dialogflow agent is configured.
func (c DialogflowConfig) Enabled() bool {
	return c.ProjectID != ""
}

// HasServiceAccount reports whether inline service-account credentials were supplied.
// Without them the client falls back to Application Default Credentials.
func (c DialogflowConfig) HasServiceAccount() bool {
	return c.ClientEmail != "" && c.PrivateKey != ""
}

// ArkConfig describes the Ark chat model used by the LLM relay.
type ArkConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	SystemPrompt string
	HistoryLimit int
}

// Enabled reports whether the required keys are present.
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates an Ark chat model from the configuration.
func (c ArkConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_MODEL with ARK_API_KEY or ARK_ACCESS_KEY + ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		Temperature: temperature,
	})
}

func loadRelayConfig(v *viper.Viper) (RelayConfig, error) {
	timeout, err := parseDuration(v, "relay_timeout")
	if err != nil {
		return RelayConfig{}, err
	}
	if timeout <= 0 {
		return RelayConfig{}, fmt.Errorf("RELAY_TIMEOUT must be positive, got %s", timeout)
	}

	temperature, err := parseOptionalFloat(v, "ark_temperature")
	if err != nil {
		return RelayConfig{}, err
	}

	historyLimit, err := parseInt(v, "ark_history_limit")
	if err != nil {
		return RelayConfig{}, err
	}
	if historyLimit < 0 {
		historyLimit = 0
	}

	cfg := RelayConfig{
		Provider:      strings.ToLower(strings.TrimSpace(v.GetString("relay_provider"))),
		Timeout:       timeout,
		Language:      strings.TrimSpace(v.GetString("relay_language")),
		FallbackReply: v.GetString("relay_fallback_reply"),
		Dialogflow: DialogflowConfig{
			ProjectID:   strings.TrimSpace(v.GetString("google_project_id")),
			ClientEmail: strings.TrimSpace(v.GetString("google_client_email")),
			// Keys pasted into env files usually carry literal "\n" sequences.
			PrivateKey: strings.ReplaceAll(v.GetString("google_private_key"), `\n`, "\n"),
		},
		Ark: ArkConfig{
			APIKey:       strings.TrimSpace(v.GetString("ark_api_key")),
			AccessKey:    strings.TrimSpace(v.GetString("ark_access_key")),
			SecretKey:    strings.TrimSpace(v.GetString("ark_secret_key")),
			Model:        strings.TrimSpace(v.GetString("ark_model")),
			BaseURL:      strings.TrimSpace(v.GetString("ark_base_url")),
			Region:       strings.TrimSpace(v.GetString("ark_region")),
			Temperature:  temperature,
			SystemPrompt: v.GetString("ark_system_prompt"),
			HistoryLimit: historyLimit,
		},
	}
	if strings.TrimSpace(cfg.Ark.SystemPrompt) == "" {
		cfg.Ark.SystemPrompt = DefaultArkSystemPrompt
	}

	if cfg.Provider == "" {
		switch {
		case cfg.Dialogflow.Enabled():
			cfg.Provider = ProviderDialogflow
		case cfg.Ark.Enabled():
			cfg.Provider = ProviderArk
		default:
			cfg.Provider = ProviderNone
		}
	}

	switch cfg.Provider {
	case ProviderNone:
	case ProviderDialogflow:
		if !cfg.Dialogflow.Enabled() {
			return RelayConfig{}, fmt.Errorf("RELAY_PROVIDER=dialogflow requires GOOGLE_PROJECT_ID")
		}
	case ProviderArk:
		if !cfg.Ark.Enabled() {
			return RelayConfig{}, fmt.Errorf("RELAY_PROVIDER=ark requires ARK_MODEL and ark credentials")
		}
	default:
		return RelayConfig{}, fmt.Errorf("invalid RELAY_PROVIDER value %q", cfg.Provider)
	}

	return cfg, nil
}

// SessionConfig controls session scoping and the client-held credential.
type SessionConfig struct {
	Scoped       bool
	CookieName   string
	HeaderName   string
	CookieSecure bool
	SameSite     http.SameSite
	MaxAge       time.Duration
}

func loadSessionConfig(v *viper.Viper) (SessionConfig, error) {
	scoped, err := parseBool(v, "session_scoped")
	if err != nil {
		return SessionConfig{}, err
	}

	secure, err := parseBool(v, "cookie_secure")
	if err != nil {
		return SessionConfig{}, err
	}

	maxAge, err := parseDuration(v, "cookie_max_age")
	if err != nil {
		return SessionConfig{}, err
	}

	var sameSite http.SameSite
	switch raw := strings.ToLower(strings.TrimSpace(v.GetString("cookie_samesite"))); raw {
	case "lax":
		sameSite = http.SameSiteLaxMode
	case "strict":
		sameSite = http.SameSiteStrictMode
	case "none":
		// Browsers drop SameSite=None cookies that are not Secure.
		sameSite = http.SameSiteNoneMode
		secure = true
	default:
		return SessionConfig{}, fmt.Errorf("invalid COOKIE_SAMESITE value %q", raw)
	}

	cookieName := strings.TrimSpace(v.GetString("session_cookie_name"))
	if cookieName == "" {
		return SessionConfig{}, fmt.Errorf("SESSION_COOKIE_NAME must not be empty")
	}

	return SessionConfig{
		Scoped:       scoped,
		CookieName:   cookieName,
		HeaderName:   strings.TrimSpace(v.GetString("session_header")),
		CookieSecure: secure,
		SameSite:     sameSite,
		MaxAge:       maxAge,
	}, nil
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig(v *viper.Viper) (LogConfig, error) {
	format := strings.ToLower(strings.TrimSpace(v.GetString("log_format")))
	if format != "json" && format != "console" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q", format)
	}
	return LogConfig{
		Level:  strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		Format: format,
	}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBool(v *viper.Viper, key string) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", strings.ToUpper(key), raw, err)
	}
	return val, nil
}

func parseInt(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", strings.ToUpper(key), raw, err)
	}
	return val, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", strings.ToUpper(key), raw, err)
	}
	return val, nil
}

func parseOptionalFloat(v *viper.Viper, key string) (*float64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", strings.ToUpper(key), raw, err)
	}
	return &val, nil
}
