package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sqlchat/sqlchat/internal/sqlguard"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const envPrefix = "SQLCHAT_"

// Config is built once at startup and passed by value; nothing mutates it afterwards.
type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Schema        SchemaConfig
	Exemplars     ExemplarConfig
	ObjectStore   ObjectStoreConfig
	AI            AIConfig
	SQL           SQLConfig
	Conversation  ConversationConfig
	Response      ResponseConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver      string
	DSN         string
	ReadOnly    bool
	RowLimit    int
	PingTimeout time.Duration
	// MySQLVersion selects the grammar used to re-check statements for the mysql driver.
	MySQLVersion string
}

type SchemaConfig struct {
	// Path to a DDL file. Empty means the built-in employees schema.
	Path string
}

type ExemplarConfig struct {
	// Source is a local path or an s3://bucket/key URI.
	Source string
	Max    int
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type AIConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Stop        []string
	Timeout     time.Duration
}

type SQLConfig struct {
	AllowedStatements []sqlguard.Kind
}

type ConversationConfig struct {
	MaxTurns    int
	MaxSessions int
	IdleTTL     time.Duration
	Greeting    string
}

type ResponseConfig struct {
	MaxRows int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
	LogFile  string
}

const (
	ProviderOpenAI          = "openai"
	ProviderOllama          = "ollama"
	ProviderAnthropic       = "anthropic"
	ProviderLangChainOpenAI = "langchain-openai"
)

var supportedDrivers = map[string]bool{"sqlite": true, "duckdb": true, "pgx": true, "mysql": true}

var supportedProviders = map[string]bool{
	ProviderOpenAI: true, ProviderOllama: true, ProviderAnthropic: true, ProviderLangChainOpenAI: true,
}

// LoadFromEnv reads the process environment. When SQLCHAT_CONFIG_FILE is set the
// YAML file underneath supplies values the environment leaves unset.
func LoadFromEnv(serviceName string) (Config, error) {
	lookup := LookupFunc(os.LookupEnv)
	if path, ok := os.LookupEnv(envPrefix + "CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		fileLookup, err := FileLookup(strings.TrimSpace(path))
		if err != nil {
			return Config{}, err
		}
		lookup = ChainLookup(lookup, fileLookup)
	}
	return Load(serviceName, lookup)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup(envPrefix + "PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid %sPROFILE: %q", envPrefix, profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "DB_DSN", &cfg.Database.DSN) },
		func() error { return applyBool(lookup, "DB_READ_ONLY", &cfg.Database.ReadOnly) },
		func() error { return applyInt(lookup, "DB_ROW_LIMIT", &cfg.Database.RowLimit) },
		func() error { return applyDuration(lookup, "DB_PING_TIMEOUT", &cfg.Database.PingTimeout) },
		func() error { return applyString(lookup, "DB_MYSQL_VERSION", &cfg.Database.MySQLVersion) },
		func() error { return applyString(lookup, "SCHEMA_PATH", &cfg.Schema.Path) },
		func() error { return applyString(lookup, "EXEMPLARS_SOURCE", &cfg.Exemplars.Source) },
		func() error { return applyInt(lookup, "EXEMPLARS_MAX", &cfg.Exemplars.Max) },
		func() error { return applyString(lookup, "OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error { return applyString(lookup, "AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyInt(lookup, "AI_MAX_TOKENS", &cfg.AI.MaxTokens) },
		func() error { return applyStopSequences(lookup, "AI_STOP", &cfg.AI.Stop) },
		func() error { return applyDuration(lookup, "AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyKinds(lookup, "SQL_ALLOWED_STATEMENTS", &cfg.SQL.AllowedStatements) },
		func() error { return applyInt(lookup, "CONVERSATION_MAX_TURNS", &cfg.Conversation.MaxTurns) },
		func() error { return applyInt(lookup, "CONVERSATION_MAX_SESSIONS", &cfg.Conversation.MaxSessions) },
		func() error { return applyDuration(lookup, "CONVERSATION_IDLE_TTL", &cfg.Conversation.IdleTTL) },
		func() error { return applyString(lookup, "CONVERSATION_GREETING", &cfg.Conversation.Greeting) },
		func() error { return applyInt(lookup, "RESPONSE_MAX_ROWS", &cfg.Response.MaxRows) },
		func() error { return applyBool(lookup, "LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyString(lookup, "LOG_FILE", &cfg.Observability.LogFile) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Service.Name == "":
		return fmt.Errorf("service name is required")
	case c.HTTP.Address == "":
		return fmt.Errorf("http address is required")
	case !supportedDrivers[c.Database.Driver]:
		return fmt.Errorf("invalid %sDB_DRIVER: %q", envPrefix, c.Database.Driver)
	case c.Database.DSN == "":
		return fmt.Errorf("database dsn is required")
	case c.Database.RowLimit < 0:
		return fmt.Errorf("invalid %sDB_ROW_LIMIT: must be >= 0", envPrefix)
	case !supportedProviders[c.AI.Provider]:
		return fmt.Errorf("invalid %sAI_PROVIDER: %q", envPrefix, c.AI.Provider)
	case c.AI.Model == "":
		return fmt.Errorf("ai model is required")
	case c.AI.MaxTokens <= 0:
		return fmt.Errorf("invalid %sAI_MAX_TOKENS: must be > 0", envPrefix)
	case c.Exemplars.Source == "":
		return fmt.Errorf("exemplar source is required")
	case c.Exemplars.Max < 0:
		return fmt.Errorf("invalid %sEXEMPLARS_MAX: must be >= 0", envPrefix)
	case c.Conversation.MaxTurns < 0:
		return fmt.Errorf("invalid %sCONVERSATION_MAX_TURNS: must be >= 0", envPrefix)
	case c.Conversation.MaxSessions < 0:
		return fmt.Errorf("invalid %sCONVERSATION_MAX_SESSIONS: must be >= 0", envPrefix)
	case c.Conversation.IdleTTL < 0:
		return fmt.Errorf("invalid %sCONVERSATION_IDLE_TTL: must be >= 0", envPrefix)
	case c.Response.MaxRows < 0:
		return fmt.Errorf("invalid %sRESPONSE_MAX_ROWS: must be >= 0", envPrefix)
	case len(c.SQL.AllowedStatements) == 0:
		return fmt.Errorf("at least one allowed statement kind is required")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqlchat-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:      "sqlite",
			DSN:         "employees.db",
			ReadOnly:    true,
			PingTimeout: 2 * time.Second,
		},
		Exemplars: ExemplarConfig{Source: "exemplars.json"},
		ObjectStore: ObjectStoreConfig{
			Endpoint:        "localhost:9000",
			Region:          "us-east-1",
			Bucket:          "sqlchat",
			AccessKeyID:     "minio",
			SecretAccessKey: "miniostorage",
		},
		AI: AIConfig{
			Provider:    ProviderOpenAI,
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4o-mini",
			Temperature: 0,
			MaxTokens:   500,
			Stop:        []string{"\n\n"},
			Timeout:     30 * time.Second,
		},
		SQL: SQLConfig{
			AllowedStatements: []sqlguard.Kind{sqlguard.KindSelect},
		},
		Conversation: ConversationConfig{
			MaxTurns:    0,
			MaxSessions: 1000,
			IdleTTL:     2 * time.Hour,
			Greeting:    "Please ask me any question about the Employees database",
		},
		Response: ResponseConfig{
			MaxRows: 200,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, name string, dst *string) error {
	raw, ok := lookup(envPrefix + name)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, name string, dst *time.Duration) error {
	raw, ok := lookup(envPrefix + name)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, name string, dst *bool) error {
	raw, ok := lookup(envPrefix + name)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, name string, dst *int) error {
	raw, ok := lookup(envPrefix + name)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, name string, dst *float64) error {
	raw, ok := lookup(envPrefix + name)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
	}
	*dst = value
	return nil
}

var stopEscapes = strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t")

// applyStopSequences reads a comma separated list. Escapes such as \n are
// expanded. An empty value disables stop sequences.
func applyStopSequences(lookup LookupFunc, name string, dst *[]string) error {
	raw, ok := lookup(envPrefix + name)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = stopEscapes.Replace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
	return nil
}

func applyKinds(lookup LookupFunc, name string, dst *[]sqlguard.Kind) error {
	raw, ok := lookup(envPrefix + name)
	if !ok {
		return nil
	}
	var out []sqlguard.Kind
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		kind, err := sqlguard.ParseKind(part)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		out = append(out, kind)
	}
	*dst = out
	return nil
}

func applyLogLevel(lookup LookupFunc, name string, dst *slog.Level) error {
	raw, ok := lookup(envPrefix + name)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s%s: %q", envPrefix, name, raw)
	}
	return nil
}
