package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	PolicyThreshold = "threshold"
	PolicyLLM       = "llm"

	FallbackNone      = "none"
	FallbackThreshold = "threshold"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// AdvicePolicy selects the decision policy: "threshold" or "llm".
	AdvicePolicy      string
	MoistureThreshold float64
	// ClampMoisture clamps incoming moisture to [0,100] before deciding.
	ClampMoisture bool

	LLMBaseURL         string
	LLMModel           string
	LLMTimeout         time.Duration
	LLMMaxRetries      int
	LLMFallback        string
	LLMBreakerFailures int
	LLMBreakerOpen     time.Duration

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration
	SQLiteLogQueries      bool

	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	NtfyBaseURL        string
	NotificationTarget string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":5000"
	}

	advicePolicy := strings.ToLower(strings.TrimSpace(os.Getenv("ADVICE_POLICY")))
	if advicePolicy == "" {
		advicePolicy = PolicyThreshold
	}
	switch advicePolicy {
	case PolicyThreshold, PolicyLLM:
	default:
		return Config{}, fmt.Errorf("invalid ADVICE_POLICY %q (allowed: threshold, llm)", advicePolicy)
	}

	thresholdStr := strings.TrimSpace(os.Getenv("MOISTURE_THRESHOLD"))
	if thresholdStr == "" {
		thresholdStr = "30"
	}
	threshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MOISTURE_THRESHOLD %q: %w", thresholdStr, err)
	}

	clampMoisture, err := parseBool("CLAMP_MOISTURE", false)
	if err != nil {
		return Config{}, err
	}

	llmBaseURL := strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	if llmBaseURL == "" {
		llmBaseURL = "http://localhost:11434"
	}
	if u, err := url.Parse(llmBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("invalid LLM_BASE_URL %q (expected absolute URL)", llmBaseURL)
	}

	llmModel := strings.TrimSpace(os.Getenv("LLM_MODEL"))
	if llmModel == "" {
		llmModel = "llama3"
	}

	llmTimeoutStr := strings.TrimSpace(os.Getenv("LLM_TIMEOUT"))
	if llmTimeoutStr == "" {
		llmTimeoutStr = "30s"
	}
	llmTimeout, err := time.ParseDuration(llmTimeoutStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LLM_TIMEOUT %q: %w", llmTimeoutStr, err)
	}
	if llmTimeout <= 0 {
		return Config{}, fmt.Errorf("LLM_TIMEOUT must be positive, got %v", llmTimeout)
	}

	llmMaxRetriesStr := strings.TrimSpace(os.Getenv("LLM_MAX_RETRIES"))
	if llmMaxRetriesStr == "" {
		llmMaxRetriesStr = "1"
	}
	llmMaxRetries, err := strconv.Atoi(llmMaxRetriesStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LLM_MAX_RETRIES %q: %w", llmMaxRetriesStr, err)
	}
	if llmMaxRetries < 0 || llmMaxRetries > 1 {
		return Config{}, fmt.Errorf("LLM_MAX_RETRIES must be 0 or 1, got %d", llmMaxRetries)
	}

	llmFallback := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_FALLBACK")))
	if llmFallback == "" {
		llmFallback = FallbackNone
	}
	switch llmFallback {
	case FallbackNone, FallbackThreshold:
	default:
		return Config{}, fmt.Errorf("invalid LLM_FALLBACK %q (allowed: none, threshold)", llmFallback)
	}

	breakerFailuresStr := strings.TrimSpace(os.Getenv("LLM_BREAKER_FAILURES"))
	if breakerFailuresStr == "" {
		breakerFailuresStr = "5"
	}
	breakerFailures, err := strconv.Atoi(breakerFailuresStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LLM_BREAKER_FAILURES %q: %w", breakerFailuresStr, err)
	}
	if breakerFailures < 1 {
		return Config{}, fmt.Errorf("LLM_BREAKER_FAILURES must be >= 1, got %d", breakerFailures)
	}

	breakerOpenStr := strings.TrimSpace(os.Getenv("LLM_BREAKER_OPEN"))
	if breakerOpenStr == "" {
		breakerOpenStr = "30s"
	}
	breakerOpen, err := time.ParseDuration(breakerOpenStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LLM_BREAKER_OPEN %q: %w", breakerOpenStr, err)
	}

	driver := strings.TrimSpace(os.Getenv("SQLITE_DRIVER"))
	if driver == "" {
		driver = "sqlite3"
	}
	dsn := strings.TrimSpace(os.Getenv("SQLITE_DSN"))
	path := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if path == "" {
		path = "./data/sentinel.db"
	}

	maxOpenConnsStr := strings.TrimSpace(os.Getenv("SQLITE_MAX_OPEN_CONNS"))
	if maxOpenConnsStr == "" {
		maxOpenConnsStr = "1"
	}
	maxOpenConns, err := strconv.Atoi(maxOpenConnsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SQLITE_MAX_OPEN_CONNS %q: %w", maxOpenConnsStr, err)
	}

	maxIdleConnsStr := strings.TrimSpace(os.Getenv("SQLITE_MAX_IDLE_CONNS"))
	if maxIdleConnsStr == "" {
		maxIdleConnsStr = "1"
	}
	maxIdleConns, err := strconv.Atoi(maxIdleConnsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SQLITE_MAX_IDLE_CONNS %q: %w", maxIdleConnsStr, err)
	}

	connMaxLifetimeStr := strings.TrimSpace(os.Getenv("SQLITE_CONN_MAX_LIFETIME"))
	if connMaxLifetimeStr == "" {
		connMaxLifetimeStr = "0s"
	}
	connMaxLifetime, err := time.ParseDuration(connMaxLifetimeStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SQLITE_CONN_MAX_LIFETIME %q: %w", connMaxLifetimeStr, err)
	}

	logQueries, err := parseBool("SQLITE_LOG_QUERIES", false)
	if err != nil {
		return Config{}, err
	}

	mqttEnabled, err := parseBool("MQTT_ENABLED", false)
	if err != nil {
		return Config{}, err
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "sentinel-brain"
	}

	mqttTopic := strings.TrimSpace(os.Getenv("MQTT_TOPIC"))
	if mqttTopic == "" {
		mqttTopic = "sentinel/+/telemetry"
	}

	ntfyBaseURL := strings.TrimRight(strings.TrimSpace(os.Getenv("NTFY_BASE_URL")), "/")
	if ntfyBaseURL == "" {
		ntfyBaseURL = "https://ntfy.sh"
	}

	return Config{
		AppEnv:                appEnv,
		LogLevel:              level,
		HTTPAddr:              httpAddr,
		AdvicePolicy:          advicePolicy,
		MoistureThreshold:     threshold,
		ClampMoisture:         clampMoisture,
		LLMBaseURL:            llmBaseURL,
		LLMModel:              llmModel,
		LLMTimeout:            llmTimeout,
		LLMMaxRetries:         llmMaxRetries,
		LLMFallback:           llmFallback,
		LLMBreakerFailures:    breakerFailures,
		LLMBreakerOpen:        breakerOpen,
		SQLiteDriver:          driver,
		SQLiteDSN:             dsn,
		SQLitePath:            path,
		SQLiteMaxOpenConns:    maxOpenConns,
		SQLiteMaxIdleConns:    maxIdleConns,
		SQLiteConnMaxLifetime: connMaxLifetime,
		SQLiteLogQueries:      logQueries,
		MQTTEnabled:           mqttEnabled,
		MQTTBroker:            mqttBroker,
		MQTTPort:              mqttPort,
		MQTTClientID:          mqttClientID,
		MQTTTopic:             mqttTopic,
		NtfyBaseURL:           ntfyBaseURL,
		NotificationTarget:    strings.TrimSpace(os.Getenv("NOTIFICATION_TARGET")),
	}, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func parseBool(key string, fallback bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}
