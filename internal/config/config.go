package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Matching  MatchingConfig
	Notifiers NotifiersConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// AdminTokenHash - bcrypt-хеш токена для админских liquidity endpoints.
	// Если пуст, админские endpoints недоступны.
	AdminTokenHash string
}

// MatchingConfig - настройки ядра матчинга
type MatchingConfig struct {
	// BlockTTL - время жизни блокировки по внешней сделке.
	// Блокировки старше принудительно снимаются (auto-unblock).
	BlockTTL time.Duration
	// ExpireCheckFreq - период сканирования блокировок
	ExpireCheckFreq time.Duration
	// DeletedOrdersTTL - время подавления ордеров, удалённых "в полёте"
	DeletedOrdersTTL time.Duration
	// LiquidityFeedTTL - heartbeat-таймаут фида ликвидности;
	// по истечении стакан (exchange, pair) удаляется из пулов
	LiquidityFeedTTL time.Duration
	// FeedCheckFreq - период проверки heartbeat'ов фидов
	FeedCheckFreq time.Duration
	// DrainTimeout - грейс-период остановки пулов при shutdown
	DrainTimeout time.Duration
	// ExternalResultTimeout - таймаут ожидания применения ExternalTradeResult
	ExternalResultTimeout time.Duration
}

// NotifiersConfig - адреса внешних получателей уведомлений
type NotifiersConfig struct {
	MarketDataURL  string
	DealEndingURL  string
	LiquidityURL   string
	SenderInterval time.Duration // период фоновой доотправки сделок

	// Kafka - поток событий о сделках
	KafkaBrokers []string
	KafkaTopic   string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "exchange"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			AdminTokenHash: getEnv("ADMIN_TOKEN_HASH", ""),
		},
		Matching: MatchingConfig{
			BlockTTL:              getEnvAsDuration("MATCHING_BLOCK_TTL", 1*time.Minute),
			ExpireCheckFreq:       getEnvAsDuration("MATCHING_EXPIRE_CHECK_FREQ", 1*time.Minute),
			DeletedOrdersTTL:      getEnvAsDuration("LIQUIDITY_DELETED_TTL", 10*time.Minute),
			LiquidityFeedTTL:      getEnvAsDuration("LIQUIDITY_FEED_TTL", 30*time.Second),
			FeedCheckFreq:         getEnvAsDuration("LIQUIDITY_FEED_CHECK_FREQ", 10*time.Second),
			DrainTimeout:          getEnvAsDuration("POOL_DRAIN_TIMEOUT", 30*time.Second),
			ExternalResultTimeout: getEnvAsDuration("EXTERNAL_RESULT_TIMEOUT", 10*time.Second),
		},
		Notifiers: NotifiersConfig{
			MarketDataURL:  getEnv("MARKET_DATA_URL", ""),
			DealEndingURL:  getEnv("DEAL_ENDING_URL", ""),
			LiquidityURL:   getEnv("LIQUIDITY_GATEWAY_URL", ""),
			SenderInterval: getEnvAsDuration("DEAL_SENDER_INTERVAL", 15*time.Second),
			KafkaBrokers:   getEnvAsSlice("KAFKA_BROKERS", nil),
			KafkaTopic:     getEnv("KAFKA_DEALS_TOPIC", "exchange.deals"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Валидация таймаутов (должны быть положительными)
	if c.Matching.BlockTTL <= 0 {
		return fmt.Errorf("MATCHING_BLOCK_TTL must be positive, got %v", c.Matching.BlockTTL)
	}

	if c.Matching.ExpireCheckFreq <= 0 {
		return fmt.Errorf("MATCHING_EXPIRE_CHECK_FREQ must be positive, got %v", c.Matching.ExpireCheckFreq)
	}

	if c.Matching.DeletedOrdersTTL <= 0 {
		return fmt.Errorf("LIQUIDITY_DELETED_TTL must be positive, got %v", c.Matching.DeletedOrdersTTL)
	}

	if c.Matching.LiquidityFeedTTL <= 0 {
		return fmt.Errorf("LIQUIDITY_FEED_TTL must be positive, got %v", c.Matching.LiquidityFeedTTL)
	}

	if c.Matching.DrainTimeout <= 0 {
		return fmt.Errorf("POOL_DRAIN_TIMEOUT must be positive, got %v", c.Matching.DrainTimeout)
	}

	if c.Matching.ExternalResultTimeout <= 0 {
		return fmt.Errorf("EXTERNAL_RESULT_TIMEOUT must be positive, got %v", c.Matching.ExternalResultTimeout)
	}

	if c.Notifiers.SenderInterval <= 0 {
		return fmt.Errorf("DEAL_SENDER_INTERVAL must be positive, got %v", c.Notifiers.SenderInterval)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
