package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIServerConfig 保存 API 服务器特有的配置。
type APIServerConfig struct {
	Host string     `mapstructure:"HOST"`
	Port string     `mapstructure:"PORT"`
	CORS CORSConfig `mapstructure:"CORS"`
}

// CORSConfig holds configuration for CORS.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `mapstructure:"ALLOWED_METHODS"`
	AllowedHeaders   []string `mapstructure:"ALLOWED_HEADERS"`
	ExposedHeaders   []string `mapstructure:"EXPOSED_HEADERS"`
	AllowCredentials bool     `mapstructure:"ALLOW_CREDENTIALS"`
	MaxAge           int      `mapstructure:"MAX_AGE"`
}

// RedisConfig holds configuration for Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"ADDR"`
	Password string `mapstructure:"PASSWORD"`
	DB       int    `mapstructure:"DB"`
}

// Config holds all configuration for the application.
// The values are read by viper from a config file or environment variables.
// Services receive the loaded Config by value as an immutable snapshot.
type Config struct {
	AppName       string              `mapstructure:"APP_NAME"`
	AppVersion    string              `mapstructure:"APP_VERSION"`
	LogLevel      string              `mapstructure:"LOG_LEVEL"`
	Server        ServerConfig        `mapstructure:"SERVER"` // EventServer 的配置
	APIServer     APIServerConfig     `mapstructure:"API_SERVER"`
	Kafka         KafkaConfig         `mapstructure:"KAFKA"`
	Database      DatabaseConfig      `mapstructure:"DATABASE"`
	Auth          AuthConfig          `mapstructure:"AUTH"`
	WebSocket     WebSocketConfig     `mapstructure:"WEBSOCKET"`
	Redis         RedisConfig         `mapstructure:"REDIS"`
	Relationships RelationshipsConfig `mapstructure:"RELATIONSHIPS"`
	Registration  RegistrationConfig  `mapstructure:"REGISTRATION"`
	Captcha       CaptchaConfig       `mapstructure:"CAPTCHA"`
	Security      SecurityConfig      `mapstructure:"SECURITY"`
}

// ServerConfig holds configuration for the event server's HTTP listener.
type ServerConfig struct {
	Host           string        `mapstructure:"HOST"`
	Port           string        `mapstructure:"PORT"`
	WebSocketPath  string        `mapstructure:"WEBSOCKET_PATH"`
	ReadTimeout    time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `mapstructure:"WRITE_TIMEOUT"`
	MaxHeaderBytes int           `mapstructure:"MAX_HEADER_BYTES"`
}

// KafkaConfig holds configuration for Kafka.
type KafkaConfig struct {
	Brokers                 []string `mapstructure:"BROKERS"`
	ClientID                string   `mapstructure:"CLIENT_ID"`
	RelationshipEventsTopic string   `mapstructure:"RELATIONSHIP_EVENTS_TOPIC"` // apiserver → eventserver
	ConsumerGroup           string   `mapstructure:"CONSUMER_GROUP"`            // eventserver 消费者组
	Protocol                string   `mapstructure:"PROTOCOL"`
}

// DatabaseConfig holds configuration for the database.
type DatabaseConfig struct {
	Type     string `mapstructure:"TYPE"`
	Host     string `mapstructure:"HOST"`
	Port     int    `mapstructure:"PORT"`
	User     string `mapstructure:"USER"`
	Password string `mapstructure:"PASSWORD"`
	DBName   string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"SSL_MODE"`
}

// AuthConfig holds configuration for authentication (e.g., JWT).
type AuthConfig struct {
	JWTSecretKey string        `mapstructure:"JWT_SECRET_KEY"`
	JWTExpiry    time.Duration `mapstructure:"JWT_EXPIRY"`
}

// WebSocketConfig holds configuration for WebSocket connections.
type WebSocketConfig struct {
	WriteWaitSeconds    int `mapstructure:"WRITE_WAIT_SECONDS"`
	PongWaitSeconds     int `mapstructure:"PONG_WAIT_SECONDS"`
	PingPeriodSeconds   int `mapstructure:"PING_PERIOD_SECONDS"`
	MaxMessageSizeBytes int `mapstructure:"MAX_MESSAGE_SIZE_BYTES"`
}

// RelationshipsConfig holds limits for the relationship engine.
type RelationshipsConfig struct {
	MaxFriends int `mapstructure:"MAX_FRIENDS"`
}

// RegistrationConfig holds the registration policy toggles evaluated by
// the guard pipeline, in the order the checks run.
type RegistrationConfig struct {
	AllowNewRegistration  bool              `mapstructure:"ALLOW_NEW_REGISTRATION"`
	Disabled              bool              `mapstructure:"DISABLED"` // administratively closed
	AllowGuests           bool              `mapstructure:"ALLOW_GUESTS"`
	AllowMultipleAccounts bool              `mapstructure:"ALLOW_MULTIPLE_ACCOUNTS"`
	RequireEmail          bool              `mapstructure:"REQUIRE_EMAIL"`
	RequirePassword       bool              `mapstructure:"REQUIRE_PASSWORD"`
	RequireInvite         bool              `mapstructure:"REQUIRE_INVITE"`
	GuestsRequireInvite   bool              `mapstructure:"GUESTS_REQUIRE_INVITE"`
	DateOfBirth           DateOfBirthConfig `mapstructure:"DATE_OF_BIRTH"`
}

// DateOfBirthConfig holds the date-of-birth policy.
type DateOfBirthConfig struct {
	Required   bool `mapstructure:"REQUIRED"`
	MinimumAge int  `mapstructure:"MINIMUM_AGE"` // years back from now
}

// CaptchaConfig holds configuration for the captcha verifier.
type CaptchaConfig struct {
	Enabled   bool   `mapstructure:"ENABLED"`
	Service   string `mapstructure:"SERVICE"` // "hcaptcha" or "recaptcha"
	Sitekey   string `mapstructure:"SITEKEY"`
	Secret    string `mapstructure:"SECRET"`
	VerifyURL string `mapstructure:"VERIFY_URL"`
}

// SecurityConfig holds abuse-prevention settings.
type SecurityConfig struct {
	BlockProxies bool               `mapstructure:"BLOCK_PROXIES"`
	IPReputation IPReputationConfig `mapstructure:"IP_REPUTATION"`
}

// IPReputationConfig holds configuration for the IP reputation provider.
type IPReputationConfig struct {
	APIKey   string        `mapstructure:"API_KEY"`
	Endpoint string        `mapstructure:"ENDPOINT"`
	CacheTTL time.Duration `mapstructure:"CACHE_TTL"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()

	v.SetDefault("APP_NAME", "Relations-Go")
	v.SetDefault("APP_VERSION", "0.0.1")
	v.SetDefault("LOG_LEVEL", "info")

	// Server Defaults (EventServer)
	v.SetDefault("SERVER.HOST", "0.0.0.0")
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.WEBSOCKET_PATH", "/ws")
	v.SetDefault("SERVER.READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER.MAX_HEADER_BYTES", 1<<20) // 1 MB

	// APIServer Defaults
	v.SetDefault("API_SERVER.HOST", "0.0.0.0")
	v.SetDefault("API_SERVER.PORT", "8081")
	v.SetDefault("API_SERVER.CORS.ALLOWED_ORIGINS", []string{"http://localhost:5173"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"})
	v.SetDefault("API_SERVER.CORS.EXPOSED_HEADERS", []string{"Content-Length"})
	v.SetDefault("API_SERVER.CORS.ALLOW_CREDENTIALS", true)
	v.SetDefault("API_SERVER.CORS.MAX_AGE", 300) // 5 minutes

	// Kafka Defaults
	v.SetDefault("KAFKA.BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA.CLIENT_ID", "relations-go-client")
	v.SetDefault("KAFKA.RELATIONSHIP_EVENTS_TOPIC", "relationship-events")
	v.SetDefault("KAFKA.CONSUMER_GROUP", "relations-event-server-group")

	// Database Defaults (PostgreSQL)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "password")
	v.SetDefault("DATABASE.DB_NAME", "relations_go_db")
	v.SetDefault("DATABASE.SSL_MODE", "disable")

	// Auth Defaults
	v.SetDefault("AUTH.JWT_SECRET_KEY", "a_very_secret_key_that_should_be_changed")
	v.SetDefault("AUTH.JWT_EXPIRY", 15*time.Minute)

	// Redis Defaults
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)

	// WebSocket Defaults
	v.SetDefault("WEBSOCKET.WRITE_WAIT_SECONDS", 10)
	v.SetDefault("WEBSOCKET.PONG_WAIT_SECONDS", 60)
	v.SetDefault("WEBSOCKET.PING_PERIOD_SECONDS", 54) // (60 * 9) / 10
	v.SetDefault("WEBSOCKET.MAX_MESSAGE_SIZE_BYTES", 512)

	// Relationship Defaults
	v.SetDefault("RELATIONSHIPS.MAX_FRIENDS", 1000)

	// Registration Defaults
	v.SetDefault("REGISTRATION.ALLOW_NEW_REGISTRATION", true)
	v.SetDefault("REGISTRATION.DISABLED", false)
	v.SetDefault("REGISTRATION.ALLOW_GUESTS", false)
	v.SetDefault("REGISTRATION.ALLOW_MULTIPLE_ACCOUNTS", true)
	v.SetDefault("REGISTRATION.REQUIRE_EMAIL", false)
	v.SetDefault("REGISTRATION.REQUIRE_PASSWORD", false)
	v.SetDefault("REGISTRATION.REQUIRE_INVITE", false)
	v.SetDefault("REGISTRATION.GUESTS_REQUIRE_INVITE", false)
	v.SetDefault("REGISTRATION.DATE_OF_BIRTH.REQUIRED", false)
	v.SetDefault("REGISTRATION.DATE_OF_BIRTH.MINIMUM_AGE", 13)

	// Captcha Defaults
	v.SetDefault("CAPTCHA.ENABLED", false)
	v.SetDefault("CAPTCHA.SERVICE", "hcaptcha")
	v.SetDefault("CAPTCHA.SITEKEY", "")
	v.SetDefault("CAPTCHA.SECRET", "")
	v.SetDefault("CAPTCHA.VERIFY_URL", "https://hcaptcha.com/siteverify")

	// Security Defaults
	v.SetDefault("SECURITY.BLOCK_PROXIES", false)
	v.SetDefault("SECURITY.IP_REPUTATION.API_KEY", "")
	v.SetDefault("SECURITY.IP_REPUTATION.ENDPOINT", "https://api.ipdata.co")
	v.SetDefault("SECURITY.IP_REPUTATION.CACHE_TTL", 6*time.Hour)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv() // Read in environment variables that match
	// Example: SERVER_PORT will override Server.Port
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return
		}
		// Config file not found; defaults still apply
	}

	err = v.Unmarshal(&config)
	return
}
