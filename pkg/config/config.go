package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// MaxOPCPixels is the most RGB pixels one Open Pixel Control message can carry
const MaxOPCPixels = 65535 / 3

// Config holds the configuration for the word clock agent
type Config struct {
	// MQTT configuration
	MQTTBroker   string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTClientID string

	// Redis configuration
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Postgres configuration (render journal)
	PostgresHost               string
	PostgresPort               int
	PostgresUser               string
	PostgresPassword           string
	PostgresDB                 string
	PostgresSSLMode            string
	PostgresMaxConnections     int
	PostgresMaxIdleConnections int
	PostgresConnMaxLifetime    time.Duration
	EnableJournal              bool

	// Service configuration
	ServiceName string
	HealthPort  int
	LogLevel    string

	// Display configuration
	DisplayName       string
	LEDCount          int
	LayoutFile        string
	TimeZone          string
	SyncTimeoutSec    int
	SyncPollMs        int
	DispatchTimeoutMs int

	// Settings persistence
	SettingsStore string
	SettingsFile  string

	// Output sink configuration
	OutputSink   string
	OPCServer    string
	OPCChannel   int
	SPIPort      string
	SPIColorMode string

	// Brightness source configuration
	MaxSampleAgeSec int
	Latitude        float64
	Longitude       float64
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker:                 "localhost",
		MQTTPort:                   1883,
		RedisHost:                  "localhost",
		RedisPort:                  6379,
		RedisDB:                    0,
		PostgresHost:               "localhost",
		PostgresPort:               5432,
		PostgresUser:               "jeeves",
		PostgresDB:                 "jeeves",
		PostgresSSLMode:            "disable",
		PostgresMaxConnections:     4,
		PostgresMaxIdleConnections: 2,
		PostgresConnMaxLifetime:    30 * time.Minute,
		EnableJournal:              false,
		ServiceName:                "wordclock-agent",
		HealthPort:                 8080,
		LogLevel:                   "info",
		DisplayName:                "wordclock",
		LEDCount:                   70,
		TimeZone:                   "Local",
		SyncTimeoutSec:             20,
		SyncPollMs:                 1000,
		DispatchTimeoutMs:          5000,
		SettingsStore:              "redis",
		SettingsFile:               "wordclock.yaml",
		OutputSink:                 "mqtt",
		OPCServer:                  "localhost:7890",
		OPCChannel:                 0,
		SPIPort:                    "",
		SPIColorMode:               "grb",
		MaxSampleAgeSec:            120,
		// Helsinki coordinates
		Latitude:  60.1695,
		Longitude: 24.9354,
	}
}

// LoadFromEnv loads configuration from environment variables with JEEVES_ prefix
func (c *Config) LoadFromEnv() {
	// MQTT configuration
	envString("JEEVES_MQTT_BROKER", &c.MQTTBroker)
	envInt("JEEVES_MQTT_PORT", &c.MQTTPort)
	envString("JEEVES_MQTT_USER", &c.MQTTUser)
	envString("JEEVES_MQTT_PASSWORD", &c.MQTTPassword)
	envString("JEEVES_MQTT_CLIENT_ID", &c.MQTTClientID)

	// Redis configuration
	envString("JEEVES_REDIS_HOST", &c.RedisHost)
	envInt("JEEVES_REDIS_PORT", &c.RedisPort)
	envString("JEEVES_REDIS_PASSWORD", &c.RedisPassword)
	envInt("JEEVES_REDIS_DB", &c.RedisDB)

	// Postgres configuration
	envString("JEEVES_POSTGRES_HOST", &c.PostgresHost)
	envInt("JEEVES_POSTGRES_PORT", &c.PostgresPort)
	envString("JEEVES_POSTGRES_USER", &c.PostgresUser)
	envString("JEEVES_POSTGRES_PASSWORD", &c.PostgresPassword)
	envString("JEEVES_POSTGRES_DB", &c.PostgresDB)
	envString("JEEVES_POSTGRES_SSLMODE", &c.PostgresSSLMode)
	envBool("JEEVES_ENABLE_JOURNAL", &c.EnableJournal)

	// Service configuration
	envString("JEEVES_SERVICE_NAME", &c.ServiceName)
	envInt("JEEVES_HEALTH_PORT", &c.HealthPort)
	envString("JEEVES_LOG_LEVEL", &c.LogLevel)

	// Display configuration
	envString("JEEVES_DISPLAY_NAME", &c.DisplayName)
	envInt("JEEVES_LED_COUNT", &c.LEDCount)
	envString("JEEVES_LAYOUT_FILE", &c.LayoutFile)
	envString("JEEVES_TIME_ZONE", &c.TimeZone)
	envInt("JEEVES_SYNC_TIMEOUT_SEC", &c.SyncTimeoutSec)
	envInt("JEEVES_SYNC_POLL_MS", &c.SyncPollMs)
	envInt("JEEVES_DISPATCH_TIMEOUT_MS", &c.DispatchTimeoutMs)
	envString("JEEVES_SETTINGS_STORE", &c.SettingsStore)
	envString("JEEVES_SETTINGS_FILE", &c.SettingsFile)

	// Output sink configuration
	envString("JEEVES_OUTPUT_SINK", &c.OutputSink)
	envString("JEEVES_OPC_SERVER", &c.OPCServer)
	envInt("JEEVES_OPC_CHANNEL", &c.OPCChannel)
	envString("JEEVES_SPI_PORT", &c.SPIPort)
	envString("JEEVES_SPI_COLOR_MODE", &c.SPIColorMode)

	// Brightness source configuration
	envInt("JEEVES_MAX_SAMPLE_AGE_SEC", &c.MaxSampleAgeSec)
	envFloat("JEEVES_LATITUDE", &c.Latitude)
	envFloat("JEEVES_LONGITUDE", &c.Longitude)
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags() {
	c.RegisterFlags(pflag.CommandLine)
	pflag.Parse()
}

// RegisterFlags binds every config field to a flag in the given set
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	// MQTT flags
	fs.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	fs.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	fs.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	fs.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	fs.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Redis flags
	fs.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	fs.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")

	// Postgres flags
	fs.StringVar(&c.PostgresHost, "postgres-host", c.PostgresHost, "Postgres hostname")
	fs.IntVar(&c.PostgresPort, "postgres-port", c.PostgresPort, "Postgres port")
	fs.StringVar(&c.PostgresUser, "postgres-user", c.PostgresUser, "Postgres user")
	fs.StringVar(&c.PostgresPassword, "postgres-password", c.PostgresPassword, "Postgres password")
	fs.StringVar(&c.PostgresDB, "postgres-db", c.PostgresDB, "Postgres database")
	fs.StringVar(&c.PostgresSSLMode, "postgres-sslmode", c.PostgresSSLMode, "Postgres SSL mode")
	fs.BoolVar(&c.EnableJournal, "journal", c.EnableJournal, "Record render events to Postgres")

	// Service flags
	fs.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	fs.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")

	// Display flags
	fs.StringVar(&c.DisplayName, "display-name", c.DisplayName, "Display name used in topics and settings keys")
	fs.IntVar(&c.LEDCount, "led-count", c.LEDCount, "Total number of LEDs in the display")
	fs.StringVar(&c.LayoutFile, "layout-file", c.LayoutFile, "YAML face layout (empty uses the built-in English face)")
	fs.StringVar(&c.TimeZone, "time-zone", c.TimeZone, "IANA time zone for the displayed time")
	fs.IntVar(&c.SyncTimeoutSec, "sync-timeout", c.SyncTimeoutSec, "Seconds to wait for clock synchronization at startup")
	fs.IntVar(&c.SyncPollMs, "sync-poll-ms", c.SyncPollMs, "Clock synchronization poll interval (ms)")
	fs.IntVar(&c.DispatchTimeoutMs, "dispatch-timeout-ms", c.DispatchTimeoutMs, "Output dispatch timeout (ms)")
	fs.StringVar(&c.SettingsStore, "settings-store", c.SettingsStore, "Display settings store (redis, file)")
	fs.StringVar(&c.SettingsFile, "settings-file", c.SettingsFile, "Display settings file for the file store")

	// Output sink flags
	fs.StringVar(&c.OutputSink, "output-sink", c.OutputSink, "Pixel output (mqtt, opc, spi)")
	fs.StringVar(&c.OPCServer, "opc-server", c.OPCServer, "Open Pixel Control server address")
	fs.IntVar(&c.OPCChannel, "opc-channel", c.OPCChannel, "Open Pixel Control channel")
	fs.StringVar(&c.SPIPort, "spi-port", c.SPIPort, "SPI port name (empty selects the first available)")
	fs.StringVar(&c.SPIColorMode, "spi-color-mode", c.SPIColorMode, "LED chip channel order (grb, grbw)")

	// Brightness source flags
	fs.IntVar(&c.MaxSampleAgeSec, "max-sample-age", c.MaxSampleAgeSec, "Maximum age of a brightness sensor sample (seconds)")
	fs.Float64Var(&c.Latitude, "latitude", c.Latitude, "Geographic latitude for the daylight brightness source")
	fs.Float64Var(&c.Longitude, "longitude", c.Longitude, "Geographic longitude for the daylight brightness source")
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT broker is required")
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("Redis host is required")
	}
	if c.RedisPort <= 0 || c.RedisPort > 65535 {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}
	if c.DisplayName == "" {
		return fmt.Errorf("Display name is required")
	}
	if c.LEDCount <= 0 {
		return fmt.Errorf("LED count must be positive")
	}
	if c.SyncTimeoutSec < 0 {
		return fmt.Errorf("sync timeout must not be negative")
	}
	if c.SyncPollMs <= 0 {
		return fmt.Errorf("sync poll interval must be positive")
	}
	if c.DispatchTimeoutMs <= 0 {
		return fmt.Errorf("dispatch timeout must be positive")
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	switch c.SettingsStore {
	case "redis":
	case "file":
		if c.SettingsFile == "" {
			return fmt.Errorf("settings file is required for the file store")
		}
	default:
		return fmt.Errorf("invalid settings store: %s (must be redis or file)", c.SettingsStore)
	}

	switch c.OutputSink {
	case "mqtt":
	case "opc":
		if c.OPCServer == "" {
			return fmt.Errorf("OPC server is required for the opc output")
		}
		if c.OPCChannel < 0 || c.OPCChannel > 255 {
			return fmt.Errorf("OPC channel must be between 0 and 255")
		}
		if c.LEDCount > MaxOPCPixels {
			return fmt.Errorf("LED count must be at most %d for the opc output", MaxOPCPixels)
		}
	case "spi":
		if c.SPIColorMode != "grb" && c.SPIColorMode != "grbw" {
			return fmt.Errorf("invalid SPI color mode: %s (must be grb or grbw)", c.SPIColorMode)
		}
	default:
		return fmt.Errorf("invalid output sink: %s (must be mqtt, opc, or spi)", c.OutputSink)
	}

	if c.EnableJournal && c.PostgresHost == "" {
		return fmt.Errorf("Postgres host is required when the journal is enabled")
	}

	return nil
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresConnectionString returns the lib/pq connection string
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}

// SyncTimeout returns the startup clock synchronization bound
func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.SyncTimeoutSec) * time.Second
}

// SyncPollInterval returns how often synchronization is checked at startup
func (c *Config) SyncPollInterval() time.Duration {
	return time.Duration(c.SyncPollMs) * time.Millisecond
}

// DispatchTimeout returns the bound on a single output dispatch
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutMs) * time.Millisecond
}

// MaxSampleAge returns the age after which a sensor sample is considered stale
func (c *Config) MaxSampleAge() time.Duration {
	return time.Duration(c.MaxSampleAgeSec) * time.Second
}

// Location returns the time zone the clock displays
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
