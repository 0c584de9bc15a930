package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rwtastool/rwtas/pkg/ipc"
	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "rwtas.cfg.json"

// IPCConfig holds editor endpoint settings
type IPCConfig struct {
	Enabled     bool          `json:"enabled" mapstructure:"enabled"`
	Network     string        `json:"network" mapstructure:"network"`
	Address     string        `json:"address" mapstructure:"address"`
	Version     string        `json:"version" mapstructure:"version"`
	ReadTimeout time.Duration `json:"readTimeout" mapstructure:"readTimeout"`
}

// FileStorageConfig holds .rwi directory backend settings
type FileStorageConfig struct {
	Dir      string `json:"dir" mapstructure:"dir"`
	BaseName string `json:"baseName" mapstructure:"baseName"`
	Ext      string `json:"ext" mapstructure:"ext"`
	Header   bool   `json:"header" mapstructure:"header"`
	Watch    bool   `json:"watch" mapstructure:"watch"`
}

// SQLiteConfig holds SQLite library settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// RedisConfig holds Redis library settings
type RedisConfig struct {
	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
	Prefix   string `json:"prefix" mapstructure:"prefix"`
}

// StorageConfig selects and configures the sequence library backend
type StorageConfig struct {
	Type   string            `json:"type" mapstructure:"type"`
	File   FileStorageConfig `json:"file" mapstructure:"file"`
	SQLite SQLiteConfig      `json:"sqlite" mapstructure:"sqlite"`
	Redis  RedisConfig       `json:"redis" mapstructure:"redis"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds status telemetry settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the server URL.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. A missing file
// leaves the defaults in place and returns an error matching IsNotFound.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// SetDefaults registers every default value.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./rwtaslogs")

	viper.SetDefault("ipc.enabled", true)
	viper.SetDefault("ipc.network", "unix")
	viper.SetDefault("ipc.address", ipc.DefaultAddress())
	viper.SetDefault("ipc.version", "1.1")
	viper.SetDefault("ipc.readTimeout", "0s")

	viper.SetDefault("playback.loop", true)
	viper.SetDefault("sim.tickRate", 40)

	viper.SetDefault("storage.type", "file")
	viper.SetDefault("storage.file.dir", "./inputs")
	viper.SetDefault("storage.file.baseName", "inputs")
	viper.SetDefault("storage.file.ext", ".rwi")
	viper.SetDefault("storage.file.header", false)
	viper.SetDefault("storage.file.watch", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "./inputs/library.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.redis.addr", "localhost:6379")
	viper.SetDefault("storage.redis.password", "")
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.prefix", "rwtas:seq:")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "rwtas")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "rwtas")
	viper.SetDefault("influx.bucket", "tas_status")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "rwtas")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.interval", "10s")
}

// IsNotFound reports whether err means the config file does not exist.
func IsNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetIPCConfig returns the editor endpoint settings.
func GetIPCConfig() IPCConfig {
	return IPCConfig{
		Enabled:     viper.GetBool("ipc.enabled"),
		Network:     viper.GetString("ipc.network"),
		Address:     viper.GetString("ipc.address"),
		Version:     viper.GetString("ipc.version"),
		ReadTimeout: viper.GetDuration("ipc.readTimeout"),
	}
}

// GetStorageConfig returns the sequence library settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		File: FileStorageConfig{
			Dir:      viper.GetString("storage.file.dir"),
			BaseName: viper.GetString("storage.file.baseName"),
			Ext:      viper.GetString("storage.file.ext"),
			Header:   viper.GetBool("storage.file.header"),
			Watch:    viper.GetBool("storage.file.watch"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("storage.redis.addr"),
			Password: viper.GetString("storage.redis.password"),
			DB:       viper.GetInt("storage.redis.db"),
			Prefix:   viper.GetString("storage.redis.prefix"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the status telemetry settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}
