package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	StoreDriverSQLite = "sqlite"
	StoreDriverBadger = "badger"
)

// ServerConfig holds settings for the chat server runtime.
type ServerConfig struct {
	TCPAddr         string
	HTTPAddr        string
	LogLevel        string
	StoreDriver     string
	Database        DatabaseConfig
	Badger          BadgerConfig
	JWT             JWTConfig
	IdleTimeout     time.Duration
	WriteTimeout    time.Duration
	SendBuffer      int
	MaxFrameBytes   int
	ShutdownTimeout time.Duration
}

// ClientConfig holds settings for the terminal client.
type ClientConfig struct {
	ServerAddr    string
	Token         string
	CommandPrefix rune
}

// DatabaseConfig captures SQLite storage configuration.
type DatabaseConfig struct {
	Path string
}

// BadgerConfig captures Badger storage configuration.
type BadgerConfig struct {
	Dir      string
	InMemory bool
}

// JWTConfig defines identity token parameters.
type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type serverEnv struct {
	TCPAddr         string        `env:"HIRECHAT_TCP_ADDR,default=:9000"`
	HTTPAddr        string        `env:"HIRECHAT_HTTP_ADDR,default=:8080"`
	LogLevel        string        `env:"HIRECHAT_LOG_LEVEL,default=INFO"`
	StoreDriver     string        `env:"HIRECHAT_STORE_DRIVER,default=sqlite"`
	DBPath          string        `env:"HIRECHAT_DB_PATH,default=hirechat.db"`
	BadgerDir       string        `env:"HIRECHAT_BADGER_DIR,default=hirechat-badger"`
	JWTSecret       string        `env:"HIRECHAT_JWT_SECRET,default=replace-me"`
	JWTIssuer       string        `env:"HIRECHAT_JWT_ISSUER,default=hirechat"`
	JWTExpiration   time.Duration `env:"HIRECHAT_JWT_EXPIRATION,default=24h"`
	IdleTimeout     time.Duration `env:"HIRECHAT_IDLE_TIMEOUT,default=10m"`
	WriteTimeout    time.Duration `env:"HIRECHAT_WRITE_TIMEOUT,default=15s"`
	SendBuffer      int           `env:"HIRECHAT_SEND_BUFFER,default=64"`
	MaxFrameBytes   int           `env:"HIRECHAT_MAX_FRAME_BYTES,default=1048576"`
	ShutdownTimeout time.Duration `env:"HIRECHAT_SHUTDOWN_TIMEOUT,default=15s"`
}

type clientEnv struct {
	ServerAddr    string `env:"HIRECHAT_SERVER_ADDR,default=localhost:9000"`
	Token         string `env:"HIRECHAT_TOKEN"`
	CommandPrefix string `env:"HIRECHAT_COMMAND_PREFIX,default=/"`
}

// LoadServerConfig builds the server configuration from the environment,
// reading a local .env file first when one exists.
func LoadServerConfig() (ServerConfig, error) {
	if err := loadDotEnv(); err != nil {
		return ServerConfig{}, err
	}
	var raw serverEnv
	if _, err := env.UnmarshalFromEnviron(&raw); err != nil {
		return ServerConfig{}, fmt.Errorf("server config: %w", err)
	}
	cfg := ServerConfig{
		TCPAddr:     raw.TCPAddr,
		HTTPAddr:    raw.HTTPAddr,
		LogLevel:    raw.LogLevel,
		StoreDriver: raw.StoreDriver,
		Database:    DatabaseConfig{Path: raw.DBPath},
		Badger:      BadgerConfig{Dir: raw.BadgerDir},
		JWT: JWTConfig{
			Secret:     raw.JWTSecret,
			Issuer:     raw.JWTIssuer,
			Expiration: raw.JWTExpiration,
		},
		IdleTimeout:     raw.IdleTimeout,
		WriteTimeout:    raw.WriteTimeout,
		SendBuffer:      raw.SendBuffer,
		MaxFrameBytes:   raw.MaxFrameBytes,
		ShutdownTimeout: raw.ShutdownTimeout,
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot run with.
func (c ServerConfig) Validate() error {
	switch c.StoreDriver {
	case StoreDriverSQLite, StoreDriverBadger:
	default:
		return fmt.Errorf("unsupported store driver %q", c.StoreDriver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt secret must not be empty")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send buffer must be positive, got %d", c.SendBuffer)
	}
	if c.MaxFrameBytes <= 0 {
		return fmt.Errorf("max frame bytes must be positive, got %d", c.MaxFrameBytes)
	}
	return nil
}

// LoadClientConfig builds the client configuration from the environment.
func LoadClientConfig() (ClientConfig, error) {
	if err := loadDotEnv(); err != nil {
		return ClientConfig{}, err
	}
	var raw clientEnv
	if _, err := env.UnmarshalFromEnviron(&raw); err != nil {
		return ClientConfig{}, fmt.Errorf("client config: %w", err)
	}
	runes := []rune(raw.CommandPrefix)
	commandPrefix := '/'
	if len(runes) > 0 {
		commandPrefix = runes[0]
	}
	return ClientConfig{
		ServerAddr:    raw.ServerAddr,
		Token:         raw.Token,
		CommandPrefix: commandPrefix,
	}, nil
}

// LoadJWTConfig reads only the token settings, for tools that mint tokens.
func LoadJWTConfig() (JWTConfig, error) {
	cfg, err := LoadServerConfig()
	if err != nil {
		return JWTConfig{}, err
	}
	return cfg.JWT, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}
