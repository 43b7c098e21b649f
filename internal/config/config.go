package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	LogLevel   string `mapstructure:"log_level"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	Room      RoomConfig      `mapstructure:"room"`
	Transport TransportConfig `mapstructure:"transport"`
	Voice     VoiceConfig     `mapstructure:"voice"`
}

type RoomConfig struct {
	Name         string      `mapstructure:"name"`
	MaxOccupancy int         `mapstructure:"max_occupancy"`
	SimulationHz int         `mapstructure:"simulation_hz"`
	PatchHz      int         `mapstructure:"patch_hz"`
	Spawn        SpawnConfig `mapstructure:"spawn"`
}

type SpawnConfig struct {
	MinX   float64 `mapstructure:"min_x"`
	MinY   float64 `mapstructure:"min_y"`
	Width  float64 `mapstructure:"width"`
	Height float64 `mapstructure:"height"`
}

type TransportConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	JoinLimit    int           `mapstructure:"join_limit"`
	JoinWindow   time.Duration `mapstructure:"join_window"`
	Backpressure string        `mapstructure:"backpressure"`
}

type VoiceConfig struct {
	ICEServers []ICEServerConfig `mapstructure:"ice_servers"`
}

type ICEServerConfig struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

// Load reads .env (when present), then config/config.<CONFIG_ENV>.yaml, then
// VIBETOWN_* environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg(".env not loaded")
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load without the .env step, reading fileName if it exists.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("VIBETOWN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "vibetown-dev-secret")

	v.SetDefault("room.name", "vibe_town")
	v.SetDefault("room.max_occupancy", 16)
	v.SetDefault("room.simulation_hz", 30)
	v.SetDefault("room.patch_hz", 20)
	v.SetDefault("room.spawn.min_x", 50)
	v.SetDefault("room.spawn.min_y", 50)
	v.SetDefault("room.spawn.width", 400)
	v.SetDefault("room.spawn.height", 400)

	v.SetDefault("transport.send_buffer", 64)
	v.SetDefault("transport.read_limit", 4096)
	v.SetDefault("transport.ping_period", "25s")
	v.SetDefault("transport.pong_wait", "60s")
	v.SetDefault("transport.join_limit", 10)
	v.SetDefault("transport.join_window", "1m")
	v.SetDefault("transport.backpressure", "kick")

	v.SetDefault("voice.ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Room.MaxOccupancy <= 0 {
		errs = append(errs, errors.New("room.max_occupancy must be positive"))
	}
	if c.Room.SimulationHz <= 0 || c.Room.PatchHz <= 0 {
		errs = append(errs, errors.New("room.simulation_hz and room.patch_hz must be positive"))
	}
	if c.Room.Spawn.Width < 0 || c.Room.Spawn.Height < 0 {
		errs = append(errs, errors.New("room.spawn size must not be negative"))
	}
	if c.Transport.SendBuffer <= 0 {
		errs = append(errs, errors.New("transport.send_buffer must be positive"))
	}
	if c.Transport.PingPeriod <= 0 || c.Transport.PongWait <= c.Transport.PingPeriod {
		errs = append(errs, errors.New("transport.pong_wait must exceed transport.ping_period"))
	}
	if c.Transport.JoinLimit <= 0 || c.Transport.JoinWindow <= 0 {
		errs = append(errs, errors.New("transport.join_limit and transport.join_window must be positive"))
	}
	return errors.Join(errs...)
}
