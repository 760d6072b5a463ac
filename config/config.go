package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Content  ContentConfig  `mapstructure:"content"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Game     GameConfig     `mapstructure:"game"`
	Events   EventsConfig   `mapstructure:"events"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

type ContentConfig struct {
	// DataPath points at the directory holding quests.json, arcs.json,
	// events.json and seasonal.json. Empty = built-in starter catalog.
	DataPath string `mapstructure:"data_path"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | memory | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type GameConfig struct {
	TickMs           int   `mapstructure:"tick_ms"`
	SaveIntervalS    int   `mapstructure:"save_interval_s"`
	SessionIdleMin   int   `mapstructure:"session_idle_min"`
	StartingCredits  int64 `mapstructure:"starting_credits"`
	StartingLocation string `mapstructure:"starting_location"`
	ExpPerLevel      int64 `mapstructure:"exp_per_level"`
}

// EventsConfig holds the random-event pacing knobs. The multipliers are
// tuning values, not contracts: anything monotonic works as long as the same
// inputs give the same trigger probability.
type EventsConfig struct {
	GlobalRate       float64 `mapstructure:"global_rate"`
	CheckIntervalS   int     `mapstructure:"check_interval_s"`
	MaxActive        int     `mapstructure:"max_active"`
	LevelBonusPerLvl float64 `mapstructure:"level_bonus_per_lvl"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AdminIPWhitelist restricts admin routes to these client IPs.
	// Empty means no IP restriction beyond the admin key.
	AdminIPWhitelist []string `mapstructure:"admin_ip_whitelist"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/astraldrift.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("game.tick_ms", 1000)
	v.SetDefault("game.save_interval_s", 300)
	v.SetDefault("game.session_idle_min", 30)
	v.SetDefault("game.starting_credits", 500)
	v.SetDefault("game.starting_location", "meridian_station")
	v.SetDefault("game.exp_per_level", 1000)
	v.SetDefault("events.global_rate", 1.0)
	v.SetDefault("events.check_interval_s", 10)
	v.SetDefault("events.max_active", 3)
	v.SetDefault("events.level_bonus_per_lvl", 0.1)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
