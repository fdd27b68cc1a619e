package config

import (
	"time"

	pkgconfig "github.com/weiawesome/talkwire/pkg/config"
)

type Config struct {
	Server   ServerConfig
	Room     RoomConfig
	Chat     ChatConfig
	Filter   FilterConfig
	Guard    GuardConfig
	Presence PresenceConfig
	Snapshot SnapshotConfig
	Admin    AdminConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	StaticDir string `mapstructure:"static_dir"`

	// WebSocket tuning
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`

	// Consecutive handler errors before a connection is dropped.
	MaxConnErrors int `mapstructure:"max_conn_errors"`
}

type RoomConfig struct {
	BaseLimit        int           `mapstructure:"base_limit"`
	LimitIncrement   int           `mapstructure:"limit_increment"`
	Capacity         int           `mapstructure:"capacity"`
	MaxNameLength    int           `mapstructure:"max_name_length"`
	CreationCooldown time.Duration `mapstructure:"creation_cooldown"`
	DeletionTimeout  time.Duration `mapstructure:"deletion_timeout"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	MaxPerIdentity   int           `mapstructure:"max_per_identity"`
}

type ChatConfig struct {
	MaxTextLength  int           `mapstructure:"max_text_length"`
	DrainInterval  time.Duration `mapstructure:"drain_interval"`
	BatchCeiling   int           `mapstructure:"batch_ceiling"`
	LimiterRate    float64       `mapstructure:"limiter_rate"`
	LimiterBurst   int           `mapstructure:"limiter_burst"`
	BreakerLimit   int           `mapstructure:"breaker_limit"`
	BreakerCooloff time.Duration `mapstructure:"breaker_cooloff"`
}

type FilterConfig struct {
	CacheSize    int    `mapstructure:"cache_size"`
	OverrideFile string `mapstructure:"override_file"`
}

type GuardConfig struct {
	MaxConnsPerIP  int           `mapstructure:"max_conns_per_ip"`
	IPRate         float64       `mapstructure:"ip_rate"`
	IPBurst        int           `mapstructure:"ip_burst"`
	EventRate      float64       `mapstructure:"event_rate"`
	EventBurst     int           `mapstructure:"event_burst"`
	JoinWindow     time.Duration `mapstructure:"join_window"`
	JoinThreshold  int           `mapstructure:"join_threshold"`
	BlockDuration  time.Duration `mapstructure:"block_duration"`
	CleanupEvery   time.Duration `mapstructure:"cleanup_every"`
}

type PresenceConfig struct {
	AFKTimeout    time.Duration `mapstructure:"afk_timeout"`
	AFKWarning    time.Duration `mapstructure:"afk_warning"`
	TypingTimeout time.Duration `mapstructure:"typing_timeout"`
}

type SnapshotConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Path     string        `mapstructure:"path"`
	Interval time.Duration `mapstructure:"interval"`
}

type AdminConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_dir", "./public")
	v.SetDefault("server.write_wait", "10s")
	v.SetDefault("server.pong_wait", "60s")
	v.SetDefault("server.ping_interval", "54s")
	v.SetDefault("server.max_message_size", 65536)
	v.SetDefault("server.max_conn_errors", 8)

	v.SetDefault("room.base_limit", 15)
	v.SetDefault("room.limit_increment", 5)
	v.SetDefault("room.capacity", 5)
	v.SetDefault("room.max_name_length", 25)
	v.SetDefault("room.creation_cooldown", "30s")
	v.SetDefault("room.deletion_timeout", "2m")
	v.SetDefault("room.sweep_interval", "1m")
	v.SetDefault("room.max_per_identity", 1)

	v.SetDefault("chat.max_text_length", 10000)
	v.SetDefault("chat.drain_interval", "50ms")
	v.SetDefault("chat.batch_ceiling", 25)
	v.SetDefault("chat.limiter_rate", 40.0)
	v.SetDefault("chat.limiter_burst", 80)
	v.SetDefault("chat.breaker_limit", 20)
	v.SetDefault("chat.breaker_cooloff", "15s")

	v.SetDefault("filter.cache_size", 2048)
	v.SetDefault("filter.override_file", "")

	v.SetDefault("guard.max_conns_per_ip", 8)
	v.SetDefault("guard.ip_rate", 2.0)
	v.SetDefault("guard.ip_burst", 5)
	v.SetDefault("guard.event_rate", 20.0)
	v.SetDefault("guard.event_burst", 40)
	v.SetDefault("guard.join_window", "30s")
	v.SetDefault("guard.join_threshold", 10)
	v.SetDefault("guard.block_duration", "10m")
	v.SetDefault("guard.cleanup_every", "5m")

	v.SetDefault("presence.afk_timeout", "2m")
	v.SetDefault("presence.afk_warning", "30s")
	v.SetDefault("presence.typing_timeout", "3s")

	v.SetDefault("snapshot.enabled", true)
	v.SetDefault("snapshot.path", "./data/rooms.json")
	v.SetDefault("snapshot.interval", "30s")

	v.SetDefault("admin.secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
