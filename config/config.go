package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀, 例如 GROUPCHAT_SERVER_PORT 覆盖 server.port
const EnvPrefix = "GROUPCHAT"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	Mongo      MongoConfig      `mapstructure:"mongo"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
	Hub        HubConfig        `mapstructure:"hub"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Chat       ChatConfig       `mapstructure:"chat"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	UploadDir       string        `mapstructure:"upload_dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// 雪花算法节点号, 多实例部署时必须互不相同
	NodeID int64 `mapstructure:"node_id"`
}

// StoreConfig 选择持久化后端: postgres / sqlite / mongo
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type RateLimitConfig struct {
	MessagePerMinute int  `mapstructure:"message_per_minute"`
	FailOpen         bool `mapstructure:"fail_open"`
}

type WorkerPoolConfig struct {
	Size      int `mapstructure:"size"`
	QueueSize int `mapstructure:"queue_size"`
}

// HubConfig 实时推送中心的分片与缓冲设置
type HubConfig struct {
	Shards     int `mapstructure:"shards"`
	SendBuffer int `mapstructure:"send_buffer"`
	QueueSize  int `mapstructure:"queue_size"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type ChatConfig struct {
	RestrictUnsendToAuthor bool          `mapstructure:"restrict_unsend_to_author"`
	ReconcileInterval      time.Duration `mapstructure:"reconcile_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.node_id", 1)

	v.SetDefault("store.driver", "sqlite")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.dbname", "groupchat")
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("postgres.max_open_conns", 100)

	v.SetDefault("sqlite.path", "groupchat.db")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "groupchat")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.secret", "dev_secret")
	v.SetDefault("jwt.expire_hours", 24*7)

	v.SetDefault("ratelimit.message_per_minute", 60)
	v.SetDefault("ratelimit.fail_open", true)

	v.SetDefault("worker_pool.size", 64)
	v.SetDefault("worker_pool.queue_size", 1024)

	v.SetDefault("hub.shards", 8)
	v.SetDefault("hub.send_buffer", 256)
	v.SetDefault("hub.queue_size", 1024)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "groupchat-events")

	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.address", ":9090")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("chat.restrict_unsend_to_author", false)
	v.SetDefault("chat.reconcile_interval", 10*time.Minute)
}

// LoadConfig 读取 TOML 配置, 文件缺失时仅使用默认值与环境变量
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite", "mongo":
	default:
		return fmt.Errorf("不支持的存储驱动: %q", c.Store.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret 不能为空")
	}
	if c.Server.NodeID < 0 || c.Server.NodeID > 1023 {
		return errors.New("server.node_id 取值范围为 0-1023")
	}
	if c.Hub.Shards <= 0 {
		return errors.New("hub.shards 必须大于 0")
	}
	if c.Hub.SendBuffer <= 0 {
		return errors.New("hub.send_buffer 必须大于 0")
	}
	return nil
}

// BuildPostgresDSN 拼接 Postgres 连接串
func (c *Config) BuildPostgresDSN() string {
	p := c.Postgres
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		p.Host, p.User, p.Password, p.DBName, p.Port)
}

// RedisAddr 返回 host:port
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}
