package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageDriverMemory = "memory"
	StorageDriverMySQL  = "mysql"

	ProviderDriverGemini = "gemini"
	ProviderDriverStub   = "stub"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Provider ProviderConfig `mapstructure:"provider"`
	Business BusinessConfig `mapstructure:"business"`
	Plans    []PlanConfig   `mapstructure:"plans"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig 选择持久化实现：memory（默认，进程内）或 mysql
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	BalanceChanged string `mapstructure:"balance_changed"`
	PaymentSettled string `mapstructure:"payment_settled"`
}

// ProviderConfig 外部图片生成服务配置
type ProviderConfig struct {
	Driver   string        `mapstructure:"driver"`
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type BusinessConfig struct {
	InitialCredits    int64         `mapstructure:"initial_credits"`
	ImageCost         int64         `mapstructure:"image_cost"`
	AdminEmail        string        `mapstructure:"admin_email"`
	UPIID             string        `mapstructure:"upi_id"`
	MaxRetryCount     int           `mapstructure:"max_retry_count"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

// PlanConfig 积分套餐
type PlanConfig struct {
	ID          string `mapstructure:"id" json:"id"`
	Name        string `mapstructure:"name" json:"name"`
	Credits     int64  `mapstructure:"credits" json:"credits"`
	Price       int64  `mapstructure:"price" json:"price"`
	Description string `mapstructure:"description" json:"description"`
}

// FindPlan 按 ID 查找套餐
func (c *Config) FindPlan(id string) (PlanConfig, bool) {
	for _, p := range c.Plans {
		if p.ID == id {
			return p, true
		}
	}
	return PlanConfig{}, false
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.session_ttl", 24*time.Hour)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("storage.driver", StorageDriverMemory)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 10)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.topic.balance_changed", "balance_changed")
	v.SetDefault("kafka.topic.payment_settled", "payment_settled")

	v.SetDefault("provider.driver", ProviderDriverStub)
	v.SetDefault("provider.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("provider.model", "gemini-3-pro-image-preview")
	v.SetDefault("provider.timeout", 2*time.Minute)

	v.SetDefault("business.initial_credits", 25)
	v.SetDefault("business.image_cost", 2)
	v.SetDefault("business.admin_email", "admin@dipakdigital.ai")
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.reconcile_interval", time.Minute)

	v.SetDefault("plans", []map[string]interface{}{
		{"id": "basic", "name": "Basic", "credits": 50, "price": 79, "description": "Perfect for starters"},
		{"id": "pro", "name": "Pro", "credits": 150, "price": 199, "description": "Best value for creators"},
		{"id": "premium", "name": "Premium", "credits": 500, "price": 499, "description": "For power users and businesses"},
	})
}

// Load 读取配置文件；configPath 为空时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IMAGEPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageDriverMemory, StorageDriverMySQL:
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver)
	}
	switch c.Provider.Driver {
	case ProviderDriverGemini, ProviderDriverStub:
	default:
		return fmt.Errorf("未知的图片生成驱动: %s", c.Provider.Driver)
	}
	if c.Business.InitialCredits < 0 {
		return fmt.Errorf("initial_credits 不能为负数: %d", c.Business.InitialCredits)
	}
	if c.Business.ImageCost <= 0 {
		return fmt.Errorf("image_cost 必须大于0: %d", c.Business.ImageCost)
	}
	for _, p := range c.Plans {
		if p.ID == "" || p.Credits <= 0 || p.Price <= 0 {
			return fmt.Errorf("套餐配置不合法: %+v", p)
		}
	}
	return nil
}

// LoadConfig 加载配置文件，失败直接退出
func LoadConfig(configPath string) *Config {
	config, err := Load(configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	GlobalConfig = config
	return config
}
