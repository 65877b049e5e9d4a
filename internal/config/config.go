package config

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig 存储配置
// driver 支持 sqlite（内嵌，默认）和 mysql
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Path         string `mapstructure:"path"` // sqlite 数据库文件路径
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
	AdminNotify string `mapstructure:"admin_notify"`
}

// BusinessConfig 业务参数
type BusinessConfig struct {
	Timezone        string `mapstructure:"timezone"`          // 业务时区，默认 Asia/Shanghai
	DailyCutoffHour int    `mapstructure:"daily_cutoff_hour"` // 日切小时，默认 23
	MaxUndoCount    int    `mapstructure:"max_undo_count"`    // 最大连续撤销次数，默认 3
	WorkerID        int64  `mapstructure:"worker_id"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "data/loanbook.db")
	viper.SetDefault("business.timezone", "Asia/Shanghai")
	viper.SetDefault("business.daily_cutoff_hour", 23)
	viper.SetDefault("business.max_undo_count", 3)
	viper.SetDefault("business.worker_id", 1)

	if err := viper.ReadInConfig(); err != nil {
		logrus.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		logrus.Fatalf("解析配置文件失败: %v", err)
	}

	return config
}
