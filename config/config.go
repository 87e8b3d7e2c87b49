package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	RoleApi    = "api"
	RoleWorker = "worker"
	RoleAll    = "all"

	// EnvConfigPath 配置文件路径环境变量
	EnvConfigPath = "POUNDCAKE_CONFIG"
	envPrefix     = "POUNDCAKE"
	defaultPath   = "config/config.yaml"
)

type App struct {
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
	Redis      Redis      `mapstructure:"redis"`
	Queue      Queue      `mapstructure:"queue"`
	StackStorm StackStorm `mapstructure:"stackstorm"`
	Dispatch   Dispatch   `mapstructure:"dispatch"`
	Log        Log        `mapstructure:"log"`
	Query      Query      `mapstructure:"query"`
}

type Server struct {
	Role            string        `mapstructure:"role"`
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	WebhookToken    string        `mapstructure:"webhookToken"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type Database struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Pass         string `mapstructure:"pass"`
	DBName       string `mapstructure:"dbName"`
	Timeout      string `mapstructure:"timeout"`
	MaxOpenConns int    `mapstructure:"maxOpenConns"`
	MaxIdleConns int    `mapstructure:"maxIdleConns"`
}

type Redis struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Pass string `mapstructure:"pass"`
	DB   int    `mapstructure:"db"`
}

// Queue 分发任务队列配置
type Queue struct {
	Name              string        `mapstructure:"name"`
	Concurrency       int           `mapstructure:"concurrency"`
	MaxAttempts       int           `mapstructure:"maxAttempts"`
	InitialDelay      time.Duration `mapstructure:"initialDelay"`
	MaxDelay          time.Duration `mapstructure:"maxDelay"`
	BackoffFactor     float64       `mapstructure:"backoffFactor"`
	PollTimeout       time.Duration `mapstructure:"pollTimeout"`
	VisibilityTimeout time.Duration `mapstructure:"visibilityTimeout"`
	PromoteEvery      time.Duration `mapstructure:"promoteEvery"`
	ReapEvery         time.Duration `mapstructure:"reapEvery"`
}

// StackStorm 外部修复引擎配置
type StackStorm struct {
	Url       string        `mapstructure:"url"`
	ApiKey    string        `mapstructure:"apiKey"`
	AuthToken string        `mapstructure:"authToken"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type Dispatch struct {
	RulesFile string `mapstructure:"rulesFile"`
	Rules     []Rule `mapstructure:"rules"`
}

// Rule 修复规则，按顺序匹配
type Rule struct {
	Name       string            `mapstructure:"name" yaml:"name"`
	Action     string            `mapstructure:"action" yaml:"action"`
	AlertName  string            `mapstructure:"alertname" yaml:"alertname"`
	Matchers   []string          `mapstructure:"matchers" yaml:"matchers"`
	Statuses   []string          `mapstructure:"statuses" yaml:"statuses"`
	Parameters map[string]string `mapstructure:"parameters" yaml:"parameters"`
	Continue   bool              `mapstructure:"continue" yaml:"continue"`
}

type Log struct {
	ServiceName string `mapstructure:"serviceName"`
	Mode        string `mapstructure:"mode"`
	Encoding    string `mapstructure:"encoding"`
	Level       string `mapstructure:"level"`
}

type Query struct {
	DefaultLimit int `mapstructure:"defaultLimit"`
	MaxLimit     int `mapstructure:"maxLimit"`
}

// InitConfig 加载配置文件，环境变量优先
func InitConfig() App {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = defaultPath
	}

	c, err := Load(path)
	if err != nil {
		panic(err)
	}

	return c
}

// Load 读取指定路径的配置；文件不存在时仅使用默认值与环境变量
func Load(path string) (App, error) {
	var c App

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return c, fmt.Errorf("读取配置文件失败, path: %s, err: %w", path, err)
			}
		}
	}

	err := v.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return c, fmt.Errorf("解析配置失败, err: %w", err)
	}

	if c.Dispatch.RulesFile != "" {
		rules, err := LoadRules(c.Dispatch.RulesFile)
		if err != nil {
			return c, err
		}
		c.Dispatch.Rules = rules
	}

	return c, c.Validate()
}

// LoadRules 从独立的 YAML 文件加载修复规则
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取规则文件失败, path: %s, err: %w", path, err)
	}

	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("解析规则文件失败, path: %s, err: %w", path, err)
	}

	return doc.Rules, nil
}

func (c App) Validate() error {
	switch c.Server.Role {
	case RoleApi, RoleWorker, RoleAll:
	default:
		return fmt.Errorf("无效的 server.role: %q", c.Server.Role)
	}

	if c.Queue.Concurrency <= 0 {
		return fmt.Errorf("queue.concurrency 必须大于 0")
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue.maxAttempts 必须大于 0")
	}

	for i, r := range c.Dispatch.Rules {
		if r.Name == "" || r.Action == "" {
			return fmt.Errorf("dispatch.rules[%d]: name 和 action 不能为空", i)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.role", RoleAll)
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.webhookToken", "")
	v.SetDefault("server.shutdownTimeout", "15s")

	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", "3306")
	v.SetDefault("database.user", "poundcake")
	v.SetDefault("database.pass", "poundcake")
	v.SetDefault("database.dbName", "poundcake")
	v.SetDefault("database.timeout", "10s")
	v.SetDefault("database.maxOpenConns", 20)
	v.SetDefault("database.maxIdleConns", 5)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.pass", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.name", "dispatch")
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.maxAttempts", 5)
	v.SetDefault("queue.initialDelay", "2s")
	v.SetDefault("queue.maxDelay", "5m")
	v.SetDefault("queue.backoffFactor", 2.0)
	v.SetDefault("queue.pollTimeout", "2s")
	v.SetDefault("queue.visibilityTimeout", "5m")
	v.SetDefault("queue.promoteEvery", "1s")
	v.SetDefault("queue.reapEvery", "30s")

	v.SetDefault("stackstorm.url", "http://localhost:9101/v1")
	v.SetDefault("stackstorm.apiKey", "")
	v.SetDefault("stackstorm.authToken", "")
	v.SetDefault("stackstorm.timeout", "30s")

	v.SetDefault("dispatch.rulesFile", "")

	v.SetDefault("log.serviceName", "poundcake")
	v.SetDefault("log.mode", "console")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.level", "info")

	v.SetDefault("query.defaultLimit", 20)
	v.SetDefault("query.maxLimit", 500)
}
