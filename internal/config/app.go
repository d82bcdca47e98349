package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// AppConfig 应用配置
type AppConfig struct {
	Listen     string         `yaml:"listen" validate:"required"`     // 监听地址
	Dashboards string         `yaml:"dashboards" validate:"required"` // 仪表盘定义文件路径
	Upstream   UpstreamConfig `yaml:"upstream"`
	Log        LogConfig      `yaml:"log"`
}

// UpstreamConfig 上游查询配置
type UpstreamConfig struct {
	QueryTimeout int `yaml:"query_timeout" validate:"gte=0"` // 单个上游查询超时（秒）
}

// Timeout 查询超时时长
func (c UpstreamConfig) Timeout() time.Duration {
	return time.Duration(c.QueryTimeout) * time.Second
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`        // 为空时输出到标准输出
	MaxSize    int    `yaml:"max_size"`    // MB
	MaxBackups int    `yaml:"max_backups"` // 保留的旧日志文件数
	MaxAge     int    `yaml:"max_age"`     // 天数
	Compress   bool   `yaml:"compress"`
}

// Load 读取并校验应用配置
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &AppConfig{
		Listen:   "127.0.0.1:3000",
		Upstream: UpstreamConfig{QueryTimeout: 30},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return cfg, nil
}
