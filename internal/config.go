package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`

	Room struct {
		SweepInterval time.Duration `yaml:"sweep_interval"` // 空房間清掃週期
	} `yaml:"room"`

	Queue struct {
		MaxDepth     int           `yaml:"max_depth"`     // 單一玩家佇列深度上限
		IdleTimeout  time.Duration `yaml:"idle_timeout"`  // 多久沒輪詢視為遺棄
		ReapInterval time.Duration `yaml:"reap_interval"` // 閒置回收週期
	} `yaml:"queue"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 預設配置
func DefaultConfig() *Config {
	config := &Config{}
	config.Server.Port = 3000
	config.Server.ReadTimeout = 15 * time.Second
	config.Server.WriteTimeout = 15 * time.Second
	config.Server.IdleTimeout = 60 * time.Second
	config.Room.SweepInterval = 60 * time.Second
	config.Queue.MaxDepth = 256
	config.Queue.IdleTimeout = 5 * time.Minute
	config.Queue.ReapInterval = 60 * time.Second
	config.Log.Level = "info"
	config.Log.Format = "text"
	return config
}

// LoadConfig 讀取配置檔並覆蓋預設值。path 為空時直接用預設值。
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - path 來自啟動旗標，非使用者輸入
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return config, nil
}

// ListenPort 監聽端口。環境變數 PORT 優先於配置檔（部署環境常用）。
func (c *Config) ListenPort() int {
	if raw := os.Getenv("PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 {
			return port
		}
	}
	return c.Server.Port
}
