package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Manager 配置管理器（本地文件 + 环境变量）
type Manager struct {
	viper *viper.Viper
}

// NewManager 创建配置管理器
func NewManager() *Manager {
	return &Manager{
		viper: viper.New(),
	}
}

// LoadConfig 加载本地配置文件
// configPath: 本地配置文件路径
func (m *Manager) LoadConfig(configPath string) error {
	m.viper.SetConfigFile(configPath)

	if err := m.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	return nil
}

// Unmarshal 将配置解析到结构体
func (m *Manager) Unmarshal(rawVal interface{}) error {
	return m.viper.Unmarshal(rawVal)
}

// UnmarshalKey 将指定key的配置解析到结构体
func (m *Manager) UnmarshalKey(key string, rawVal interface{}) error {
	return m.viper.UnmarshalKey(key, rawVal)
}

// GetString 获取字符串配置
func (m *Manager) GetString(key string) string {
	return m.viper.GetString(key)
}

// GetInt 获取整数配置
func (m *Manager) GetInt(key string) int {
	return m.viper.GetInt(key)
}

// GetBool 获取布尔配置
func (m *Manager) GetBool(key string) bool {
	return m.viper.GetBool(key)
}

// GetDuration 获取时间间隔配置
func (m *Manager) GetDuration(key string) time.Duration {
	return m.viper.GetDuration(key)
}

// IsSet 检查key是否被设置
func (m *Manager) IsSet(key string) bool {
	return m.viper.IsSet(key)
}

// ==================== 辅助函数 ====================

// GetEnv 从环境变量获取配置，如果不存在则返回默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsInt 从环境变量获取整数配置
func GetEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// GetEnvAsBool 从环境变量获取布尔配置
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// GetEnvAsDuration 从环境变量获取时间间隔配置
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
