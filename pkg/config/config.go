// Package config 应用配置：YAML 文件 + 环境变量覆盖
// 敏感项（私钥、助记词）只从环境变量或 secretstore 读取，不写进 YAML
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NetworkConfig 网络配置
type NetworkConfig struct {
	RPCURL  string `yaml:"rpc_url"`  // EVM 节点 RPC 地址
	WSURL   string `yaml:"ws_url"`   // 节点 websocket 地址（区块订阅，可选）
	APIURL  string `yaml:"api_url"`  // 市场数据 REST API 地址
	ChainID int64  `yaml:"chain_id"` // 链 ID（默认 Zora 主网 7777777）
}

// WalletConfig 钱包配置
type WalletConfig struct {
	Address         string `yaml:"address"`           // 钱包地址
	PrivateKey      string `yaml:"-"`                 // 私钥（仅环境变量 / secretstore，不入 YAML）
	SecretStorePath string `yaml:"secret_store_path"` // badger 密钥库路径（可选）
}

// AgentConfig 交易代理配置
type AgentConfig struct {
	Simulate            bool    `yaml:"simulate"`             // 模拟模式（默认 true）
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // 信号置信度阈值（默认 0.75）
	MaxTradeAmountUSD   float64 `yaml:"max_trade_amount_usd"` // 单笔最大交易金额（USD，默认 100）
	MockCapital         float64 `yaml:"mock_capital"`         // 模拟模式初始资金（默认 1000）
	ScanIntervalSeconds int     `yaml:"scan_interval_seconds"` // 信号扫描间隔（秒，默认 60）
}

// EngineConfig 交换引擎配置
type EngineConfig struct {
	SlippageTolerance      float64 `yaml:"slippage_tolerance"`       // 滑点容忍度（默认 0.01）
	GasLimitMultiplier     float64 `yaml:"gas_limit_multiplier"`     // gas 余量系数（默认 1.2）
	DefaultGasLimit        uint64  `yaml:"default_gas_limit"`        // 估算失败时的固定 gas 上限（默认 300000）
	DeadlineMinutes        int     `yaml:"deadline_minutes"`         // 链上截止时间（分钟，默认 20）
	ConfirmAttempts        int     `yaml:"confirm_attempts"`         // 确认轮询次数（默认 20）
	ConfirmIntervalSeconds int     `yaml:"confirm_interval_seconds"` // 确认轮询间隔（秒，默认 5）
	AllowUnprotected       bool    `yaml:"allow_unprotected"`        // 报价失败时是否继续（默认 false）
}

// SimpleStrategyConfig 简单策略配置
type SimpleStrategyConfig struct {
	VolatilityThreshold  float64 `yaml:"volatility_threshold"`  // 波动率阈值（默认 0.05）
	MomentumThreshold    float64 `yaml:"momentum_threshold"`    // 动量阈值（默认 0.03）
	VolumeThreshold      float64 `yaml:"volume_threshold"`      // 成交量阈值（默认 1000）
	ConfidenceMultiplier float64 `yaml:"confidence_multiplier"` // 置信度系数（默认 1.0）
}

// MomentumStrategyConfig 动量策略配置（RSI/MACD）
type MomentumStrategyConfig struct {
	RSIPeriod     int     `yaml:"rsi_period"`     // RSI 周期（默认 14）
	RSIOverbought float64 `yaml:"rsi_overbought"` // 超买阈值（默认 70）
	RSIOversold   float64 `yaml:"rsi_oversold"`   // 超卖阈值（默认 30）
	MACDFast      int     `yaml:"macd_fast"`      // MACD 快线周期（默认 12）
	MACDSlow      int     `yaml:"macd_slow"`      // MACD 慢线周期（默认 26）
	MACDSignal    int     `yaml:"macd_signal"`    // MACD 信号线周期（默认 9）
}

// StrategiesConfig 策略集合配置
type StrategiesConfig struct {
	Enabled  []string                `yaml:"enabled"`  // 启用的策略名列表
	Simple   *SimpleStrategyConfig   `yaml:"simple"`   // 简单策略
	Momentum *MomentumStrategyConfig `yaml:"momentum"` // 动量策略
}

// MarketConfig 市场数据配置
type MarketConfig struct {
	MaxCoins               int  `yaml:"max_coins"`                // 每轮扫描的代币数量上限（默认 100）
	RefreshIntervalSeconds int  `yaml:"refresh_interval_seconds"` // 市场数据刷新间隔（秒，默认 60）
	Synthetic              bool `yaml:"synthetic"`                // 合成行情模式（显式、测试可见）
}

// ServerConfig 状态服务配置
type ServerConfig struct {
	Enabled     bool   `yaml:"enabled"`      // 是否启用状态 HTTP 服务
	Addr        string `yaml:"addr"`         // 监听地址（默认 :8787）
	JournalPath string `yaml:"journal_path"` // sqlite 交易日志路径（可选）
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`       // 日志级别
	File       string `yaml:"file"`        // 日志文件路径（可选）
	MaxSizeMB  int    `yaml:"max_size_mb"` // 单文件大小上限（MB）
	MaxBackups int    `yaml:"max_backups"` // 保留文件数
	MaxAgeDays int    `yaml:"max_age_days"` // 保留天数
}

// Config 应用配置
type Config struct {
	Network    NetworkConfig    `yaml:"network"`
	Wallet     WalletConfig     `yaml:"wallet"`
	Agent      AgentConfig      `yaml:"agent"`
	Engine     EngineConfig     `yaml:"engine"`
	Strategies StrategiesConfig `yaml:"strategies"`
	Market     MarketConfig     `yaml:"market"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// Load 加载配置：默认值 <- YAML 文件 <- 环境变量
// path 为空时只用默认值 + 环境变量
func Load(path string) (*Config, error) {
	// .env 文件是可选的
	_ = godotenv.Load()

	cfg := Default()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			RPCURL:  "https://rpc.zora.energy",
			APIURL:  "https://api.zora.co/v1",
			ChainID: 7777777,
		},
		Agent: AgentConfig{
			Simulate:            true,
			ConfidenceThreshold: 0.75,
			MaxTradeAmountUSD:   100,
			MockCapital:         1000,
			ScanIntervalSeconds: 60,
		},
		Engine: EngineConfig{
			SlippageTolerance:      0.01,
			GasLimitMultiplier:     1.2,
			DefaultGasLimit:        300000,
			DeadlineMinutes:        20,
			ConfirmAttempts:        20,
			ConfirmIntervalSeconds: 5,
		},
		Strategies: StrategiesConfig{
			Enabled: []string{"simple"},
			Simple: &SimpleStrategyConfig{
				VolatilityThreshold:  0.05,
				MomentumThreshold:    0.03,
				VolumeThreshold:      1000,
				ConfidenceMultiplier: 1.0,
			},
			Momentum: &MomentumStrategyConfig{
				RSIPeriod:     14,
				RSIOverbought: 70,
				RSIOversold:   30,
				MACDFast:      12,
				MACDSlow:      26,
				MACDSignal:    9,
			},
		},
		Market: MarketConfig{
			MaxCoins:               100,
			RefreshIntervalSeconds: 60,
		},
		Server: ServerConfig{
			Addr: ":8787",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

// applyEnv 环境变量覆盖（优先级最高）
func (c *Config) applyEnv() {
	if v := os.Getenv("WALLET_PRIVATE_KEY"); v != "" {
		c.Wallet.PrivateKey = v
	}
	if v := os.Getenv("WALLET_ADDRESS"); v != "" {
		c.Wallet.Address = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		c.Network.RPCURL = v
	}
	if v := os.Getenv("WS_URL"); v != "" {
		c.Network.WSURL = v
	}
	if v := os.Getenv("API_URL"); v != "" {
		c.Network.APIURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Network.ChainID = id
		}
	}
	if v := os.Getenv("SIMULATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Agent.Simulate = b
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate 基础校验
func (c *Config) Validate() error {
	if c.Agent.ConfidenceThreshold < 0 || c.Agent.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold 必须在 [0,1] 之间: %.2f", c.Agent.ConfidenceThreshold)
	}
	if c.Engine.SlippageTolerance < 0 || c.Engine.SlippageTolerance >= 1 {
		return fmt.Errorf("slippage_tolerance 必须在 [0,1) 之间: %.4f", c.Engine.SlippageTolerance)
	}
	if c.Agent.MaxTradeAmountUSD < 0 {
		return fmt.Errorf("max_trade_amount_usd 不能为负: %.2f", c.Agent.MaxTradeAmountUSD)
	}
	if c.Network.ChainID <= 0 {
		return fmt.Errorf("chain_id 无效: %d", c.Network.ChainID)
	}
	return nil
}

// ScanInterval 信号扫描间隔
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Agent.ScanIntervalSeconds) * time.Second
}

// RefreshInterval 市场数据刷新间隔
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Market.RefreshIntervalSeconds) * time.Second
}

// ConfirmInterval 确认轮询间隔
func (c *Config) ConfirmInterval() time.Duration {
	return time.Duration(c.Engine.ConfirmIntervalSeconds) * time.Second
}
