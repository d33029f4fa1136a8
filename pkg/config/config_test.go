package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// 默认配置可通过校验，关键默认值正确
func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	require.True(t, cfg.Agent.Simulate, "默认必须是模拟模式")
	require.Equal(t, 0.75, cfg.Agent.ConfidenceThreshold)
	require.Equal(t, float64(100), cfg.Agent.MaxTradeAmountUSD)
	require.Equal(t, int64(7777777), cfg.Network.ChainID)
	require.Equal(t, 0.01, cfg.Engine.SlippageTolerance)
	require.Equal(t, 20, cfg.Engine.DeadlineMinutes)
	require.Equal(t, 20, cfg.Engine.ConfirmAttempts)
	require.False(t, cfg.Engine.AllowUnprotected, "报价失败默认必须中止")
}

// YAML 覆盖默认值
func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
agent:
  simulate: false
  confidence_threshold: 0.8
engine:
  slippage_tolerance: 0.02
network:
  chain_id: 8453
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.False(t, cfg.Agent.Simulate)
	require.Equal(t, 0.8, cfg.Agent.ConfidenceThreshold)
	require.Equal(t, 0.02, cfg.Engine.SlippageTolerance)
	require.Equal(t, int64(8453), cfg.Network.ChainID)
	// 未覆盖的字段保留默认值
	require.Equal(t, float64(100), cfg.Agent.MaxTradeAmountUSD)
}

// 环境变量优先级最高
func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SIMULATE", "true")
	t.Setenv("CHAIN_ID", "999999999")
	t.Setenv("WALLET_PRIVATE_KEY", "0xdeadbeef")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  simulate: false\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Agent.Simulate, "环境变量应覆盖 YAML")
	require.Equal(t, int64(999999999), cfg.Network.ChainID)
	require.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)
}

// 非法值被校验拒绝
func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"阈值越界", func(c *Config) { c.Agent.ConfidenceThreshold = 1.5 }},
		{"滑点越界", func(c *Config) { c.Engine.SlippageTolerance = 1.0 }},
		{"负单笔上限", func(c *Config) { c.Agent.MaxTradeAmountUSD = -1 }},
		{"非法链ID", func(c *Config) { c.Network.ChainID = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

// 缺失配置文件报错；空路径不报错
func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)
}
