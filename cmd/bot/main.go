package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	dexclient "github.com/zorabot/gozora/dex/client"
	"github.com/zorabot/gozora/internal/controlplane"
	"github.com/zorabot/gozora/internal/domain"
	"github.com/zorabot/gozora/internal/execution"
	"github.com/zorabot/gozora/internal/ports"
	"github.com/zorabot/gozora/internal/services"
	"github.com/zorabot/gozora/internal/strategies"
	"github.com/zorabot/gozora/pkg/config"
	"github.com/zorabot/gozora/pkg/logger"
	"github.com/zorabot/gozora/pkg/secretstore"
)

// statusEvery 每 N 个扫描周期打印一次账户状态
const statusEvery = 5

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "配置文件路径")
		simulate   = flag.Bool("simulate", false, "强制模拟模式（覆盖配置）")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置失败:", err)
		os.Exit(1)
	}
	if *simulate {
		cfg.Agent.Simulate = true
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "初始化日志失败:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Errorf("❌ 运行失败: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// 私钥解析顺序：环境变量 / 配置 -> secretstore
	privateKeyHex := cfg.Wallet.PrivateKey
	walletAddress := cfg.Wallet.Address
	if privateKeyHex == "" && cfg.Wallet.SecretStorePath != "" {
		// 加密 key 必须与 wallet-init 写入时一致
		storeKey, err := secretstore.KeyFromEnv()
		if err != nil {
			return err
		}
		store, err := secretstore.Open(secretstore.OpenOptions{
			Path:          cfg.Wallet.SecretStorePath,
			EncryptionKey: storeKey,
			ReadOnly:      true,
		})
		if err != nil {
			return fmt.Errorf("打开密钥库失败: %w", err)
		}
		if v, ok, err := store.GetString(secretstore.KeyWalletPrivateKey); err == nil && ok {
			privateKeyHex = v
		}
		if v, ok, err := store.GetString(secretstore.KeyWalletAddress); err == nil && ok && walletAddress == "" {
			walletAddress = v
		}
		_ = store.Close()
	}

	// 市场数据服务（合成模式是显式配置，不是降级）
	market := services.NewMarketDataService(services.MarketDataConfig{
		APIURL:    cfg.Network.APIURL,
		MaxCoins:  cfg.Market.MaxCoins,
		Synthetic: cfg.Market.Synthetic,
	})

	// 真实模式需要：RPC 连接 + 网络合约配置 + 签名私钥
	var executor ports.SwapExecutor
	if !cfg.Agent.Simulate && privateKeyHex != "" {
		chain, err := dexclient.Dial(ctx, cfg.Network.RPCURL)
		if err != nil {
			return fmt.Errorf("连接链上节点失败: %w", err)
		}
		defer chain.Close()

		contracts, err := dexclient.GetContractConfig(cfg.Network.ChainID)
		if err != nil {
			return err
		}

		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return fmt.Errorf("解析私钥失败: %w", err)
		}

		engine, err := execution.NewEngine(
			chain,
			market,
			execution.Config{
				SlippageTolerance:  cfg.Engine.SlippageTolerance,
				GasLimitMultiplier: cfg.Engine.GasLimitMultiplier,
				DefaultGasLimit:    cfg.Engine.DefaultGasLimit,
				DeadlineMinutes:    cfg.Engine.DeadlineMinutes,
				ConfirmAttempts:    cfg.Engine.ConfirmAttempts,
				ConfirmInterval:    cfg.ConfirmInterval(),
				AllowUnprotected:   cfg.Engine.AllowUnprotected,
			},
			chain.ChainIDCached(),
			contracts.Router,
			contracts.WETH,
			privateKey,
		)
		if err != nil {
			return fmt.Errorf("创建交换引擎失败: %w", err)
		}
		executor = engine
		if walletAddress == "" {
			walletAddress = engine.Wallet().Hex()
		}
		logger.Infof("✅ 交换引擎就绪: 钱包 %s, 链 %d", engine.Wallet().Hex(), cfg.Network.ChainID)

		if balance, err := chain.NativeBalance(ctx, walletAddress); err != nil {
			logger.Warnf("⚠️ 查询钱包余额失败: %v", err)
		} else {
			logger.Infof("💳 钱包原生币余额: %.6f ETH", balance)
		}
	}

	// 交易日志（可选的 sqlite 落盘）
	var journal *controlplane.Journal
	if cfg.Server.JournalPath != "" {
		j, err := controlplane.OpenJournal(cfg.Server.JournalPath)
		if err != nil {
			return fmt.Errorf("打开交易日志失败: %w", err)
		}
		defer j.Close()
		journal = j
	}

	var journalPort ports.TradeJournal
	if journal != nil {
		journalPort = journal
	}
	agent := services.NewTradingAgent(services.AgentConfig{
		WalletAddress:       walletAddress,
		ConfidenceThreshold: cfg.Agent.ConfidenceThreshold,
		MaxTradeAmountUSD:   cfg.Agent.MaxTradeAmountUSD,
		MockCapital:         cfg.Agent.MockCapital,
		Simulate:            cfg.Agent.Simulate,
	}, executor, journalPort)
	logger.Infof("🤖 交易代理启动: 模式=%s, 阈值=%.2f, 单笔上限=$%.0f",
		agent.Mode(), cfg.Agent.ConfidenceThreshold, cfg.Agent.MaxTradeAmountUSD)

	// 策略注册
	registry := strategies.NewRegistry()
	if err := registry.Register(strategies.NewSimpleStrategy(simpleConfig(cfg))); err != nil {
		return err
	}
	if err := registry.Register(strategies.NewMomentumStrategy(momentumConfig(cfg))); err != nil {
		return err
	}
	enabled, err := registry.Enabled(cfg.Strategies.Enabled)
	if err != nil {
		return err
	}
	logger.Infof("📈 启用策略: %s", strings.Join(cfg.Strategies.Enabled, ", "))

	// 状态 HTTP 服务（可选）
	if cfg.Server.Enabled {
		srv := controlplane.NewServer(cfg.Server.Addr, agent, journal)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Errorf("❌ 状态服务异常退出: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// 区块订阅（可选，仅日志观测）
	if cfg.Network.WSURL != "" {
		stream := services.NewBlockStream(cfg.Network.WSURL, func(ev services.BlockEvent) {
			logger.Debugf("新区块 #%d %s", ev.Number, ev.Hash)
		})
		go stream.Run(ctx)
	}

	// 价格刷新循环独立于信号扫描，保证历史价格序列稳定累积
	go refreshLoop(ctx, cfg, market)

	return scanLoop(ctx, cfg, agent, market, enabled)
}

// refreshLoop 周期性刷新已知代币的价格
func refreshLoop(ctx context.Context, cfg *config.Config, market *services.MarketDataService) {
	ticker := time.NewTicker(cfg.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := market.RefreshPrices(ctx); err != nil && ctx.Err() == nil {
				logger.Warnf("⚠️ 刷新价格失败: %v", err)
			}
		}
	}
}

// scanLoop 主循环：拉行情 -> 跑策略 -> 评估 -> 执行
func scanLoop(
	ctx context.Context,
	cfg *config.Config,
	agent *services.TradingAgent,
	market *services.MarketDataService,
	enabled []ports.SignalSource,
) error {
	ticker := time.NewTicker(cfg.ScanInterval())
	defer ticker.Stop()

	cycle := 0
	for {
		cycle++
		coins, err := market.FetchCoins(ctx)
		if err != nil {
			logger.Warnf("⚠️ 拉取市场数据失败，跳过本周期: %v", err)
		} else {
			var signals []*domain.Signal
			for _, strategy := range enabled {
				signals = append(signals, strategy.GenerateSignals(ctx, coins)...)
			}

			intents := agent.EvaluateSignals(signals)
			if len(intents) > 0 {
				logger.Infof("🎯 本周期产生 %d 个交易意图（信号 %d 个）", len(intents), len(signals))
				agent.ExecuteAll(ctx, intents)
			}
		}

		if cycle%statusEvery == 0 {
			logger.Info(agent.Status())
			logger.Info(agent.Portfolio().Render())
		}

		select {
		case <-ctx.Done():
			logger.Infof("👋 收到退出信号，停止交易循环")
			return nil
		case <-ticker.C:
		}
	}
}

func simpleConfig(cfg *config.Config) strategies.SimpleConfig {
	s := cfg.Strategies.Simple
	if s == nil {
		return strategies.SimpleConfig{}
	}
	return strategies.SimpleConfig{
		VolatilityThreshold:  s.VolatilityThreshold,
		MomentumThreshold:    s.MomentumThreshold,
		VolumeThreshold:      s.VolumeThreshold,
		ConfidenceMultiplier: s.ConfidenceMultiplier,
	}
}

func momentumConfig(cfg *config.Config) strategies.MomentumConfig {
	m := cfg.Strategies.Momentum
	if m == nil {
		return strategies.MomentumConfig{}
	}
	return strategies.MomentumConfig{
		RSIPeriod:     m.RSIPeriod,
		RSIOverbought: m.RSIOverbought,
		RSIOversold:   m.RSIOversold,
		MACDFast:      m.MACDFast,
		MACDSlow:      m.MACDSlow,
		MACDSignal:    m.MACDSignal,
	}
}
