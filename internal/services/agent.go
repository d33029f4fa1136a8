package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zorabot/gozora/internal/domain"
	"github.com/zorabot/gozora/internal/ports"
	"github.com/zorabot/gozora/pkg/logger"
)

// Mode 代理运行模式
type Mode string

const (
	ModeSimulate Mode = "SIMULATE" // 模拟模式：只改内存账本，不发链上交易
	ModeReal     Mode = "REAL"     // 真实模式：通过交换引擎执行链上交易
)

// 交易参数默认值
const (
	DefaultConfidenceThreshold = 0.75 // 信号置信度阈值
	DefaultMaxTradeAmountUSD   = 100  // 单笔最大交易金额（USD）
	DefaultMockCapital         = 1000 // 模拟模式初始资金（USD）

	// buyCashFraction 买入时最多动用可用现金的比例
	buyCashFraction = 0.2
	// strongSellFraction / moderateSellFraction 卖出比例：强信号卖一半，普通信号卖两成
	strongSellFraction   = 0.5
	moderateSellFraction = 0.2
	// strongSignalStrength 触发强卖出的信号强度
	strongSignalStrength = 0.85
)

// AgentConfig 交易代理配置
type AgentConfig struct {
	WalletAddress       string  // 钱包地址
	ConfidenceThreshold float64 // 信号置信度阈值（低于此值的信号直接丢弃）
	MaxTradeAmountUSD   float64 // 单笔最大交易金额（USD）
	MockCapital         float64 // 模拟模式初始资金
	Simulate            bool    // 是否模拟模式
}

// TradingAgent 自主交易代理
// 职责：过滤信号 -> 生成交易意图 -> 按模式执行（直改账本 / 调用引擎）-> 记账
// 模式在构造时固定；申请 REAL 但没有执行器（即没有签名凭证）时自动降级为 SIMULATE
type TradingAgent struct {
	cfg  AgentConfig
	mode Mode

	portfolio *domain.Portfolio
	executor  ports.SwapExecutor // 真实模式的交换引擎；模拟模式为 nil
	journal   ports.TradeJournal // 可选的交易历史外部存储

	histMu  sync.RWMutex
	history []*domain.TradeRecord // 仅追加的交易历史
}

// NewTradingAgent 创建交易代理
// executor 为 nil 且配置要求真实模式时，降级到模拟模式并告警
func NewTradingAgent(cfg AgentConfig, executor ports.SwapExecutor, journal ports.TradeJournal) *TradingAgent {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.MaxTradeAmountUSD <= 0 {
		cfg.MaxTradeAmountUSD = DefaultMaxTradeAmountUSD
	}
	if cfg.MockCapital <= 0 {
		cfg.MockCapital = DefaultMockCapital
	}

	mode := ModeSimulate
	if !cfg.Simulate {
		if executor == nil {
			logger.Warnf("⚠️ 请求真实模式但没有可用的签名凭证，降级为模拟模式")
		} else {
			mode = ModeReal
		}
	}

	return &TradingAgent{
		cfg:       cfg,
		mode:      mode,
		portfolio: domain.NewPortfolio(cfg.WalletAddress, cfg.MockCapital),
		executor:  executor,
		journal:   journal,
	}
}

// Mode 当前运行模式
func (a *TradingAgent) Mode() Mode {
	return a.mode
}

// Portfolio 账本访问
func (a *TradingAgent) Portfolio() *domain.Portfolio {
	return a.portfolio
}

// EvaluateSignals 评估信号并生成交易意图
// 纯转换：读账本、不产生任何副作用，副作用全部推迟到 Execute
func (a *TradingAgent) EvaluateSignals(signals []*domain.Signal) []*domain.TradeIntent {
	if len(signals) == 0 {
		return nil
	}

	var intents []*domain.TradeIntent
	for _, s := range signals {
		if s == nil || s.Coin == nil {
			continue
		}
		// 置信度过滤
		if s.Strength < a.cfg.ConfidenceThreshold {
			logger.Debugf("信号未达置信度阈值 %.2f，丢弃: %s", a.cfg.ConfidenceThreshold, s)
			continue
		}
		if s.Coin.CurrentPrice <= 0 {
			logger.Debugf("代币 %s 无有效价格，丢弃信号", s.Coin.Symbol)
			continue
		}

		switch s.Kind {
		case domain.SignalBuy:
			// 名义金额 = min(单笔上限, 可用现金 × 20%)
			notional := a.cfg.MaxTradeAmountUSD
			if limit := a.portfolio.CashBalance() * buyCashFraction; limit < notional {
				notional = limit
			}
			if notional <= 0 {
				logger.Debugf("现金不足，跳过买入信号: %s", s)
				continue
			}
			intents = append(intents, &domain.TradeIntent{
				Coin:      s.Coin,
				Direction: domain.SignalBuy,
				Quantity:  notional, // BUY: USD 名义金额
				Strength:  s.Strength,
				Reason:    s.Reason,
			})

		case domain.SignalSell:
			holding, ok := a.portfolio.Holding(s.Coin.Address)
			if !ok || holding.Amount <= 0 {
				continue
			}
			// 强信号卖一半，普通信号卖两成
			fraction := moderateSellFraction
			if s.Strength > strongSignalStrength {
				fraction = strongSellFraction
			}
			quantity := holding.Amount * fraction
			if quantity <= 0 {
				continue
			}
			intents = append(intents, &domain.TradeIntent{
				Coin:      s.Coin,
				Direction: domain.SignalSell,
				Quantity:  quantity, // SELL: 代币数量
				Strength:  s.Strength,
				Reason:    s.Reason,
			})
		}
	}
	return intents
}

// Execute 执行一个交易意图
// 成功时恰好追加一条交易记录；失败只记日志并返回结果，不进入历史
func (a *TradingAgent) Execute(ctx context.Context, intent *domain.TradeIntent) (*domain.SwapResult, error) {
	if intent == nil || intent.Coin == nil {
		return nil, fmt.Errorf("交易意图缺少代币")
	}

	if a.mode == ModeSimulate {
		return a.executeSimulated(intent), nil
	}
	return a.executeReal(ctx, intent)
}

// ExecuteAll 顺序执行一批交易意图
func (a *TradingAgent) ExecuteAll(ctx context.Context, intents []*domain.TradeIntent) {
	for _, intent := range intents {
		if _, err := a.Execute(ctx, intent); err != nil {
			logger.Errorf("❌ 执行交易失败: %v", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// executeSimulated 模拟执行：不发网络请求，直接改账本
// 资金/持仓在执行时重新检查（评估之后可能已被其他交易消耗）
func (a *TradingAgent) executeSimulated(intent *domain.TradeIntent) *domain.SwapResult {
	coin := intent.Coin
	price := coin.CurrentPrice
	if price <= 0 {
		return domain.FailedSwap(fmt.Sprintf("代币 %s 无有效价格", coin.Symbol))
	}

	switch intent.Direction {
	case domain.SignalBuy:
		notional := intent.Quantity
		// 余额不足时缩减到可用现金；完全没钱才算失败
		if cash := a.portfolio.CashBalance(); notional > cash {
			logger.Warnf("⚠️ 现金不足，交易金额从 $%.2f 缩减到 $%.2f", notional, cash)
			notional = cash
		}
		if notional <= 0 {
			return domain.FailedSwap("现金余额不足")
		}

		amount := notional / price
		if err := a.portfolio.DebitCash(notional); err != nil {
			return domain.FailedSwap(err.Error())
		}
		a.portfolio.Add(coin, amount, price)
		a.appendRecord(domain.SignalBuy, coin.Symbol, amount, price, notional, "", true)
		logger.Infof("✅ 模拟买入 %.4f %s @ $%.4f | 合计 $%.2f", amount, coin.Symbol, price, notional)
		return &domain.SwapResult{Success: true, TokenAmount: amount}

	case domain.SignalSell:
		holding, ok := a.portfolio.Holding(coin.Address)
		if !ok {
			return domain.FailedSwap(fmt.Sprintf("未持有 %s，无法卖出", coin.Symbol))
		}
		quantity := intent.Quantity
		if quantity <= 0 || quantity > holding.Amount {
			quantity = holding.Amount
		}
		value := quantity * price

		a.portfolio.Remove(coin, quantity)
		a.portfolio.CreditCash(value)
		a.appendRecord(domain.SignalSell, coin.Symbol, quantity, price, value, "", true)
		logger.Infof("💰 模拟卖出 %.4f %s @ $%.4f | 合计 $%.2f", quantity, coin.Symbol, price, value)
		return &domain.SwapResult{Success: true, TokenAmount: quantity}

	default:
		return domain.FailedSwap(fmt.Sprintf("不支持的交易方向: %s", intent.Direction))
	}
}

// executeReal 真实执行：交给交换引擎，成功后用引擎上报的成交量镜像账本
// 失败路径不碰账本：每个意图要么完整生效要么完全不生效
func (a *TradingAgent) executeReal(ctx context.Context, intent *domain.TradeIntent) (*domain.SwapResult, error) {
	coin := intent.Coin
	price := coin.CurrentPrice

	result, err := a.executor.ProcessIntent(ctx, intent)
	if err != nil {
		logger.Errorf("❌ 引擎执行失败: %v", err)
		return domain.FailedSwap(err.Error()), nil
	}
	if result == nil || !result.Success {
		reason := "未知错误"
		if result != nil && result.Err != "" {
			reason = result.Err
		}
		logger.Errorf("❌ 交易失败: %s", reason)
		return result, nil
	}

	// 镜像账本：用引擎上报的代币数量（滑点可能改变实际成交量），不是交易前的估算值
	switch intent.Direction {
	case domain.SignalBuy:
		notional := intent.Quantity
		amount := result.TokenAmount
		if amount <= 0 && price > 0 {
			amount = notional / price
		}
		if err := a.portfolio.DebitCash(notional); err != nil {
			// 展示模式下现金余额可能与真实钱包脱节，只告警不回滚链上已成交的交易
			logger.Warnf("⚠️ 现金镜像失败: %v", err)
		}
		a.portfolio.Add(coin, amount, price)
		a.appendRecord(domain.SignalBuy, coin.Symbol, amount, price, notional, result.TxHash, false)
		logger.Infof("✅ 买入 %.4f %s @ $%.4f | tx=%s", amount, coin.Symbol, price, result.TxHash)

	case domain.SignalSell:
		amount := result.TokenAmount
		if amount <= 0 {
			amount = intent.Quantity
		}
		value := amount * price
		a.portfolio.Remove(coin, amount)
		a.portfolio.CreditCash(value)
		a.appendRecord(domain.SignalSell, coin.Symbol, amount, price, value, result.TxHash, false)
		logger.Infof("💰 卖出 %.4f %s @ $%.4f | tx=%s", amount, coin.Symbol, price, result.TxHash)
	}

	return result, nil
}

// appendRecord 追加交易记录（历史仅追加；外部存储失败不影响内存记录）
func (a *TradingAgent) appendRecord(direction domain.SignalKind, symbol string, amount, price, value float64, txHash string, simulated bool) {
	record := &domain.TradeRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Direction: direction,
		Symbol:    symbol,
		Amount:    amount,
		Price:     price,
		ValueUSD:  value,
		TxHash:    txHash,
		Simulated: simulated,
	}

	a.histMu.Lock()
	a.history = append(a.history, record)
	a.histMu.Unlock()

	if a.journal != nil {
		if err := a.journal.Append(record); err != nil {
			logger.Warnf("⚠️ 写入交易日志失败: %v", err)
		}
	}
}

// History 返回交易历史的副本
func (a *TradingAgent) History() []*domain.TradeRecord {
	a.histMu.RLock()
	defer a.histMu.RUnlock()
	out := make([]*domain.TradeRecord, len(a.history))
	copy(out, a.history)
	return out
}

// Status 账户状态摘要（用于日志展示）
func (a *TradingAgent) Status() string {
	holdingsValue := a.portfolio.HoldingsValue()
	cash := a.portfolio.CashBalance()
	total := holdingsValue + cash
	pnl := total - a.cfg.MockCapital
	pnlPercent := 0.0
	if a.cfg.MockCapital > 0 {
		pnlPercent = pnl / a.cfg.MockCapital * 100
	}

	sign := ""
	if pnl >= 0 {
		sign = "+"
	}
	return fmt.Sprintf(
		"\n💰 交易账户状态 [%s]\n初始资金: $%.2f\n持仓价值: $%.2f\n可用现金: $%.2f\n总价值: $%.2f\n盈亏: %s$%.2f (%s%.2f%%)\n",
		a.mode, a.cfg.MockCapital, holdingsValue, cash, total, sign, pnl, sign, pnlPercent,
	)
}
