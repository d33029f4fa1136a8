package strategies

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"github.com/zorabot/gozora/internal/domain"
	"github.com/zorabot/gozora/internal/ports"
	"github.com/zorabot/gozora/pkg/logger"
)

// MomentumConfig 动量策略参数（RSI + MACD）
type MomentumConfig struct {
	RSIPeriod     int     // RSI 周期
	RSIOverbought float64 // 超买阈值（高于则考虑卖出）
	RSIOversold   float64 // 超卖阈值（低于则考虑买入）
	MACDFast      int     // MACD 快线周期
	MACDSlow      int     // MACD 慢线周期
	MACDSignal    int     // MACD 信号线周期
}

// MomentumStrategy 技术指标动量策略
// 基于代币的历史价格序列计算 RSI 与 MACD：
//   - RSI 超卖且 MACD 柱转正 -> BUY
//   - RSI 超买且 MACD 柱转负 -> SELL
//
// 历史数据不足以覆盖慢线周期时跳过该代币，不猜测
type MomentumStrategy struct {
	cfg MomentumConfig
}

// NewMomentumStrategy 创建动量策略
func NewMomentumStrategy(cfg MomentumConfig) *MomentumStrategy {
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.RSIOverbought <= 0 {
		cfg.RSIOverbought = 70
	}
	if cfg.RSIOversold <= 0 {
		cfg.RSIOversold = 30
	}
	if cfg.MACDFast <= 0 {
		cfg.MACDFast = 12
	}
	if cfg.MACDSlow <= 0 {
		cfg.MACDSlow = 26
	}
	if cfg.MACDSignal <= 0 {
		cfg.MACDSignal = 9
	}
	return &MomentumStrategy{cfg: cfg}
}

// Name 策略名称
func (s *MomentumStrategy) Name() string {
	return "momentum"
}

// minSamples 指标有效所需的最少价格点数
func (s *MomentumStrategy) minSamples() int {
	n := s.cfg.MACDSlow + s.cfg.MACDSignal
	if rsi := s.cfg.RSIPeriod + 1; rsi > n {
		n = rsi
	}
	return n
}

// GenerateSignals 对一批代币产生信号
func (s *MomentumStrategy) GenerateSignals(_ context.Context, coins []*domain.Coin) []*domain.Signal {
	var signals []*domain.Signal
	for _, coin := range coins {
		if !coin.HasPrice() {
			continue
		}
		prices := coin.HistoricalPrices
		if len(prices) < s.minSamples() {
			continue
		}

		rsiSeries := talib.Rsi(prices, s.cfg.RSIPeriod)
		rsi := rsiSeries[len(rsiSeries)-1]

		_, _, hist := talib.Macd(prices, s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal)
		macdHist := hist[len(hist)-1]
		prevHist := hist[len(hist)-2]

		switch {
		case rsi <= s.cfg.RSIOversold && macdHist > 0 && prevHist <= 0:
			// 超卖 + MACD 柱由负转正：反转买入
			strength := 0.7 + (s.cfg.RSIOversold-rsi)/s.cfg.RSIOversold*0.3
			if strength > maxStrength {
				strength = maxStrength
			}
			signals = append(signals, domain.NewSignal(
				domain.SignalBuy, coin, strength,
				fmt.Sprintf("RSI=%.1f 超卖，MACD 柱转正", rsi),
				s.Name(),
			))

		case rsi >= s.cfg.RSIOverbought && macdHist < 0 && prevHist >= 0:
			// 超买 + MACD 柱由正转负：见顶卖出
			strength := 0.7 + (rsi-s.cfg.RSIOverbought)/(100-s.cfg.RSIOverbought)*0.3
			if strength > maxStrength {
				strength = maxStrength
			}
			signals = append(signals, domain.NewSignal(
				domain.SignalSell, coin, strength,
				fmt.Sprintf("RSI=%.1f 超买，MACD 柱转负", rsi),
				s.Name(),
			))
		}
	}
	if len(signals) > 0 {
		logger.Debugf("momentum 策略产生 %d 个信号", len(signals))
	}
	return signals
}

var _ ports.SignalSource = (*MomentumStrategy)(nil)
