package strategies

import (
	"context"
	"fmt"
	"math"

	"github.com/zorabot/gozora/internal/domain"
	"github.com/zorabot/gozora/internal/ports"
	"github.com/zorabot/gozora/pkg/logger"
)

// maxStrength 策略产生的信号强度上限，满强度(1.0)只保留给人工信号
const maxStrength = 0.95

// SimpleConfig 简单策略参数
type SimpleConfig struct {
	VolatilityThreshold  float64 // 波动率阈值（|24h 涨跌| / 100）
	MomentumThreshold    float64 // 动量阈值（24h 涨跌 / 100，超过才出信号）
	VolumeThreshold      float64 // 24h 成交量下限（USD），低于视为流动性不足
	ConfidenceMultiplier float64 // 置信度系数（整体缩放信号强度）
}

// SimpleStrategy 简单动量策略
// 只看 24h 涨跌幅与成交量：涨幅过阈值且有量 -> BUY；跌幅过阈值 -> SELL
type SimpleStrategy struct {
	cfg SimpleConfig
}

// NewSimpleStrategy 创建简单策略
func NewSimpleStrategy(cfg SimpleConfig) *SimpleStrategy {
	if cfg.VolatilityThreshold <= 0 {
		cfg.VolatilityThreshold = 0.05
	}
	if cfg.MomentumThreshold <= 0 {
		cfg.MomentumThreshold = 0.03
	}
	if cfg.VolumeThreshold <= 0 {
		cfg.VolumeThreshold = 1000
	}
	if cfg.ConfidenceMultiplier <= 0 {
		cfg.ConfidenceMultiplier = 1.0
	}
	return &SimpleStrategy{cfg: cfg}
}

// Name 策略名称
func (s *SimpleStrategy) Name() string {
	return "simple"
}

// GenerateSignals 对一批代币产生信号
// 无价格或不满足任何条件的代币直接跳过，不产生 HOLD 噪音
func (s *SimpleStrategy) GenerateSignals(_ context.Context, coins []*domain.Coin) []*domain.Signal {
	var signals []*domain.Signal
	for _, coin := range coins {
		if !coin.HasPrice() {
			continue
		}

		momentum := coin.PriceChange24h / 100
		volatility := math.Abs(momentum)

		switch {
		case momentum >= s.cfg.MomentumThreshold && coin.Volume24h >= s.cfg.VolumeThreshold:
			signals = append(signals, domain.NewSignal(
				domain.SignalBuy, coin,
				s.strength(volatility),
				fmt.Sprintf("24h 上涨 %.2f%%，成交量 $%.0f", coin.PriceChange24h, coin.Volume24h),
				s.Name(),
			))

		case momentum <= -s.cfg.MomentumThreshold:
			signals = append(signals, domain.NewSignal(
				domain.SignalSell, coin,
				s.strength(volatility),
				fmt.Sprintf("24h 下跌 %.2f%%", coin.PriceChange24h),
				s.Name(),
			))
		}
	}
	if len(signals) > 0 {
		logger.Debugf("simple 策略产生 %d 个信号", len(signals))
	}
	return signals
}

// strength 把波动率映射为信号强度：基准 0.6，波动越大越强，超过波动率阈值额外加成
func (s *SimpleStrategy) strength(volatility float64) float64 {
	strength := 0.6 + volatility*2
	if volatility >= s.cfg.VolatilityThreshold {
		strength += 0.1
	}
	strength *= s.cfg.ConfidenceMultiplier
	if strength > maxStrength {
		strength = maxStrength
	}
	return strength
}

var _ ports.SignalSource = (*SimpleStrategy)(nil)
