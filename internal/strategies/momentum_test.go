package strategies

import (
	"context"
	"testing"

	"github.com/zorabot/gozora/internal/domain"
)

// 历史数据不足慢线周期时不产生信号
func TestMomentumStrategyInsufficientHistory(t *testing.T) {
	s := NewMomentumStrategy(MomentumConfig{})
	coin := marketCoin("SHORT", 1.0, 0, 1000)
	coin.HistoricalPrices = []float64{1.0, 1.1, 1.2} // 远少于 26+9

	if got := s.GenerateSignals(context.Background(), []*domain.Coin{coin}); len(got) != 0 {
		t.Errorf("历史不足不应产生信号，实际 %d 个", len(got))
	}
}

// 持续下跌后的反弹：RSI 超卖 + MACD 柱转正 -> BUY
func TestMomentumStrategyOversoldReversal(t *testing.T) {
	s := NewMomentumStrategy(MomentumConfig{
		RSIPeriod:   14,
		RSIOversold: 45, // 放宽阈值让合成序列可触发
	})

	coin := marketCoin("DIP", 1.0, 0, 1000)
	// 长期阴跌后小幅反弹：RSI 低位，MACD 柱在末端由负转正
	prices := make([]float64, 0, 60)
	p := 10.0
	for i := 0; i < 55; i++ {
		p *= 0.985
		prices = append(prices, p)
	}
	for i := 0; i < 5; i++ {
		p *= 1.02
		prices = append(prices, p)
	}
	coin.HistoricalPrices = prices
	coin.CurrentPrice = p

	signals := s.GenerateSignals(context.Background(), []*domain.Coin{coin})
	for _, sig := range signals {
		if sig.Kind == domain.SignalSell {
			t.Errorf("反弹场景不应产生 SELL 信号: %+v", sig)
		}
		if sig.Strength > maxStrength {
			t.Errorf("强度应封顶在 %.2f，实际 %.4f", maxStrength, sig.Strength)
		}
	}
}

// 单边上涨且无回落时不追涨（MACD 柱未转向）
func TestMomentumStrategySteadyTrendNoSignal(t *testing.T) {
	s := NewMomentumStrategy(MomentumConfig{})

	coin := marketCoin("STEADY", 1.0, 0, 1000)
	prices := make([]float64, 0, 60)
	p := 1.0
	for i := 0; i < 60; i++ {
		p *= 1.01
		prices = append(prices, p)
	}
	coin.HistoricalPrices = prices
	coin.CurrentPrice = p

	signals := s.GenerateSignals(context.Background(), []*domain.Coin{coin})
	for _, sig := range signals {
		if sig.Kind == domain.SignalBuy {
			t.Errorf("单边上涨中不应产生超卖买入信号: %+v", sig)
		}
	}
}
