package strategies

import (
	"context"
	"testing"

	"github.com/zorabot/gozora/internal/domain"
)

func marketCoin(symbol string, price, change24h, volume float64) *domain.Coin {
	return &domain.Coin{
		Address:        "0x" + symbol,
		Symbol:         symbol,
		Name:           symbol,
		CurrentPrice:   price,
		PriceChange24h: change24h,
		Volume24h:      volume,
	}
}

// 涨幅过阈值且有量 -> BUY；跌幅过阈值 -> SELL；平盘无信号
func TestSimpleStrategySignals(t *testing.T) {
	s := NewSimpleStrategy(SimpleConfig{
		MomentumThreshold: 0.03,
		VolumeThreshold:   1000,
	})

	coins := []*domain.Coin{
		marketCoin("UP", 1.0, 8.0, 5000),    // +8%，有量 -> BUY
		marketCoin("DOWN", 1.0, -6.0, 5000), // -6% -> SELL
		marketCoin("FLAT", 1.0, 0.5, 5000),  // 平盘 -> 无信号
		marketCoin("THIN", 1.0, 8.0, 100),   // 涨但没量 -> 无信号
	}

	signals := s.GenerateSignals(context.Background(), coins)
	if len(signals) != 2 {
		t.Fatalf("应产生 2 个信号，实际 %d", len(signals))
	}

	bySymbol := map[string]*domain.Signal{}
	for _, sig := range signals {
		bySymbol[sig.Coin.Symbol] = sig
	}
	if sig, ok := bySymbol["UP"]; !ok || sig.Kind != domain.SignalBuy {
		t.Errorf("UP 应产生 BUY 信号，实际 %+v", sig)
	}
	if sig, ok := bySymbol["DOWN"]; !ok || sig.Kind != domain.SignalSell {
		t.Errorf("DOWN 应产生 SELL 信号，实际 %+v", sig)
	}
}

// 无价格的代币跳过
func TestSimpleStrategySkipsNoPrice(t *testing.T) {
	s := NewSimpleStrategy(SimpleConfig{})
	coins := []*domain.Coin{marketCoin("ZERO", 0, 50.0, 99999)}

	if got := s.GenerateSignals(context.Background(), coins); len(got) != 0 {
		t.Errorf("无价格代币不应产生信号，实际 %d 个", len(got))
	}
}

// 信号强度封顶在 0.95，不达到满置信度
func TestSimpleStrategyStrengthCap(t *testing.T) {
	s := NewSimpleStrategy(SimpleConfig{MomentumThreshold: 0.03, VolumeThreshold: 100})
	coins := []*domain.Coin{marketCoin("MOON", 1.0, 500.0, 999999)}

	signals := s.GenerateSignals(context.Background(), coins)
	if len(signals) != 1 {
		t.Fatalf("应产生 1 个信号，实际 %d", len(signals))
	}
	if signals[0].Strength > maxStrength {
		t.Errorf("强度应封顶在 %.2f，实际 %.4f", maxStrength, signals[0].Strength)
	}
	if signals[0].Strength < 0.75 {
		t.Errorf("极端涨幅的强度应足以触发交易，实际 %.4f", signals[0].Strength)
	}
}

// 注册表：重复注册报错，按名称取回
func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewSimpleStrategy(SimpleConfig{})); err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	if err := r.Register(NewSimpleStrategy(SimpleConfig{})); err == nil {
		t.Error("重复注册应报错")
	}

	if _, err := r.Get("simple"); err != nil {
		t.Errorf("应能取回已注册策略: %v", err)
	}
	if _, err := r.Get("nope"); err == nil {
		t.Error("未注册的名称应报错")
	}

	enabled, err := r.Enabled([]string{"simple"})
	if err != nil || len(enabled) != 1 {
		t.Errorf("Enabled 应返回 1 个策略: %v", err)
	}
	if _, err := r.Enabled([]string{"missing"}); err == nil {
		t.Error("启用未注册的策略应报错")
	}
}
