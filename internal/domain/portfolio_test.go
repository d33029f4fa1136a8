package domain

import (
	"math"
	"testing"
)

func testCoin(address, symbol string, price float64) *Coin {
	return &Coin{
		Address:      address,
		Symbol:       symbol,
		Name:         symbol + " Token",
		CurrentPrice: price,
	}
}

// 买入合并：平均成本按数量加权
func TestPortfolioAddWeightedAverage(t *testing.T) {
	p := NewPortfolio("0xabc", 1000)
	coin := testCoin("0xToken1", "TK1", 2.0)

	p.Add(coin, 10, 1.0) // 10 @ 1.0
	p.Add(coin, 10, 3.0) // 10 @ 3.0 -> 平均成本 2.0

	h, ok := p.Holding("0xtoken1")
	if !ok {
		t.Fatal("持仓应存在")
	}
	if h.Amount != 20 {
		t.Errorf("数量应为 20，实际 %.4f", h.Amount)
	}
	if math.Abs(h.AvgPurchasePrice-2.0) > 1e-9 {
		t.Errorf("平均成本应为 2.0，实际 %.6f", h.AvgPurchasePrice)
	}
}

// amount <= 0 的买入是无操作
func TestPortfolioAddNonPositiveAmount(t *testing.T) {
	p := NewPortfolio("0xabc", 1000)
	coin := testCoin("0xToken1", "TK1", 2.0)

	p.Add(coin, 0, 1.0)
	p.Add(coin, -5, 1.0)

	if _, ok := p.Holding(coin.Address); ok {
		t.Error("非正数量的买入不应创建持仓")
	}
}

// 地址大小写不同视为同一代币
func TestPortfolioAddressNormalization(t *testing.T) {
	p := NewPortfolio("0xabc", 1000)
	p.Add(testCoin("0xAbCd", "TK", 1.0), 5, 1.0)
	p.Add(testCoin("0xabcd", "TK", 1.0), 5, 1.0)

	h, ok := p.Holding("0xABCD")
	if !ok {
		t.Fatal("持仓应存在")
	}
	if h.Amount != 10 {
		t.Errorf("两次买入应合并为同一持仓，数量应为 10，实际 %.4f", h.Amount)
	}
	if got := len(p.Holdings()); got != 1 {
		t.Errorf("应只有 1 个持仓，实际 %d", got)
	}
}

// 部分卖出：数量减少，平均成本不变
func TestPortfolioRemovePartial(t *testing.T) {
	p := NewPortfolio("0xabc", 1000)
	coin := testCoin("0xToken1", "TK1", 2.0)
	p.Add(coin, 10, 1.5)

	p.Remove(coin, 4)

	h, ok := p.Holding(coin.Address)
	if !ok {
		t.Fatal("部分卖出后持仓应保留")
	}
	if math.Abs(h.Amount-6) > 1e-9 {
		t.Errorf("剩余数量应为 6，实际 %.4f", h.Amount)
	}
	if h.AvgPurchasePrice != 1.5 {
		t.Errorf("部分卖出不应改变平均成本，实际 %.4f", h.AvgPurchasePrice)
	}
}

// 全量卖出 / 超量卖出 / amount<=0 都删除整个持仓
func TestPortfolioRemoveFull(t *testing.T) {
	cases := []struct {
		name   string
		amount float64
	}{
		{"精确全量", 10},
		{"超量", 15},
		{"零数量", 0},
		{"负数量", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPortfolio("0xabc", 1000)
			coin := testCoin("0xToken1", "TK1", 2.0)
			p.Add(coin, 10, 1.0)

			p.Remove(coin, tc.amount)

			if _, ok := p.Holding(coin.Address); ok {
				t.Error("持仓应被整体删除")
			}
		})
	}
}

// 残余数量低于阈值时清除持仓，不留零值行
func TestPortfolioRemoveDust(t *testing.T) {
	p := NewPortfolio("0xabc", 1000)
	coin := testCoin("0xToken1", "TK1", 2.0)
	p.Add(coin, 1.0, 1.0)

	p.Remove(coin, 1.0-1e-8) // 剩余 1e-8 < 1e-6

	if _, ok := p.Holding(coin.Address); ok {
		t.Error("残余低于阈值的持仓应被清除")
	}
}

// 卖出不存在的持仓是无操作
func TestPortfolioRemoveMissing(t *testing.T) {
	p := NewPortfolio("0xabc", 1000)
	p.Remove(testCoin("0xNope", "NO", 1.0), 5)

	if got := p.TotalValue(); got != 1000 {
		t.Errorf("总价值不应变化，实际 %.2f", got)
	}
}

// 现金出入账
func TestPortfolioCash(t *testing.T) {
	p := NewPortfolio("0xabc", 100)

	if err := p.DebitCash(40); err != nil {
		t.Fatalf("出账失败: %v", err)
	}
	if got := p.CashBalance(); got != 60 {
		t.Errorf("余额应为 60，实际 %.2f", got)
	}

	// 余额不足：报错且余额不变
	if err := p.DebitCash(100); err == nil {
		t.Error("余额不足的出账应报错")
	}
	if got := p.CashBalance(); got != 60 {
		t.Errorf("失败的出账不应改变余额，实际 %.2f", got)
	}

	p.CreditCash(15)
	if got := p.CashBalance(); got != 75 {
		t.Errorf("入账后余额应为 75，实际 %.2f", got)
	}
}

// 总价值每次基于持仓重算：价格更新后立即反映，无累积漂移
func TestPortfolioTotalValueRecomputed(t *testing.T) {
	p := NewPortfolio("0xabc", 100)
	coin := testCoin("0xToken1", "TK1", 2.0)
	p.Add(coin, 10, 2.0)

	if got := p.TotalValue(); math.Abs(got-120) > 1e-9 {
		t.Errorf("总价值应为 120，实际 %.2f", got)
	}

	// 价格翻倍，派生值立即变化
	coin.CurrentPrice = 4.0
	if got := p.TotalValue(); math.Abs(got-140) > 1e-9 {
		t.Errorf("价格更新后总价值应为 140，实际 %.2f", got)
	}

	// 反复读取不改变状态
	for i := 0; i < 100; i++ {
		p.TotalValue()
	}
	if got := p.TotalValue(); math.Abs(got-140) > 1e-9 {
		t.Errorf("反复读取不应产生漂移，实际 %.2f", got)
	}
}

// 持仓盈亏派生值
func TestHoldingProfitLoss(t *testing.T) {
	coin := testCoin("0xToken1", "TK1", 3.0)
	h := &Holding{Coin: coin, Amount: 10, AvgPurchasePrice: 2.0}

	if got := h.CurrentValue(); got != 30 {
		t.Errorf("当前价值应为 30，实际 %.2f", got)
	}
	if got := h.ProfitLoss(); got != 10 {
		t.Errorf("盈亏应为 10，实际 %.2f", got)
	}
	if got := h.ProfitLossPercent(); math.Abs(got-50) > 1e-9 {
		t.Errorf("盈亏百分比应为 50%%，实际 %.2f", got)
	}
}

// Holdings 返回按当前价值降序的副本
func TestPortfolioHoldingsSorted(t *testing.T) {
	p := NewPortfolio("0xabc", 0)
	p.Add(testCoin("0xa", "A", 1.0), 10, 1.0) // 价值 10
	p.Add(testCoin("0xb", "B", 5.0), 10, 5.0) // 价值 50
	p.Add(testCoin("0xc", "C", 2.0), 10, 2.0) // 价值 20

	holdings := p.Holdings()
	if len(holdings) != 3 {
		t.Fatalf("应有 3 个持仓，实际 %d", len(holdings))
	}
	for i := 1; i < len(holdings); i++ {
		if holdings[i].CurrentValue() > holdings[i-1].CurrentValue() {
			t.Errorf("持仓应按价值降序: 位置 %d", i)
		}
	}

	// 副本不影响内部状态
	holdings[0].Amount = 9999
	h, _ := p.Holding(holdings[0].Coin.Address)
	if h.Amount == 9999 {
		t.Error("修改副本不应影响账本内部状态")
	}
}
