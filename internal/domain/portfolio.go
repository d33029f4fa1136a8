package domain

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// dustEpsilon 持仓清理阈值：数量小于等于该值的持仓直接删除，不保留零值行
const dustEpsilon = 1e-6

// Holding 账本条目：某个代币的持仓
type Holding struct {
	Coin             *Coin   // 持有的代币
	Amount           float64 // 持有数量（>= 0）
	AvgPurchasePrice float64 // 平均买入价格（数量加权，>= 0）
}

// CurrentValue 当前价值 = 数量 × 当前价格（派生值，不存储）
func (h *Holding) CurrentValue() float64 {
	if h.Coin == nil {
		return 0
	}
	return h.Amount * h.Coin.CurrentPrice
}

// PurchaseValue 买入成本 = 数量 × 平均买入价格
func (h *Holding) PurchaseValue() float64 {
	return h.Amount * h.AvgPurchasePrice
}

// ProfitLoss 未实现盈亏 = 当前价值 − 买入成本
func (h *Holding) ProfitLoss() float64 {
	return h.CurrentValue() - h.PurchaseValue()
}

// ProfitLossPercent 未实现盈亏百分比
func (h *Holding) ProfitLossPercent() float64 {
	pv := h.PurchaseValue()
	if pv == 0 {
		return 0
	}
	return h.ProfitLoss() / pv * 100
}

// Portfolio 仓位账本：持仓映射 + 现金余额
// 持仓以归一化代币地址为 key；所有变更路径持有写锁（多 goroutine 安全）
type Portfolio struct {
	walletAddress string

	mu          sync.RWMutex
	holdings    map[string]*Holding // 归一化地址 -> 持仓
	cash        float64             // 现金余额（USD；模拟模式为 mock 资金）
	lastUpdated time.Time
}

// NewPortfolio 创建账本
// initialCash: 初始现金余额（模拟模式的 mock 资金，或展示模式下的真实钱包价值）
func NewPortfolio(walletAddress string, initialCash float64) *Portfolio {
	return &Portfolio{
		walletAddress: walletAddress,
		holdings:      make(map[string]*Holding),
		cash:          initialCash,
		lastUpdated:   time.Now(),
	}
}

// WalletAddress 返回账本对应的钱包地址
func (p *Portfolio) WalletAddress() string {
	return p.walletAddress
}

// Add 买入合并：按数量加权平均计算新的平均成本
// newAvg = (oldAmount*oldAvg + amount*price) / (oldAmount+amount)
// amount <= 0 视为无操作（与原始行为一致，调用方负责在跳过时记录日志）
func (p *Portfolio) Add(coin *Coin, amount, price float64) {
	if coin == nil || amount <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := coin.Key()
	if h, ok := p.holdings[key]; ok {
		totalCost := h.Amount*h.AvgPurchasePrice + amount*price
		totalAmount := h.Amount + amount
		h.Coin = coin
		h.Amount = totalAmount
		h.AvgPurchasePrice = totalCost / totalAmount
	} else {
		p.holdings[key] = &Holding{
			Coin:             coin,
			Amount:           amount,
			AvgPurchasePrice: price,
		}
	}
	p.lastUpdated = time.Now()
}

// Remove 卖出扣减：减少持仓数量
// amount <= 0 或 amount >= 持有数量时删除整个持仓；部分卖出不调整平均成本
// （已实现盈亏隐含在删除中，不单独跟踪）
func (p *Portfolio) Remove(coin *Coin, amount float64) {
	if coin == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := coin.Key()
	h, ok := p.holdings[key]
	if !ok {
		return
	}

	if amount <= 0 || amount >= h.Amount {
		delete(p.holdings, key)
	} else {
		h.Amount -= amount
		// 残余数量低于阈值的持仓直接清除，避免账本里挂零值行
		if h.Amount <= dustEpsilon {
			delete(p.holdings, key)
		}
	}
	p.lastUpdated = time.Now()
}

// Holding 按地址查询持仓（返回副本）
func (p *Portfolio) Holding(address string) (Holding, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	h, ok := p.holdings[NormalizeAddress(address)]
	if !ok {
		return Holding{}, false
	}
	return *h, true
}

// Holdings 返回所有持仓的副本，按当前价值降序
func (p *Portfolio) Holdings() []Holding {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Holding, 0, len(p.holdings))
	for _, h := range p.holdings {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CurrentValue() > out[j].CurrentValue()
	})
	return out
}

// CashBalance 当前现金余额
func (p *Portfolio) CashBalance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// CreditCash 现金入账（卖出回款）
func (p *Portfolio) CreditCash(amount float64) {
	if amount <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash += amount
	p.lastUpdated = time.Now()
}

// DebitCash 现金出账（买入扣款）；余额不足时返回错误且不变更
func (p *Portfolio) DebitCash(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("出账金额必须大于 0: %.2f", amount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if amount > p.cash {
		return fmt.Errorf("现金余额不足: 需要 %.2f，可用 %.2f", amount, p.cash)
	}
	p.cash -= amount
	p.lastUpdated = time.Now()
	return nil
}

// HoldingsValue 所有持仓的当前价值之和
func (p *Portfolio) HoldingsValue() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.holdingsValueLocked()
}

func (p *Portfolio) holdingsValueLocked() float64 {
	var total float64
	for _, h := range p.holdings {
		total += h.CurrentValue()
	}
	return total
}

// TotalValue 账本总价值 = 现金 + Σ 持仓当前价值
// 每次调用都基于持仓重新计算，不缓存
func (p *Portfolio) TotalValue() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash + p.holdingsValueLocked()
}

// LastUpdated 最近一次变更时间
func (p *Portfolio) LastUpdated() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastUpdated
}

var (
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // 绿色
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // 红色
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// Render 生成持仓快照表格（按当前价值降序，末尾带合计行）
// 纯展示用途，不影响任何不变量
func (p *Portfolio) Render() string {
	holdings := p.Holdings()
	if len(holdings) == 0 {
		return "账本为空（无持仓）"
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("代币", "符号", "数量", "价值 (USD)", "价格 (USD)", "盈亏")

	for _, h := range holdings {
		pnl := h.ProfitLossPercent()
		pnlText := fmt.Sprintf("%.2f%%", pnl)
		switch {
		case pnl > 0:
			pnlText = gainStyle.Render("+" + pnlText)
		case pnl < 0:
			pnlText = lossStyle.Render(pnlText)
		}
		t.Row(
			h.Coin.Name,
			h.Coin.Symbol,
			fmt.Sprintf("%.4f", h.Amount),
			fmt.Sprintf("$%.2f", h.CurrentValue()),
			fmt.Sprintf("$%.4f", h.Coin.CurrentPrice),
			pnlText,
		)
	}

	t.Row("合计", "", "", fmt.Sprintf("$%.2f", p.TotalValue()), "", "")

	return "\n" + t.String() + "\n"
}
