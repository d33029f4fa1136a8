package domain

import (
	"strings"
	"time"
)

// Coin 代币领域模型：身份信息 + 市场快照
// 身份字段（Address/Symbol/Name/CreatorAddress/CreatedAt）构造后不可变；
// 市场字段（CurrentPrice/Volume24h/PriceChange24h/MarketCap）由市场数据服务周期性刷新
type Coin struct {
	Address        string // 合约地址（主键，小写归一化）
	Symbol         string // 代币符号
	Name           string // 代币名称
	CreatorAddress string // 创建者地址（可选）
	CreatedAt      string // 创建时间（API 原始格式，可选）

	CurrentPrice   float64 // 当前价格（USD，>= 0）
	Volume24h      float64 // 24 小时成交量（USD）
	PriceChange24h float64 // 24 小时涨跌幅（百分比）
	MarketCap      float64 // 市值（USD）

	HolderCount int // 持有人数（可选，0 表示未知）
	TradeCount  int // 交易笔数（可选，0 表示未知）

	// HistoricalPrices 历史收盘价序列（旧 -> 新），供动量策略计算 RSI/MACD
	HistoricalPrices []float64

	LastUpdated time.Time // 市场字段最近刷新时间
}

// NormalizeAddress 地址归一化：去空格 + 小写
// 所有以地址为 key 的 map（持仓、缓存）必须使用归一化后的地址
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Key 返回代币的归一化主键
func (c *Coin) Key() string {
	return NormalizeAddress(c.Address)
}

// HasPrice 检查代币是否有有效价格
func (c *Coin) HasPrice() bool {
	return c != nil && c.CurrentPrice > 0
}

// Clone 返回代币的深拷贝（含历史价格序列）
// 市场数据服务对外只发快照：刷新循环对缓存的写入不会与读方共享内存
func (c *Coin) Clone() *Coin {
	if c == nil {
		return nil
	}
	out := *c
	if len(c.HistoricalPrices) > 0 {
		out.HistoricalPrices = append([]float64(nil), c.HistoricalPrices...)
	}
	return &out
}
