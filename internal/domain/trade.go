package domain

import (
	"math/big"
	"time"
)

// TradeIntent 交易意图：信号评估的输出，在单个评估-执行周期内创建并消费
// 数量语义：BUY 时 Quantity 为 USD 名义金额；SELL 时为代币数量
type TradeIntent struct {
	Coin      *Coin      // 目标代币
	Direction SignalKind // 方向（BUY 或 SELL）
	Quantity  float64    // BUY: USD 名义金额；SELL: 代币数量
	Strength  float64    // 来源信号强度
	Reason    string     // 来源信号原因
}

// TradeRecord 交易历史记录：仅追加，创建后不可修改或删除
type TradeRecord struct {
	ID        string     `json:"id"`        // 记录 ID（uuid）
	Timestamp time.Time  `json:"timestamp"` // 成交时间
	Direction SignalKind `json:"direction"` // 方向
	Symbol    string     `json:"symbol"`    // 代币符号
	Amount    float64    `json:"amount"`    // 代币数量
	Price     float64    `json:"price"`     // 成交价格（USD）
	ValueUSD  float64    `json:"value_usd"` // USD 价值
	TxHash    string     `json:"tx_hash"`   // 交易哈希（模拟模式为空）
	Simulated bool       `json:"simulated"` // 是否为模拟交易
}

// SwapResult 一次交换引擎调用的结果
// 由引擎构造、调用方一次性消费；引擎不保留引用
type SwapResult struct {
	Success     bool     // 是否成功（已提交且未观察到失败）
	TxHash      string   // 交易哈希（提交成功时非空）
	AmountIn    *big.Int // 输入数量（wei）
	AmountOut   *big.Int // 输出数量（wei，来自报价或回执）
	TokenAmount float64  // 实际成交的代币数量（代币单位，供账本镜像使用）
	GasUsed     uint64   // 消耗的 gas（已确认时非零）
	Pending     bool     // 已提交但未在确认预算内确认
	Err         string   // 失败原因（失败时非空）
}

// FailedSwap 构造一个失败结果
func FailedSwap(reason string) *SwapResult {
	return &SwapResult{Success: false, Err: reason}
}
