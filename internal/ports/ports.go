// Package ports 定义核心组件之间的窄接口
// 核心（代理 / 引擎 / 账本）只依赖这里的接口，不依赖具体实现，
// 方便在测试里用 fake 替换外部协作者（市场数据、链上执行、历史存储）
package ports

import (
	"context"

	"github.com/zorabot/gozora/internal/domain"
)

// SwapExecutor 交换执行器：把交易意图转换为链上交易
// 实现：execution.Engine（真实模式）；模拟模式下代理不经过该接口
type SwapExecutor interface {
	// ProcessIntent 执行一个交易意图；提交过交易时返回非 nil 的结果
	// （结果中携带哈希 / 失败原因），前置失败（无价格、报价失败等）返回 error
	ProcessIntent(ctx context.Context, intent *domain.TradeIntent) (*domain.SwapResult, error)
}

// PriceFeed 价格源：引擎把 USD 名义金额换算为原生币数量时使用
// 约定：数据不可用时返回 (0, err)，调用方按「跳过本周期」处理，不视为致命
type PriceFeed interface {
	// NativeUSDPrice 原生币（ETH）的 USD 价格
	NativeUSDPrice(ctx context.Context) (float64, error)
	// CoinPrice 指定代币的 USD 价格
	CoinPrice(ctx context.Context, address string) (float64, error)
}

// BalanceReader 链上余额查询
type BalanceReader interface {
	// NativeBalance 钱包的原生币余额（ETH 单位）
	NativeBalance(ctx context.Context, address string) (float64, error)
}

// SignalSource 信号源：策略按需对一批代币产生信号
// 代理不直接轮询策略，由编排循环把信号批量交给代理
type SignalSource interface {
	Name() string
	GenerateSignals(ctx context.Context, coins []*domain.Coin) []*domain.Signal
}

// TradeJournal 交易历史外部存储（可选）
// 账本本身保持内存态；历史记录可外置以解决无上限增长问题
type TradeJournal interface {
	Append(record *domain.TradeRecord) error
	Recent(limit int) ([]*domain.TradeRecord, error)
	Close() error
}
