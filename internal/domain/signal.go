package domain

import (
	"fmt"
	"time"
)

// SignalKind 信号类型
type SignalKind string

const (
	SignalBuy  SignalKind = "BUY"  // 买入信号
	SignalSell SignalKind = "SELL" // 卖出信号
	SignalHold SignalKind = "HOLD" // 持有信号
)

// Signal 交易信号：策略对单个代币的方向性建议，创建后不可变
type Signal struct {
	Kind      SignalKind // 信号类型
	Coin      *Coin      // 目标代币
	Strength  float64    // 信号强度（置信度，[0,1]）
	Reason    string     // 信号原因（自由文本）
	Strategy  string     // 产生信号的策略名
	CreatedAt time.Time  // 创建时间
}

// NewSignal 创建信号，强度裁剪到 [0,1]
func NewSignal(kind SignalKind, coin *Coin, strength float64, reason, strategy string) *Signal {
	if strength < 0 {
		strength = 0
	}
	if strength > 1 {
		strength = 1
	}
	return &Signal{
		Kind:      kind,
		Coin:      coin,
		Strength:  strength,
		Reason:    reason,
		Strategy:  strategy,
		CreatedAt: time.Now(),
	}
}

// String 信号的简要描述（用于日志）
func (s *Signal) String() string {
	symbol := "?"
	if s.Coin != nil {
		symbol = s.Coin.Symbol
	}
	return fmt.Sprintf("%s %s 强度=%.2f 策略=%s", s.Kind, symbol, s.Strength, s.Strategy)
}
