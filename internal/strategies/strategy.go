// Package strategies 信号策略：对一批代币的市场快照产生 BUY/SELL/HOLD 信号
// 策略只读市场数据，不接触账本和执行层；信号的消费由交易代理负责
package strategies

import (
	"fmt"
	"sync"

	"github.com/zorabot/gozora/internal/ports"
)

// Registry 策略注册表
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]ports.SignalSource
}

// NewRegistry 创建策略注册表
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]ports.SignalSource),
	}
}

// Register 注册策略
func (r *Registry) Register(strategy ports.SignalSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strategy.Name()
	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("策略 %s 已存在", name)
	}
	r.strategies[name] = strategy
	return nil
}

// Get 获取策略
func (r *Registry) Get(name string) (ports.SignalSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	strategy, exists := r.strategies[name]
	if !exists {
		return nil, fmt.Errorf("策略 %s 不存在", name)
	}
	return strategy, nil
}

// List 列出所有策略名称
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}

// Enabled 按名称列表取出启用的策略；未注册的名称报错
func (r *Registry) Enabled(names []string) ([]ports.SignalSource, error) {
	out := make([]ports.SignalSource, 0, len(names))
	for _, name := range names {
		s, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
