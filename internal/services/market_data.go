package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/zorabot/gozora/internal/domain"
	"github.com/zorabot/gozora/pkg/httpclient"
	"github.com/zorabot/gozora/pkg/logger"
)

// historyWindow 每个代币保留的历史价格点数（动量策略 MACD 慢线 26 + 信号线 9，留足余量）
const historyWindow = 120

// MarketDataConfig 市场数据服务配置
type MarketDataConfig struct {
	APIURL    string // 行情 REST API 地址
	APIKey    string // 认证 key（可选）
	MaxCoins  int    // 每轮扫描的代币数量上限
	Synthetic bool   // 合成行情模式：不访问网络，本地生成随机行情
}

// MarketDataService 市场数据服务
// 实现 ports.PriceFeed；合成模式是显式配置项，不是静默降级
// 对外只返回代币快照（深拷贝）：刷新循环在锁内改缓存，读方拿到的内存与缓存不共享
type MarketDataService struct {
	cfg    MarketDataConfig
	client *httpclient.Client

	mu    sync.RWMutex
	coins map[string]*domain.Coin // 归一化地址 -> 代币（跨轮次保留，历史价格在此累积）

	rng *rand.Rand // 合成模式的随机源
}

// NewMarketDataService 创建市场数据服务
func NewMarketDataService(cfg MarketDataConfig) *MarketDataService {
	if cfg.MaxCoins <= 0 {
		cfg.MaxCoins = 100
	}
	s := &MarketDataService{
		cfg:   cfg,
		coins: make(map[string]*domain.Coin),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.Synthetic {
		logger.Warnf("⚠️ 合成行情模式已启用，所有市场数据为本地生成")
	} else {
		s.client = httpclient.NewClient(cfg.APIURL)
		s.client.SetAPIKey(cfg.APIKey)
	}
	return s
}

// Synthetic 是否运行在合成行情模式
func (s *MarketDataService) Synthetic() bool {
	return s.cfg.Synthetic
}

// coinPayload 行情 API 的代币响应
type coinPayload struct {
	Address        string  `json:"address"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	CreatorAddress string  `json:"creator_address"`
	CreatedAt      string  `json:"created_at"`
	PriceUSD       float64 `json:"price_usd"`
	Volume24h      float64 `json:"volume_24h"`
	PriceChange24h float64 `json:"price_change_24h"`
	MarketCap      float64 `json:"market_cap"`
	HolderCount    int     `json:"holder_count"`
	TradeCount     int     `json:"trade_count"`
}

// coinsResponse 代币列表响应
type coinsResponse struct {
	Coins []coinPayload `json:"coins"`
}

// priceResponse 单一价格响应
type priceResponse struct {
	PriceUSD float64 `json:"price_usd"`
}

// FetchCoins 拉取一批活跃代币并合并进本地缓存
// 返回本轮可用的代币列表（带累积的历史价格）
func (s *MarketDataService) FetchCoins(ctx context.Context) ([]*domain.Coin, error) {
	if s.cfg.Synthetic {
		return s.syntheticCoins(), nil
	}

	var resp coinsResponse
	params := map[string]string{"limit": fmt.Sprintf("%d", s.cfg.MaxCoins)}
	if err := s.client.Get(ctx, "/coins/trending", params, &resp); err != nil {
		return nil, fmt.Errorf("拉取代币列表失败: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Coin, 0, len(resp.Coins))
	for i := range resp.Coins {
		p := &resp.Coins[i]
		key := domain.NormalizeAddress(p.Address)
		if key == "" {
			continue
		}

		coin, ok := s.coins[key]
		if !ok {
			coin = &domain.Coin{
				Address:        key,
				Symbol:         p.Symbol,
				Name:           p.Name,
				CreatorAddress: p.CreatorAddress,
				CreatedAt:      p.CreatedAt,
			}
			s.coins[key] = coin
		}
		s.applyQuote(coin, p.PriceUSD, p.Volume24h, p.PriceChange24h, p.MarketCap)
		coin.HolderCount = p.HolderCount
		coin.TradeCount = p.TradeCount
		out = append(out, coin.Clone())
	}

	logger.Infof("🔄 市场数据刷新完成: %d 个代币", len(out))
	return out, nil
}

// RefreshPrices 刷新已知代币的价格（不扩充代币集合）
func (s *MarketDataService) RefreshPrices(ctx context.Context) error {
	if s.cfg.Synthetic {
		s.syntheticTick()
		return nil
	}

	s.mu.RLock()
	addresses := make([]string, 0, len(s.coins))
	for addr := range s.coins {
		addresses = append(addresses, addr)
	}
	s.mu.RUnlock()

	for _, addr := range addresses {
		price, err := s.CoinPrice(ctx, addr)
		if err != nil {
			logger.Debugf("刷新 %s 价格失败: %v", addr, err)
			continue
		}
		s.mu.Lock()
		if coin, ok := s.coins[addr]; ok {
			s.applyQuote(coin, price, coin.Volume24h, coin.PriceChange24h, coin.MarketCap)
		}
		s.mu.Unlock()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// NativeUSDPrice 原生币（ETH）的 USD 价格
func (s *MarketDataService) NativeUSDPrice(ctx context.Context) (float64, error) {
	if s.cfg.Synthetic {
		// rng 不是并发安全的，写锁保护
		s.mu.Lock()
		defer s.mu.Unlock()
		// 合成模式给一个围绕基准的微小抖动
		return 2500 * (1 + (s.rng.Float64()-0.5)*0.01), nil
	}

	var resp priceResponse
	if err := s.client.Get(ctx, "/prices/eth", nil, &resp); err != nil {
		return 0, fmt.Errorf("获取 ETH 价格失败: %w", err)
	}
	if resp.PriceUSD <= 0 {
		return 0, fmt.Errorf("ETH 价格无效: %.4f", resp.PriceUSD)
	}
	return resp.PriceUSD, nil
}

// CoinPrice 指定代币的 USD 价格
func (s *MarketDataService) CoinPrice(ctx context.Context, address string) (float64, error) {
	key := domain.NormalizeAddress(address)

	if s.cfg.Synthetic {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if coin, ok := s.coins[key]; ok {
			return coin.CurrentPrice, nil
		}
		return 0, fmt.Errorf("合成行情中不存在代币 %s", key)
	}

	var resp priceResponse
	if err := s.client.Get(ctx, "/coins/"+key+"/price", nil, &resp); err != nil {
		return 0, fmt.Errorf("获取代币 %s 价格失败: %w", key, err)
	}
	if resp.PriceUSD <= 0 {
		return 0, fmt.Errorf("代币 %s 价格无效: %.6f", key, resp.PriceUSD)
	}
	return resp.PriceUSD, nil
}

// Coins 返回当前缓存代币的快照
func (s *MarketDataService) Coins() []*domain.Coin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Coin, 0, len(s.coins))
	for _, c := range s.coins {
		out = append(out, c.Clone())
	}
	return out
}

// applyQuote 更新代币市场字段并把价格追加进历史序列（调用方持有写锁）
func (s *MarketDataService) applyQuote(coin *domain.Coin, price, volume, change, marketCap float64) {
	if price > 0 {
		coin.CurrentPrice = price
		coin.HistoricalPrices = append(coin.HistoricalPrices, price)
		if len(coin.HistoricalPrices) > historyWindow {
			coin.HistoricalPrices = coin.HistoricalPrices[len(coin.HistoricalPrices)-historyWindow:]
		}
	}
	if volume >= 0 {
		coin.Volume24h = volume
	}
	coin.PriceChange24h = change
	if marketCap >= 0 {
		coin.MarketCap = marketCap
	}
	coin.LastUpdated = time.Now()
}

// 合成模式的代币模板
var syntheticSeeds = []struct {
	symbol string
	name   string
	price  float64
}{
	{"ZORB", "Zorb Token", 0.042},
	{"ENJOY", "Enjoy", 0.0087},
	{"IMAGINE", "Imagine", 0.015},
	{"DEGEN", "Degen Coin", 0.31},
	{"MINT", "Mint Fun", 0.0021},
	{"FRAME", "Frame Art", 0.095},
	{"CANVAS", "Canvas", 0.0053},
	{"PIXEL", "Pixel Pop", 0.78},
}

// syntheticCoins 生成（或返回已生成的）合成代币集合
func (s *MarketDataService) syntheticCoins() []*domain.Coin {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.coins) == 0 {
		for i, seed := range syntheticSeeds {
			if i >= s.cfg.MaxCoins {
				break
			}
			addr := fmt.Sprintf("0x%040x", i+1)
			coin := &domain.Coin{
				Address:   addr,
				Symbol:    seed.symbol,
				Name:      seed.name,
				CreatedAt: time.Now().Format(time.RFC3339),
			}
			s.applyQuote(coin, seed.price, 5000+s.rng.Float64()*50000, 0, seed.price*1_000_000)
			s.coins[addr] = coin
		}
	}
	s.tickLocked()

	out := make([]*domain.Coin, 0, len(s.coins))
	for _, c := range s.coins {
		out = append(out, c.Clone())
	}
	return out
}

// syntheticTick 对所有合成代币做一次随机游走
func (s *MarketDataService) syntheticTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickLocked()
}

func (s *MarketDataService) tickLocked() {
	for _, coin := range s.coins {
		// ±5% 随机游走
		drift := (s.rng.Float64() - 0.5) * 0.1
		newPrice := coin.CurrentPrice * (1 + drift)
		if newPrice <= 0 {
			newPrice = coin.CurrentPrice
		}
		change := coin.PriceChange24h + drift*100
		volume := coin.Volume24h * (1 + (s.rng.Float64()-0.5)*0.2)
		s.applyQuote(coin, newPrice, volume, change, newPrice*1_000_000)
	}
}
