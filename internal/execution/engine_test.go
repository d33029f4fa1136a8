package execution

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	dexclient "github.com/zorabot/gozora/dex/client"
	"github.com/zorabot/gozora/internal/domain"
)

// fakeFeed 固定价格源
type fakeFeed struct {
	ethPrice float64
	err      error
}

func (f *fakeFeed) NativeUSDPrice(context.Context) (float64, error) {
	return f.ethPrice, f.err
}

func (f *fakeFeed) CoinPrice(context.Context, string) (float64, error) {
	return 0, errors.New("未实现")
}

// fakeBackend 脚本化的链上节点：按方法选择器分发合约调用，记录提交的交易
type fakeBackend struct {
	routerABI abi.ABI
	erc20ABI  abi.ABI

	quoteOut  *big.Int // getAmountsOut 的输出（nil 表示报价失败）
	allowance *big.Int // allowance 的返回值
	decimals  uint8    // decimals 的返回值

	gasErr error // EstimateGas 的错误（nil 表示估算成功）

	sent []*ethtypes.Transaction

	// autoReceipt: 每笔提交的交易立即产生回执；receiptStatus 控制成功/回滚
	autoReceipt   bool
	receiptStatus uint64
	receipts      map[common.Hash]*ethtypes.Receipt
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	routerABI, err := abi.JSON(strings.NewReader(dexclient.RouterABI))
	require.NoError(t, err)
	erc20ABI, err := abi.JSON(strings.NewReader(dexclient.ERC20ABI))
	require.NoError(t, err)
	return &fakeBackend{
		routerABI: routerABI,
		erc20ABI:  erc20ABI,
		allowance: big.NewInt(0),
		decimals:  18,
		receipts:  make(map[common.Hash]*ethtypes.Receipt),
	}
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.gasErr != nil {
		return 0, f.gasErr
	}
	return 100000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	f.sent = append(f.sent, tx)
	if f.autoReceipt {
		f.receipts[tx.Hash()] = &ethtypes.Receipt{
			Status:  f.receiptStatus,
			TxHash:  tx.Hash(),
			GasUsed: 90000,
		}
	}
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, errors.New("调用数据过短")
	}
	selector := msg.Data[:4]

	switch {
	case bytes.Equal(selector, f.routerABI.Methods["getAmountsOut"].ID):
		if f.quoteOut == nil {
			return nil, errors.New("报价不可用")
		}
		args, err := f.routerABI.Methods["getAmountsOut"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		amountIn := args[0].(*big.Int)
		return f.routerABI.Methods["getAmountsOut"].Outputs.Pack([]*big.Int{amountIn, f.quoteOut})

	case bytes.Equal(selector, f.erc20ABI.Methods["allowance"].ID):
		return f.erc20ABI.Methods["allowance"].Outputs.Pack(f.allowance)

	case bytes.Equal(selector, f.erc20ABI.Methods["decimals"].ID):
		return f.erc20ABI.Methods["decimals"].Outputs.Pack(f.decimals)
	}
	return nil, errors.New("未知的合约调用")
}

const (
	testRouter = "0x7De46C4087cF15Ac0FDac95441F151e1adDC9e00"
	testWETH   = "0x4200000000000000000000000000000000000006"
	testToken  = "0x1111111111111111111111111111111111111111"
)

func newTestEngine(t *testing.T, backend *fakeBackend, cfg Config) *Engine {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	if cfg.ConfirmAttempts == 0 {
		cfg.ConfirmAttempts = 2
	}
	if cfg.ConfirmInterval == 0 {
		cfg.ConfirmInterval = time.Millisecond
	}

	engine, err := NewEngine(backend, &fakeFeed{ethPrice: 2000}, cfg,
		big.NewInt(7777777), testRouter, testWETH, key)
	require.NoError(t, err)
	return engine
}

func testEngineCoin() *domain.Coin {
	return &domain.Coin{Address: testToken, Symbol: "TST", CurrentPrice: 0.05}
}

// 没有私钥就没有真实交易路径
func TestNewEngineRequiresSigner(t *testing.T) {
	backend := newFakeBackend(t)
	_, err := NewEngine(backend, &fakeFeed{ethPrice: 2000}, Config{},
		big.NewInt(7777777), testRouter, testWETH, nil)
	require.ErrorIs(t, err, ErrNoSigner)
}

// 滑点下限：报价 1000、滑点 2% -> 980（向下取整）
func TestMinAmountOut(t *testing.T) {
	backend := newFakeBackend(t)
	engine := newTestEngine(t, backend, Config{SlippageTolerance: 0.02})

	got := engine.minAmountOut(big.NewInt(1000))
	require.Equal(t, int64(980), got.Int64())

	// 向下取整：999 × 0.98 = 979.02 -> 979
	got = engine.minAmountOut(big.NewInt(999))
	require.Equal(t, int64(979), got.Int64())
}

// 买入：提交一笔交易后立即返回 pending，不等待确认
func TestBuyTokensSubmitsAndReturnsPending(t *testing.T) {
	backend := newFakeBackend(t)
	backend.quoteOut = dexclient.ToWei(2.0, 18)
	engine := newTestEngine(t, backend, Config{})

	result, err := engine.BuyTokens(context.Background(), testEngineCoin(), 100)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.True(t, result.Pending)
	require.NotEmpty(t, result.TxHash)
	require.Len(t, backend.sent, 1)

	// USD 100 / ETH 2000 = 0.05 ETH 作为交易 value
	require.Equal(t, dexclient.ToWei(0.05, 18), backend.sent[0].Value())
	// 引擎上报的代币数量来自报价
	require.InDelta(t, 2.0, result.TokenAmount, 1e-9)
}

// 报价失败默认中止，不提交任何交易
func TestBuyTokensQuoteFailureAborts(t *testing.T) {
	backend := newFakeBackend(t)
	backend.quoteOut = nil
	engine := newTestEngine(t, backend, Config{})

	_, err := engine.BuyTokens(context.Background(), testEngineCoin(), 100)
	require.Error(t, err)
	require.Len(t, backend.sent, 0)
}

// AllowUnprotected 放宽为 minOut=1 继续交易（复刻旧行为）
func TestBuyTokensQuoteFailureUnprotected(t *testing.T) {
	backend := newFakeBackend(t)
	backend.quoteOut = nil
	engine := newTestEngine(t, backend, Config{AllowUnprotected: true})

	result, err := engine.BuyTokens(context.Background(), testEngineCoin(), 100)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, backend.sent, 1)
}

// gas 估算失败退回固定上限，不阻塞交易
func TestBuyTokensGasFallback(t *testing.T) {
	backend := newFakeBackend(t)
	backend.quoteOut = dexclient.ToWei(2.0, 18)
	backend.gasErr = errors.New("估算不可用")
	engine := newTestEngine(t, backend, Config{DefaultGasLimit: 321000})

	result, err := engine.BuyTokens(context.Background(), testEngineCoin(), 100)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, backend.sent, 1)
	require.Equal(t, uint64(321000), backend.sent[0].Gas())
}

// 已有足够授权：跳过 approve，只提交 swap 一笔交易
func TestSellTokensSkipsApproveWhenAllowed(t *testing.T) {
	backend := newFakeBackend(t)
	backend.quoteOut = dexclient.ToWei(0.04, 18)
	backend.allowance = dexclient.ToWei(1000, 18)
	backend.autoReceipt = true
	backend.receiptStatus = ethtypes.ReceiptStatusSuccessful
	engine := newTestEngine(t, backend, Config{})

	result, err := engine.SellTokens(context.Background(), testEngineCoin(), 10)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.False(t, result.Pending)
	require.Len(t, backend.sent, 1)
	require.Equal(t, common.HexToAddress(testRouter), *backend.sent[0].To())
	require.Equal(t, uint64(90000), result.GasUsed)
}

// 授权不足：先 approve 后 swap，两笔交易严格有序
func TestSellTokensApproveThenSwap(t *testing.T) {
	backend := newFakeBackend(t)
	backend.quoteOut = dexclient.ToWei(0.04, 18)
	backend.allowance = big.NewInt(0)
	backend.autoReceipt = true
	backend.receiptStatus = ethtypes.ReceiptStatusSuccessful
	engine := newTestEngine(t, backend, Config{})

	result, err := engine.SellTokens(context.Background(), testEngineCoin(), 10)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, backend.sent, 2)

	// 第一笔是发给代币合约的 approve，第二笔是发给路由的 swap
	require.Equal(t, common.HexToAddress(testToken), *backend.sent[0].To())
	require.Equal(t, common.HexToAddress(testRouter), *backend.sent[1].To())
	// nonce 严格递增
	require.Equal(t, backend.sent[0].Nonce()+1, backend.sent[1].Nonce())
}

// 确认预算耗尽：交易按 pending 返回而不是报错
func TestSellTokensPendingAfterBudget(t *testing.T) {
	backend := newFakeBackend(t)
	backend.quoteOut = dexclient.ToWei(0.04, 18)
	backend.allowance = dexclient.ToWei(1000, 18)
	// 不产生回执：轮询 2 次后预算耗尽
	engine := newTestEngine(t, backend, Config{ConfirmAttempts: 2, ConfirmInterval: time.Millisecond})

	result, err := engine.SellTokens(context.Background(), testEngineCoin(), 10)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.True(t, result.Pending)
	require.NotEmpty(t, result.TxHash)
}

// 链上回滚：结果失败但携带交易哈希，便于排查
func TestSellTokensRevertCarriesHash(t *testing.T) {
	backend := newFakeBackend(t)
	backend.quoteOut = dexclient.ToWei(0.04, 18)
	backend.allowance = dexclient.ToWei(1000, 18)
	backend.autoReceipt = true
	backend.receiptStatus = ethtypes.ReceiptStatusFailed
	engine := newTestEngine(t, backend, Config{})

	result, err := engine.SellTokens(context.Background(), testEngineCoin(), 10)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotEmpty(t, result.TxHash)
	require.Contains(t, result.Err, result.TxHash)
}

// ProcessIntent 按方向分发
func TestProcessIntentDispatch(t *testing.T) {
	backend := newFakeBackend(t)
	backend.quoteOut = dexclient.ToWei(2.0, 18)
	engine := newTestEngine(t, backend, Config{})

	_, err := engine.ProcessIntent(context.Background(), &domain.TradeIntent{
		Coin: testEngineCoin(), Direction: domain.SignalHold, Quantity: 1,
	})
	require.Error(t, err)

	result, err := engine.ProcessIntent(context.Background(), &domain.TradeIntent{
		Coin: testEngineCoin(), Direction: domain.SignalBuy, Quantity: 100,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
}
