package execution

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	dexclient "github.com/zorabot/gozora/dex/client"
	"github.com/zorabot/gozora/internal/domain"
	"github.com/zorabot/gozora/internal/ports"
	"github.com/zorabot/gozora/pkg/logger"
)

// Engine 交换执行引擎：把 (方向, 代币, 数量) 转换为已提交的链上交易
//
// 三重保护：
// - 滑点下限：minOut = floor(报价 × (1 − slippage))
// - 授权检查：卖出前确认 allowance，不足才发 approve（已授权则跳过，省一笔 gas）
// - gas 余量：估算值 × 系数；估算失败时退回固定上限，不因估算失败阻塞交易
//
// 无幂等性：每次调用分配新 nonce、提交新交易；重试同一意图会产生第二笔独立交易
type Engine struct {
	backend ChainBackend
	feed    ports.PriceFeed
	cfg     Config

	privateKey *ecdsa.PrivateKey
	wallet     common.Address
	router     common.Address
	weth       common.Address
	chainID    *big.Int

	routerABI abi.ABI
	erc20ABI  abi.ABI

	// nonceMu 串行化 nonce 分配到交易提交的窗口
	// 同一钱包的 approve 和 swap 必须严格递增且不复用 nonce
	nonceMu sync.Mutex
}

// ChainBackend 链上节点的窄接口（ethclient.Client 天然满足）
type ChainBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config 引擎配置
type Config struct {
	SlippageTolerance  float64       // 滑点容忍度（如 0.01 = 1%）
	GasLimitMultiplier float64       // gas 估算余量系数（如 1.2 = +20%）
	DefaultGasLimit    uint64        // gas 估算失败时的固定上限
	ApproveGasLimit    uint64        // approve 交易的固定 gas 上限
	DeadlineMinutes    int           // 链上交易截止时间（分钟）
	ConfirmAttempts    int           // 确认轮询次数上限
	ConfirmInterval    time.Duration // 确认轮询间隔
	// AllowUnprotected 报价失败时是否允许以 minOut=1 继续交易
	// 默认 false：报价失败直接中止，避免在几乎没有滑点保护的情况下成交
	AllowUnprotected bool
}

// 配置默认值
const (
	DefaultSlippageTolerance  = 0.01
	DefaultGasLimitMultiplier = 1.2
	DefaultGasLimit           = 300000
	DefaultApproveGasLimit    = 100000
	DefaultDeadlineMinutes    = 20
	DefaultConfirmAttempts    = 20
	DefaultConfirmInterval    = 5 * time.Second
)

// ErrNoSigner 缺少签名私钥，无法执行真实交易
var ErrNoSigner = errors.New("缺少签名私钥，无法执行真实交易")

// maxApproveAmount approve 的授权额度（uint256 最大值，一次授权终身有效）
var maxApproveAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// applyDefaults 填充未设置的配置项
func (c *Config) applyDefaults() {
	if c.SlippageTolerance <= 0 {
		c.SlippageTolerance = DefaultSlippageTolerance
	}
	if c.GasLimitMultiplier <= 0 {
		c.GasLimitMultiplier = DefaultGasLimitMultiplier
	}
	if c.DefaultGasLimit == 0 {
		c.DefaultGasLimit = DefaultGasLimit
	}
	if c.ApproveGasLimit == 0 {
		c.ApproveGasLimit = DefaultApproveGasLimit
	}
	if c.DeadlineMinutes <= 0 {
		c.DeadlineMinutes = DefaultDeadlineMinutes
	}
	if c.ConfirmAttempts <= 0 {
		c.ConfirmAttempts = DefaultConfirmAttempts
	}
	if c.ConfirmInterval <= 0 {
		c.ConfirmInterval = DefaultConfirmInterval
	}
}

// NewEngine 创建交换执行引擎
// privateKey 为 nil 时返回 ErrNoSigner：没有签名凭证就不存在真实交易路径
func NewEngine(
	backend ChainBackend,
	feed ports.PriceFeed,
	cfg Config,
	chainID *big.Int,
	router, weth string,
	privateKey *ecdsa.PrivateKey,
) (*Engine, error) {
	if privateKey == nil {
		return nil, ErrNoSigner
	}
	if backend == nil {
		return nil, fmt.Errorf("backend 不能为空")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("无效的链 ID")
	}
	cfg.applyDefaults()

	routerABI, err := abi.JSON(strings.NewReader(dexclient.RouterABI))
	if err != nil {
		return nil, fmt.Errorf("解析路由 ABI 失败: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(dexclient.ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("解析 ERC20 ABI 失败: %w", err)
	}

	return &Engine{
		backend:    backend,
		feed:       feed,
		cfg:        cfg,
		privateKey: privateKey,
		wallet:     crypto.PubkeyToAddress(privateKey.PublicKey),
		router:     common.HexToAddress(router),
		weth:       common.HexToAddress(weth),
		chainID:    chainID,
		routerABI:  routerABI,
		erc20ABI:   erc20ABI,
	}, nil
}

// Wallet 返回签名钱包地址
func (e *Engine) Wallet() common.Address {
	return e.wallet
}

// ProcessIntent 执行一个交易意图
// BUY: Quantity 为 USD 名义金额；SELL: Quantity 为代币数量
func (e *Engine) ProcessIntent(ctx context.Context, intent *domain.TradeIntent) (*domain.SwapResult, error) {
	if intent == nil || intent.Coin == nil {
		return nil, fmt.Errorf("交易意图缺少代币")
	}

	switch intent.Direction {
	case domain.SignalBuy:
		return e.BuyTokens(ctx, intent.Coin, intent.Quantity)
	case domain.SignalSell:
		return e.SellTokens(ctx, intent.Coin, intent.Quantity)
	default:
		return nil, fmt.Errorf("不支持的交易方向: %s", intent.Direction)
	}
}

// BuyTokens 买入：原生币 → 代币（swapExactETHForTokens）
// 提交后立即返回交易哈希，不在买入路径内等待确认（确认由调用方负责）
func (e *Engine) BuyTokens(ctx context.Context, coin *domain.Coin, amountUSD float64) (*domain.SwapResult, error) {
	if amountUSD <= 0 {
		return nil, fmt.Errorf("买入金额必须大于 0: %.2f", amountUSD)
	}

	// USD 名义金额 → 原生币数量
	ethPrice, err := e.feed.NativeUSDPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取 ETH 价格失败: %w", err)
	}
	if ethPrice <= 0 {
		return nil, fmt.Errorf("ETH 价格无效: %.2f", ethPrice)
	}
	ethAmount := amountUSD / ethPrice
	amountInWei := dexclient.ToWei(ethAmount, 18)

	tokenAddr := common.HexToAddress(coin.Address)
	path := []common.Address{e.weth, tokenAddr}

	// 报价 + 滑点下限
	minOut, expectedOut, err := e.protectedMinOut(ctx, amountInWei, path)
	if err != nil {
		return nil, err
	}

	data, err := e.routerABI.Pack("swapExactETHForTokens",
		minOut, path, e.wallet, e.deadline())
	if err != nil {
		return nil, fmt.Errorf("打包 swapExactETHForTokens 参数失败: %w", err)
	}

	signedTx, err := e.buildAndSign(ctx, e.router, amountInWei, data, 0)
	if err != nil {
		return nil, err
	}

	if err := e.submit(ctx, signedTx); err != nil {
		return domain.FailedSwap(fmt.Sprintf("提交交易失败: %v", err)), nil
	}

	txHash := signedTx.Hash().Hex()
	logger.Infof("🔄 买入交易已提交: %s %s (%.2f USD / %.6f ETH)", coin.Symbol, txHash, amountUSD, ethAmount)

	// 引擎报告的代币数量基于报价；实际成交量由滑点决定，调用方以回执为准
	tokenAmount := 0.0
	if expectedOut != nil {
		decimals, derr := e.tokenDecimals(ctx, tokenAddr)
		if derr != nil {
			decimals = 18
		}
		tokenAmount = dexclient.FromWei(expectedOut, decimals)
	}

	return &domain.SwapResult{
		Success:     true,
		TxHash:      txHash,
		AmountIn:    amountInWei,
		AmountOut:   expectedOut,
		TokenAmount: tokenAmount,
		Pending:     true, // 买入路径不等待确认
	}, nil
}

// SellTokens 卖出：代币 → 原生币（swapExactTokensForETH）
// 先确保授权再提交 swap，两笔交易严格有序；提交后在确认预算内轮询回执
func (e *Engine) SellTokens(ctx context.Context, coin *domain.Coin, tokenAmount float64) (*domain.SwapResult, error) {
	if tokenAmount <= 0 {
		return nil, fmt.Errorf("卖出数量必须大于 0: %.6f", tokenAmount)
	}

	tokenAddr := common.HexToAddress(coin.Address)

	decimals, err := e.tokenDecimals(ctx, tokenAddr)
	if err != nil {
		return nil, fmt.Errorf("查询代币小数位失败: %w", err)
	}
	amountInWei := dexclient.ToWei(tokenAmount, decimals)

	// 授权必须先落地：路由在没有 allowance 的情况下无法转走代币
	if err := e.ensureAllowance(ctx, tokenAddr, amountInWei); err != nil {
		return nil, fmt.Errorf("授权失败: %w", err)
	}

	path := []common.Address{tokenAddr, e.weth}
	minOut, expectedOut, err := e.protectedMinOut(ctx, amountInWei, path)
	if err != nil {
		return nil, err
	}

	data, err := e.routerABI.Pack("swapExactTokensForETH",
		amountInWei, minOut, path, e.wallet, e.deadline())
	if err != nil {
		return nil, fmt.Errorf("打包 swapExactTokensForETH 参数失败: %w", err)
	}

	signedTx, err := e.buildAndSign(ctx, e.router, big.NewInt(0), data, 0)
	if err != nil {
		return nil, err
	}

	if err := e.submit(ctx, signedTx); err != nil {
		return domain.FailedSwap(fmt.Sprintf("提交交易失败: %v", err)), nil
	}

	txHash := signedTx.Hash()
	logger.Infof("🔄 卖出交易已提交: %s %s (%.6f 代币)", coin.Symbol, txHash.Hex(), tokenAmount)

	receipt, err := e.waitReceipt(ctx, txHash)
	if err != nil {
		return domain.FailedSwap(fmt.Sprintf("等待回执失败: %v", err)), nil
	}
	if receipt == nil {
		// 确认预算耗尽：交易仍在链上存活，按 pending 返回而不是报错
		logger.Warnf("⏳ 卖出交易未在确认预算内确认: %s", txHash.Hex())
		return &domain.SwapResult{
			Success:     true,
			TxHash:      txHash.Hex(),
			AmountIn:    amountInWei,
			AmountOut:   expectedOut,
			TokenAmount: tokenAmount,
			Pending:     true,
		}, nil
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		// 链上回滚：带哈希上报，便于排查
		return &domain.SwapResult{
			Success: false,
			TxHash:  txHash.Hex(),
			GasUsed: receipt.GasUsed,
			Err:     fmt.Sprintf("交易在链上回滚: %s", txHash.Hex()),
		}, nil
	}

	logger.Infof("✅ 卖出成功: %s gas=%d", txHash.Hex(), receipt.GasUsed)
	return &domain.SwapResult{
		Success:     true,
		TxHash:      txHash.Hex(),
		AmountIn:    amountInWei,
		AmountOut:   expectedOut,
		TokenAmount: tokenAmount,
		GasUsed:     receipt.GasUsed,
	}, nil
}

// protectedMinOut 获取报价并计算滑点下限
// 报价失败时默认中止（AllowUnprotected 可放宽为 minOut=1，复刻旧行为）
func (e *Engine) protectedMinOut(ctx context.Context, amountIn *big.Int, path []common.Address) (minOut, expectedOut *big.Int, err error) {
	expectedOut, err = e.quote(ctx, amountIn, path)
	if err != nil {
		if !e.cfg.AllowUnprotected {
			return nil, nil, fmt.Errorf("报价失败，中止交易: %w", err)
		}
		logger.Warnf("⚠️ 报价失败，以最小输出 1 继续（滑点保护失效）: %v", err)
		return big.NewInt(1), nil, nil
	}
	return e.minAmountOut(expectedOut), expectedOut, nil
}

// quote 调用路由的 getAmountsOut 获取报价，返回路径末端的输出数量
func (e *Engine) quote(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	data, err := e.routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("打包 getAmountsOut 参数失败: %w", err)
	}
	raw, err := e.backend.CallContract(ctx, ethereum.CallMsg{To: &e.router, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("调用 getAmountsOut 失败: %w", err)
	}
	var amounts []*big.Int
	if err := e.routerABI.UnpackIntoInterface(&amounts, "getAmountsOut", raw); err != nil {
		return nil, fmt.Errorf("解析 getAmountsOut 结果失败: %w", err)
	}
	if len(amounts) < 2 || amounts[len(amounts)-1] == nil {
		return nil, fmt.Errorf("报价结果不完整")
	}
	return amounts[len(amounts)-1], nil
}

// minAmountOut 按滑点容忍度计算最小输出（向下取整）
// 例：报价 1000、滑点 0.02 -> 980
func (e *Engine) minAmountOut(expectedOut *big.Int) *big.Int {
	// 以万分比整数运算，避免 big.Float 往返
	keepBps := int64((1 - e.cfg.SlippageTolerance) * 10000)
	out := new(big.Int).Mul(expectedOut, big.NewInt(keepBps))
	return out.Div(out, big.NewInt(10000))
}

// deadline 链上交易截止时间戳：now + deadlineMinutes
// 限制未确认交易在路由侧保持有效的时间窗口，防止在过期价格上成交
func (e *Engine) deadline() *big.Int {
	return big.NewInt(time.Now().Add(time.Duration(e.cfg.DeadlineMinutes) * time.Minute).Unix())
}

// ensureAllowance 确保路由对该代币有足够授权
// 已有 allowance >= 需求时直接跳过；否则发 approve 并等待回执落地后才返回
func (e *Engine) ensureAllowance(ctx context.Context, token common.Address, amount *big.Int) error {
	current, err := e.allowance(ctx, token)
	if err != nil {
		return fmt.Errorf("查询授权额度失败: %w", err)
	}
	if current.Cmp(amount) >= 0 {
		logger.Debugf("代币 %s 已有足够授权，跳过 approve", token.Hex())
		return nil
	}

	data, err := e.erc20ABI.Pack("approve", e.router, maxApproveAmount)
	if err != nil {
		return fmt.Errorf("打包 approve 参数失败: %w", err)
	}

	// approve 的 gas 消耗稳定，直接用固定上限
	signedTx, err := e.buildAndSign(ctx, token, big.NewInt(0), data, e.cfg.ApproveGasLimit)
	if err != nil {
		return err
	}
	if err := e.submit(ctx, signedTx); err != nil {
		return fmt.Errorf("提交 approve 交易失败: %w", err)
	}

	txHash := signedTx.Hash()
	logger.Infof("📤 approve 交易已提交: %s", txHash.Hex())

	receipt, err := e.waitReceipt(ctx, txHash)
	if err != nil {
		return err
	}
	if receipt == nil {
		return fmt.Errorf("approve 交易未在确认预算内确认: %s", txHash.Hex())
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("approve 交易在链上回滚: %s", txHash.Hex())
	}
	logger.Infof("✅ 代币 %s 授权完成", token.Hex())
	return nil
}

// allowance 查询钱包对路由的当前授权额度
func (e *Engine) allowance(ctx context.Context, token common.Address) (*big.Int, error) {
	data, err := e.erc20ABI.Pack("allowance", e.wallet, e.router)
	if err != nil {
		return nil, fmt.Errorf("打包 allowance 参数失败: %w", err)
	}
	raw, err := e.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("调用 allowance 失败: %w", err)
	}
	var current *big.Int
	if err := e.erc20ABI.UnpackIntoInterface(&current, "allowance", raw); err != nil {
		return nil, fmt.Errorf("解析 allowance 结果失败: %w", err)
	}
	return current, nil
}

// tokenDecimals 查询代币小数位
func (e *Engine) tokenDecimals(ctx context.Context, token common.Address) (int, error) {
	data, err := e.erc20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("打包 decimals 参数失败: %w", err)
	}
	raw, err := e.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("调用 decimals 失败: %w", err)
	}
	var decimals uint8
	if err := e.erc20ABI.UnpackIntoInterface(&decimals, "decimals", raw); err != nil {
		return 0, fmt.Errorf("解析 decimals 结果失败: %w", err)
	}
	return int(decimals), nil
}

// buildAndSign 构造并签名交易（EIP-155）
// fixedGas > 0 时跳过估算；否则估算 gas 并乘以余量系数，估算失败退回固定上限
func (e *Engine) buildAndSign(ctx context.Context, to common.Address, value *big.Int, data []byte, fixedGas uint64) (*ethtypes.Transaction, error) {
	gasPrice, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取 gas 价格失败: %w", err)
	}

	gasLimit := fixedGas
	if gasLimit == 0 {
		estimated, err := e.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  e.wallet,
			To:    &to,
			Value: value,
			Data:  data,
		})
		if err != nil {
			// 估算失败不阻塞交易：退回固定上限
			logger.Warnf("⚠️ gas 估算失败，使用默认上限 %d: %v", e.cfg.DefaultGasLimit, err)
			gasLimit = e.cfg.DefaultGasLimit
		} else {
			gasLimit = uint64(float64(estimated) * e.cfg.GasLimitMultiplier)
		}
	}

	// nonce 分配串行化：同一钱包的交易严格递增
	e.nonceMu.Lock()
	defer e.nonceMu.Unlock()

	nonce, err := e.backend.PendingNonceAt(ctx, e.wallet)
	if err != nil {
		return nil, fmt.Errorf("获取 nonce 失败: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(e.chainID), e.privateKey)
	if err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}
	return signedTx, nil
}

// submit 提交已签名的交易
func (e *Engine) submit(ctx context.Context, tx *ethtypes.Transaction) error {
	return e.backend.SendTransaction(ctx, tx)
}

// waitReceipt 有界确认轮询
// 「尚未找到」是可重试条件；预算耗尽返回 (nil, nil) 表示 pending，交易仍在链上存活
func (e *Engine) waitReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	for attempt := 0; attempt < e.cfg.ConfirmAttempts; attempt++ {
		receipt, err := e.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			logger.Debugf("查询回执出错（将重试）: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.cfg.ConfirmInterval):
		}
	}
	return nil, nil
}
