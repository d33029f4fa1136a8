// Package client 封装与 EVM 节点的连接
// 引擎通过 execution.ChainBackend 接口使用这里的 Client，
// 便于在测试中用 fake 节点替换
package client

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client 以太坊 RPC 客户端封装
// 内嵌 ethclient.Client，额外缓存链 ID 并提供余额等便捷查询
type Client struct {
	*ethclient.Client

	chainID  *big.Int
	erc20ABI abi.ABI
}

// Dial 连接到 RPC 节点并读取链 ID
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, fmt.Errorf("RPC URL 不能为空")
	}

	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接 RPC 节点失败: %w", err)
	}

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("解析 ERC20 ABI 失败: %w", err)
	}

	return &Client{Client: ec, chainID: chainID, erc20ABI: parsed}, nil
}

// ChainIDCached 返回连接时缓存的链 ID（不发 RPC）
func (c *Client) ChainIDCached() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// NativeBalance 查询钱包的原生币余额（ETH 单位）
func (c *Client) NativeBalance(ctx context.Context, address string) (float64, error) {
	wei, err := c.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return 0, fmt.Errorf("查询余额失败: %w", err)
	}
	return FromWei(wei, 18), nil
}

// TokenBalance 查询钱包的 ERC20 代币余额（代币单位）
func (c *Client) TokenBalance(ctx context.Context, token, owner string) (float64, error) {
	tokenAddr := common.HexToAddress(token)

	data, err := c.erc20ABI.Pack("balanceOf", common.HexToAddress(owner))
	if err != nil {
		return 0, fmt.Errorf("打包 balanceOf 参数失败: %w", err)
	}
	raw, err := c.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("调用 balanceOf 失败: %w", err)
	}
	var balance *big.Int
	if err := c.erc20ABI.UnpackIntoInterface(&balance, "balanceOf", raw); err != nil {
		return 0, fmt.Errorf("解析 balanceOf 结果失败: %w", err)
	}

	decimals, err := c.TokenDecimals(ctx, token)
	if err != nil {
		return 0, err
	}
	return FromWei(balance, decimals), nil
}

// TokenDecimals 查询 ERC20 代币的小数位
func (c *Client) TokenDecimals(ctx context.Context, token string) (int, error) {
	tokenAddr := common.HexToAddress(token)

	data, err := c.erc20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("打包 decimals 参数失败: %w", err)
	}
	raw, err := c.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("调用 decimals 失败: %w", err)
	}
	var decimals uint8
	if err := c.erc20ABI.UnpackIntoInterface(&decimals, "decimals", raw); err != nil {
		return 0, fmt.Errorf("解析 decimals 结果失败: %w", err)
	}
	return int(decimals), nil
}
