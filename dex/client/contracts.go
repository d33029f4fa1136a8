package client

import "fmt"

// ContractConfig 网络合约配置
type ContractConfig struct {
	Router string // 交易路由合约地址
	WETH   string // 包装原生币（WETH）地址
}

// 各网络的合约地址
var contractConfigs = map[int64]ContractConfig{
	// Zora Network 主网
	7777777: {
		Router: "0x7De46C4087cF15Ac0FDac95441F151e1adDC9e00",
		WETH:   "0x4200000000000000000000000000000000000006",
	},
	// Zora Sepolia 测试网
	999999999: {
		Router: "0x7De46C4087cF15Ac0FDac95441F151e1adDC9e00",
		WETH:   "0x4200000000000000000000000000000000000006",
	},
	// Base 主网（OP Stack，WETH 预部署地址相同）
	8453: {
		Router: "0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24",
		WETH:   "0x4200000000000000000000000000000000000006",
	},
}

// GetContractConfig 根据链 ID 获取合约配置
func GetContractConfig(chainID int64) (ContractConfig, error) {
	cfg, ok := contractConfigs[chainID]
	if !ok {
		return ContractConfig{}, fmt.Errorf("不支持的链 ID: %d", chainID)
	}
	return cfg, nil
}
