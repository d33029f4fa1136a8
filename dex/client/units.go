package client

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToWei 把代币数量（十进制单位）转换为最小单位（wei）
// 用 decimal 做中间运算，避免 float64 直接乘 10^decimals 的精度漂移
func ToWei(amount float64, decimals int) *big.Int {
	d := decimal.NewFromFloat(amount).Shift(int32(decimals))
	// 截断小数部分：链上金额只能是整数
	return d.Truncate(0).BigInt()
}

// FromWei 把最小单位（wei）转换回代币数量（十进制单位）
func FromWei(amount *big.Int, decimals int) float64 {
	if amount == nil {
		return 0
	}
	d := decimal.NewFromBigInt(amount, -int32(decimals))
	f, _ := d.Float64()
	return f
}
