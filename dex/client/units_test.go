package client

import (
	"math/big"
	"testing"
)

// 代币单位 <-> 最小单位换算
func TestToWei(t *testing.T) {
	cases := []struct {
		amount   float64
		decimals int
		want     string
	}{
		{1, 18, "1000000000000000000"},
		{0.05, 18, "50000000000000000"},
		{1.5, 6, "1500000"},
		{0, 18, "0"},
		// 超出精度的小数位截断，不四舍五入
		{1.9999999, 6, "1999999"},
	}
	for _, tc := range cases {
		got := ToWei(tc.amount, tc.decimals)
		if got.String() != tc.want {
			t.Errorf("ToWei(%v, %d) = %s，期望 %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestFromWei(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got := FromWei(wei, 18); got != 1.5 {
		t.Errorf("FromWei = %v，期望 1.5", got)
	}
	if got := FromWei(big.NewInt(1500000), 6); got != 1.5 {
		t.Errorf("FromWei = %v，期望 1.5", got)
	}
	if got := FromWei(nil, 18); got != 0 {
		t.Errorf("FromWei(nil) = %v，期望 0", got)
	}
}

// 往返换算在小数位精度内保持一致
func TestWeiRoundTrip(t *testing.T) {
	for _, amount := range []float64{0.001, 1, 42.5, 1234.567} {
		got := FromWei(ToWei(amount, 18), 18)
		if diff := got - amount; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("往返换算漂移: %v -> %v", amount, got)
		}
	}
}
