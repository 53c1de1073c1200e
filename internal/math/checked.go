package math

import (
	"math/big"
	"math/bits"
	"sync"
)

// All pool balances and amounts are uint64 in the base currency's smallest
// unit. Products of two u64 values need 128 bits; those intermediates are
// held in pooled big.Ints. Every operation is checked; the engine treats
// silent wraparound as a fund-leaking bug, never as acceptable behavior.

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

// PutInt128 clears and returns an intermediate to the pool.
func PutInt128(v *big.Int) {
	v.SetInt64(0)
	int128Pool.Put(v)
}

// AddU64 returns a+b and whether it fit without carry.
func AddU64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// SubU64 returns a-b and whether a >= b.
func SubU64(a, b uint64) (uint64, bool) {
	diff, borrow := bits.Sub64(a, b, 0)
	return diff, borrow == 0
}

// MulU64 returns a*b and whether the product fit in 64 bits.
func MulU64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

// MulU128 performs a*b into a 128-bit intermediate. The caller must release
// the result with PutInt128.
func MulU128(a, b uint64) *big.Int {
	result := getInt128()
	x := getInt128().SetUint64(a)
	y := getInt128().SetUint64(b)
	result.Mul(x, y)
	PutInt128(x)
	PutInt128(y)
	return result
}

// DivU128 divides a 128-bit numerator by a u64 denominator, truncating
// toward zero, and reports whether the quotient fits in 64 bits.
// Division by zero returns ok=false.
func DivU128(numerator *big.Int, denominator uint64) (uint64, bool) {
	if denominator == 0 {
		return 0, false
	}
	q := getInt128()
	d := getInt128().SetUint64(denominator)
	q.Div(numerator, d)
	PutInt128(d)

	if !q.IsUint64() {
		PutInt128(q)
		return 0, false
	}
	result := q.Uint64()
	PutInt128(q)
	return result, true
}

// MulDivU64 computes floor(a*b/den) through a 128-bit intermediate.
func MulDivU64(a, b, den uint64) (uint64, bool) {
	num := MulU128(a, b)
	result, ok := DivU128(num, den)
	PutInt128(num)
	return result, ok
}

// BigDivToU64 divides two big.Int values (num/den, truncated) and reports
// whether the quotient fits in 64 bits. Neither argument is modified.
func BigDivToU64(num, den *big.Int) (uint64, bool) {
	if den.Sign() == 0 {
		return 0, false
	}
	q := getInt128()
	q.Div(num, den)
	if !q.IsUint64() {
		PutInt128(q)
		return 0, false
	}
	result := q.Uint64()
	PutInt128(q)
	return result, true
}
