// Package idu implements the increment/decrement unit: INC/DEC on an 8-bit
// value, leaving the carry flag untouched (the caller supplies it back
// unchanged).
package idu

// Result is an 8-bit INC/DEC outcome. C is never produced; callers keep the
// prior carry flag as-is.
type Result struct {
	Val     byte
	Z, N, H bool
}

// Inc8 computes v+1: Z from result, N=0, H set when the low nibble was 0xF.
func Inc8(v byte) Result {
	r := v + 1
	return Result{Val: r, Z: r == 0, N: false, H: v&0x0F == 0x0F}
}

// Dec8 computes v-1: Z from result, N=1, H set when the low nibble was 0x0.
func Dec8(v byte) Result {
	r := v - 1
	return Result{Val: r, Z: r == 0, N: true, H: v&0x0F == 0x00}
}
