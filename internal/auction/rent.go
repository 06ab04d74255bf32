package auction

// RentPolicy prices the storage deposit that keeps an account alive.
type RentPolicy struct {
	LamportsPerByte uint64 `toml:"lamports_per_byte"`
	BaseLamports    uint64 `toml:"base_lamports"`
}

// DefaultRentPolicy charges 6960 lamports per byte plus a fixed 128-byte
// account overhead.
func DefaultRentPolicy() RentPolicy {
	return RentPolicy{
		LamportsPerByte: 6960,
		BaseLamports:    128 * 6960,
	}
}

// Deposit returns the deposit for an account of size bytes.
func (p RentPolicy) Deposit(size int) uint64 {
	return p.BaseLamports + uint64(size)*p.LamportsPerByte
}
