package domain

import "github.com/shopspring/decimal"

// TokenAccountSize is the storage footprint charged for a token account.
const TokenAccountSize = 165

// Mint describes a fungible asset.
type Mint struct {
	Address   Pubkey `json:"address"`
	Authority Pubkey `json:"authority"`
	Decimals  uint8  `json:"decimals"`
	Supply    uint64 `json:"supply"`
}

// TokenAccount holds a balance of one mint on behalf of Owner. The escrow
// custodian is a token account whose owner is the auction record address.
type TokenAccount struct {
	Address  Pubkey `json:"address"`
	Mint     Pubkey `json:"mint"`
	Owner    Pubkey `json:"owner"`
	Amount   uint64 `json:"amount"`
	Lamports uint64 `json:"lamports"`
}

// SystemAccount carries a payment balance in lamports. An address that has
// never been credited reads as a zero balance.
type SystemAccount struct {
	Address  Pubkey `json:"address"`
	Lamports uint64 `json:"lamports"`
}

// LamportsPerSOL is the number of lamports in one display unit.
const LamportsPerSOL = 1_000_000_000

// LamportsToSOL converts a lamport amount to its exact display value.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-9)
}
