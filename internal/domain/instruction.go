package domain

// InstructionKind names one of the three controller operations.
type InstructionKind string

const (
	InstructionInitialize InstructionKind = "initialize"
	InstructionBid        InstructionKind = "bid"
	InstructionClose      InstructionKind = "close"
)

// InitializeParams are the arguments of an initialize instruction.
type InitializeParams struct {
	StartingTime int64  `json:"starting_time" cbor:"starting_time"`
	EndingTime   int64  `json:"ending_time" cbor:"ending_time"`
	StartPrice   uint32 `json:"start_price" cbor:"start_price"`
	Amount       uint64 `json:"amount" cbor:"amount"`
}

// AccountMetas lists the accounts an instruction touches. Which fields are
// required depends on the instruction kind:
//
//	initialize: Authority, AuctionAccount, EscrowTokenAccount, HolderTokenAccount, Mint
//	bid:        Buyer, AuctionOwner, AuctionAccount, EscrowTokenAccount, DestinationTokenAccount
//	close:      Authority, AuctionAccount, EscrowTokenAccount, DestinationTokenAccount
type AccountMetas struct {
	Authority               Pubkey `json:"authority,omitempty" cbor:"authority,omitempty"`
	Buyer                   Pubkey `json:"buyer,omitempty" cbor:"buyer,omitempty"`
	AuctionOwner            Pubkey `json:"auction_owner,omitempty" cbor:"auction_owner,omitempty"`
	AuctionAccount          Pubkey `json:"auction_account" cbor:"auction_account"`
	EscrowTokenAccount      Pubkey `json:"escrow_token_account" cbor:"escrow_token_account"`
	HolderTokenAccount      Pubkey `json:"holder_token_account,omitempty" cbor:"holder_token_account,omitempty"`
	DestinationTokenAccount Pubkey `json:"destination_token_account,omitempty" cbor:"destination_token_account,omitempty"`
	Mint                    Pubkey `json:"mint,omitempty" cbor:"mint,omitempty"`
}

// Instruction is the unsigned request body. Nonce and IssuedAt make every
// signed request unique and bound in time.
type Instruction struct {
	Kind     InstructionKind   `json:"kind" cbor:"kind"`
	Params   *InitializeParams `json:"params,omitempty" cbor:"params,omitempty"`
	Accounts AccountMetas      `json:"accounts" cbor:"accounts"`
	Nonce    string            `json:"nonce" cbor:"nonce"`
	IssuedAt int64             `json:"issued_at" cbor:"issued_at"`
}

// SignedInstruction carries an instruction with 65-byte recoverable
// secp256k1 signatures (hex encoded) over its digest.
type SignedInstruction struct {
	Instruction Instruction `json:"instruction"`
	Signatures  []string    `json:"signatures"`
}

// SignerSet is the set of identities that signed an instruction.
type SignerSet map[Pubkey]struct{}

// NewSignerSet builds a SignerSet from keys.
func NewSignerSet(keys ...Pubkey) SignerSet {
	s := make(SignerSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether pk signed.
func (s SignerSet) Has(pk Pubkey) bool {
	_, ok := s[pk]
	return ok
}
