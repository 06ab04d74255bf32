package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Persisted layout sizes.
const (
	DiscriminatorSize  = 8
	AuctionRecordSize  = PubkeySize + 8 + 4 + 8 + 8 + 1
	AuctionAccountSize = DiscriminatorSize + AuctionRecordSize
)

// auctionDiscriminator prefixes every serialized record so that foreign
// account data is never mistaken for an auction.
var auctionDiscriminator = discriminator("account:AuctionAccount")

func discriminator(name string) [DiscriminatorSize]byte {
	var d [DiscriminatorSize]byte
	sum := sha256.Sum256([]byte(name))
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// AuctionRecord is the durable state of one live auction. It is immutable once
// created; termination deletes it.
type AuctionRecord struct {
	Authority     Pubkey `json:"authority"`
	Amount        uint64 `json:"amount"`
	StartingPrice uint32 `json:"starting_price"`
	StartingTime  int64  `json:"starting_time"`
	EndingTime    int64  `json:"ending_time"`
	Bump          uint8  `json:"bump"`
}

// Duration returns EndingTime - StartingTime in seconds.
func (r AuctionRecord) Duration() int64 {
	return r.EndingTime - r.StartingTime
}

// Validate checks the invariants every stored record must satisfy.
func (r AuctionRecord) Validate() error {
	if r.Amount == 0 {
		return ErrInvalidAmount
	}
	if r.StartingTime >= r.EndingTime {
		return ErrInvalidDateRange
	}
	return nil
}

// MarshalBinary encodes the record as discriminator followed by the
// little-endian fixed-width layout.
func (r AuctionRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, AuctionAccountSize)
	copy(buf, auctionDiscriminator[:])

	off := DiscriminatorSize
	copy(buf[off:], r.Authority[:])
	off += PubkeySize
	binary.LittleEndian.PutUint64(buf[off:], r.Amount)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], r.StartingPrice)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(r.StartingTime))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(r.EndingTime))
	off += 8
	buf[off] = r.Bump

	return buf, nil
}

// UnmarshalBinary decodes data produced by MarshalBinary.
func (r *AuctionRecord) UnmarshalBinary(data []byte) error {
	if len(data) != AuctionAccountSize {
		return fmt.Errorf("domain: auction record: expected %d bytes, got %d: %w",
			AuctionAccountSize, len(data), ErrInvalidAccountData)
	}
	if [DiscriminatorSize]byte(data[:DiscriminatorSize]) != auctionDiscriminator {
		return fmt.Errorf("domain: auction record: bad discriminator: %w", ErrInvalidAccountData)
	}

	off := DiscriminatorSize
	copy(r.Authority[:], data[off:off+PubkeySize])
	off += PubkeySize
	r.Amount = binary.LittleEndian.Uint64(data[off:])
	off += 8
	r.StartingPrice = binary.LittleEndian.Uint32(data[off:])
	off += 4
	r.StartingTime = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	r.EndingTime = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	r.Bump = data[off]

	return nil
}

// AuctionAccount is a stored record together with the storage deposit that
// backs it.
type AuctionAccount struct {
	Address  Pubkey        `json:"address"`
	Record   AuctionRecord `json:"record"`
	Lamports uint64        `json:"lamports"`
}

// Phase describes where the ledger clock sits relative to an auction window.
type Phase string

const (
	PhasePending Phase = "pending" // before StartingTime
	PhaseOpen    Phase = "open"    // within [StartingTime, EndingTime]
	PhaseExpired Phase = "expired" // after EndingTime, awaiting close
)

// Quote is the instantaneous settlement price of a live auction.
type Quote struct {
	Auction Pubkey        `json:"auction"`
	Escrow  Pubkey        `json:"escrow"`
	Record  AuctionRecord `json:"record"`
	Now     int64         `json:"now"`
	Phase   Phase         `json:"phase"`
	Price   uint64        `json:"price"`
}
