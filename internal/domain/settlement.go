package domain

import "time"

// SettlementKind tells how an auction terminated.
type SettlementKind string

const (
	SettlementSettled   SettlementKind = "settled"   // a buyer won via bid
	SettlementReclaimed SettlementKind = "reclaimed" // the seller closed it
)

// Settlement is the history row written when an auction terminates. The
// ledger itself keeps no trace of terminated auctions.
type Settlement struct {
	ID            string         `json:"id"`
	Kind          SettlementKind `json:"kind"`
	Auction       Pubkey         `json:"auction"`
	Authority     Pubkey         `json:"authority"`
	Buyer         *Pubkey        `json:"buyer,omitempty"`
	Mint          Pubkey         `json:"mint"`
	Amount        uint64         `json:"amount"`
	Price         uint64         `json:"price"`
	StartingPrice uint32         `json:"starting_price"`
	StartingTime  int64          `json:"starting_time"`
	EndingTime    int64          `json:"ending_time"`
	SettledAt     int64          `json:"settled_at"`
	Receipt       string         `json:"receipt,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// EventType names an auction lifecycle event.
type EventType string

const (
	EventInitialized EventType = "auction_initialized"
	EventSettled     EventType = "auction_settled"
	EventReclaimed   EventType = "auction_reclaimed"
)

// AuctionEvent is published on the signal bus after a transition commits.
type AuctionEvent struct {
	Type          EventType `json:"type"`
	Auction       Pubkey    `json:"auction"`
	Authority     Pubkey    `json:"authority"`
	Buyer         *Pubkey   `json:"buyer,omitempty"`
	Mint          Pubkey    `json:"mint"`
	Amount        uint64    `json:"amount"`
	Price         uint64    `json:"price"`
	StartingPrice uint32    `json:"starting_price,omitempty"`
	StartingTime  int64     `json:"starting_time,omitempty"`
	EndingTime    int64     `json:"ending_time,omitempty"`
	At            int64     `json:"at"`
}
