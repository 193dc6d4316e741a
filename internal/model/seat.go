package model

import "time"

// SeatState is the durable inventory state of a seat. Holds are not a seat
// state: they live only in the lock layer.
type SeatState string

const (
	SeatAvailable SeatState = "AVAILABLE"
	SeatReserved  SeatState = "RESERVED"
	SeatSold      SeatState = "SOLD"
)

// Valid reports whether s is one of the declared states.
func (s SeatState) Valid() bool {
	switch s {
	case SeatAvailable, SeatReserved, SeatSold:
		return true
	}
	return false
}

// Seat is one sellable seat of a performance.  State and OrderID change
// together, and only through a compare-and-set on Version.
//
// Fields:
//
//	PerformanceID – performance the seat belongs to.
//	SeatID        – seat identifier, unique within the performance.
//	State         – AVAILABLE, RESERVED or SOLD.
//	OrderID       – order the seat is bound to (nil when AVAILABLE).
//	Version       – bumped on every committed transition.
//	UpdatedAt     – last transition timestamp.
type Seat struct {
	PerformanceID string    // seats.performance_id
	SeatID        string    // seats.seat_id
	State         SeatState // seats.state
	OrderID       *string   // seats.order_id (nullable)
	Version       int64     // seats.version
	UpdatedAt     time.Time // seats.updated_at
}

// SeatVersion is the slice of a seat the lock coordinator needs to compute
// fencing tokens.
type SeatVersion struct {
	State   SeatState
	Version int64
}

// SeatPrice is the catalog price of one seat in minor currency units.
type SeatPrice struct {
	SeatID      string // catalog_seats.seat_id
	AmountCents int64  // catalog_seats.price_cents
	Currency    string // catalog_seats.currency
}
