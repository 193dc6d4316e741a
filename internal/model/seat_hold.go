package model

import "time"

// SeatLock is the ephemeral exclusive claim on one seat. It lives only in
// Redis; FencingToken is the seat version observed at acquisition plus one.
type SeatLock struct {
	PerformanceID string
	SeatID        string
	HolderToken   string
	HoldID        string
	FencingToken  int64
	ExpiresAt     time.Time
}

// Hold is the client-facing handle over a batch of seat locks acquired
// together.  FencingTokens is aligned with SeatIDs.
//
// Fields:
//
//	ID            – opaque hold identifier returned to the client.
//	PerformanceID – performance the seats belong to.
//	SeatIDs       – held seats in seat order.
//	HolderToken   – identity of the holder (the session user).
//	FencingTokens – per-seat fencing token, same order as SeatIDs.
//	CreatedAt     – acquisition time, the base of the lifetime ceiling.
//	ExpiresAt     – current deadline of every lock in the hold.
//	Extensions    – number of successful extensions so far.
type Hold struct {
	ID            string
	PerformanceID string
	SeatIDs       []string
	HolderToken   string
	FencingTokens []int64
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Extensions    int
}

// HasFencingToken reports whether token was issued for one of the hold's
// seats.
func (h *Hold) HasFencingToken(token int64) bool {
	for _, t := range h.FencingTokens {
		if t == token {
			return true
		}
	}
	return false
}

// FencingFor returns the fencing token of seatID within the hold.
func (h *Hold) FencingFor(seatID string) (int64, bool) {
	for i, s := range h.SeatIDs {
		if s == seatID && i < len(h.FencingTokens) {
			return h.FencingTokens[i], true
		}
	}
	return 0, false
}
