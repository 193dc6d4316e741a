package service

import (
	"context"

	"github.com/iliyamo/seatcore/internal/apperr"
	"github.com/iliyamo/seatcore/internal/model"
)

// SeatHeld is the availability state of an AVAILABLE seat with a live lock.
// It never reaches the seats table.
const SeatHeld = "HELD"

// SeatAvailability is one seat of the availability view.
type SeatAvailability struct {
	SeatID  string `json:"seatId"`
	State   string `json:"state"`
	Version int64  `json:"version"`
}

// Availability is a point-in-time view of a performance's seats.
type Availability struct {
	PerformanceID string             `json:"performanceId"`
	Seats         []SeatAvailability `json:"seats"`
}

// Availability merges durable seat states with live locks. The view may be
// stale by the time the client acts on it; holds and reservations decide.
func (s *ReservationService) Availability(ctx context.Context, performanceID string) (*Availability, error) {
	if err := validID("performance id", performanceID); err != nil {
		return nil, err
	}
	seats, err := s.seats.ListByPerformance(ctx, performanceID)
	if err != nil {
		return nil, storeErr("seats.list", err)
	}
	if len(seats) == 0 {
		return nil, apperr.NotFound("performance not found")
	}

	var open []string
	for _, st := range seats {
		if st.State == model.SeatAvailable {
			open = append(open, st.SeatID)
		}
	}
	live := map[string]bool{}
	if len(open) > 0 {
		if live, err = s.locks.LiveLocks(ctx, performanceID, open); err != nil {
			return nil, err
		}
	}

	out := &Availability{PerformanceID: performanceID, Seats: make([]SeatAvailability, 0, len(seats))}
	for _, st := range seats {
		state := string(st.State)
		if st.State == model.SeatAvailable && live[st.SeatID] {
			state = SeatHeld
		}
		out.Seats = append(out.Seats, SeatAvailability{SeatID: st.SeatID, State: state, Version: st.Version})
	}
	return out, nil
}
