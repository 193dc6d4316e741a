// Package catalog reads seat prices authored by the venue catalog. The
// catalog is owned elsewhere; this package only reads it.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/seatcore/internal/model"
)

// Store reads catalog_seats.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// SeatPrices returns the price of every requested seat that exists in the
// catalog. Unknown seats are absent from the map.
func (s *Store) SeatPrices(ctx context.Context, performanceID string, seatIDs []string) (map[string]model.SeatPrice, error) {
	out := make(map[string]model.SeatPrice, len(seatIDs))
	if len(seatIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(seatIDs)), ", ")
	args := make([]any, 0, len(seatIDs)+1)
	args = append(args, performanceID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seat_id, price_cents, currency FROM catalog_seats WHERE performance_id = ? AND seat_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query seat prices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.SeatPrice
		if err := rows.Scan(&p.SeatID, &p.AmountCents, &p.Currency); err != nil {
			return nil, err
		}
		p.Currency = strings.ToUpper(p.Currency)
		out[p.SeatID] = p
	}
	return out, rows.Err()
}

// Quote sums prices for seatIDs. It returns the seats missing from the
// catalog and an error when the seats are priced in more than one currency.
func Quote(prices map[string]model.SeatPrice, seatIDs []string) (total int64, currency string, missing []string, err error) {
	for _, id := range seatIDs {
		p, ok := prices[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if currency == "" {
			currency = p.Currency
		} else if currency != p.Currency {
			return 0, "", nil, fmt.Errorf("seats priced in %s and %s", currency, p.Currency)
		}
		total += p.AmountCents
	}
	return total, currency, missing, nil
}
