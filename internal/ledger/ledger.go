// Package ledger tracks generation and booking usage. Counters are
// durable and safe under concurrent requests; lost updates are a
// correctness bug.
package ledger

import "context"

type Totals struct {
	Generations int64 `json:"generations"`
	Bookings    int64 `json:"bookings"`
	APICalls    int64 `json:"api_calls"`
}

type Ledger interface {
	// RecordGeneration counts one orchestration attempt: generations +1,
	// apiCalls added, the style's popularity +1. Atomic as a group.
	RecordGeneration(ctx context.Context, styleID int64, apiCalls int) error

	// RecordBooking counts one accepted booking form.
	RecordBooking(ctx context.Context) error

	Totals(ctx context.Context) (Totals, error)

	// Popularity returns per-style generation counts.
	Popularity(ctx context.Context) (map[int64]int64, error)
}
