package application

import (
	"context"
	"fmt"

	"github.com/example/church-pickups/internal/scheduler"
)

// SlotKey identifies the position a pickup request occupies.
type SlotKey struct {
	UserID       string
	ServiceDayID string
	// ServiceDate is a YYYY-MM-DD calendar date, independent of the service time.
	ServiceDate string
}

// ConflictGuard rejects pickup requests that would occupy a slot twice.
// It must run inside the write transaction that inserts the requests.
type ConflictGuard struct{}

// NewConflictGuard constructs a ConflictGuard.
func NewConflictGuard() *ConflictGuard {
	return &ConflictGuard{}
}

// AssertNoDuplicate fails with ErrDuplicateRequest when an active request holds key.
func (g *ConflictGuard) AssertNoDuplicate(ctx context.Context, tx PickupTx, key SlotKey) error {
	existing, err := tx.FindActiveRequest(ctx, key.UserID, key.ServiceDayID, key.ServiceDate)
	if err != nil {
		return mapPickupRepoError(err)
	}
	if existing != nil {
		return fmt.Errorf("%w: request %s already covers %s", ErrDuplicateRequest, existing.ID, key.ServiceDate)
	}
	return nil
}

// AssertNoConflicts checks a batch of candidates for one user and service day
// against stored active requests and against each other.
func (g *ConflictGuard) AssertNoConflicts(ctx context.Context, tx PickupTx, candidates []PickupRequest) error {
	if len(candidates) == 0 {
		return nil
	}

	// YYYY-MM-DD sorts lexically.
	first, last := candidates[0].ServiceDate, candidates[0].ServiceDate
	for _, candidate := range candidates[1:] {
		if candidate.ServiceDate < first {
			first = candidate.ServiceDate
		}
		if candidate.ServiceDate > last {
			last = candidate.ServiceDate
		}
	}

	stored, err := tx.ListActiveRequests(ctx, candidates[0].UserID, candidates[0].ServiceDayID, first, last)
	if err != nil {
		return mapPickupRepoError(err)
	}

	conflicts := scheduler.DetectDuplicates(toSlots(stored), toSlots(candidates))
	if len(conflicts) == 0 {
		return nil
	}
	c := conflicts[0]
	return fmt.Errorf("%w: %s slot on %s (%d conflicting)", ErrDuplicateRequest, c.Type,
		c.Candidate.ServiceDate, len(conflicts))
}

func toSlots(requests []PickupRequest) []scheduler.Slot {
	out := make([]scheduler.Slot, len(requests))
	for i, request := range requests {
		out[i] = scheduler.Slot{
			ID:           request.ID,
			UserID:       request.UserID,
			ServiceDayID: request.ServiceDayID,
			ServiceDate:  request.ServiceDate,
		}
	}
	return out
}
