package scheduler

// Slot is a single pickup request position: one user, one service day, one date.
type Slot struct {
	ID           string
	UserID       string
	ServiceDayID string
	// ServiceDate is the YYYY-MM-DD calendar date. The service time is not part of the slot.
	ServiceDate string
}

// ConflictType describes where the colliding slot came from.
type ConflictType string

const (
	// ConflictTypeExisting indicates the candidate collides with a stored active request.
	ConflictTypeExisting ConflictType = "existing"
	// ConflictTypeBatch indicates the candidate repeats an earlier candidate in the same batch.
	ConflictTypeBatch ConflictType = "batch"
)

// Conflict details a duplicate slot that callers can present to users.
type Conflict struct {
	Candidate Slot
	WithID    string
	Type      ConflictType
}

type slotKey struct {
	userID       string
	serviceDayID string
	date         string
}

func keyOf(s Slot) slotKey {
	return slotKey{userID: s.UserID, serviceDayID: s.ServiceDayID, date: s.ServiceDate}
}

// DetectDuplicates reports every candidate whose (user, service day, service date)
// is already taken by an existing slot or by an earlier candidate.
// Conflicts are returned in candidate order.
func DetectDuplicates(existing []Slot, candidates []Slot) []Conflict {
	if len(candidates) == 0 {
		return nil
	}

	taken := make(map[slotKey]string, len(existing)+len(candidates))
	for _, slot := range existing {
		taken[keyOf(slot)] = slot.ID
	}

	var conflicts []Conflict
	batch := make(map[slotKey]string, len(candidates))
	for _, candidate := range candidates {
		key := keyOf(candidate)
		if id, ok := taken[key]; ok {
			conflicts = append(conflicts, Conflict{Candidate: candidate, WithID: id, Type: ConflictTypeExisting})
			continue
		}
		if id, ok := batch[key]; ok {
			conflicts = append(conflicts, Conflict{Candidate: candidate, WithID: id, Type: ConflictTypeBatch})
			continue
		}
		batch[key] = candidate.ID
	}
	return conflicts
}
