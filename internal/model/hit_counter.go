package model

// HitCounter is the single row of the `hits` table.  Count only ever grows:
// it is seeded with 0 the first time the table is created and every counted
// page view adds exactly one.
type HitCounter struct {
	Count int64 // hits.cnt
}

// IsFirstVisit reports whether this counter value belongs to the very
// first counted page view.
func (h HitCounter) IsFirstVisit() bool { return h.Count == 1 }
