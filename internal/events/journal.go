package events

import (
	"sync"
	"time"
)

// Journal keeps the most recent events for diagnostics. It never feeds
// events back into the bus.
type Journal struct {
	mu          sync.RWMutex
	max         int
	entries     []Event
	dropped     int
	truncatedAt time.Time
}

func NewJournal(max int) *Journal {
	if max < 2 {
		max = 200
	}
	return &Journal{max: max}
}

// Append records evt. Once the journal overflows, the oldest entries are
// dropped and List reports them through a single JournalTruncated marker,
// keeping the total at the cap.
func (j *Journal) Append(evt Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, evt)
	limit := j.max
	if j.dropped > 0 {
		limit = j.max - 1
	}
	if l := len(j.entries); l > limit {
		keep := j.max - 1
		j.dropped += l - keep
		j.truncatedAt = evt.Timestamp
		j.entries = append([]Event(nil), j.entries[l-keep:]...)
	}
}

// List returns a copy of the journal, oldest first. When entries have been
// dropped the first element is the truncation marker.
func (j *Journal) List() []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Event, 0, len(j.entries)+1)
	if j.dropped > 0 {
		out = append(out, Event{
			ID:        "journal-truncated",
			Action:    ActionJournalTruncated,
			Payload:   JournalTruncated{Dropped: j.dropped, Kept: len(j.entries)},
			Timestamp: j.truncatedAt,
			Source:    "journal",
		})
	}
	return append(out, j.entries...)
}

// ListAction returns the recorded events for one action, oldest first.
func (j *Journal) ListAction(action Action) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Event
	for _, e := range j.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// Dropped reports how many events have fallen off the front of the journal.
func (j *Journal) Dropped() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.dropped
}
