package ledgersaga

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TrackEvent is one successful track transition, as observed by the engine.
type TrackEvent struct {
	RecordID uuid.UUID
	Domain   Domain
	Track    Track
	To       string
	At       time.Time
}

// String implements the fmt.Stringer interface for TrackEvent.
func (e *TrackEvent) String() string {
	return fmt.Sprintf("%s %s %s -> %s", e.RecordID, e.Domain, e.Track, e.To)
}

// Journal is the engine's in-process transition log. It exists for
// operators and tests, not for recovery: the records themselves are the
// durable state.
type Journal struct {
	sync.Mutex
	events []*TrackEvent
}

// NewJournal creates an empty Journal.
func NewJournal() *Journal {
	return &Journal{events: make([]*TrackEvent, 0)}
}

// Record appends an event to the journal.
func (j *Journal) Record(ev *TrackEvent) {
	j.Lock()
	defer j.Unlock()
	j.events = append(j.events, ev)
}

// Events returns a snapshot of the journal.
func (j *Journal) Events() []*TrackEvent {
	j.Lock()
	defer j.Unlock()
	return append([]*TrackEvent(nil), j.events...)
}

// ForRecord returns the events of a single record, in order.
func (j *Journal) ForRecord(id uuid.UUID) []*TrackEvent {
	j.Lock()
	defer j.Unlock()
	var out []*TrackEvent
	for _, ev := range j.events {
		if ev.RecordID == id {
			out = append(out, ev)
		}
	}
	return out
}

// JournalPretty is a helper for pretty-printing a Journal.
type JournalPretty struct {
	Journal *Journal
}

// String implements the fmt.Stringer interface for JournalPretty.
func (p *JournalPretty) String() string {
	p.Journal.Lock()
	defer p.Journal.Unlock()

	var sb strings.Builder
	sb.WriteString("TRANSITION JOURNAL:\n")
	sb.WriteString(fmt.Sprintf("events (%d total):\n", len(p.Journal.events)))
	sb.WriteString("\n")
	for i, ev := range p.Journal.events {
		sb.WriteString(fmt.Sprintf("%03d %s\n", i+1, ev.String()))
	}
	return sb.String()
}
