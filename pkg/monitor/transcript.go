package monitor

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Sender identifies who produced a transcript line.
type Sender string

const (
	SenderCaller Sender = "caller"
	SenderUser   Sender = "user"
	SenderSystem Sender = "system"
)

// Entry is one committed transcript line.
type Entry struct {
	ID     string        `json:"id"`
	Sender Sender        `json:"sender"`
	Text   string        `json:"text"`
	Offset time.Duration `json:"offset"`
}

// Clock returns the entry's offset formatted mm:ss.
func (e Entry) Clock() string {
	total := int(e.Offset / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Transcript is the append-only record of recognized caller speech.
// Entries are never mutated or removed; a new session starts a new
// transcript.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
	started time.Time
	now     func() time.Time
	entropy *rand.Rand
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return NewTranscriptWithClock(time.Now)
}

// NewTranscriptWithClock creates a transcript with an injected clock.
func NewTranscriptWithClock(now func() time.Time) *Transcript {
	return &Transcript{
		now:     now,
		started: now(),
		entropy: rand.New(rand.NewSource(now().UnixNano())),
	}
}

// Append commits a new entry and returns it. Empty text is ignored and
// returns a zero entry.
func (t *Transcript) Append(sender Sender, text string) Entry {
	if text == "" {
		return Entry{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	entry := Entry{
		ID:     ulid.MustNew(ulid.Timestamp(now), t.entropy).String(),
		Sender: sender,
		Text:   text,
		Offset: now.Sub(t.started),
	}
	t.entries = append(t.entries, entry)
	return entry
}

// Entries returns a copy of all committed entries in order.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of committed entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
