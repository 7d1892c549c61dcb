package cost

import (
	"sync"
	"time"
)

// DefaultLedgerRecords bounds the ledger's retained history.
const DefaultLedgerRecords = 1000

// Record is one per-call cost estimate.
type Record struct {
	Timestamp     time.Time `json:"timestamp"`
	Category      string    `json:"category"`
	Amount        float64   `json:"amount"`
	CorrelationID string    `json:"correlation_id"`
}

// Ledger is an append-only, size-bounded log of per-call cost estimates,
// shared by all concurrent jobs. It retains only the most recent maxRecords
// entries (FIFO eviction), so windowed totals over evicted history silently
// under-count: the job record's total_cost is the authoritative per-job
// figure, the ledger is a rolling operational aid.
type Ledger struct {
	mu         sync.Mutex
	records    []Record
	maxRecords int
	now        func() time.Time
}

// NewLedger creates a Ledger bounded to maxRecords entries.
// Non-positive bounds fall back to DefaultLedgerRecords.
func NewLedger(maxRecords int) *Ledger {
	if maxRecords <= 0 {
		maxRecords = DefaultLedgerRecords
	}
	return &Ledger{
		records:    make([]Record, 0, maxRecords),
		maxRecords: maxRecords,
		now:        time.Now,
	}
}

// WithNow sets the clock, for tests.
func (l *Ledger) WithNow(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Record appends a cost record, evicting the oldest entries when the
// bound is exceeded. Negative amounts are clamped to zero.
func (l *Ledger) Record(category string, amount float64, correlationID string) {
	if amount < 0 {
		amount = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, Record{
		Timestamp:     l.now(),
		Category:      category,
		Amount:        amount,
		CorrelationID: correlationID,
	})
	if overflow := len(l.records) - l.maxRecords; overflow > 0 {
		l.records = l.records[overflow:]
	}
}

// TotalSince sums amounts over retained records with timestamp >= since.
func (l *Ledger) TotalSince(since time.Time) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, r := range l.records {
		if !r.Timestamp.Before(since) {
			total += r.Amount
		}
	}
	return total
}

// Len returns the number of retained records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
