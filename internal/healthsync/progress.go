package healthsync

import (
	"sync"

	"vitalsync/internal/models"
)

// Progress tracks batch completion for a sync cycle. Totals grow as
// categories are fetched and their batch counts become known; updates
// are atomic so concurrent category workers stay consistent.
type Progress struct {
	mu        sync.Mutex
	total     int
	completed int
}

// Reset zeroes the counters at the start of a cycle.
func (p *Progress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = 0
	p.completed = 0
}

// AddTotal registers newly planned batches.
func (p *Progress) AddTotal(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total += n
}

// Advance marks one batch done.
func (p *Progress) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
}

// Snapshot returns the current progress.
func (p *Progress) Snapshot() models.SyncProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return models.SyncProgress{
		TotalOperations:     p.total,
		CompletedOperations: p.completed,
	}
}
