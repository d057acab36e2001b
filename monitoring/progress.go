package monitoring

import (
	"sync"
	"time"

	"github.com/rs/xid"
)

// A ProgressBar is a tracker of the progress
type ProgressBar struct {
	sync.Mutex
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     uint64    `json:"total"`
	Finished  uint64    `json:"finished"`
}

func newProgressBar(name string, total uint64) *ProgressBar {
	return &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}
}

// SetFraction sets the finished amount to a fraction of the total. Values
// outside [0, 1] are clamped.
func (b *ProgressBar) SetFraction(fraction float64) {
	b.Lock()
	defer b.Unlock()

	switch {
	case fraction <= 0:
		b.Finished = 0
	case fraction >= 1:
		b.Finished = b.Total
	default:
		b.Finished = uint64(fraction * float64(b.Total))
	}
}

// Fraction returns the finished share of the total.
func (b *ProgressBar) Fraction() float64 {
	b.Lock()
	defer b.Unlock()

	if b.Total == 0 {
		return 0
	}

	return float64(b.Finished) / float64(b.Total)
}
