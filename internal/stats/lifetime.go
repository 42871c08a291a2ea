package stats

import (
	"fmt"
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/DataDog/sketches-go/ddsketch/mapping"
	"github.com/DataDog/sketches-go/ddsketch/store"
)

// DefaultRelativeAccuracy bounds lifetime quantile error to 1%.
const DefaultRelativeAccuracy = 0.01

// Lifetime tracks the distribution of a metric for the life of the
// process in bounded memory. Safe for concurrent use.
type Lifetime struct {
	mu     sync.Mutex
	alpha  float64
	sketch *ddsketch.DDSketch
	sum    float64
}

// NewLifetime creates a lifetime distribution with the given relative
// accuracy. Values outside (0, 1) select DefaultRelativeAccuracy.
func NewLifetime(relativeAccuracy float64) (*Lifetime, error) {
	if relativeAccuracy <= 0 || relativeAccuracy >= 1 {
		relativeAccuracy = DefaultRelativeAccuracy
	}

	sketch, err := newSketch(relativeAccuracy)
	if err != nil {
		return nil, err
	}

	return &Lifetime{alpha: relativeAccuracy, sketch: sketch}, nil
}

func newSketch(alpha float64) (*ddsketch.DDSketch, error) {
	m, err := mapping.NewLogarithmicMapping(alpha)
	if err != nil {
		return nil, fmt.Errorf("creating sketch mapping: %w", err)
	}

	return ddsketch.NewDDSketch(m, store.NewDenseStore(), store.NewDenseStore()), nil
}

// Add records a value. NaN and infinite values are rejected.
func (l *Lifetime) Add(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("cannot record %v", v)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.sketch.Add(v); err != nil {
		return fmt.Errorf("recording %v: %w", v, err)
	}

	l.sum += v

	return nil
}

// Quantile returns the q-quantile (0-1). NaN when empty.
func (l *Lifetime) Quantile(q float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sketch.IsEmpty() {
		return math.NaN()
	}

	v, err := l.sketch.GetValueAtQuantile(q)
	if err != nil {
		return math.NaN()
	}

	return v
}

// Count returns the number of recorded values.
func (l *Lifetime) Count() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return uint64(l.sketch.GetCount())
}

// Mean returns the exact mean of recorded values. NaN when empty.
func (l *Lifetime) Mean() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.sketch.GetCount()
	if n == 0 {
		return math.NaN()
	}

	return l.sum / n
}

// Reset discards all recorded values.
func (l *Lifetime) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sketch.Clear()
	l.sum = 0
}
