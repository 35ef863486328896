package raman

import (
	"math"
	"sync"

	"github.com/google/uuid"
)

// BaselineMethod identifies the algorithm that produced a baseline
type BaselineMethod int

const (
	NoBaseline BaselineMethod = iota
	PolynomialEnvelope
	AsymmetricLeastSquares
)

func (m BaselineMethod) String() string {
	switch m {
	case PolynomialEnvelope:
		return "Modified polyfit"
	case AsymmetricLeastSquares:
		return "Asymmetric least square"
	}
	return "None"
}

// Spectrum holds one measurement: intensity sampled at ascending
// wavenumbers, a human readable label and provenance information.
// The numeric buffers are never handed out; accessors return copies.
type Spectrum struct {
	wavenumber []float64
	intensity  []float64
	label      string

	// Only set on the "updated self-state" returned by EstimateBaseline
	baseline []float64
	method   BaselineMethod

	id      uuid.UUID
	parents []uuid.UUID
	step    string
	source  string

	// Result of the last Detect call, kept for display
	mu    sync.Mutex
	peaks []Peak
	found bool
}

// New creates a Spectrum from equal length wavenumber and intensity
// slices. The slices are copied. Ascending order of the wavenumbers is a
// precondition that the caller checks with CheckAxis.
func New(wavenumber, intensity []float64, label string) (*Spectrum, error) {
	return NewFromSource(wavenumber, intensity, label, "")
}

// NewFromSource is New for spectra read from a file or other named source
func NewFromSource(wavenumber, intensity []float64, label, source string) (*Spectrum, error) {
	if len(wavenumber) != len(intensity) {
		return nil, mismatchf("%d wavenumbers, %d intensities", len(wavenumber), len(intensity))
	}
	if len(wavenumber) == 0 {
		return nil, invalidf("spectrum must contain at least one sample")
	}
	s := derive("load", label, cloneFloats(wavenumber), cloneFloats(intensity))
	s.source = source
	return s, nil
}

// derive builds a new Spectrum that takes ownership of w and y
func derive(step, label string, w, y []float64, parents ...*Spectrum) *Spectrum {
	s := &Spectrum{
		wavenumber: w,
		intensity:  y,
		label:      label,
		id:         uuid.New(),
		step:       step,
	}
	for _, p := range parents {
		s.parents = append(s.parents, p.id)
		if s.source == "" {
			s.source = p.source
		}
	}
	return s
}

// CheckAxis verifies that w is non-empty, finite and strictly ascending
func CheckAxis(w []float64) error {
	if len(w) == 0 {
		return invalidf("empty wavenumber axis")
	}
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalidf("wavenumber %d is not finite", i)
		}
		if i > 0 && v <= w[i-1] {
			return invalidf("wavenumbers not ascending at index %d (%g after %g)", i, v, w[i-1])
		}
	}
	return nil
}

// Len returns the number of samples
func (s *Spectrum) Len() int {
	return len(s.wavenumber)
}

// Wavenumber returns a copy of the wavenumber axis
func (s *Spectrum) Wavenumber() []float64 {
	return cloneFloats(s.wavenumber)
}

// Intensity returns a copy of the intensities
func (s *Spectrum) Intensity() []float64 {
	return cloneFloats(s.intensity)
}

// At returns wavenumber and intensity of sample i
func (s *Spectrum) At(i int) (float64, float64) {
	return s.wavenumber[i], s.intensity[i]
}

func (s *Spectrum) Label() string {
	return s.label
}

func (s *Spectrum) String() string {
	return s.label
}

// Baseline returns a copy of the recorded baseline, if any
func (s *Spectrum) Baseline() ([]float64, bool) {
	if s.baseline == nil {
		return nil, false
	}
	return cloneFloats(s.baseline), true
}

func (s *Spectrum) BaselineMethod() BaselineMethod {
	return s.method
}

// ID uniquely identifies this instance
func (s *Spectrum) ID() uuid.UUID {
	return s.id
}

// Parents returns the IDs of the spectra this one was derived from
func (s *Spectrum) Parents() []uuid.UUID {
	p := make([]uuid.UUID, len(s.parents))
	copy(p, s.parents)
	return p
}

// Step names the operation that created the spectrum ("load", "restrict",
// "als-baseline", ...)
func (s *Spectrum) Step() string {
	return s.step
}

// Source is the file (or other origin) of the first ancestor, if known
func (s *Spectrum) Source() string {
	return s.source
}

// Clone returns an independent copy, including a recorded baseline
func (s *Spectrum) Clone() *Spectrum {
	c := derive("copy", s.label, s.Wavenumber(), s.Intensity(), s)
	c.baseline = cloneFloats(s.baseline)
	c.method = s.method
	return c
}

// LastPeaks returns the result of the most recent Detect on s
func (s *Spectrum) LastPeaks() ([]Peak, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.found {
		return nil, false
	}
	p := make([]Peak, len(s.peaks))
	copy(p, s.peaks)
	return p, true
}

func (s *Spectrum) cachePeaks(p []Peak) {
	c := make([]Peak, len(p))
	copy(c, p)
	s.mu.Lock()
	s.peaks = c
	s.found = true
	s.mu.Unlock()
}

func cloneFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	c := make([]float64, len(v))
	copy(c, v)
	return c
}
