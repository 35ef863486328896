package raman

import "math"

// NearestIndex returns the index of the wavenumber closest to w.
// When two samples are equally close the lowest index wins.
func NearestIndex(s *Spectrum, w float64) int {
	return nearestIndex(s.wavenumber, w)
}

func nearestIndex(axis []float64, w float64) int {
	best := 0
	bestDiff := math.Inf(1)
	for i, v := range axis {
		d := math.Abs(v - w)
		if d < bestDiff {
			best = i
			bestDiff = d
		}
	}
	return best
}

// Restrict returns the samples from the one nearest to start up to the end
// of the spectrum.
func Restrict(s *Spectrum, start float64) *Spectrum {
	i := nearestIndex(s.wavenumber, start)
	return slice(s, i, s.Len())
}

// RestrictTo returns the samples in [nearest(start), nearest(end)).
// Positions outside the data are mapped to the nearest sample. If end lies
// beyond the last sample and that sample is the nearest one, it is
// included, so restricting a restricted spectrum again is a no-op.
func RestrictTo(s *Spectrum, start, end float64) (*Spectrum, error) {
	i, j, err := rangeIndices(s.wavenumber, start, end)
	if err != nil {
		return nil, err
	}
	return slice(s, i, j), nil
}

func rangeIndices(axis []float64, start, end float64) (int, int, error) {
	if !(start < end) {
		return 0, 0, invalidf("range start %g must be below end %g", start, end)
	}
	i := nearestIndex(axis, start)
	j := nearestIndex(axis, end)
	if j == len(axis)-1 && end > axis[j] {
		j = len(axis)
	}
	if j <= i {
		return 0, 0, invalidf("range %g:%g selects no samples", start, end)
	}
	return i, j, nil
}

func slice(s *Spectrum, i, j int) *Spectrum {
	return derive("restrict", s.label,
		cloneFloats(s.wavenumber[i:j]), cloneFloats(s.intensity[i:j]), s)
}
