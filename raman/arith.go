package raman

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// Interpolate resamples s linearly onto num evenly spaced wavenumbers from
// start to end inclusive. Outside the data the first or last intensity is
// repeated.
func Interpolate(s *Spectrum, start, end float64, num int) (*Spectrum, error) {
	switch {
	case num < 1:
		return nil, invalidf("number of points %d < 1", num)
	case math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0):
		return nil, invalidf("interpolation range %g:%g", start, end)
	case num > 1 && start >= end:
		return nil, invalidf("interpolation start %g must be below end %g", start, end)
	}

	w := make([]float64, num)
	if num == 1 {
		w[0] = start
	} else {
		floats.Span(w, start, end)
		w[num-1] = end
	}

	y := make([]float64, num)
	if s.Len() == 1 {
		for i := range y {
			y[i] = s.intensity[0]
		}
	} else {
		if err := CheckAxis(s.wavenumber); err != nil {
			return nil, err
		}
		var pl interp.PiecewiseLinear
		if err := pl.Fit(s.wavenumber, s.intensity); err != nil {
			return nil, invalidf("interpolation: %v", err)
		}
		for i, x := range w {
			y[i] = pl.Predict(x)
		}
	}
	return derive("interpolate", "interpolated "+s.label, w, y, s), nil
}

// Subtract returns a - b. Both spectra must share the same wavenumbers.
func Subtract(a, b *Spectrum) (*Spectrum, error) {
	if a.Len() != b.Len() {
		return nil, mismatchf("%q has %d samples, %q %d", a.label, a.Len(), b.label, b.Len())
	}
	if !floats.Equal(a.wavenumber, b.wavenumber) {
		return nil, mismatchf("%q and %q have different wavenumber axes", a.label, b.label)
	}
	y := make([]float64, a.Len())
	floats.SubTo(y, a.intensity, b.intensity)
	return derive("subtract", a.label+" MINUS "+b.label, a.Wavenumber(), y, a, b), nil
}

// Scale multiplies the intensities by factor
func Scale(s *Spectrum, factor float64) *Spectrum {
	y := make([]float64, s.Len())
	floats.ScaleTo(y, factor, s.intensity)
	return derive("scale", fmt.Sprintf("%s scaled by %g", s.label, factor), s.Wavenumber(), y, s)
}
