package raman

import (
	"gonum.org/v1/gonum/mat"
)

// Smooth applies a Savitzky–Golay filter with an odd window length and a
// polynomial degree below the window length. The first and last window/2
// samples are taken from the polynomial fitted to the first and last
// window respectively.
func Smooth(s *Spectrum, window, degree int) (*Spectrum, error) {
	y, err := savitzkyGolay(s.intensity, window, degree)
	if err != nil {
		return nil, err
	}
	return derive("smooth", s.label+" savgol smoothed", s.Wavenumber(), y, s), nil
}

func validateSmoothing(n, window, degree int) error {
	switch {
	case window < 1 || window%2 == 0:
		return invalidf("smoothing window %d must be a positive odd number", window)
	case degree < 0:
		return invalidf("smoothing degree %d < 0", degree)
	case window <= degree:
		return invalidf("smoothing window %d must exceed degree %d", window, degree)
	case window > n:
		return invalidf("smoothing window %d longer than spectrum (%d samples)", window, n)
	}
	return nil
}

func savitzkyGolay(y []float64, window, degree int) ([]float64, error) {
	n := len(y)
	if err := validateSmoothing(n, window, degree); err != nil {
		return nil, err
	}
	half := window / 2
	scale := float64(half)
	if half == 0 {
		scale = 1
	}

	// Local design matrix on t = (i-half)/scale
	a := mat.NewDense(window, degree+1, nil)
	for i := 0; i < window; i++ {
		t := float64(i-half) / scale
		pow := 1.0
		for j := 0; j <= degree; j++ {
			a.Set(i, j, pow)
			pow *= t
		}
	}
	ones := make([]float64, window)
	for i := range ones {
		ones[i] = 1
	}
	// Row j of pinv maps a window onto polynomial coefficient j
	var qr mat.QR
	qr.Factorize(a)
	var pinv mat.Dense
	if err := qr.SolveTo(&pinv, false, mat.NewDiagDense(window, ones)); err != nil {
		return nil, instabilityf("smoothing coefficients: %v", err)
	}

	out := make([]float64, n)
	center := pinv.RawRowView(0)
	for k := half; k < n-half; k++ {
		sum := 0.0
		for i, c := range center {
			sum += c * y[k-half+i]
		}
		out[k] = sum
	}

	edge := func(first int, from, to int) {
		coef := mat.NewVecDense(degree+1, nil)
		coef.MulVec(&pinv, mat.NewVecDense(window, cloneFloats(y[first:first+window])))
		for k := from; k < to; k++ {
			t := float64(k-first-half) / scale
			out[k] = polyval(coef.RawVector().Data, t)
		}
	}
	edge(0, 0, half)
	edge(n-window, n-half, n)
	return out, nil
}

// polyval evaluates sum(c[j] * t^j)
func polyval(c []float64, t float64) float64 {
	v := 0.0
	for j := len(c) - 1; j >= 0; j-- {
		v = v*t + c[j]
	}
	return v
}
