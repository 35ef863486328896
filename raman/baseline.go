package raman

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Baseline is the outcome of a baseline estimation
type Baseline struct {
	Method     BaselineMethod
	Curve      []float64
	Iterations int  // iterations actually performed
	Converged  bool // false if the iteration cap stopped the estimation
}

// BaselineEstimator computes a baseline curve for a sequence of intensities.
// Estimate must not modify its argument.
type BaselineEstimator interface {
	Method() BaselineMethod
	Estimate(intensity []float64) (Baseline, error)
}

// EstimateBaseline runs est on s. It returns the updated state of s (a new
// Spectrum equal to s with the baseline recorded, for "raw + baseline"
// overlays) and the baseline corrected spectrum. s itself is not modified.
func EstimateBaseline(s *Spectrum, est BaselineEstimator) (*Spectrum, *Spectrum, error) {
	b, err := est.Estimate(s.Intensity())
	if err != nil {
		return nil, nil, err
	}
	if len(b.Curve) != s.Len() {
		return nil, nil, mismatchf("baseline has %d samples, spectrum %d", len(b.Curve), s.Len())
	}

	annotated := derive("baseline", s.label, s.Wavenumber(), s.Intensity(), s)
	annotated.baseline = cloneFloats(b.Curve)
	annotated.method = est.Method()

	corrected := make([]float64, s.Len())
	floats.SubTo(corrected, s.intensity, b.Curve)
	var prefix, step string
	switch est.Method() {
	case PolynomialEnvelope:
		prefix, step = "modpoly baseline corrected ", "modpoly-baseline"
	case AsymmetricLeastSquares:
		prefix, step = "als baseline corrected ", "als-baseline"
	default:
		prefix, step = "baseline corrected ", "baseline-corrected"
	}
	return annotated, derive(step, prefix+s.label, s.Wavenumber(), corrected, s), nil
}

// PolyEnvelope is the modified polynomial fit of Lieber & Mahadevan-Jansen
// (2003): a polynomial is fitted repeatedly to the pointwise minimum of the
// previous fit and the raw data, which pushes it below the peaks.
type PolyEnvelope struct {
	Degree            int
	MaxIterations     int
	GradientTolerance float64
}

// DefaultPolyEnvelope returns degree 2, 100 iterations, tolerance 0.001
func DefaultPolyEnvelope() PolyEnvelope {
	return PolyEnvelope{Degree: 2, MaxIterations: 100, GradientTolerance: 0.001}
}

func (p PolyEnvelope) Method() BaselineMethod {
	return PolynomialEnvelope
}

// relativeFloor is the fraction of the largest |intensity| below which a
// raw intensity is considered zero in the convergence criterion
const relativeFloor = 1e-12

// Estimate implements BaselineEstimator. The convergence criterion is
// sum(|new - old| / |raw|) over all samples; raw intensities that are zero
// relative to the largest one make the criterion undefined and are
// reported as ErrNumericInstability.
func (p PolyEnvelope) Estimate(y []float64) (Baseline, error) {
	n := len(y)
	switch {
	case p.Degree < 0:
		return Baseline{}, invalidf("polynomial degree %d < 0", p.Degree)
	case p.MaxIterations < 1:
		return Baseline{}, invalidf("max iterations %d < 1", p.MaxIterations)
	case math.IsNaN(p.GradientTolerance) || p.GradientTolerance < 0:
		return Baseline{}, invalidf("gradient tolerance %g < 0", p.GradientTolerance)
	case n < p.Degree+1:
		return Baseline{}, invalidf("%d samples cannot determine a degree %d polynomial", n, p.Degree)
	}

	maxAbs := floats.Norm(y, math.Inf(1))
	if maxAbs == 0 || math.IsNaN(maxAbs) || math.IsInf(maxAbs, 0) {
		return Baseline{}, instabilityf("intensity scale %g unusable for relative criterion", maxAbs)
	}
	floor := relativeFloor * maxAbs
	for i, v := range y {
		if math.Abs(v) <= floor {
			return Baseline{}, instabilityf("intensity %g at sample %d too close to zero", v, i)
		}
	}

	v := vandermonde(n, p.Degree)
	var qr mat.QR
	qr.Factorize(v)

	work := cloneFloats(y)
	workVec := mat.NewVecDense(n, work)
	coef := mat.NewVecDense(p.Degree+1, nil)
	fit := mat.NewVecDense(n, nil)

	b := Baseline{Method: PolynomialEnvelope}
	for it := 1; it <= p.MaxIterations; it++ {
		if err := qr.SolveVecTo(coef, false, workVec); err != nil {
			return Baseline{}, instabilityf("polynomial fit: %v", err)
		}
		fit.MulVec(v, coef)

		criterion := 0.0
		for i := range work {
			next := math.Min(fit.AtVec(i), y[i])
			criterion += math.Abs(next-work[i]) / math.Abs(y[i])
			work[i] = next
		}
		if math.IsNaN(criterion) || math.IsInf(criterion, 0) {
			return Baseline{}, instabilityf("convergence criterion %g at iteration %d", criterion, it)
		}
		b.Iterations = it
		if criterion < p.GradientTolerance {
			b.Converged = true
			break
		}
	}
	b.Curve = cloneFloats(fit.RawVector().Data)
	return b, nil
}

// vandermonde builds the n x (degree+1) design matrix over the sample index
// axis. The index is mapped linearly onto [-1, 1] to keep the matrix well
// conditioned; this does not change the fitted curve.
func vandermonde(n, degree int) *mat.Dense {
	v := mat.NewDense(n, degree+1, nil)
	for i := 0; i < n; i++ {
		t := 0.0
		if n > 1 {
			t = 2*float64(i)/float64(n-1) - 1
		}
		pow := 1.0
		for j := 0; j <= degree; j++ {
			v.Set(i, j, pow)
			pow *= t
		}
	}
	return v
}

// ALS is the asymmetric least squares (Whittaker smoother) baseline of
// Eilers & Boelens: a penalized fit whose weights favour points below
// the curve.
type ALS struct {
	Lambda     float64 // smoothness
	Asymmetry  float64 // weight of points above the baseline
	Iterations int
}

// DefaultALS returns lambda 100, asymmetry 0.01, 10 iterations
func DefaultALS() ALS {
	return ALS{Lambda: 100, Asymmetry: 0.01, Iterations: 10}
}

func (a ALS) Method() BaselineMethod {
	return AsymmetricLeastSquares
}

// Estimate implements BaselineEstimator. Each iteration solves
// (W + lambda*D*D') z = W*y with D the second order difference operator,
// then sets the weights to Asymmetry where y > z and 1-Asymmetry elsewhere.
func (a ALS) Estimate(y []float64) (Baseline, error) {
	n := len(y)
	switch {
	case n < 3:
		return Baseline{}, invalidf("asymmetric least squares needs at least 3 samples, got %d", n)
	case !(a.Lambda > 0) || math.IsInf(a.Lambda, 0):
		return Baseline{}, invalidf("lambda %g must be positive and finite", a.Lambda)
	case !(a.Asymmetry > 0 && a.Asymmetry < 1):
		return Baseline{}, invalidf("asymmetry %g must be in (0, 1)", a.Asymmetry)
	case a.Iterations < 1:
		return Baseline{}, invalidf("iterations %d < 1", a.Iterations)
	}

	penalty := differencePenalty(n, a.Lambda)
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	sys := mat.NewSymBandDense(n, 2, nil)
	rhs := mat.NewVecDense(n, nil)
	z := mat.NewVecDense(n, nil)
	var chol mat.BandCholesky

	for it := 0; it < a.Iterations; it++ {
		for i := 0; i < n; i++ {
			sys.SetSymBand(i, i, penalty[i][0]+w[i])
			if i+1 < n {
				sys.SetSymBand(i, i+1, penalty[i][1])
			}
			if i+2 < n {
				sys.SetSymBand(i, i+2, penalty[i][2])
			}
			rhs.SetVec(i, w[i]*y[i])
		}
		if ok := chol.Factorize(sys); !ok {
			return Baseline{}, instabilityf("penalized system not positive definite at iteration %d", it+1)
		}
		if err := chol.SolveVecTo(z, rhs); err != nil {
			return Baseline{}, instabilityf("penalized solve: %v", err)
		}
		for i := 0; i < n; i++ {
			if y[i] > z.AtVec(i) {
				w[i] = a.Asymmetry
			} else {
				w[i] = 1 - a.Asymmetry
			}
		}
	}

	curve := cloneFloats(z.RawVector().Data)
	for i, v := range curve {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Baseline{}, instabilityf("baseline not finite at sample %d", i)
		}
	}
	return Baseline{
		Method:     AsymmetricLeastSquares,
		Curve:      curve,
		Iterations: a.Iterations,
		Converged:  true,
	}, nil
}

// differencePenalty returns the upper band (diagonal, +1, +2) of
// lambda*D*D' where D is the n x (n-2) second difference matrix
func differencePenalty(n int, lambda float64) [][3]float64 {
	c := [3]float64{1, -2, 1}
	band := make([][3]float64, n)
	for j := 0; j < n-2; j++ {
		for a := 0; a < 3; a++ {
			for b := a; b < 3; b++ {
				band[j+a][b-a] += lambda * c[a] * c[b]
			}
		}
	}
	return band
}
