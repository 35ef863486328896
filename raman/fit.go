package raman

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// FitMethod selects the minimizer used by Fit
type FitMethod int

const (
	LevenbergMarquardt FitMethod = iota
	NelderMead
)

func (m FitMethod) String() string {
	switch m {
	case LevenbergMarquardt:
		return "levenberg-marquardt"
	case NelderMead:
		return "nelder-mead"
	}
	return fmt.Sprintf("FitMethod(%d)", int(m))
}

// ParseFitMethod accepts "lm", "levenberg-marquardt", "nm" and "nelder-mead"
func ParseFitMethod(name string) (FitMethod, error) {
	switch name {
	case "", "lm", "levenberg-marquardt":
		return LevenbergMarquardt, nil
	case "nm", "nelder-mead":
		return NelderMead, nil
	}
	return 0, invalidf("unknown fit method %q", name)
}

// DefaultMaxEvaluations caps the number of model evaluations of a fit
const DefaultMaxEvaluations = 10000

// Tolerances of the Levenberg–Marquardt iteration. A step is final when the
// relative SSR reduction or the relative parameter change drops below these.
const (
	lmFTol = 1.49012e-8
	lmXTol = 1.49012e-8
	// damping above this means no downhill step exists at working precision
	lmMaxDamping = 1e16
)

// Bounds are per-parameter box constraints; use ±Inf for no limit
type Bounds struct {
	Lower []float64
	Upper []float64
}

// FitOptions configures Fit. Either Initial or Bounds must be set, since
// they determine the number of parameters.
type FitOptions struct {
	Initial        []float64
	Bounds         *Bounds
	Method         FitMethod
	MaxEvaluations int // 0: DefaultMaxEvaluations
}

// FitResult holds fitted parameters and the data they were fitted to
type FitResult struct {
	Kind        ModelKind
	Method      FitMethod
	Params      []float64
	Covariance  *mat.SymDense // inv(J'J) * SSR/(m-n); all +Inf if undetermined
	SSR         float64
	Evaluations int
	X           []float64
	Y           []float64
}

// Peaks is the number of fitted peaks
func (r *FitResult) Peaks() int {
	return len(r.Params) / r.Kind.Arity()
}

// Component evaluates fitted peak i alone over X
func (r *FitResult) Component(i int) ([]float64, error) {
	a := r.Kind.Arity()
	if i < 0 || i >= r.Peaks() {
		return nil, invalidf("component %d out of range [0, %d)", i, r.Peaks())
	}
	return r.Kind.EvalTo(nil, r.X, r.Params[i*a:(i+1)*a])
}

// Curve evaluates the complete fitted model over X
func (r *FitResult) Curve() []float64 {
	y := make([]float64, len(r.X))
	for i, x := range r.X {
		y[i] = r.Kind.eval(x, r.Params)
	}
	return y
}

// StdErr returns the square roots of the covariance diagonal
func (r *FitResult) StdErr() []float64 {
	n := len(r.Params)
	se := make([]float64, n)
	for i := range se {
		se[i] = math.Sqrt(r.Covariance.At(i, i))
	}
	return se
}

// Fit fits a composite model of kind to the samples of s in
// [start, end) (see RestrictTo) by least squares.
func Fit(s *Spectrum, kind ModelKind, start, end float64, opts FitOptions) (*FitResult, error) {
	p0, lo, hi, err := initialGuess(kind, opts)
	if err != nil {
		return nil, err
	}
	maxEval := opts.MaxEvaluations
	switch {
	case maxEval == 0:
		maxEval = DefaultMaxEvaluations
	case maxEval < 0:
		return nil, invalidf("max evaluations %d < 0", maxEval)
	}
	i, j, err := rangeIndices(s.wavenumber, start, end)
	if err != nil {
		return nil, err
	}
	p := &problem{
		kind: kind,
		x:    cloneFloats(s.wavenumber[i:j]),
		y:    cloneFloats(s.intensity[i:j]),
		lo:   lo,
		hi:   hi,
		max:  maxEval,
	}

	var params []float64
	switch opts.Method {
	case LevenbergMarquardt:
		params, err = p.levenbergMarquardt(p0)
	case NelderMead:
		params, err = p.nelderMead(p0)
	default:
		return nil, invalidf("unknown fit method %d", int(opts.Method))
	}
	if err != nil {
		return nil, err
	}

	ssr := p.ssr(params)
	if math.IsNaN(ssr) || math.IsInf(ssr, 0) {
		return nil, instabilityf("sum of squared residuals %g", ssr)
	}
	return &FitResult{
		Kind:        kind,
		Method:      opts.Method,
		Params:      params,
		Covariance:  p.covariance(params, ssr),
		SSR:         ssr,
		Evaluations: p.evals,
		X:           p.x,
		Y:           p.y,
	}, nil
}

// initialGuess validates the options and returns the starting point and
// the (possibly infinite) bounds
func initialGuess(kind ModelKind, opts FitOptions) ([]float64, []float64, []float64, error) {
	var n int
	switch {
	case opts.Initial != nil:
		n = len(opts.Initial)
	case opts.Bounds != nil:
		n = len(opts.Bounds.Lower)
	default:
		return nil, nil, nil, invalidf("fit needs an initial guess or bounds")
	}
	if _, err := kind.Peaks(make([]float64, n)); err != nil {
		return nil, nil, nil, err
	}

	lo := make([]float64, n)
	hi := make([]float64, n)
	if b := opts.Bounds; b != nil {
		if len(b.Lower) != n || len(b.Upper) != n {
			return nil, nil, nil, invalidf("bounds have %d/%d entries, expected %d", len(b.Lower), len(b.Upper), n)
		}
		copy(lo, b.Lower)
		copy(hi, b.Upper)
	} else {
		for k := range lo {
			lo[k], hi[k] = math.Inf(-1), math.Inf(1)
		}
	}
	for k := range lo {
		if math.IsNaN(lo[k]) || math.IsNaN(hi[k]) || lo[k] > hi[k] {
			return nil, nil, nil, invalidf("parameter %d: bounds %g:%g", k, lo[k], hi[k])
		}
	}

	if opts.Initial != nil {
		p0 := cloneFloats(opts.Initial)
		for k, v := range p0 {
			if math.IsNaN(v) || v < lo[k] || v > hi[k] {
				return nil, nil, nil, invalidf("initial parameter %d = %g outside bounds %g:%g", k, v, lo[k], hi[k])
			}
		}
		return p0, lo, hi, nil
	}

	p0 := make([]float64, n)
	for k := range p0 {
		loFinite, hiFinite := !math.IsInf(lo[k], 0), !math.IsInf(hi[k], 0)
		switch {
		case loFinite && hiFinite:
			p0[k] = lo[k] + (hi[k]-lo[k])/2
		case loFinite:
			p0[k] = lo[k] + 1
		case hiFinite:
			p0[k] = hi[k] - 1
		default:
			p0[k] = 1
		}
	}
	return p0, lo, hi, nil
}

// problem is one least squares fit over fixed data
type problem struct {
	kind   ModelKind
	x, y   []float64
	lo, hi []float64
	max    int
	evals  int
}

func (p *problem) clamp(params []float64) {
	for k := range params {
		params[k] = math.Max(p.lo[k], math.Min(p.hi[k], params[k]))
	}
}

// residuals writes model - data into r and counts one evaluation
func (p *problem) residuals(r, params []float64) {
	p.evals++
	for i, x := range p.x {
		r[i] = p.kind.eval(x, params) - p.y[i]
	}
}

func (p *problem) ssr(params []float64) float64 {
	r := make([]float64, len(p.x))
	for i, x := range p.x {
		r[i] = p.kind.eval(x, params) - p.y[i]
	}
	return floats.Dot(r, r)
}

func (p *problem) jacobian(jac *mat.Dense, params []float64) {
	for i, x := range p.x {
		p.kind.gradTo(jac.RawRowView(i), x, params)
	}
}

// levenbergMarquardt minimizes the SSR with Marquardt's diagonal scaling.
// Steps leaving the box are projected back onto it.
func (p *problem) levenbergMarquardt(p0 []float64) ([]float64, error) {
	m, n := len(p.x), len(p0)
	params := cloneFloats(p0)
	trial := make([]float64, n)
	r := make([]float64, m)
	rTrial := make([]float64, m)
	jac := mat.NewDense(m, n, nil)
	var jtj mat.SymDense
	jtr := mat.NewVecDense(n, nil)
	damped := mat.NewSymDense(n, nil)
	step := mat.NewVecDense(n, nil)
	var chol mat.Cholesky

	p.residuals(r, params)
	ssr := floats.Dot(r, r)
	lambda := 1e-3
	for {
		if ssr == 0 {
			return params, nil
		}
		p.jacobian(jac, params)
		jtj.SymOuterK(1, jac.T())
		jtr.MulVec(jac.T(), mat.NewVecDense(m, r))

		improved := false
		for !improved {
			if p.evals >= p.max {
				return nil, fmt.Errorf("%w: %d evaluations, SSR %g", ErrFitDivergence, p.evals, ssr)
			}
			damped.CopySym(&jtj)
			for k := 0; k < n; k++ {
				d := jtj.At(k, k)
				if d == 0 {
					d = 1
				}
				damped.SetSym(k, k, jtj.At(k, k)+lambda*d)
			}
			if !chol.Factorize(damped) || chol.SolveVecTo(step, jtr) != nil {
				lambda *= 10
				if lambda > lmMaxDamping {
					return params, nil
				}
				continue
			}
			for k := range trial {
				trial[k] = params[k] - step.AtVec(k)
			}
			p.clamp(trial)
			p.residuals(rTrial, trial)
			next := floats.Dot(rTrial, rTrial)
			if math.IsNaN(next) || next >= ssr {
				lambda *= 10
				if lambda > lmMaxDamping {
					return params, nil
				}
				continue
			}
			improved = true

			reduction := (ssr - next) / ssr
			dx := floats.Distance(trial, params, 2)
			xnorm := floats.Norm(params, 2)
			copy(params, trial)
			copy(r, rTrial)
			ssr = next
			lambda = math.Max(lambda/10, 1e-12)
			if reduction <= lmFTol || dx <= lmXTol*(xnorm+lmXTol) {
				return params, nil
			}
		}
	}
}

// nelderMead minimizes the SSR with gonum's simplex method. The bounds are
// enforced by projecting every probe point onto the box.
func (p *problem) nelderMead(p0 []float64) ([]float64, error) {
	buf := make([]float64, len(p0))
	r := make([]float64, len(p.x))
	prob := optimize.Problem{
		Func: func(x []float64) float64 {
			copy(buf, x)
			p.clamp(buf)
			p.residuals(r, buf)
			return floats.Dot(r, r)
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: p.max,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 200,
		},
	}
	res, err := optimize.Minimize(prob, p0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFitDivergence, err)
	}
	switch res.Status {
	case optimize.FunctionEvaluationLimit, optimize.IterationLimit,
		optimize.RuntimeLimit, optimize.GradientEvaluationLimit, optimize.Failure:
		return nil, fmt.Errorf("%w: %v after %d evaluations", ErrFitDivergence, res.Status, res.Stats.FuncEvaluations)
	}
	params := cloneFloats(res.X)
	p.clamp(params)
	return params, nil
}

// covariance returns inv(J'J) * ssr/(m-n) at params. When it cannot be
// determined every entry is +Inf.
func (p *problem) covariance(params []float64, ssr float64) *mat.SymDense {
	m, n := len(p.x), len(params)
	cov := mat.NewSymDense(n, nil)
	undetermined := func() *mat.SymDense {
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				cov.SetSym(i, j, math.Inf(1))
			}
		}
		return cov
	}
	if m <= n {
		return undetermined()
	}
	jac := mat.NewDense(m, n, nil)
	p.jacobian(jac, params)
	var jtj mat.SymDense
	jtj.SymOuterK(1, jac.T())
	var chol mat.Cholesky
	if !chol.Factorize(&jtj) {
		return undetermined()
	}
	if err := chol.InverseTo(cov); err != nil {
		return undetermined()
	}
	cov.ScaleSym(ssr/float64(m-n), cov)
	return cov
}
