package raman

import (
	"fmt"
	"math"
	"strings"
)

// ModelKind selects one of the peak shapes. A composite model of kind k
// is the sum of len(params)/k.Arity() peaks of that shape.
type ModelKind int

const (
	Gaussian ModelKind = iota
	Lorentzian
	PseudoVoigt
)

// Parameter order of a single peak: center, FWHM, amplitude and, for
// PseudoVoigt only, the Lorentzian weight.
const (
	ParCenter = iota
	ParFWHM
	ParAmplitude
	ParLorentzWeight
)

const fourLn2 = 4 * math.Ln2

type shape struct {
	name  string
	arity int
	eval  func(x float64, p []float64) float64
	// grad writes d(eval)/dp into dst (len(dst) == arity)
	grad func(x float64, p []float64, dst []float64)
}

var shapes = [...]shape{
	Gaussian: {
		name:  "gaussian",
		arity: 3,
		eval: func(x float64, p []float64) float64 {
			return GaussianPeak(x, p[0], p[1], p[2])
		},
		grad: gaussianGrad,
	},
	Lorentzian: {
		name:  "lorentzian",
		arity: 3,
		eval: func(x float64, p []float64) float64 {
			return LorentzianPeak(x, p[0], p[1], p[2])
		},
		grad: lorentzianGrad,
	},
	PseudoVoigt: {
		name:  "pseudo-voigt",
		arity: 4,
		eval: func(x float64, p []float64) float64 {
			return PseudoVoigtPeak(x, p[0], p[1], p[2], p[3])
		},
		grad: pseudoVoigtGrad,
	},
}

// ModelKinds lists all known models
func ModelKinds() []ModelKind {
	return []ModelKind{Gaussian, Lorentzian, PseudoVoigt}
}

// ParseModelKind converts a model name ("gaussian", "lorentzian",
// "pseudo-voigt" or "glsum") to a ModelKind
func ParseModelKind(name string) (ModelKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gaussian", "gauss":
		return Gaussian, nil
	case "lorentzian", "lorentz":
		return Lorentzian, nil
	case "pseudo-voigt", "pseudovoigt", "voigt", "glsum":
		return PseudoVoigt, nil
	}
	return 0, invalidf("unknown peak model %q", name)
}

func (k ModelKind) valid() bool {
	return k >= 0 && int(k) < len(shapes)
}

func (k ModelKind) String() string {
	if !k.valid() {
		return fmt.Sprintf("ModelKind(%d)", int(k))
	}
	return shapes[k].name
}

// Arity is the number of parameters of a single peak
func (k ModelKind) Arity() int {
	if !k.valid() {
		return 0
	}
	return shapes[k].arity
}

// Peaks returns the number of peaks described by params, or an
// ErrInvalidParameter error if len(params) is not a positive multiple of
// the arity
func (k ModelKind) Peaks(params []float64) (int, error) {
	if !k.valid() {
		return 0, invalidf("unknown peak model %d", int(k))
	}
	a := shapes[k].arity
	if len(params) == 0 || len(params)%a != 0 {
		return 0, invalidf("%s takes parameters in groups of %d, got %d", k, a, len(params))
	}
	return len(params) / a, nil
}

// Eval evaluates the composite model at x
func (k ModelKind) Eval(x float64, params []float64) (float64, error) {
	if _, err := k.Peaks(params); err != nil {
		return 0, err
	}
	return k.eval(x, params), nil
}

// EvalTo evaluates the composite model at every xs[i] and stores the
// result in dst, which is allocated if nil
func (k ModelKind) EvalTo(dst, xs, params []float64) ([]float64, error) {
	if _, err := k.Peaks(params); err != nil {
		return nil, err
	}
	if dst == nil {
		dst = make([]float64, len(xs))
	}
	if len(dst) != len(xs) {
		return nil, mismatchf("destination has %d elements, axis %d", len(dst), len(xs))
	}
	for i, x := range xs {
		dst[i] = k.eval(x, params)
	}
	return dst, nil
}

// eval assumes a validated parameter count
func (k ModelKind) eval(x float64, params []float64) float64 {
	sh := shapes[k]
	sum := 0.0
	for i := 0; i < len(params); i += sh.arity {
		sum += sh.eval(x, params[i:i+sh.arity])
	}
	return sum
}

// gradTo writes the partial derivatives of the composite model at x
func (k ModelKind) gradTo(dst []float64, x float64, params []float64) {
	sh := shapes[k]
	for i := 0; i < len(params); i += sh.arity {
		sh.grad(x, params[i:i+sh.arity], dst[i:i+sh.arity])
	}
}

// GaussianPeak is amplitude*exp(-4 ln2 ((x-center)/fwhm)^2)
func GaussianPeak(x, center, fwhm, amplitude float64) float64 {
	u := (x - center) / fwhm
	return amplitude * math.Exp(-fourLn2*u*u)
}

// LorentzianPeak is amplitude/(1 + 4((x-center)/fwhm)^2)
func LorentzianPeak(x, center, fwhm, amplitude float64) float64 {
	u := (x - center) / fwhm
	return amplitude / (1 + 4*u*u)
}

// PseudoVoigtPeak blends a Gaussian and a Lorentzian of the same center,
// width and amplitude; weight 0 is purely Gaussian, 1 purely Lorentzian
func PseudoVoigtPeak(x, center, fwhm, amplitude, weight float64) float64 {
	return GaussianPeak(x, center, fwhm, amplitude)*(1-weight) +
		LorentzianPeak(x, center, fwhm, amplitude)*weight
}

func gaussianGrad(x float64, p []float64, dst []float64) {
	c, f, a := p[0], p[1], p[2]
	u := (x - c) / f
	e := math.Exp(-fourLn2 * u * u)
	g := a * e
	dst[ParCenter] = g * 2 * fourLn2 * u / f
	dst[ParFWHM] = g * 2 * fourLn2 * u * u / f
	dst[ParAmplitude] = e
}

func lorentzianGrad(x float64, p []float64, dst []float64) {
	c, f, a := p[0], p[1], p[2]
	u := (x - c) / f
	d := 1 + 4*u*u
	dst[ParCenter] = a * 8 * u / (f * d * d)
	dst[ParFWHM] = a * 8 * u * u / (f * d * d)
	dst[ParAmplitude] = 1 / d
}

func pseudoVoigtGrad(x float64, p []float64, dst []float64) {
	w := p[3]
	var g, l [3]float64
	gaussianGrad(x, p[:3], g[:])
	lorentzianGrad(x, p[:3], l[:])
	for i := 0; i < 3; i++ {
		dst[i] = g[i]*(1-w) + l[i]*w
	}
	dst[ParLorentzWeight] = LorentzianPeak(x, p[0], p[1], p[2]) - GaussianPeak(x, p[0], p[1], p[2])
}
