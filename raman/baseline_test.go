package raman

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
)

func TestPolyEnvelopeConstantFloor(t *testing.T) {
	s := synthetic(t, 1000, "flat with peaks", func(x float64) float64 {
		return 5 + GaussianPeak(x, 300, 10, 40) + GaussianPeak(x, 700, 15, 25)
	})
	est := PolyEnvelope{Degree: 0, MaxIterations: 100, GradientTolerance: 0.001}
	b, err := est.Estimate(s.Intensity())
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if !b.Converged {
		t.Errorf("not converged after %d iterations", b.Iterations)
	}
	for i, v := range b.Curve {
		if math.Abs(v-5) > 0.01 {
			t.Fatalf("baseline[%d] = %g, expected 5", i, v)
		}
	}
}

func TestPolyEnvelopeBelowPeaks(t *testing.T) {
	s := synthetic(t, 500, "tilted", func(x float64) float64 {
		return 100 + 0.2*x + 1e-4*x*x + GaussianPeak(x, 250, 12, 60)
	})
	b, err := DefaultPolyEnvelope().Estimate(s.Intensity())
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	y := s.Intensity()
	if y[250]-b.Curve[250] < 55 {
		t.Errorf("baseline follows the peak: raw %g baseline %g", y[250], b.Curve[250])
	}
	// Away from the peak the envelope stays under the data, within 2% of
	// the background
	bg := 100 + 0.2*10 + 1e-4*10*10
	if b.Curve[10] > y[10] || math.Abs(b.Curve[10]-bg)/bg > 0.02 {
		t.Errorf("baseline away from the peak: raw %g background %g baseline %g", y[10], bg, b.Curve[10])
	}
}

func TestPolyEnvelopeIterationCap(t *testing.T) {
	s := synthetic(t, 200, "peak", func(x float64) float64 {
		return 10 + GaussianPeak(x, 100, 30, 100)
	})
	b, err := PolyEnvelope{Degree: 1, MaxIterations: 1, GradientTolerance: 0}.Estimate(s.Intensity())
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if b.Converged || b.Iterations != 1 {
		t.Errorf("Converged %v after %d iterations, expected a capped run", b.Converged, b.Iterations)
	}
}

func TestPolyEnvelopeErrors(t *testing.T) {
	y := []float64{1, 2, 3, 4, 5}
	for _, p := range []PolyEnvelope{
		{Degree: -1, MaxIterations: 10, GradientTolerance: 0.001},
		{Degree: 2, MaxIterations: 0, GradientTolerance: 0.001},
		{Degree: 2, MaxIterations: 10, GradientTolerance: -1},
		{Degree: 5, MaxIterations: 10, GradientTolerance: 0.001},
	} {
		if _, err := p.Estimate(y); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%+v: error %v, expected ErrInvalidParameter", p, err)
		}
	}

	for _, y := range [][]float64{{1, 0, 3, 4}, {0, 0, 0, 0}} {
		if _, err := DefaultPolyEnvelope().Estimate(y); !errors.Is(err, ErrNumericInstability) {
			t.Errorf("Estimate(%v): error %v, expected ErrNumericInstability", y, err)
		}
	}
}

func TestALSBelowRaw(t *testing.T) {
	const amp = 50
	s := synthetic(t, 1000, "ramp", func(x float64) float64 {
		return 10 + 0.01*x + GaussianPeak(x, 500, 30, amp)
	})
	b, err := ALS{Lambda: 1e4, Asymmetry: 1e-4, Iterations: 10}.Estimate(s.Intensity())
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	y := s.Intensity()
	for i, z := range b.Curve {
		if z > y[i]+0.01*amp {
			t.Fatalf("baseline[%d] = %g above raw %g", i, z, y[i])
		}
	}
	if y[500]-b.Curve[500] < 0.8*amp {
		t.Errorf("baseline follows the peak: raw %g baseline %g", y[500], b.Curve[500])
	}
}

func TestALSErrors(t *testing.T) {
	y := []float64{1, 2, 3, 4, 5}
	for _, a := range []ALS{
		{Lambda: 0, Asymmetry: 0.01, Iterations: 10},
		{Lambda: math.Inf(1), Asymmetry: 0.01, Iterations: 10},
		{Lambda: 100, Asymmetry: 0, Iterations: 10},
		{Lambda: 100, Asymmetry: 1, Iterations: 10},
		{Lambda: 100, Asymmetry: 0.01, Iterations: 0},
	} {
		if _, err := a.Estimate(y); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%+v: error %v, expected ErrInvalidParameter", a, err)
		}
	}
	if _, err := DefaultALS().Estimate([]float64{1, 2}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("two samples: error %v, expected ErrInvalidParameter", err)
	}
}

func TestDifferencePenalty(t *testing.T) {
	const n, lambda = 7, 3.0
	d := mat.NewDense(n, n-2, nil)
	for j := 0; j < n-2; j++ {
		d.Set(j, j, 1)
		d.Set(j+1, j, -2)
		d.Set(j+2, j, 1)
	}
	var want mat.Dense
	want.Mul(d, d.T())
	want.Scale(lambda, &want)

	band := differencePenalty(n, lambda)
	for i := 0; i < n; i++ {
		for k := 0; k < 3 && i+k < n; k++ {
			if got := band[i][k]; got != want.At(i, i+k) {
				t.Errorf("penalty(%d, %d) = %g, expected %g", i, i+k, got, want.At(i, i+k))
			}
		}
	}
}

func TestEstimateBaseline(t *testing.T) {
	s := synthetic(t, 300, "raw", func(x float64) float64 {
		return 20 + 0.05*x + GaussianPeak(x, 150, 10, 30)
	})
	before := s.Intensity()
	for _, tt := range []struct {
		est   BaselineEstimator
		label string
		step  string
	}{
		{DefaultPolyEnvelope(), "modpoly baseline corrected raw", "modpoly-baseline"},
		{DefaultALS(), "als baseline corrected raw", "als-baseline"},
	} {
		annotated, corrected, err := EstimateBaseline(s, tt.est)
		if err != nil {
			t.Fatalf("%v: %v", tt.est.Method(), err)
		}
		if diff := cmp.Diff(before, s.Intensity()); diff != "" {
			t.Errorf("%v modified its input (-want +got):\n%s", tt.est.Method(), diff)
		}
		if _, ok := s.Baseline(); ok {
			t.Errorf("%v recorded a baseline on its input", tt.est.Method())
		}
		curve, ok := annotated.Baseline()
		if !ok || annotated.BaselineMethod() != tt.est.Method() {
			t.Fatalf("annotated spectrum has baseline %v, method %v", ok, annotated.BaselineMethod())
		}
		if diff := cmp.Diff(before, annotated.Intensity()); diff != "" {
			t.Errorf("annotated intensities differ from raw (-want +got):\n%s", diff)
		}
		got := corrected.Intensity()
		for i := range got {
			got[i] += curve[i]
		}
		if diff := cmp.Diff(before, got, approx(1e-9)); diff != "" {
			t.Errorf("corrected + baseline != raw (-want +got):\n%s", diff)
		}
		if corrected.Label() != tt.label || corrected.Step() != tt.step {
			t.Errorf("corrected label %q step %q, expected %q %q", corrected.Label(), corrected.Step(), tt.label, tt.step)
		}
	}
}
