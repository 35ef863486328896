// Package pipeline applies a recipe to a spectrum and summarizes the
// outcome in a JSON report.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/524D/ramanspec/internal/recipe"
	"github.com/524D/ramanspec/raman"
)

// Result holds the spectra produced by Run
type Result struct {
	// Final is the spectrum after all transforms
	Final *raman.Spectrum
	// BaselineState is the input of the baseline step with the baseline
	// recorded, nil if the recipe has no baseline section
	BaselineState *raman.Spectrum
	Fits          []*raman.FitResult // nil entries for fits that diverged
	Report        Report
}

// Run executes the recipe on s in the order range, smooth, baseline,
// resample, scale, peaks, fits. A fit that does not converge is recorded
// in the report; every other error aborts the run.
func Run(ctx context.Context, s *raman.Spectrum, r *recipe.Recipe) (*Result, error) {
	res := &Result{}
	rep := &res.Report
	rep.FormatVersion = FormatVersion
	rep.Label = s.Label()
	rep.Source = s.Source()
	rep.Steps = append(rep.Steps, stepOf(s))

	cur := s
	advance := func(next *raman.Spectrum) {
		cur = next
		rep.Steps = append(rep.Steps, stepOf(next))
	}
	var err error

	if r.Range != nil {
		if r.Range.End == nil {
			advance(raman.Restrict(cur, r.Range.Start))
		} else {
			next, err := raman.RestrictTo(cur, r.Range.Start, *r.Range.End)
			if err != nil {
				return nil, fmt.Errorf("range: %w", err)
			}
			advance(next)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.Smooth != nil {
		next, err := raman.Smooth(cur, r.Smooth.Window, r.Smooth.Degree)
		if err != nil {
			return nil, fmt.Errorf("smooth: %w", err)
		}
		advance(next)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.Baseline != nil {
		est, err := r.Baseline.Estimator()
		if err != nil {
			return nil, fmt.Errorf("baseline: %w", err)
		}
		var corrected *raman.Spectrum
		res.BaselineState, corrected, err = raman.EstimateBaseline(cur, est)
		if err != nil {
			return nil, fmt.Errorf("baseline: %w", err)
		}
		rep.BaselineMethod = est.Method().String()
		advance(corrected)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.Resample != nil {
		next, err := raman.Interpolate(cur, r.Resample.Start, r.Resample.End, r.Resample.Points)
		if err != nil {
			return nil, fmt.Errorf("resample: %w", err)
		}
		advance(next)
	}
	if r.Scale != nil {
		advance(raman.Scale(cur, *r.Scale))
	}

	if r.Peaks != nil {
		rep.Peaks, err = raman.Detect(cur, r.Peaks.Options()...)
		if err != nil {
			return nil, fmt.Errorf("peaks: %w", err)
		}
	}

	for i := range r.Fits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := &r.Fits[i]
		fr, err := runFit(cur, f)
		if err != nil && !errors.Is(err, raman.ErrFitDivergence) {
			return nil, fmt.Errorf("fit %s: %w", f.Label(), err)
		}
		res.Fits = append(res.Fits, fr)
		rep.Fits = append(rep.Fits, fitReport(f, fr, err))
	}

	res.Final = cur
	rep.ID = cur.ID().String()
	return res, nil
}

func runFit(s *raman.Spectrum, f *recipe.Fit) (*raman.FitResult, error) {
	kind, err := f.Kind()
	if err != nil {
		return nil, err
	}
	opts, err := f.Options()
	if err != nil {
		return nil, err
	}
	return raman.Fit(s, kind, f.Start, f.End, opts)
}

func stepOf(s *raman.Spectrum) Step {
	return Step{Name: s.Step(), ID: s.ID().String(), Label: s.Label()}
}
