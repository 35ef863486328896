// Package recipe loads processing recipes: YAML documents that list the
// transforms to apply to every spectrum of a batch.
package recipe

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/524D/ramanspec/raman"
)

// FormatVersion is the recipe format written by this version
const FormatVersion = "1.0"

// supportedVersions are the recipe formats that can be read
const supportedVersions = ">= 1.0, < 2.0"

var (
	// ErrVersion means the recipe format version is missing or unsupported
	ErrVersion = errors.New("recipe: unsupported version")
	// ErrInvalid means a recipe field has an unusable value
	ErrInvalid = errors.New("recipe: invalid")
)

// Recipe describes a processing pipeline. Nil sections are skipped.
type Recipe struct {
	Version  string    `yaml:"version"`
	Range    *Range    `yaml:"range,omitempty"`
	Smooth   *Smooth   `yaml:"smooth,omitempty"`
	Baseline *Baseline `yaml:"baseline,omitempty"`
	Resample *Resample `yaml:"resample,omitempty"`
	Scale    *float64  `yaml:"scale,omitempty"`
	Peaks    *Peaks    `yaml:"peaks,omitempty"`
	Fits     []Fit     `yaml:"fits,omitempty"`
}

// Range restricts the spectrum; an absent end keeps everything from start
type Range struct {
	Start float64  `yaml:"start"`
	End   *float64 `yaml:"end,omitempty"`
}

type Smooth struct {
	Window int `yaml:"window"`
	Degree int `yaml:"degree"`
}

// Baseline selects "modpoly" or "als". Absent fields take the defaults of
// the method; an explicit 0 is used as given.
type Baseline struct {
	Method string `yaml:"method"`

	// modpoly
	Degree        *int     `yaml:"degree,omitempty"`
	MaxIterations *int     `yaml:"max_iterations,omitempty"`
	Tolerance     *float64 `yaml:"tolerance,omitempty"`

	// als
	Lambda     *float64 `yaml:"lambda,omitempty"`
	Asymmetry  *float64 `yaml:"asymmetry,omitempty"`
	Iterations *int     `yaml:"iterations,omitempty"`
}

type Resample struct {
	Start  float64 `yaml:"start"`
	End    float64 `yaml:"end"`
	Points int     `yaml:"points"`
}

// Peaks configures peak detection; a zero max prominence means unbounded
type Peaks struct {
	SmoothWindow  int     `yaml:"smooth_window,omitempty"`
	SmoothDegree  int     `yaml:"smooth_degree,omitempty"`
	MinProminence float64 `yaml:"min_prominence,omitempty"`
	MaxProminence float64 `yaml:"max_prominence,omitempty"`
	MinHeight     float64 `yaml:"min_height,omitempty"`
}

// Fit is one peak fit over [Start, End)
type Fit struct {
	Name           string    `yaml:"name,omitempty"`
	Model          string    `yaml:"model"`
	Method         string    `yaml:"method,omitempty"`
	Start          float64   `yaml:"start"`
	End            float64   `yaml:"end"`
	Initial        []float64 `yaml:"initial,omitempty"`
	Lower          []float64 `yaml:"lower,omitempty"`
	Upper          []float64 `yaml:"upper,omitempty"`
	MaxEvaluations int       `yaml:"max_evaluations,omitempty"`
}

// Load reads and validates a recipe file
func Load(filename string) (*Recipe, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe file: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return r, nil
}

// Parse decodes and validates a recipe. Unknown keys are rejected.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse recipe: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Marshal encodes r as YAML
func (r *Recipe) Marshal() ([]byte, error) {
	return yaml.Marshal(r)
}

func invalidf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, a...))
}

// Validate checks the version and the values that can be checked without
// a spectrum
func (r *Recipe) Validate() error {
	if r.Version == "" {
		return fmt.Errorf("%w: no version", ErrVersion)
	}
	v, err := version.NewVersion(r.Version)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVersion, err)
	}
	c, err := version.NewConstraint(supportedVersions)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: %s, supported %s", ErrVersion, r.Version, supportedVersions)
	}

	if r.Range != nil && r.Range.End != nil && *r.Range.End <= r.Range.Start {
		return invalidf("range %g:%g", r.Range.Start, *r.Range.End)
	}
	if r.Smooth != nil && (r.Smooth.Window < 1 || r.Smooth.Window%2 == 0 || r.Smooth.Degree < 0 || r.Smooth.Degree >= r.Smooth.Window) {
		return invalidf("smooth window %d degree %d", r.Smooth.Window, r.Smooth.Degree)
	}
	if r.Baseline != nil {
		if _, err := r.Baseline.Estimator(); err != nil {
			return err
		}
	}
	if r.Resample != nil && (r.Resample.Points < 1 || (r.Resample.Points > 1 && r.Resample.Start >= r.Resample.End)) {
		return invalidf("resample %g:%g with %d points", r.Resample.Start, r.Resample.End, r.Resample.Points)
	}
	if r.Scale != nil && (math.IsNaN(*r.Scale) || math.IsInf(*r.Scale, 0)) {
		return invalidf("scale %g", *r.Scale)
	}
	if r.Peaks != nil {
		cfg := raman.ApplyPeakOptions(r.Peaks.Options()...)
		if cfg.MinProminence > cfg.MaxProminence {
			return invalidf("prominence %g:%g", cfg.MinProminence, cfg.MaxProminence)
		}
	}
	for i := range r.Fits {
		if _, err := r.Fits[i].Options(); err != nil {
			return fmt.Errorf("fit %d: %w", i, err)
		}
		if r.Fits[i].End <= r.Fits[i].Start {
			return invalidf("fit %d: range %g:%g", i, r.Fits[i].Start, r.Fits[i].End)
		}
	}
	return nil
}

// Estimator returns the baseline estimator described by b
func (b *Baseline) Estimator() (raman.BaselineEstimator, error) {
	switch b.Method {
	case "modpoly", "polyfit":
		p := raman.DefaultPolyEnvelope()
		setInt(&p.Degree, b.Degree)
		setInt(&p.MaxIterations, b.MaxIterations)
		setFloat(&p.GradientTolerance, b.Tolerance)
		if p.Degree < 0 || p.MaxIterations < 1 || p.GradientTolerance < 0 {
			return nil, invalidf("modpoly degree %d, %d iterations, tolerance %g", p.Degree, p.MaxIterations, p.GradientTolerance)
		}
		return p, nil
	case "als":
		a := raman.DefaultALS()
		setFloat(&a.Lambda, b.Lambda)
		setFloat(&a.Asymmetry, b.Asymmetry)
		setInt(&a.Iterations, b.Iterations)
		if !(a.Lambda > 0) || !(a.Asymmetry > 0 && a.Asymmetry < 1) || a.Iterations < 1 {
			return nil, invalidf("als lambda %g, asymmetry %g, %d iterations", a.Lambda, a.Asymmetry, a.Iterations)
		}
		return a, nil
	}
	return nil, invalidf("baseline method %q", b.Method)
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// Options converts the section to peak detection options
func (p *Peaks) Options() []raman.PeakOption {
	maxProm := p.MaxProminence
	if maxProm == 0 {
		maxProm = math.Inf(1)
	}
	opts := []raman.PeakOption{
		raman.WithProminence(p.MinProminence, maxProm),
		raman.WithMinHeight(p.MinHeight),
	}
	if p.SmoothWindow > 0 {
		opts = append(opts, raman.WithSmoothing(p.SmoothWindow, p.SmoothDegree))
	}
	return opts
}

// Kind returns the peak model of the fit
func (f *Fit) Kind() (raman.ModelKind, error) {
	k, err := raman.ParseModelKind(f.Model)
	if err != nil {
		return 0, invalidf("%v", err)
	}
	return k, nil
}

// Options converts the fit section to raman.FitOptions
func (f *Fit) Options() (raman.FitOptions, error) {
	var opts raman.FitOptions
	kind, err := f.Kind()
	if err != nil {
		return opts, err
	}
	opts.Method, err = raman.ParseFitMethod(f.Method)
	if err != nil {
		return opts, invalidf("%v", err)
	}
	if f.MaxEvaluations < 0 {
		return opts, invalidf("max evaluations %d", f.MaxEvaluations)
	}
	opts.MaxEvaluations = f.MaxEvaluations
	opts.Initial = f.Initial
	if f.Lower != nil || f.Upper != nil {
		if len(f.Lower) != len(f.Upper) {
			return opts, invalidf("%d lower and %d upper bounds", len(f.Lower), len(f.Upper))
		}
		opts.Bounds = &raman.Bounds{Lower: f.Lower, Upper: f.Upper}
	}
	n := len(f.Initial)
	if n == 0 {
		n = len(f.Lower)
	}
	if n == 0 || n%kind.Arity() != 0 {
		return opts, invalidf("%s needs parameters in groups of %d, got %d", kind, kind.Arity(), n)
	}
	return opts, nil
}

// Label returns the fit name, or model and range if it has none
func (f *Fit) Label() string {
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("%s %g:%g", f.Model, f.Start, f.End)
}
