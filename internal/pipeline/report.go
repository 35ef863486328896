package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/hashicorp/go-version"

	"github.com/524D/ramanspec/internal/recipe"
	"github.com/524D/ramanspec/raman"
)

// FormatVersion of the report, used when storing/loading reports in
// JSON format for different versions of the software
const FormatVersion = "1.0"

const readableVersions = ">= 1.0, < 2.0"

// ErrReportVersion means a report was written in an unsupported format
var ErrReportVersion = errors.New("pipeline: unsupported report version")

// Report summarizes the processing of one spectrum
type Report struct {
	FormatVersion  string
	Label          string
	Source         string `json:",omitempty"`
	ID             string // ID of the final spectrum
	Steps          []Step
	BaselineMethod string       `json:",omitempty"`
	Peaks          []raman.Peak `json:",omitempty"`
	Fits           []FitReport  `json:",omitempty"`
}

// Step is one spectrum in the processing chain
type Step struct {
	Name  string
	ID    string
	Label string
}

// FitReport holds the outcome of one recipe fit. Error is set if the fit
// did not converge.
type FitReport struct {
	Name        string
	Model       string
	Method      string
	Start       float64
	End         float64
	Params      []float64 `json:",omitempty"`
	StdErr      []Float   `json:",omitempty"`
	Covariance  [][]Float `json:",omitempty"`
	SSR         float64
	Evaluations int
	Error       string `json:",omitempty"`
}

// Float is a float64 that encodes non-finite values as JSON null. A null
// decodes as +Inf, the value of an undetermined covariance.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float(math.Inf(1))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

func fitReport(f *recipe.Fit, fr *raman.FitResult, err error) FitReport {
	r := FitReport{
		Name:   f.Label(),
		Model:  f.Model,
		Method: f.Method,
		Start:  f.Start,
		End:    f.End,
	}
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Model = fr.Kind.String()
	r.Method = fr.Method.String()
	r.Params = fr.Params
	r.SSR = fr.SSR
	r.Evaluations = fr.Evaluations
	for _, se := range fr.StdErr() {
		r.StdErr = append(r.StdErr, Float(se))
	}
	n := len(fr.Params)
	r.Covariance = make([][]Float, n)
	for i := range r.Covariance {
		r.Covariance[i] = make([]Float, n)
		for j := range r.Covariance[i] {
			r.Covariance[i][j] = Float(fr.Covariance.At(i, j))
		}
	}
	return r
}

// WriteReport writes rep as indented JSON
func WriteReport(w io.Writer, rep Report) error {
	e := json.NewEncoder(w)
	e.SetIndent(``, `  `) // Make output easier to read for humans
	return e.Encode(rep)
}

// WriteReportFile writes rep to filename
func WriteReportFile(filename string, rep Report) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteReport(f, rep); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadReport decodes a report and checks its format version
func ReadReport(r io.Reader) (Report, error) {
	var rep Report
	d := json.NewDecoder(r)
	if err := d.Decode(&rep); err != nil {
		return rep, err
	}
	v, err := version.NewVersion(rep.FormatVersion)
	if err != nil {
		return rep, fmt.Errorf("%w: %q", ErrReportVersion, rep.FormatVersion)
	}
	c, err := version.NewConstraint(readableVersions)
	if err != nil {
		return rep, err
	}
	if !c.Check(v) {
		return rep, fmt.Errorf("%w: %s", ErrReportVersion, rep.FormatVersion)
	}
	return rep, nil
}

// ReadReportFile reads a report written by WriteReportFile
func ReadReportFile(filename string) (Report, error) {
	f, err := os.Open(filename)
	if err != nil {
		return Report{}, err
	}
	defer f.Close()
	return ReadReport(f)
}
