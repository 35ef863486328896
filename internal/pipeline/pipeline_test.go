package pipeline

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/524D/ramanspec/internal/recipe"
	"github.com/524D/ramanspec/raman"
)

func testSpectrum(t *testing.T) *raman.Spectrum {
	t.Helper()
	n := 1601
	w := make([]float64, n)
	y := make([]float64, n)
	for i := range w {
		x := 200 + float64(i)
		w[i] = x
		y[i] = 50 + 0.02*x + raman.LorentzianPeak(x, 520, 6, 100) + raman.GaussianPeak(x, 1000, 20, 40)
	}
	s, err := raman.NewFromSource(w, y, "silicon", "silicon.txt")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

const testRecipe = `
version: "1.0"
range: {start: 300, end: 1500}
baseline: {method: als, lambda: 1e5, asymmetry: 0.001}
scale: 2
peaks: {min_prominence: 20}
fits:
  - name: silicon
    model: lorentzian
    start: 505
    end: 535
    initial: [518, 7, 180]
  - name: starved
    model: gaussian
    start: 950
    end: 1050
    initial: [990, 30, 50]
    max_evaluations: 3
`

func TestRun(t *testing.T) {
	r, err := recipe.Parse([]byte(testRecipe))
	if err != nil {
		t.Fatalf("recipe.Parse: %v", err)
	}
	s := testSpectrum(t)
	res, err := Run(context.Background(), s, r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var steps []string
	for _, st := range res.Report.Steps {
		steps = append(steps, st.Name)
	}
	if diff := cmp.Diff([]string{"load", "restrict", "als-baseline", "scale"}, steps); diff != "" {
		t.Errorf("steps (-want +got):\n%s", diff)
	}
	if res.Report.Steps[0].ID != s.ID().String() || res.Report.ID != res.Final.ID().String() {
		t.Errorf("report IDs do not match the spectra")
	}
	if res.Final.Label() != "als baseline corrected silicon scaled by 2" {
		t.Errorf("final label %q", res.Final.Label())
	}
	if res.Report.Source != "silicon.txt" || res.Report.BaselineMethod != "Asymmetric least square" {
		t.Errorf("report source %q baseline %q", res.Report.Source, res.Report.BaselineMethod)
	}
	if res.BaselineState == nil {
		t.Fatalf("no baseline state")
	}
	if _, ok := res.BaselineState.Baseline(); !ok {
		t.Errorf("baseline state has no baseline")
	}

	var peaks []float64
	for _, p := range res.Report.Peaks {
		peaks = append(peaks, p.Wavenumber)
	}
	if diff := cmp.Diff([]float64{520, 1000}, peaks); diff != "" {
		t.Errorf("peak positions (-want +got):\n%s", diff)
	}

	if len(res.Report.Fits) != 2 || len(res.Fits) != 2 {
		t.Fatalf("%d fit reports, %d fits", len(res.Report.Fits), len(res.Fits))
	}
	si := res.Report.Fits[0]
	if si.Error != "" {
		t.Fatalf("silicon fit: %s", si.Error)
	}
	if math.Abs(si.Params[0]-520) > 0.2 || math.Abs(si.Params[1]-6) > 0.3 || math.Abs(si.Params[2]-200)/200 > 0.05 {
		t.Errorf("silicon fit parameters %v", si.Params)
	}
	if si.Model != "lorentzian" || si.Method != "levenberg-marquardt" || len(si.StdErr) != 3 || len(si.Covariance) != 3 {
		t.Errorf("silicon fit report %+v", si)
	}
	starved := res.Report.Fits[1]
	if starved.Error == "" || res.Fits[1] != nil {
		t.Errorf("fit with 3 evaluations reported no error")
	}
}

func TestRunErrors(t *testing.T) {
	s := testSpectrum(t)
	r, err := recipe.Parse([]byte("version: \"1.0\"\nsmooth: {window: 5001, degree: 2}\n"))
	if err != nil {
		t.Fatalf("recipe.Parse: %v", err)
	}
	if _, err := Run(context.Background(), s, r); !errors.Is(err, raman.ErrInvalidParameter) {
		t.Errorf("window longer than spectrum: error %v, expected ErrInvalidParameter", err)
	}

	r, err = recipe.Parse([]byte(testRecipe))
	if err != nil {
		t.Fatalf("recipe.Parse: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, s, r); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled run: error %v, expected context.Canceled", err)
	}
}

func TestReportRoundTrip(t *testing.T) {
	s := testSpectrum(t)
	// Three samples for three parameters leave the covariance undetermined
	r, err := recipe.Parse([]byte(`
version: "1.0"
resample: {start: 400, end: 700, points: 301}
fits:
  - model: lorentzian
    start: 519
    end: 522
    initial: [520, 6, 100]
`))
	if err != nil {
		t.Fatalf("recipe.Parse: %v", err)
	}
	res, err := Run(context.Background(), s, r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	fr := res.Report.Fits[0]
	if fr.Error != "" || !math.IsInf(float64(fr.StdErr[0]), 1) {
		t.Fatalf("fit report %+v, expected infinite standard errors", fr)
	}

	var buf bytes.Buffer
	if err := WriteReport(&buf, res.Report); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if !strings.Contains(buf.String(), "null") {
		t.Errorf("infinite covariance not written as null")
	}
	got, err := ReadReport(&buf)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if diff := cmp.Diff(res.Report, got); diff != "" {
		t.Errorf("report round trip (-want +got):\n%s", diff)
	}

	path := filepath.Join(t.TempDir(), "silicon-report.json")
	if err := WriteReportFile(path, res.Report); err != nil {
		t.Fatalf("WriteReportFile: %v", err)
	}
	if _, err := ReadReportFile(path); err != nil {
		t.Errorf("ReadReportFile: %v", err)
	}
}

func TestReadReportVersion(t *testing.T) {
	for _, doc := range []string{`{"FormatVersion": "2.1"}`, `{"FormatVersion": ""}`, `{}`} {
		if _, err := ReadReport(strings.NewReader(doc)); !errors.Is(err, ErrReportVersion) {
			t.Errorf("ReadReport(%s): error %v, expected ErrReportVersion", doc, err)
		}
	}
	if _, err := ReadReport(strings.NewReader(`{"FormatVersion": "1.3", "Label": "x"}`)); err != nil {
		t.Errorf("ReadReport of version 1.3: %v", err)
	}
}
