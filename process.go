package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/524D/ramanspec/internal/mzml"
	"github.com/524D/ramanspec/internal/pipeline"
	"github.com/524D/ramanspec/internal/recipe"
	"github.com/524D/ramanspec/internal/spectxt"
	"github.com/524D/ramanspec/raman"
)

// processFiles applies the recipe to each file, at most par.jobs files at
// a time. The first error cancels the files that have not finished.
func processFiles(ctx context.Context, par *params, filenames []string) error {
	r, err := recipe.Load(par.recipeFilename)
	if err != nil {
		return err
	}
	if par.outDir != `` {
		if err := os.MkdirAll(par.outDir, 0o755); err != nil {
			return err
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(par.jobs)
	for _, fn := range filenames {
		fn := fn
		g.Go(func() error {
			if strings.EqualFold(filepath.Ext(fn), ".mzml") {
				return processMzML(ctx, par, r, fn)
			}
			return processText(ctx, par, r, fn)
		})
	}
	return g.Wait()
}

// outPath returns the output filename for input fn with suffix appended
// to the input name
func outPath(par *params, fn string, suffix string) string {
	dir := par.outDir
	if dir == `` {
		dir = filepath.Dir(fn)
	}
	return filepath.Join(dir, spectxt.Label(fn)+suffix)
}

func processText(ctx context.Context, par *params, r *recipe.Recipe, fn string) error {
	t := time.Now()
	s, err := spectxt.ReadFile(fn)
	if err != nil {
		return err
	}
	res, err := pipeline.Run(ctx, s, r)
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	debugLogResult(par, fn, res)

	if err := spectxt.WriteFile(outPath(par, fn, "-processed"+filepath.Ext(fn)), res.Final); err != nil {
		return err
	}
	if err := pipeline.WriteReportFile(outPath(par, fn, "-report.json"), res.Report); err != nil {
		return err
	}
	logResult(par, fn, res.Report, t)
	return nil
}

// processMzML runs the recipe on the spectra selected by --specfilter and
// writes the mzML file with those spectra replaced
func processMzML(ctx context.Context, par *params, r *recipe.Recipe, fn string) error {
	t := time.Now()
	f, err := os.Open(fn)
	if err != nil {
		return err
	}
	mzML, err := mzml.Read(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	if par.verbosity == infoVerbose {
		log.Printf("Read %s: %s", fn, time.Since(t))
	}

	// A file without spectra is written unchanged apart from the metadata
	minSpecIdx, maxSpecIdx := 0, -1
	if mzML.NumSpecs() > 0 {
		minSpecIdx, maxSpecIdx, err = parseIntRange(par.specFilter, 0, mzML.NumSpecs()-1)
		if err != nil {
			return fmt.Errorf("invalid --specfilter %q: %w", par.specFilter, err)
		}
	}
	for i := minSpecIdx; i <= maxSpecIdx; i++ {
		ts := time.Now()
		axis, intens, err := mzML.ReadSpectrum(i)
		if err != nil {
			return fmt.Errorf("%s spectrum %d: %w", fn, i, err)
		}
		title, err := mzML.SpectrumTitle(i)
		if err != nil {
			return err
		}
		s, err := raman.NewFromSource(axis, intens, title, fn)
		if err != nil {
			return fmt.Errorf("%s spectrum %d: %w", fn, i, err)
		}
		res, err := pipeline.Run(ctx, s, r)
		if err != nil {
			return fmt.Errorf("%s spectrum %d: %w", fn, i, err)
		}
		debugLogResult(par, fmt.Sprintf("%s:%d", fn, i), res)
		if err := mzML.UpdateSpectrum(i, res.Final.Wavenumber(), res.Final.Intensity()); err != nil {
			return err
		}
		reportFn := outPath(par, fn, fmt.Sprintf("-%d-report.json", i))
		if err := pipeline.WriteReportFile(reportFn, res.Report); err != nil {
			return err
		}
		logResult(par, fmt.Sprintf("%s spectrum %d", fn, i), res.Report, ts)
	}

	mzML.AppendSoftwareInfo(progName, progVersion)
	if proc, ok := dataProcessing(r); ok {
		mzML.AppendDataProcessing(proc)
	}
	out, err := os.Create(outPath(par, fn, "-processed.mzML"))
	if err != nil {
		return err
	}
	if err := mzML.Write(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// dataProcessing describes the transforms of the recipe for the mzML
// dataProcessingList. ok is false if the recipe changes no values.
func dataProcessing(r *recipe.Recipe) (mzml.DataProcessing, bool) {
	proc := mzml.DataProcessing{ID: progName}
	add := func(cv mzml.CVParam, name string) {
		proc.ProcessingMeth = append(proc.ProcessingMeth, mzml.ProcessingMethod{
			Order:       len(proc.ProcessingMeth),
			SoftwareRef: progName,
			CvPar:       []mzml.CVParam{cv},
			UserPar:     []mzml.UserParam{{Name: name}},
		})
	}
	if r.Smooth != nil {
		add(mzml.CVSmoothing, fmt.Sprintf("savitzky-golay window %d degree %d", r.Smooth.Window, r.Smooth.Degree))
	}
	if r.Baseline != nil {
		add(mzml.CVBaselineReduction, r.Baseline.Method)
	}
	if r.Scale != nil {
		add(mzml.CVIntensityScaling, fmt.Sprintf("scaled by %g", *r.Scale))
	}
	return proc, len(proc.ProcessingMeth) > 0
}

func logResult(par *params, name string, rep pipeline.Report, t time.Time) {
	if par.verbosity == infoSilent {
		return
	}
	diverged := 0
	for _, f := range rep.Fits {
		if f.Error != `` {
			diverged++
		}
	}
	if par.verbosity == infoVerbose {
		log.Printf("%s: %d steps, %d peaks, %d fits (%d not converged) %s",
			name, len(rep.Steps), len(rep.Peaks), len(rep.Fits), diverged, time.Since(t))
		return
	}
	log.Printf("%s: %d steps, %d peaks, %d fits (%d not converged)",
		name, len(rep.Steps), len(rep.Peaks), len(rep.Fits), diverged)
}
