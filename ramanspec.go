// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"regexp"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/524D/ramanspec/internal/spectxt"
	"github.com/524D/ramanspec/raman"
)

// Program name and version, appended to software list in mzML output
const progName = "ramanspec"

var progVersion = `Unknown`

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// Command line parameters
type params struct {
	verbose        bool
	quiet          bool
	verbosity      int    // Verbosity of progress messages (infoDefault...)
	debugRange     string // Wavenumber range for debug output
	debug          bool   // Enable debug info (environment variable RAMANSPEC_DEBUG=1)
	recipeFilename string
	outDir         string // Output directory, empty for the directory of the input
	jobs           int    // Number of files processed in parallel
	specFilter     string // Range of mzML spectra to process
	outFilename    string
}

var ErrRangeSpec = errors.New("invalid range specified")

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	var par params
	if err := newRootCmd(&par).Execute(); err != nil {
		log.Fatalf("%s: %v", progName, err)
	}
}

func newRootCmd(par *params) *cobra.Command {
	root := &cobra.Command{
		Use:   progName,
		Short: "Process Raman spectra",
		Long: progName + ` restricts, smooths, baseline corrects and resamples Raman spectra,
detects peaks and fits peak models, as described by a YAML recipe.
Spectra are read from two column text files or from mzML files.

ENVIRONMENT VARIABLES:
  RAMANSPEC_DEBUG=1   print diagnostics for all peaks and fits

USAGE EXAMPLES:
  ` + progName + ` process --recipe silicon.yaml sample1.txt sample2.txt
  ` + progName + ` process --recipe silicon.yaml --specfilter 0:9 --out-dir out run.mzML
  ` + progName + ` subtract sample.txt blank.txt -o difference.txt
  ` + progName + ` models`,
		Version:       progVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return par.sanitize()
		},
	}
	root.PersistentFlags().BoolVar(&par.verbose, "verbose", false, "Print timing of each processing stage")
	root.PersistentFlags().BoolVarP(&par.quiet, "quiet", "q", false, "Only print errors")
	root.PersistentFlags().StringVar(&par.debugRange, "debug", "",
		"Print debug output for peaks and fits in wavenumber `range` e.g. 500:540")

	root.AddCommand(newProcessCmd(par), newSubtractCmd(par), newModelsCmd())
	return root
}

// sanitize checks flag combinations and fills the derived fields
func (par *params) sanitize() error {
	if par.verbose && par.quiet {
		return errors.New("--verbose and --quiet are mutually exclusive")
	}
	par.verbosity = infoDefault
	if par.verbose {
		par.verbosity = infoVerbose
	}
	if par.quiet {
		par.verbosity = infoSilent
	}
	par.debug = os.Getenv("RAMANSPEC_DEBUG") == "1"
	if par.debugRange != `` {
		if _, _, err := parseFloat64Range(par.debugRange, math.Inf(-1), math.Inf(1)); err != nil {
			return fmt.Errorf("invalid --debug %q: %w", par.debugRange, err)
		}
		par.debug = true
	}
	return nil
}

func newProcessCmd(par *params) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process [files...]",
		Short: "Apply a recipe to spectrum files",
		Long: `Apply a recipe to each file. Text files give a processed text file,
mzML files a processed mzML file with all selected spectra updated.
For every spectrum a JSON report with steps, peaks and fits is written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if par.jobs < 1 {
				return fmt.Errorf("--jobs must be at least 1, got %d", par.jobs)
			}
			return processFiles(cmd.Context(), par, args)
		},
	}
	addProcessFlags(cmd.Flags(), par)
	cmd.MarkFlagRequired("recipe")
	return cmd
}

func addProcessFlags(fs *pflag.FlagSet, par *params) {
	fs.SortFlags = false
	fs.StringVarP(&par.recipeFilename, "recipe", "r", "", "Recipe `file` (YAML)")
	fs.StringVarP(&par.outDir, "out-dir", "o", "", "Output `directory` (default: directory of each input)")
	fs.IntVarP(&par.jobs, "jobs", "j", runtime.NumCPU(), "Number of files processed in parallel")
	fs.StringVar(&par.specFilter, "specfilter", "",
		"Index `range` of mzML spectra to process, e.g. 0:9 (default: all)")
}

func newSubtractCmd(par *params) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtract A B",
		Short: "Subtract spectrum B from spectrum A",
		Long:  `Subtract two text spectra. Both must have the same wavenumber axis.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := spectxt.ReadFile(args[0])
			if err != nil {
				return err
			}
			b, err := spectxt.ReadFile(args[1])
			if err != nil {
				return err
			}
			d, err := raman.Subtract(a, b)
			if err != nil {
				return fmt.Errorf("subtract %s %s: %w", args[0], args[1], err)
			}
			if err := spectxt.WriteFile(par.outFilename, d); err != nil {
				return err
			}
			if par.verbosity == infoVerbose {
				log.Printf("Written %s (%s)", par.outFilename, d.Label())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&par.outFilename, "out", "o", "", "Output `file`")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the peak models and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, k := range raman.ModelKinds() {
				pars := "center fwhm amplitude"
				if k.Arity() > 3 {
					pars += " lorentz-weight"
				}
				fmt.Fprintf(w, "%-14s %d  %s\n", k, k.Arity(), pars)
			}
			return nil
		},
	}
}

// Parse string like "-12:6" into 2 values, -12 and 6
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12:"), the default is assigned
func parseIntRange(r string, min int, max int) (int, int, error) {
	re := regexp.MustCompile(`\s*(\-?\d*):(\-?\d*)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 3 && m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// Parse string like "-12.01e1:+6" into 2 values, -120.1 and 6.0
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12.01e1:"), the default is assigned
func parseFloat64Range(r string, min float64, max float64) (
	float64, float64, error) {
	re := regexp.MustCompile(`\s*([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?):([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.ParseFloat(m[1], 64)
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 4 && m[3] != "" {
		maxOut, _ = strconv.ParseFloat(m[3], 64)
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}
