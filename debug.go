// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"math"
	"sync"

	"github.com/524D/ramanspec/internal/pipeline"
)

// Keeps the debug output of one spectrum together when files are
// processed in parallel
var debugMux sync.Mutex

// debugLogResult prints the processing steps, and the peaks and fits that
// lie in the --debug wavenumber range
func debugLogResult(par *params, name string, res *pipeline.Result) {
	if !par.debug {
		return
	}
	debugMin, debugMax, err := parseFloat64Range(par.debugRange, math.Inf(-1), math.Inf(1))
	if err != nil {
		return
	}
	debugMux.Lock()
	defer debugMux.Unlock()

	rep := &res.Report
	fmt.Printf("Spectrum:%s label:%q id:%s\n", name, rep.Label, rep.ID)
	for j, st := range rep.Steps {
		fmt.Printf("step %d %s id:%s label:%q\n", j, st.Name, st.ID, st.Label)
	}
	if res.BaselineState != nil {
		bl, _ := res.BaselineState.Baseline()
		w := res.BaselineState.Wavenumber()
		var sum float64
		var count int
		for j := range bl {
			if w[j] >= debugMin && w[j] <= debugMax {
				sum += bl[j]
				count++
			}
		}
		if count > 0 {
			fmt.Printf("baseline %s mean:%f over %d points\n", rep.BaselineMethod, sum/float64(count), count)
		}
	}
	for j, p := range rep.Peaks {
		if p.Wavenumber < debugMin || p.Wavenumber > debugMax {
			continue
		}
		fmt.Printf("peak %d wavenumber:%f height:%f prominence:%f bases:%d-%d\n",
			j, p.Wavenumber, p.Height, p.Prominence, p.LeftBase, p.RightBase)
	}
	for _, f := range rep.Fits {
		if f.End < debugMin || f.Start > debugMax {
			continue
		}
		if f.Error != `` {
			fmt.Printf("fit %q %s %g:%g failed: %s\n", f.Name, f.Model, f.Start, f.End, f.Error)
			continue
		}
		fmt.Printf("fit %q %s/%s %g:%g ssr:%g evaluations:%d\n",
			f.Name, f.Model, f.Method, f.Start, f.End, f.SSR, f.Evaluations)
		for k, p := range f.Params {
			fmt.Printf("  p%d:%f stderr:%f\n", k, p, float64(f.StdErr[k]))
		}
	}
}
