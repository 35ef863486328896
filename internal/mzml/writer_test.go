package mzml

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteRoundTrip(t *testing.T) {
	doc := testDocument(t,
		testSpectrum{id: "scan=1", title: "silicon", length: 4, arrays: []testArray{
			{values: testAxis, zlib: true, bits64: true, cv: "MS:1000617"},
			{values: testIntensity, zlib: true, bits64: true, cv: "MS:1000515"},
		}},
		testSpectrum{id: "scan=2", length: 4, arrays: []testArray{
			{values: testAxis, bits64: true, cv: "MS:1000617"},
			{values: testIntensity, bits64: true, cv: "MS:1000515"},
		}},
	)
	f, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}

	newAxis := []float64{200.5, 201.25, 202}
	newIntens := []float64{-1.5, 0.25, 3}
	if err := f.UpdateSpectrum(0, newAxis, newIntens); err != nil {
		t.Fatalf("UpdateSpectrum: error return %v", err)
	}
	if err := f.UpdateSpectrum(2, newAxis, newIntens); err != ErrInvalidScanIndex {
		t.Errorf("UpdateSpectrum: error return %v, should be ErrInvalidScanIndex", err)
	}
	if err := f.UpdateSpectrum(1, newAxis, newIntens[:2]); err == nil {
		t.Errorf("UpdateSpectrum with unequal lengths: no error")
	}
	f.AppendSoftwareInfo("ramanspec", "1.0.0")
	f.AppendDataProcessing(DataProcessing{
		ID: "ramanspec_processing",
		ProcessingMeth: []ProcessingMethod{{
			Order:       1,
			SoftwareRef: "ramanspec",
			CvPar:       []CVParam{CVBaselineReduction, CVSmoothing},
		}},
	})

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write: error return %v", err)
	}
	out := buf.String()
	for _, want := range []string{`MS:1000593`, `MS:1000592`, `softwareRef="ramanspec"`, `id="raman-run"`} {
		if !strings.Contains(out, want) {
			t.Errorf("written mzML lacks %s", want)
		}
	}

	g, err := Read(strings.NewReader(out))
	if err != nil {
		t.Fatalf("Read after Write: error return %v", err)
	}
	axis, intens, err := g.ReadSpectrum(0)
	if err != nil {
		t.Fatalf("ReadSpectrum(0): error return %v", err)
	}
	if diff := cmp.Diff(newAxis, axis); diff != "" {
		t.Errorf("updated axis (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(newIntens, intens); diff != "" {
		t.Errorf("updated intensity (-want +got):\n%s", diff)
	}
	axis, intens, err = g.ReadSpectrum(1)
	if err != nil {
		t.Fatalf("ReadSpectrum(1): error return %v", err)
	}
	if diff := cmp.Diff(testAxis, axis); diff != "" {
		t.Errorf("untouched axis (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(testIntensity, intens); diff != "" {
		t.Errorf("untouched intensity (-want +got):\n%s", diff)
	}
	if title, _ := g.SpectrumTitle(0); title != "silicon" {
		t.Errorf("title after round trip: %q", title)
	}
	if g.content.SoftwareList.Count != 2 || g.content.DataProcessingList.Count != 2 {
		t.Errorf("software count %d, data processing count %d, should be 2 and 2",
			g.content.SoftwareList.Count, g.content.DataProcessingList.Count)
	}

	// A second write of the re-read file is identical
	var again bytes.Buffer
	if err := g.Write(&again); err != nil {
		t.Fatalf("Write: error return %v", err)
	}
	if diff := cmp.Diff(out, again.String()); diff != "" {
		t.Errorf("output changed after read/write (-first +second):\n%s", diff)
	}
}

func TestUpdateSpectrumOtherArrays(t *testing.T) {
	noise := []float64{1, 1.5, 2, 2.5}
	doc := testDocument(t,
		testSpectrum{id: "scan=1", length: 4, arrays: []testArray{
			{values: testAxis, bits64: true, cv: "MS:1000617"},
			{values: testIntensity, bits64: true, cv: "MS:1000515"},
			{values: noise, bits64: true, cv: "MS:1002743"},
		}},
		testSpectrum{id: "scan=2", length: 4, arrays: []testArray{
			{values: testAxis, bits64: true, cv: "MS:1000617"},
			{values: testIntensity, bits64: true, cv: "MS:1000515"},
			{values: noise, bits64: true, cv: "MS:1002743"},
		}},
	)
	f, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}

	// Same length: the noise array still lines up and is kept
	if err := f.UpdateSpectrum(0, testAxis, []float64{1, 2, 3, 4}); err != nil {
		t.Fatalf("UpdateSpectrum(0): error return %v", err)
	}
	// Restricted: the noise array would be longer than the axis
	if err := f.UpdateSpectrum(1, testAxis[1:3], testIntensity[1:3]); err != nil {
		t.Fatalf("UpdateSpectrum(1): error return %v", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write: error return %v", err)
	}
	g, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read after Write: error return %v", err)
	}
	specs := g.content.Run.SpectrumList.Spectrum
	for i, want := range []int{3, 2} {
		l := specs[i].BinaryDataArrayList
		if len(l.BinaryDataArray) != want || l.Count != want {
			t.Errorf("spectrum %d: %d arrays (count %d), should be %d", i, len(l.BinaryDataArray), l.Count, want)
		}
		for _, b := range l.BinaryDataArray {
			if int64(b.ArrayLength) != specs[i].DefaultArrayLength && b.ArrayLength != 0 {
				t.Errorf("spectrum %d: array length %d, default array length %d", i, b.ArrayLength, specs[i].DefaultArrayLength)
			}
		}
	}
	axis, intens, err := g.ReadSpectrum(1)
	if err != nil {
		t.Fatalf("ReadSpectrum(1): error return %v", err)
	}
	if diff := cmp.Diff(testAxis[1:3], axis); diff != "" {
		t.Errorf("restricted axis (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(testIntensity[1:3], intens); diff != "" {
		t.Errorf("restricted intensity (-want +got):\n%s", diff)
	}
}
