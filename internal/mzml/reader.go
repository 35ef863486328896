package mzml

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/net/html/charset"
)

// Read reads mzML file from an io.Reader
func Read(reader io.Reader) (MzML, error) {
	var mzML MzML

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	// We are only interested in mzML content, so skip over indexedmzML
	// and everything else
	for {
		t, tokenErr := d.Token()
		if tokenErr != nil {
			if tokenErr == io.EOF {
				break
			}
			return mzML, tokenErr
		}
		switch t := t.(type) {
		case xml.StartElement:
			if t.Name.Local == "mzML" {
				if err := d.DecodeElement(&mzML.content, &t); err != nil {
					return mzML, err
				}
			}
		}
	}

	err := mzML.traverseScan()
	return mzML, err
}

// arrayKind is the role of a binary data array
type arrayKind int

const (
	otherArray arrayKind = iota
	axisArray
	intensityArray
)

// binaryDataPars decodes the CV terms in a mzML binarydata section
//
// CV Terms for binary data compression
// MS:1000574 zlib compression
// MS:1000576 No Compression
// MS:1002312 MS-Numpress linear prediction compression
// MS:1002313 MS-Numpress positive integer compression
// MS:1002314 MS-Numpress short logged float compression
// MS:1002746 MS-Numpress linear prediction compression followed by zlib compression
// MS:1002747 MS-Numpress positive integer compression followed by zlib compression
// MS:1002748 MS-Numpress short logged float compression followed by zlib compression
//
// CV Terms for binary data array types
// MS:1000514 m/z array
// MS:1000617 wavelength array
// MS:1000515 intensity array
//
// CV Terms for binary-data-type
// MS:1000521 32-bit float
// MS:1000523 64-bit float
func binaryDataPars(binaryDataArray *binaryDataArray) (
	zlibCompression bool, bits64 bool, kind arrayKind, err error) {
	for _, cvParam := range binaryDataArray.CvPar {
		switch cvParam.Accession {
		case `MS:1000574`: // zlib compression
			zlibCompression = true
		case `MS:1000514`, `MS:1000617`: // m/z or wavelength array
			kind = axisArray
		case `MS:1000515`: // intensity array
			kind = intensityArray
		case `MS:1000523`: // 64-bit float
			bits64 = true
		case `MS:1002312`, `MS:1002313`, `MS:1002314`,
			`MS:1002746`, `MS:1002747`, `MS:1002748`:
			return false, false, otherArray,
				fmt.Errorf("%w: CV term %s", ErrUnsupportedCompression, cvParam.Accession)
		}
	}
	return zlibCompression, bits64, kind, nil
}

func decodeArray(binaryDataArray *binaryDataArray, zlibCompression, bits64 bool) ([]float64, error) {
	data, err := base64.StdEncoding.DecodeString(binaryDataArray.Binary)
	if err != nil {
		return nil, err
	}
	if zlibCompression {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer z.Close()
		data, err = io.ReadAll(z)
		if err != nil {
			return nil, err
		}
	}
	if bits64 {
		v := make([]float64, len(data)/8)
		for i := range v {
			v[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return v, nil
	}
	v := make([]float64, len(data)/4)
	for i := range v {
		v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return v, nil
}

// NumSpecs returns the number of spectra
func (f *MzML) NumSpecs() int {
	return len(f.content.Run.SpectrumList.Spectrum)
}

// ReadSpectrum returns the axis (m/z or wavelength array) and intensity
// values of a spectrum.
// specIndex is the sequence number of the spectrum in the mzML file,
// not its id. To read a spectrum by id, use SpectrumIndex first.
func (f *MzML) ReadSpectrum(specIndex int) ([]float64, []float64, error) {
	if specIndex < 0 || specIndex >= f.NumSpecs() {
		return nil, nil, ErrInvalidScanIndex
	}
	spec := &f.content.Run.SpectrumList.Spectrum[specIndex]
	var axis, intens []float64
	for i := range spec.BinaryDataArrayList.BinaryDataArray {
		b := &spec.BinaryDataArrayList.BinaryDataArray[i]
		zlibCompression, bits64, kind, err := binaryDataPars(b)
		if err != nil {
			return nil, nil, err
		}
		if kind == otherArray {
			continue
		}
		v, err := decodeArray(b, zlibCompression, bits64)
		if err != nil {
			return nil, nil, err
		}
		if kind == axisArray {
			axis = v
		} else {
			intens = v
		}
	}
	if axis == nil || intens == nil {
		return nil, nil, fmt.Errorf("%w: spectrum %s", ErrMissingArray, spec.ID)
	}
	if len(axis) != len(intens) || int64(len(axis)) != spec.DefaultArrayLength {
		return nil, nil, fmt.Errorf("%w: spectrum %s has %d axis and %d intensity values, expected %d",
			ErrArrayLength, spec.ID, len(axis), len(intens), spec.DefaultArrayLength)
	}
	return axis, intens, nil
}

// SpectrumTitle returns the spectrum title (MS:1000796), or the id if the
// spectrum has no title
func (f *MzML) SpectrumTitle(specIndex int) (string, error) {
	if specIndex < 0 || specIndex >= f.NumSpecs() {
		return "", ErrInvalidScanIndex
	}
	spec := &f.content.Run.SpectrumList.Spectrum[specIndex]
	for _, cvParam := range spec.CvPar {
		if cvParam.Accession == "MS:1000796" && cvParam.Value != "" {
			return cvParam.Value, nil
		}
	}
	return spec.ID, nil
}

// traverseScan traverses all spectra and fills the arrays f.index2id
// and f.id2Index to make spectra accessible by id
func (f *MzML) traverseScan() error {
	f.index2id = make([]string, f.NumSpecs())
	f.id2Index = make(map[string]int, f.NumSpecs())

	for i := range f.content.Run.SpectrumList.Spectrum {
		if err := f.addSpecToIndex(i); err != nil {
			return err
		}
	}
	return nil
}

func (f *MzML) addSpecToIndex(i int) error {
	if i != f.content.Run.SpectrumList.Spectrum[i].Index {
		return ErrInvalidScanIndex
	}
	f.index2id[i] = f.content.Run.SpectrumList.Spectrum[i].ID
	f.id2Index[f.content.Run.SpectrumList.Spectrum[i].ID] = i
	return nil
}

// SpectrumIndex converts a spectrum identifier (the string used in the
// mzML file) into an index that is used to access the spectra
func (f *MzML) SpectrumIndex(specID string) (int, error) {
	if index, ok := f.id2Index[specID]; ok {
		return index, nil
	}
	return 0, ErrInvalidScanID
}

// SpectrumID converts a spectrum index into a spectrum id
func (f *MzML) SpectrumID(specIndex int) (string, error) {
	if specIndex >= 0 && specIndex < f.NumSpecs() {
		return f.index2id[specIndex], nil
	}
	return "", ErrInvalidScanIndex
}
