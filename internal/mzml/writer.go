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
)

func (f *MzML) Write(writer io.Writer) error {
	if _, err := io.WriteString(writer, `<?xml version="1.0" encoding="utf-8"?>
`); err != nil {
		return err
	}
	enc := xml.NewEncoder(writer)
	enc.Indent(` `, `  `)
	var content mzMLContentWrite

	content.XMLName = f.content.XMLName
	content.Sl1 = "http://psi.hupo.org/ms/mzml http://psidev.info/files/ms/mzML/xsd/mzML1.1.0.xsd"
	content.Version = "1.1.0"
	content.Sl2 = "http://www.w3.org/2001/XMLSchema-instance"
	content.CvList = f.content.CvList
	content.FileDescription = f.content.FileDescription
	content.ReferenceableParamGroupList = f.content.ReferenceableParamGroupList
	content.SoftwareList = f.content.SoftwareList
	content.InstrumentConfigurationList = f.content.InstrumentConfigurationList
	content.DataProcessingList = f.content.DataProcessingList
	content.Run = f.content.Run

	if err := enc.Encode(&content); err != nil {
		return err
	}
	return enc.Flush()
}

// AppendSoftwareInfo adds info to the SoftwareList tag of the mzML file
func (f *MzML) AppendSoftwareInfo(id string, version string) {
	if f.content.SoftwareList == nil {
		f.content.SoftwareList = &softwareList{}
	}
	f.content.SoftwareList.Count++
	f.content.SoftwareList.Software = append(f.content.SoftwareList.Software,
		software{ID: id, Version: version})
}

// AppendDataProcessing adds info to the DataProcessing tag of the mzML file
func (f *MzML) AppendDataProcessing(proc DataProcessing) {
	if f.content.DataProcessingList == nil {
		f.content.DataProcessingList = &dataProcessingList{}
	}
	f.content.DataProcessingList.Count++
	f.content.DataProcessingList.DataProcessing = append(f.content.DataProcessingList.DataProcessing, proc)
}

// UpdateSpectrum replaces the axis and intensity values of a spectrum.
// The arrays keep their compression and precision. Other arrays (e.g.
// noise or charge) are dropped when the number of values changes, since
// they no longer line up with the axis.
func (f *MzML) UpdateSpectrum(specIndex int, axis, intens []float64) error {
	if specIndex < 0 || specIndex >= f.NumSpecs() {
		return ErrInvalidScanIndex
	}
	if len(axis) != len(intens) {
		return fmt.Errorf("%w: %d axis and %d intensity values", ErrArrayLength, len(axis), len(intens))
	}
	spec := &f.content.Run.SpectrumList.Spectrum[specIndex]
	sameLength := spec.DefaultArrayLength == int64(len(axis))
	arrays := make([]binaryDataArray, 0, len(spec.BinaryDataArrayList.BinaryDataArray))
	for _, b := range spec.BinaryDataArrayList.BinaryDataArray {
		zlibCompression, bits64, kind, err := binaryDataPars(&b)
		if err != nil {
			return err
		}
		var v []float64
		switch kind {
		case axisArray:
			v = axis
		case intensityArray:
			v = intens
		default:
			if sameLength {
				arrays = append(arrays, b)
			}
			continue
		}
		b64, err := encodeBinary(v, zlibCompression, bits64)
		if err != nil {
			return err
		}
		b.Binary = b64
		b.ArrayLength = len(v)
		b.EncodedLength = len(b64)
		arrays = append(arrays, b)
	}
	spec.DefaultArrayLength = int64(len(axis))
	spec.BinaryDataArrayList.BinaryDataArray = arrays
	spec.BinaryDataArrayList.Count = len(arrays)
	return nil
}

func encodeBinary(v []float64, zlibCompression bool, bits64 bool) (string, error) {
	var raw []byte
	if bits64 {
		raw = make([]byte, len(v)*8)
		for i, x := range v {
			binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(x))
		}
	} else {
		raw = make([]byte, len(v)*4)
		for i, x := range v {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(float32(x)))
		}
	}
	if zlibCompression {
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		if _, err := z.Write(raw); err != nil {
			return "", err
		}
		// zlib writer must explicitly be closed here, otherwise the result is invalid
		if err := z.Close(); err != nil {
			return "", err
		}
		raw = b.Bytes()
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
