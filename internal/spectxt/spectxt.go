// Package spectxt reads and writes spectra stored as two text columns,
// wavenumber and intensity.
package spectxt

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/524D/ramanspec/raman"
)

// ErrFormat means a line could not be parsed as two numbers
var ErrFormat = errors.New("spectxt: invalid format")

// Read parses two numeric columns separated by white space, comma or
// semicolon. Lines starting with '#' or '%' and empty lines are skipped,
// as is a single non-numeric header line before the first data line.
// Input that is not valid UTF-8 is decoded as Windows-1252.
func Read(r io.Reader) ([]float64, []float64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	if !utf8.Valid(data) {
		data, err = charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, nil, err
		}
	}

	var w, y []float64
	headerSeen := false
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for lineNr := 1; sc.Scan(); lineNr++ {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" || line[0] == '#' || line[0] == '%' {
			continue
		}
		x, v, err := parseLine(line)
		if err != nil {
			if len(w) == 0 && !headerSeen {
				headerSeen = true
				continue
			}
			return nil, nil, fmt.Errorf("%w: line %d: %v", ErrFormat, lineNr, err)
		}
		w = append(w, x)
		y = append(y, v)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if len(w) == 0 {
		return nil, nil, fmt.Errorf("%w: no data lines", ErrFormat)
	}
	if err := raman.CheckAxis(w); err != nil {
		return nil, nil, err
	}
	return w, y, nil
}

func parseLine(line string) (float64, float64, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';'
	})
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("%d columns", len(fields))
	}
	x, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, err
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, err
	}
	return x, v, nil
}

// ReadFile reads a spectrum file. The label is the file name without
// directory and extension.
func ReadFile(path string) (*raman.Spectrum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	w, y, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raman.NewFromSource(w, y, Label(path), path)
}

// Label derives a spectrum label from a file path
func Label(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Write writes s as tab separated columns, preceded by a comment line
// with its label
func Write(w io.Writer, s *raman.Spectrum) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s\n", s.Label())
	for i := 0; i < s.Len(); i++ {
		x, v := s.At(i)
		bw.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		bw.WriteByte('\t')
		bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteFile writes s to path
func WriteFile(path string, s *raman.Spectrum) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
