package raman

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch means two buffers or two spectra do not line up,
	// e.g. unequal axis lengths or different wavenumber axes in Subtract
	ErrShapeMismatch = errors.New("raman: shape mismatch")
	// ErrInvalidParameter means a caller supplied parameter is out of range
	ErrInvalidParameter = errors.New("raman: invalid parameter")
	// ErrNumericInstability means a computation would produce NaN/Inf or
	// a matrix could not be factorized
	ErrNumericInstability = errors.New("raman: numeric instability")
	// ErrFitDivergence means the peak fitter did not converge within
	// its evaluation cap
	ErrFitDivergence = errors.New("raman: fit did not converge")
)

func invalidf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, a...))
}

func mismatchf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrShapeMismatch, fmt.Sprintf(format, a...))
}

func instabilityf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrNumericInstability, fmt.Sprintf(format, a...))
}
