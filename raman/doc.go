// Package raman implements deterministic transforms on one-dimensional
// spectra (intensity as a function of wavenumber).
//
// A Spectrum is immutable: range restriction, smoothing, baseline
// correction, resampling and arithmetic all return new instances that own
// their buffers. The available operations are:
//
//   - [Restrict], [RestrictTo]: nearest-index range selection
//   - [EstimateBaseline] with [PolyEnvelope] or [ALS]
//   - [Smooth]: Savitzky–Golay filtering
//   - [Detect]: local maxima filtered by prominence and height
//   - [Fit]: nonlinear least squares of a [ModelKind] composite
//   - [Interpolate], [Subtract], [Scale]
//
// Failures are reported with errors wrapping [ErrShapeMismatch],
// [ErrInvalidParameter], [ErrNumericInstability] or [ErrFitDivergence].
package raman
