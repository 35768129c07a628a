// Package calib implements magnetometer calibration (hard/soft-iron
// correction) and the fixed-window moving-average conditioner that turns
// a raw sensor stream into a smoothed scalar observation.
package calib

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ConfigError signals a construction-time configuration mistake: an
// invalid window size or a degenerate calibration matrix.
type ConfigError struct {
	Op  string
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("calib: %s: %s", e.Op, e.Msg)
}

// Kind identifies this error's category for HTTP/tool-call boundary
// mapping, independent of the human-readable message.
func (e *ConfigError) Kind() string { return "ConfigError" }

func newConfigError(op, format string, args ...interface{}) error {
	return &ConfigError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Vector3 is a three-axis magnetic sample in nanotesla.
type Vector3 struct {
	X, Y, Z float64
}

// Params holds hard/soft-iron calibration: an additive offset and a 3x3
// scale (soft-iron) matrix, applied as scale * (raw - offset).
type Params struct {
	Offset Vector3
	Scale  *mat.Dense // 3x3

	inverse *mat.Dense // cached scale^-1, computed lazily
}

// NewParams validates and constructs calibration parameters. The scale
// matrix must be 3x3 and invertible.
func NewParams(offset Vector3, scale *mat.Dense) (*Params, error) {
	if scale == nil {
		return nil, newConfigError("NewParams", "scale matrix is nil")
	}
	r, c := scale.Dims()
	if r != 3 || c != 3 {
		return nil, newConfigError("NewParams", "scale must be 3x3, got %dx%d", r, c)
	}
	var inv mat.Dense
	if err := inv.Inverse(scale); err != nil {
		return nil, newConfigError("NewParams", "scale matrix is not invertible: %v", err)
	}
	return &Params{Offset: offset, Scale: scale, inverse: &inv}, nil
}

// Apply returns scale * (raw - offset).
func (p *Params) Apply(raw Vector3) Vector3 {
	d := mat.NewVecDense(3, []float64{raw.X - p.Offset.X, raw.Y - p.Offset.Y, raw.Z - p.Offset.Z})
	var out mat.VecDense
	out.MulVec(p.Scale, d)
	return Vector3{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// Inverse returns the vector that Apply would map to calibrated, i.e.
// Inverse(Apply(v)) ≈ v for well-conditioned scale matrices.
func (p *Params) Inverse(calibrated Vector3) Vector3 {
	v := mat.NewVecDense(3, []float64{calibrated.X, calibrated.Y, calibrated.Z})
	var out mat.VecDense
	out.MulVec(p.inverse, v)
	return Vector3{
		X: out.AtVec(0) + p.Offset.X,
		Y: out.AtVec(1) + p.Offset.Y,
		Z: out.AtVec(2) + p.Offset.Z,
	}
}

// Identity returns calibration parameters with zero offset and an
// identity scale matrix (a no-op calibration).
func Identity() *Params {
	scale := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	p, _ := NewParams(Vector3{}, scale)
	return p
}
