package calib

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// FitMethod selects the calibration-fitting algorithm for FitParams.
type FitMethod string

const (
	// FitSimple centres each axis on its sample mean and applies unit
	// scale — a fast, always-well-defined fallback.
	FitSimple FitMethod = "simple"
	// FitEllipsoid performs a least-squares fit of a general quadric
	// (v-o)^T A (v-o) = 1 to the sample cloud and extracts hard-iron
	// offset o and soft-iron scale from A.
	FitEllipsoid FitMethod = "ellipsoid"
)

// FitParams derives calibration parameters from a batch of raw samples
// using the requested method.
func FitParams(samples []Vector3, method FitMethod) (*Params, error) {
	switch method {
	case FitSimple:
		return fitSimple(samples)
	case FitEllipsoid:
		return fitEllipsoid(samples)
	default:
		return nil, newConfigError("FitParams", "unknown method %q", method)
	}
}

func fitSimple(samples []Vector3) (*Params, error) {
	if len(samples) == 0 {
		return nil, newConfigError("fitSimple", "no samples provided")
	}
	var sx, sy, sz float64
	for _, s := range samples {
		sx += s.X
		sy += s.Y
		sz += s.Z
	}
	n := float64(len(samples))
	offset := Vector3{X: sx / n, Y: sy / n, Z: sz / n}
	return NewParams(offset, mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}))
}

// fitEllipsoid solves the algebraic quadric v^T A v + 2 b^T v = 1 in a
// least-squares sense (via SVD pseudo-inverse), then
// recovers the ellipsoid centre o = -A^-1 b and a soft-iron scale S such
// that S is a symmetric matrix square root of A/k, k = 1 - b^T o, so that
// Apply(v) = S(v-o) maps on-ellipsoid samples onto the unit sphere.
func fitEllipsoid(samples []Vector3) (*Params, error) {
	n := len(samples)
	if n < 9 {
		return nil, newConfigError("fitEllipsoid", "need at least 9 samples, got %d", n)
	}

	design := mat.NewDense(n, 9, nil)
	target := mat.NewDense(n, 1, nil)
	for i, s := range samples {
		design.SetRow(i, []float64{
			s.X * s.X, s.Y * s.Y, s.Z * s.Z,
			2 * s.X * s.Y, 2 * s.X * s.Z, 2 * s.Y * s.Z,
			2 * s.X, 2 * s.Y, 2 * s.Z,
		})
		target.Set(i, 0, 1)
	}

	p, err := leastSquares(design, target)
	if err != nil {
		return nil, newConfigError("fitEllipsoid", "least-squares solve failed: %v", err)
	}

	a, b, c := p.AtVec(0), p.AtVec(1), p.AtVec(2)
	d, e, f := p.AtVec(3), p.AtVec(4), p.AtVec(5)
	g, h, i := p.AtVec(6), p.AtVec(7), p.AtVec(8)

	A := mat.NewSymDense(3, []float64{a, d, e, d, b, f, e, f, c})
	bvec := mat.NewVecDense(3, []float64{g, h, i})

	var Ainv mat.Dense
	if err := Ainv.Inverse(A); err != nil {
		return nil, newConfigError("fitEllipsoid", "quadratic form is singular: %v", err)
	}
	var oVec mat.VecDense
	oVec.MulVec(&Ainv, bvec)
	oVec.ScaleVec(-1, &oVec)

	k := 1 - mat.Dot(bvec, &oVec)
	if k <= 0 {
		return nil, newConfigError("fitEllipsoid", "degenerate fit (k=%v <= 0)", k)
	}

	var scaled mat.SymDense
	scaled.ScaleSym(1/k, A)

	var eig mat.EigenSym
	if ok := eig.Factorize(&scaled, true); !ok {
		return nil, newConfigError("fitEllipsoid", "eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	sqrtDiag := mat.NewDiagDense(3, nil)
	for idx, v := range values {
		if v < 0 {
			v = 0
		}
		sqrtDiag.SetDiag(idx, math.Sqrt(v))
	}

	var tmp, S mat.Dense
	tmp.Mul(&vectors, sqrtDiag)
	S.Mul(&tmp, vectors.T())

	offset := Vector3{X: oVec.AtVec(0), Y: oVec.AtVec(1), Z: oVec.AtVec(2)}
	return NewParams(offset, &S)
}

// leastSquares solves design*x = target via the Moore-Penrose
// pseudo-inverse of design, built from an SVD (factorize, threshold the
// singular values, recombine V*S^+*U^T).
func leastSquares(design, target *mat.Dense) (*mat.VecDense, error) {
	rows, cols := design.Dims()

	var svd mat.SVD
	if ok := svd.Factorize(design, mat.SVDThin); !ok {
		return nil, newConfigError("leastSquares", "SVD factorization failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	maxS := 0.0
	if len(s) > 0 {
		maxS = s[0]
	}
	tol := 1e-12 * float64(maxInt(rows, cols)) * maxS

	sigInv := mat.NewDiagDense(len(s), nil)
	for i, val := range s {
		if val > tol {
			sigInv.SetDiag(i, 1.0/val)
		}
	}

	var vSig, pinv mat.Dense
	vSig.Mul(&v, sigInv)
	pinv.Mul(&vSig, u.T())

	var x mat.Dense
	x.Mul(&pinv, target)

	out := mat.NewVecDense(cols, nil)
	for i := 0; i < cols; i++ {
		out.SetVec(i, x.At(i, 0))
	}
	return out, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
