// Package calibrate implements the Calibrator (C11): an offline procedure
// that fits a linear map from a premium embedder's vector space into the
// local embedder's space via least squares, so the registry can project a
// premium query embedding into local space and score it against locally
// embedded chunk vectors, without embedding the corpus with the premium
// model. No teacher precedent (the teacher has one fixed embedding
// space) — the linear algebra here is implemented directly because no repo
// in the pack imports a general matrix/least-squares library.
package calibrate

import (
	"fmt"
	"time"

	"github.com/ragcore/retrieval-engine/internal/model"
)

// Sample pairs a premium embedding with its local counterpart for the same
// source text.
type Sample struct {
	Local   []float32
	Premium []float32
}

const minSampleSize = 100

// Fit computes M minimizing ||B·M - A||_F^2 via the normal equations
// (M = (B^T B)^-1 B^T A), returning a CalibrationMatrix ready for
// persistence and registry use.
func Fit(premiumName string, samples []Sample) (model.CalibrationMatrix, error) {
	if len(samples) < minSampleSize {
		return model.CalibrationMatrix{}, fmt.Errorf("calibrate.Fit: need at least %d samples, got %d", minSampleSize, len(samples))
	}

	localDim := len(samples[0].Local)
	premiumDim := len(samples[0].Premium)
	for _, s := range samples {
		if len(s.Local) != localDim || len(s.Premium) != premiumDim {
			return model.CalibrationMatrix{}, fmt.Errorf("calibrate.Fit: inconsistent sample dimensions")
		}
	}

	a := make([][]float64, len(samples))
	b := make([][]float64, len(samples))
	for i, s := range samples {
		a[i] = float32to64(s.Local)
		b[i] = float32to64(s.Premium)
	}

	bt := transpose(b)
	btb := matmul(bt, b)
	btbInv, err := invert(btb)
	if err != nil {
		return model.CalibrationMatrix{}, fmt.Errorf("calibrate.Fit: %w", err)
	}
	bta := matmul(bt, a)
	m := matmul(btbInv, bta)

	return model.CalibrationMatrix{
		PremiumName: premiumName,
		LocalDim:    localDim,
		PremiumDim:  premiumDim,
		Weights:     m,
		Bias:        make([]float64, localDim),
		FittedAt:    time.Now().UTC(),
		SampleCount: len(samples),
	}, nil
}

func float32to64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func transpose(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return nil
	}
	rows, cols := len(m), len(m[0])
	out := make([][]float64, cols)
	for i := range out {
		out[i] = make([]float64, rows)
		for j := 0; j < rows; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

func matmul(a, b [][]float64) [][]float64 {
	rows, inner, cols := len(a), len(b), len(b[0])
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		for k := 0; k < inner; k++ {
			av := a[i][k]
			if av == 0 {
				continue
			}
			for j := 0; j < cols; j++ {
				out[i][j] += av * b[k][j]
			}
		}
	}
	return out
}

// invert computes the inverse of a square matrix via Gauss-Jordan
// elimination with partial pivoting.
func invert(m [][]float64) ([][]float64, error) {
	n := len(m)
	aug := make([][]float64, n)
	for i := 0; i < n; i++ {
		aug[i] = make([]float64, 2*n)
		copy(aug[i], m[i])
		aug[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := col
		maxAbs := abs(aug[col][col])
		for r := col + 1; r < n; r++ {
			if v := abs(aug[r][col]); v > maxAbs {
				pivot, maxAbs = r, v
			}
		}
		if maxAbs < 1e-12 {
			return nil, fmt.Errorf("matrix is singular or near-singular")
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pv := aug[col][col]
		for j := 0; j < 2*n; j++ {
			aug[col][j] /= pv
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for j := 0; j < 2*n; j++ {
				aug[r][j] -= factor * aug[col][j]
			}
		}
	}

	inv := make([][]float64, n)
	for i := 0; i < n; i++ {
		inv[i] = aug[i][n:]
	}
	return inv, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
