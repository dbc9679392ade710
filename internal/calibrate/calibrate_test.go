package calibrate

import (
	"math"
	"testing"
)

// syntheticSamples builds samples where local = premium * trueM, so Fit
// should recover trueM (up to numerical tolerance).
func syntheticSamples(n int) ([]Sample, [][]float64) {
	trueM := [][]float64{
		{1, 0},
		{0, 1},
		{0.5, 0.5},
	}
	samples := make([]Sample, n)
	for i := 0; i < n; i++ {
		premium := []float32{
			float32(math.Sin(float64(i))),
			float32(math.Cos(float64(i))),
			float32(math.Sin(float64(i) / 2)),
		}
		var local [2]float64
		for d := 0; d < 3; d++ {
			local[0] += float64(premium[d]) * trueM[d][0]
			local[1] += float64(premium[d]) * trueM[d][1]
		}
		samples[i] = Sample{
			Local:   []float32{float32(local[0]), float32(local[1])},
			Premium: premium,
		}
	}
	return samples, trueM
}

func TestFitRecoversLinearMap(t *testing.T) {
	samples, trueM := syntheticSamples(150)
	m, err := Fit("test-premium", samples)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if m.PremiumDim != 3 || m.LocalDim != 2 {
		t.Fatalf("unexpected dims: premium=%d local=%d", m.PremiumDim, m.LocalDim)
	}
	for i := range trueM {
		for j := range trueM[i] {
			if math.Abs(m.Weights[i][j]-trueM[i][j]) > 1e-6 {
				t.Fatalf("weight[%d][%d] = %f, want %f", i, j, m.Weights[i][j], trueM[i][j])
			}
		}
	}
}

func TestFitRejectsTooFewSamples(t *testing.T) {
	samples, _ := syntheticSamples(10)
	if _, err := Fit("test-premium", samples); err == nil {
		t.Fatal("expected error for sample count below minimum")
	}
}

func TestFitRejectsInconsistentDimensions(t *testing.T) {
	samples, _ := syntheticSamples(150)
	samples[5].Local = append(samples[5].Local, 0)
	if _, err := Fit("test-premium", samples); err == nil {
		t.Fatal("expected error for inconsistent dimensions")
	}
}

func TestStoreSaveAndLoad(t *testing.T) {
	store, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	samples, _ := syntheticSamples(150)
	m, err := Fit("test-premium", samples)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if err := store.Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, found, err := store.Load("test-premium")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatal("expected matrix to be found after save")
	}
	if loaded.PremiumName != m.PremiumName || loaded.PremiumDim != m.PremiumDim {
		t.Fatalf("loaded matrix mismatch: %+v vs %+v", loaded, m)
	}
}

func TestStoreLoadMissingReturnsFalse(t *testing.T) {
	store, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	_, found, err := store.Load("missing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatal("expected not found for unsaved premium name")
	}
}
