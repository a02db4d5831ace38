package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if n := L2Norm(v); math.Abs(n-1) > 1e-6 {
		t.Errorf("norm after normalize = %v", n)
	}
	if v[0] != 0.6 || v[1] != 0.8 {
		t.Errorf("unexpected values: %v", v)
	}
}

func TestNormalizeL2_Zero(t *testing.T) {
	v := []float32{0, 0, 0}
	NormalizeL2(v)
	for _, x := range v {
		if x != 0 {
			t.Errorf("zero vector changed: %v", v)
		}
	}
}
