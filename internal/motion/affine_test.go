package motion

import (
	"math"
	"testing"

	"github.com/ivlev/vidstab/internal/tracker"
)

func TestAffineApply(t *testing.T) {
	p := tracker.Point{X: 10, Y: 0}

	if got := Identity().Apply(p); got != p {
		t.Errorf("Identity moved point: %v", got)
	}
	if got := Translation(3, -2).Apply(p); got != (tracker.Point{X: 13, Y: -2}) {
		t.Errorf("Translation: got %v", got)
	}

	got := Similarity(2, math.Pi/2, 0, 0).Apply(p)
	if math.Abs(got.X) > 1e-9 || math.Abs(got.Y-20) > 1e-9 {
		t.Errorf("Rotation+scale: got %v, want (0, 20)", got)
	}
}

func TestAffineArithmetic(t *testing.T) {
	a := Translation(2, 4)
	b := Translation(4, 0)
	mean := a.Add(b).Scale(0.5)
	if mean != (Affine{1, 0, 3, 0, 1, 2}) {
		t.Errorf("Unexpected mean %v", mean)
	}
	if a.Sub(a) != (Affine{}) {
		t.Errorf("a - a should be zero, got %v", a.Sub(a))
	}
	if !Identity().IsIdentity() || a.IsIdentity() {
		t.Error("IsIdentity misreports")
	}
	if (Affine{1, 0, math.NaN(), 0, 1, 0}).IsFinite() {
		t.Error("NaN transform reported finite")
	}
	if aff := a.Aff3(); aff[2] != 2 || aff[5] != 4 {
		t.Errorf("Aff3 conversion lost translation: %v", aff)
	}
}

func TestAffineMul(t *testing.T) {
	r := Similarity(1, math.Pi/2, 0, 0)
	tr := Translation(5, 0)
	p := tracker.Point{X: 1, Y: 0}

	// Translate first, then rotate: (6, 0) -> (0, 6)
	got := r.Mul(tr).Apply(p)
	if math.Abs(got.X) > 1e-9 || math.Abs(got.Y-6) > 1e-9 {
		t.Errorf("Expected (0, 6), got %v", got)
	}
	if Identity().Mul(tr) != tr || tr.Mul(Identity()) != tr {
		t.Error("Identity is not neutral under Mul")
	}
}
