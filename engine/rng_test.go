package engine

import "testing"

func TestRNG_Deterministic(t *testing.T) {
	rng1 := NewRNG(42)
	rng2 := NewRNG(42)

	for i := 0; i < 20; i++ {
		a := rng1.Intn(6)
		b := rng2.Intn(6)
		if a != b {
			t.Fatalf("draw %d: got %d and %d from same seed", i, a, b)
		}
	}
}

func TestRNG_Intn_Range(t *testing.T) {
	rng := NewRNG(99)

	for i := 0; i < 1000; i++ {
		r := rng.Intn(6)
		if r < 0 || r >= 6 {
			t.Fatalf("draw out of range [0,6): got %d", r)
		}
	}
}

func TestRNG_WeightedSelect_Distribution(t *testing.T) {
	rng := NewRNG(12345)
	weights := []int{70, 20, 10}
	counts := [3]int{}

	const trials = 10000
	for i := 0; i < trials; i++ {
		idx := rng.WeightedSelect(weights)
		if idx < 0 || idx > 2 {
			t.Fatalf("index out of range: %d", idx)
		}
		counts[idx]++
	}

	if counts[0] < 6000 || counts[0] > 8000 {
		t.Errorf("expected ~7000 for weight 70, got %d", counts[0])
	}
	if counts[1] < 1000 || counts[1] > 3000 {
		t.Errorf("expected ~2000 for weight 20, got %d", counts[1])
	}
	if counts[2] < 200 || counts[2] > 1800 {
		t.Errorf("expected ~1000 for weight 10, got %d", counts[2])
	}
}

func TestRNG_Position_Tracks(t *testing.T) {
	rng := NewRNG(42)

	if rng.Position() != 0 {
		t.Fatalf("expected position 0, got %d", rng.Position())
	}

	rng.Intn(6)
	rng.WeightedSelect([]int{50, 50})
	if rng.Position() != 2 {
		t.Fatalf("expected position 2, got %d", rng.Position())
	}
}
