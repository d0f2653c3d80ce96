package distsample

import "testing"

func TestNormalRoundedZeroStdevIsExactMean(t *testing.T) {
	s := New(1)
	cases := map[float64]int64{0: 0, 10: 10, 5.4: 5, -3.6: -4}
	for mean, want := range cases {
		if got := s.NormalRounded(mean, 0); got != want {
			t.Fatalf("NormalRounded(%v, 0) = %d, want %d", mean, got, want)
		}
	}
}

func TestSameSeedReproducesSameDraws(t *testing.T) {
	a := New(42)
	b := New(42)
	for i := 0; i < 20; i++ {
		x := a.NormalRounded(10, 3)
		y := b.NormalRounded(10, 3)
		if x != y {
			t.Fatalf("same seed must reproduce identical draws, got %d != %d at iteration %d", x, y, i)
		}
	}
}

func TestDifferentSeedsCanDiverge(t *testing.T) {
	a := New(1)
	b := New(2)
	same := true
	for i := 0; i < 20; i++ {
		if a.NormalRounded(10, 3) != b.NormalRounded(10, 3) {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected different seeds to eventually diverge over 20 draws")
	}
}

func TestExponentialNonPositiveMeanIsZero(t *testing.T) {
	s := New(1)
	if got := s.Exponential(0); got != 0 {
		t.Fatalf("expected 0 for mean<=0, got %d", got)
	}
	if got := s.Exponential(-5); got != 0 {
		t.Fatalf("expected 0 for negative mean, got %d", got)
	}
}

func TestExponentialPositiveMeanIsNonNegative(t *testing.T) {
	s := New(7)
	for i := 0; i < 50; i++ {
		if got := s.Exponential(10); got < 0 {
			t.Fatalf("expected a non-negative exponential draw, got %d", got)
		}
	}
}
