package retry

import "testing"

func TestLinearNextGrowsByStep(t *testing.T) {
	p := Linear{Base: 10, Step: 5, Max: 0, MaxRetries: 0}
	cases := []struct {
		attempt uint32
		want    int64
	}{
		{1, 10}, // base, no step applied yet
		{2, 15},
		{3, 20},
	}
	for _, c := range cases {
		d, ok := p.Next(c.attempt)
		if !ok {
			t.Fatalf("Next(%d) = not ok, want ok", c.attempt)
		}
		if int64(d) != c.want {
			t.Fatalf("Next(%d) = %d, want %d", c.attempt, d, c.want)
		}
	}
}

func TestLinearNextRespectsMaxRetries(t *testing.T) {
	p := Linear{Base: 10, Step: 5, MaxRetries: 2}
	if _, ok := p.Next(2); !ok {
		t.Fatal("Next(2) = not ok, want ok (2 attempts made, at the limit)")
	}
	if _, ok := p.Next(3); ok {
		t.Fatal("Next(3) = ok, want not ok (3 attempts made exceeds MaxRetries=2)")
	}
}

func TestExponentialNextDoublesPerAttempt(t *testing.T) {
	p := Exponential{Base: 100, Multiplier: 2, Max: 0}
	// Delays must grow base, 2*base, 4*base, ... across successive
	// already-made-attempt counts.
	cases := []struct {
		attempt uint32
		want    int64
	}{
		{1, 100},
		{2, 200},
		{3, 400},
	}
	for _, c := range cases {
		d, ok := p.Next(c.attempt)
		if !ok {
			t.Fatalf("Next(%d) = not ok, want ok", c.attempt)
		}
		if int64(d) != c.want {
			t.Fatalf("Next(%d) = %d, want %d", c.attempt, d, c.want)
		}
	}
}

func TestExponentialNextRespectsMax(t *testing.T) {
	p := Exponential{Base: 100, Multiplier: 2, Max: 300}
	d, ok := p.Next(3) // uncapped would be 400
	if !ok {
		t.Fatal("Next(3) = not ok, want ok")
	}
	if int64(d) != 300 {
		t.Fatalf("Next(3) = %d, want capped at 300", d)
	}
}

func TestExponentialNextRespectsMaxRetries(t *testing.T) {
	p := Exponential{Base: 100, Multiplier: 2, MaxRetries: 1}
	if _, ok := p.Next(1); !ok {
		t.Fatal("Next(1) = not ok, want ok (1 attempt made, at the limit)")
	}
	if _, ok := p.Next(2); ok {
		t.Fatal("Next(2) = ok, want not ok (2 attempts made exceeds MaxRetries=1)")
	}
}
