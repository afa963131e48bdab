package types

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestPhase_AbsArg(t *testing.T) {
	p := Phase{Re: 3, Im: 4}
	if got := p.Abs(); got != 5 {
		t.Errorf("Abs = %v, want 5", got)
	}
	q := Phase{Re: 0, Im: 1}
	if got := q.Arg(); !almostEqual(got, math.Pi/2, 1e-12) {
		t.Errorf("Arg = %v, want π/2", got)
	}
}

func TestPhase_Arithmetic(t *testing.T) {
	p := Phase{Re: 1, Im: 2}
	q := Phase{Re: 3, Im: -1}

	if got := p.Add(q); got != (Phase{Re: 4, Im: 1}) {
		t.Errorf("Add = %+v", got)
	}
	if got := p.Sub(q); got != (Phase{Re: -2, Im: 3}) {
		t.Errorf("Sub = %+v", got)
	}
	// (1+2i)(3-i) = 3 - i + 6i - 2i² = 5 + 5i
	if got := p.Mul(q); got != (Phase{Re: 5, Im: 5}) {
		t.Errorf("Mul = %+v, want 5+5i", got)
	}
	if got := p.Conj(); got != (Phase{Re: 1, Im: -2}) {
		t.Errorf("Conj = %+v", got)
	}
}

func TestPhase_UnitOfZeroIsZero(t *testing.T) {
	if got := ZeroPhase.Unit(); got != ZeroPhase {
		t.Errorf("Unit(0) = %+v, want zero", got)
	}
	if got := (Phase{Re: 0, Im: -2}).Unit(); got != (Phase{Re: 0, Im: -1}) {
		t.Errorf("Unit = %+v, want -i", got)
	}
}

func TestPhase_IsFinite(t *testing.T) {
	cases := []struct {
		p    Phase
		want bool
	}{
		{Phase{Re: 1, Im: 0}, true},
		{Phase{Re: 1e300, Im: -1e300}, true},
		{Phase{Re: math.NaN(), Im: 0}, false},
		{Phase{Re: 0, Im: math.Inf(1)}, false},
		{Phase{Re: math.Inf(-1), Im: 0}, false},
	}
	for _, c := range cases {
		if got := c.p.IsFinite(); got != c.want {
			t.Errorf("IsFinite(%+v) = %v, want %v", c.p, got, c.want)
		}
	}
}

func TestClamp01(t *testing.T) {
	cases := map[float64]float64{-1: 0, 0.3: 0.3, 2: 1, math.NaN(): 0}
	for in, want := range cases {
		if got := Clamp01(in); got != want {
			t.Errorf("Clamp01(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestSecondsRoundTrip(t *testing.T) {
	sec := 1767225600.25
	if got := Seconds(Time(sec)); !almostEqual(got, sec, 1e-6) {
		t.Errorf("Seconds(Time(%v)) = %v", sec, got)
	}
}

func TestErrors_MatchSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{&InputError{Reason: "non-finite phase"}, ErrInput},
		{&OverflowError{Pathway: "master"}, ErrNumericOverflow},
		{&StorageError{Op: "append", Err: errors.New("disk full")}, ErrStorage},
		{Configf("master_tau_base", "must be <= master_tau_max"), ErrConfiguration},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("tick: %w", c.err)
		if !errors.Is(wrapped, c.want) {
			t.Errorf("errors.Is(%v, %v) = false", wrapped, c.want)
		}
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	cause := errors.New("database is locked")
	err := &StorageError{Op: "prune", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("StorageError should unwrap to its cause")
	}
	var se *StorageError
	if !errors.As(fmt.Errorf("memory: %w", err), &se) || se.Op != "prune" {
		t.Errorf("errors.As: got %+v", se)
	}
}
