package types

import (
	"math"
	"math/cmplx"
)

// Phase is an instantaneous signal encoding with a real and imaginary part.
type Phase struct {
	Re float64 `json:"real"`
	Im float64 `json:"imag"`
}

// ZeroPhase is the additive identity returned by empty recalls.
var ZeroPhase = Phase{}

// PhaseOf converts a complex128 into a Phase.
func PhaseOf(c complex128) Phase {
	return Phase{Re: real(c), Im: imag(c)}
}

// Complex returns p as a complex128.
func (p Phase) Complex() complex128 {
	return complex(p.Re, p.Im)
}

// Abs returns the magnitude |p|.
func (p Phase) Abs() float64 {
	return math.Hypot(p.Re, p.Im)
}

// Arg returns the argument of p in radians, in (-π, π].
func (p Phase) Arg() float64 {
	return cmplx.Phase(p.Complex())
}

// Add returns p + q.
func (p Phase) Add(q Phase) Phase {
	return Phase{Re: p.Re + q.Re, Im: p.Im + q.Im}
}

// Sub returns p - q.
func (p Phase) Sub(q Phase) Phase {
	return Phase{Re: p.Re - q.Re, Im: p.Im - q.Im}
}

// Scale returns p multiplied by the real factor k.
func (p Phase) Scale(k float64) Phase {
	return Phase{Re: p.Re * k, Im: p.Im * k}
}

// Conj returns the complex conjugate of p.
func (p Phase) Conj() Phase {
	return Phase{Re: p.Re, Im: -p.Im}
}

// Mul returns the complex product p·q.
func (p Phase) Mul(q Phase) Phase {
	return PhaseOf(p.Complex() * q.Complex())
}

// Unit returns p/|p|, or p unchanged when |p| is zero.
func (p Phase) Unit() Phase {
	m := p.Abs()
	if m == 0 {
		return p
	}
	return p.Scale(1 / m)
}

// IsFinite reports whether both components are neither NaN nor ±Inf.
func (p Phase) IsFinite() bool {
	return isFinite(p.Re) && isFinite(p.Im)
}

// Polar builds a Phase from a magnitude and an angle in radians.
func Polar(r, theta float64) Phase {
	return PhaseOf(cmplx.Rect(r, theta))
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Clamp01 clamps v to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
