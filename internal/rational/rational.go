package rational

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rational represents an exact fraction (numerator/denominator).
// Used for presentation timestamps, time bases and sample-rate conversion.
// Values built with New are always reduced with a positive denominator.
type Rational struct {
	Num int64 // Numerator
	Den int64 // Denominator
}

// New creates a reduced rational number
func New(num, den int64) Rational {
	if den == 0 {
		den = 1
	}
	if den < 0 {
		num, den = -num, -den
	}
	if g := gcd(abs(num), den); g > 1 {
		num /= g
		den /= g
	}
	return Rational{Num: num, Den: den}
}

// FromInt creates a whole-number rational
func FromInt(v int64) Rational {
	return Rational{Num: v, Den: 1}
}

// FromDuration converts a duration to seconds
func FromDuration(d time.Duration) Rational {
	return New(int64(d), int64(time.Second))
}

// Zero is 0/1
var Zero = Rational{Num: 0, Den: 1}

// norm treats the zero value as 0/1
func (r Rational) norm() Rational {
	if r.Den == 0 {
		return Zero
	}
	return r
}

// Add returns r + o
func (r Rational) Add(o Rational) Rational {
	r, o = r.norm(), o.norm()
	g := gcd(r.Den, o.Den)
	return New(r.Num*(o.Den/g)+o.Num*(r.Den/g), r.Den/g*o.Den)
}

// Sub returns r - o
func (r Rational) Sub(o Rational) Rational {
	return r.Add(o.Neg())
}

// Mul returns r * o
func (r Rational) Mul(o Rational) Rational {
	r, o = r.norm(), o.norm()
	// Cross-reduce first to keep intermediates small
	g1 := gcd(abs(r.Num), o.Den)
	g2 := gcd(abs(o.Num), r.Den)
	if g1 == 0 {
		g1 = 1
	}
	if g2 == 0 {
		g2 = 1
	}
	return New((r.Num/g1)*(o.Num/g2), (r.Den/g2)*(o.Den/g1))
}

// Div returns r / o. Division by zero yields zero.
func (r Rational) Div(o Rational) Rational {
	o = o.norm()
	if o.Num == 0 {
		return Zero
	}
	return r.Mul(New(o.Den, o.Num))
}

// MulInt returns r * v
func (r Rational) MulInt(v int64) Rational {
	return r.Mul(FromInt(v))
}

// Neg returns -r
func (r Rational) Neg() Rational {
	r = r.norm()
	return Rational{Num: -r.Num, Den: r.Den}
}

// Cmp compares r and o and returns -1, 0 or +1
func (r Rational) Cmp(o Rational) int {
	return r.Sub(o).Sign()
}

// Less reports whether r < o
func (r Rational) Less(o Rational) bool {
	return r.Cmp(o) < 0
}

// LessEq reports whether r <= o
func (r Rational) LessEq(o Rational) bool {
	return r.Cmp(o) <= 0
}

// Equal reports whether r == o
func (r Rational) Equal(o Rational) bool {
	return r.Cmp(o) == 0
}

// Sign returns -1, 0 or +1
func (r Rational) Sign() int {
	r = r.norm()
	switch {
	case r.Num < 0:
		return -1
	case r.Num > 0:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether r == 0
func (r Rational) IsZero() bool {
	return r.norm().Num == 0
}

// IsInteger reports whether r has no fractional part
func (r Rational) IsInteger() bool {
	r = r.norm()
	return r.Num%r.Den == 0
}

// Floor returns the largest integer <= r
func (r Rational) Floor() int64 {
	r = r.norm()
	q := r.Num / r.Den
	if r.Num%r.Den != 0 && (r.Num < 0) != (r.Den < 0) {
		q--
	}
	return q
}

// Float64 returns the floating point representation
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Duration interprets r as seconds
func (r Rational) Duration() time.Duration {
	return time.Duration(r.MulInt(int64(time.Second)).Floor())
}

// Invert returns the inverted rational (den/num)
func (r Rational) Invert() Rational {
	return New(r.Den, r.Num)
}

// String implements fmt.Stringer
func (r Rational) String() string {
	r = r.norm()
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Parse reads "num/den" or a whole number
func Parse(s string) (Rational, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("invalid rational %q: %w", s, err)
	}
	if !found {
		return FromInt(n), nil
	}
	d, err := strconv.ParseInt(den, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("invalid rational %q: %w", s, err)
	}
	if d == 0 {
		return Zero, fmt.Errorf("invalid rational %q: zero denominator", s)
	}
	return New(n, d), nil
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Common time bases
var (
	// Video time bases
	TimeBase90kHz = Rational{Num: 1, Den: 90000} // Standard video (RTP)
	TimeBase1kHz  = Rational{Num: 1, Den: 1000}  // Millisecond precision

	// Audio time bases
	TimeBase48kHz = Rational{Num: 1, Den: 48000}
	TimeBase44kHz = Rational{Num: 1, Den: 44100}

	// Frame rates
	FrameRate24 = Rational{Num: 24, Den: 1}
	FrameRate25 = Rational{Num: 25, Den: 1} // PAL
	FrameRate30 = Rational{Num: 30, Den: 1}
	FrameRate50 = Rational{Num: 50, Den: 1}
	FrameRate60 = Rational{Num: 60, Den: 1}

	// NTSC frame rates
	FrameRate23_976 = Rational{Num: 24000, Den: 1001}
	FrameRate29_97  = Rational{Num: 30000, Den: 1001}
	FrameRate59_94  = Rational{Num: 60000, Den: 1001}
)
