package builtins

import (
	"math"
	"math/bits"
)

// The functions here work on float64 and follow ECMAScript's rules for
// NaN, infinities and signed zero where Go's math package differs.

func mathRound(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x == 0 {
		return x
	}
	if x < 0 && x >= -0.5 {
		return math.Copysign(0, -1)
	}
	r := math.Floor(x)
	if x-r >= 0.5 {
		r++
	}
	return r
}

func mathSign(x float64) float64 {
	switch {
	case math.IsNaN(x), x == 0:
		return x
	case x > 0:
		return 1
	}
	return -1
}

func mathPow(base, exponent float64) float64 {
	if math.IsNaN(exponent) {
		return math.NaN()
	}
	if math.IsInf(exponent, 0) && math.Abs(base) == 1 {
		return math.NaN()
	}
	return math.Pow(base, exponent)
}

func mathFround(x float64) float64 {
	return float64(float32(x))
}

func mathClz32(x uint32) float64 {
	return float64(bits.LeadingZeros32(x))
}

func mathImul(x, y uint32) float64 {
	return float64(int32(x * y))
}

// mathMax folds xs with ECMAScript's max: NaN wins, and +0 is larger
// than -0.
func mathMax(xs []float64) float64 {
	result := math.Inf(-1)
	for _, x := range xs {
		switch {
		case math.IsNaN(x):
			return x
		case x > result, x == 0 && result == 0 && !math.Signbit(x):
			result = x
		}
	}
	return result
}

func mathMin(xs []float64) float64 {
	result := math.Inf(1)
	for _, x := range xs {
		switch {
		case math.IsNaN(x):
			return x
		case x < result, x == 0 && result == 0 && math.Signbit(x):
			result = x
		}
	}
	return result
}

// mathHypot returns +Inf if any argument is infinite, even when another
// is NaN.
func mathHypot(xs []float64) float64 {
	nan := false
	for _, x := range xs {
		if math.IsInf(x, 0) {
			return math.Inf(1)
		}
		nan = nan || math.IsNaN(x)
	}
	if nan {
		return math.NaN()
	}
	result := 0.0
	for _, x := range xs {
		result = math.Hypot(result, x)
	}
	return result
}

// mathSumPrecise adds xs without intermediate rounding error using
// Neumaier's variant of Kahan summation. An empty list sums to -0.
func mathSumPrecise(xs []float64) float64 {
	if len(xs) == 0 {
		return math.Copysign(0, -1)
	}
	posInf, negInf, allNegZero := false, false, true
	for _, x := range xs {
		switch {
		case math.IsNaN(x):
			return x
		case math.IsInf(x, 1):
			posInf = true
		case math.IsInf(x, -1):
			negInf = true
		}
		if x != 0 || !math.Signbit(x) {
			allNegZero = false
		}
	}
	switch {
	case posInf && negInf:
		return math.NaN()
	case posInf:
		return math.Inf(1)
	case negInf:
		return math.Inf(-1)
	case allNegZero:
		return math.Copysign(0, -1)
	}
	sum, compensation := 0.0, 0.0
	for _, x := range xs {
		t := sum + x
		if math.Abs(sum) >= math.Abs(x) {
			compensation += (sum - t) + x
		} else {
			compensation += (x - t) + sum
		}
		sum = t
	}
	return sum + compensation
}
