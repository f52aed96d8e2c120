package export

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatScalar renders v with the shortest digits that parse back to the same
// float32. Magnitudes in [1e-4, 1e16) print positionally and always carry a
// fractional part; anything else prints as d.ddde±XX. The cut is made on the
// value, not on its digits, so float32(1e-4) = 9.99999975e-05 prints as 1e-04.
func FormatScalar(v float32) string {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 32)
	sign := ""
	if sci[0] == '-' {
		sign, sci = "-", sci[1:]
	}
	mantissa, expPart, _ := strings.Cut(sci, "e")
	exp, err := strconv.Atoi(expPart)
	if err != nil {
		panic(fmt.Sprintf("unexpected float format %q", sci))
	}
	digits := strings.Replace(mantissa, ".", "", 1)

	if abs := math.Abs(f); abs < 1e-4 || abs >= 1e16 {
		m := digits[:1]
		if len(digits) > 1 {
			m += "." + digits[1:]
		}
		return fmt.Sprintf("%s%se%+03d", sign, m, exp)
	}

	if exp < 0 {
		return sign + "0." + strings.Repeat("0", -exp-1) + digits
	}
	if len(digits) <= exp+1 {
		return sign + digits + strings.Repeat("0", exp+1-len(digits)) + ".0"
	}
	return sign + digits[:exp+1] + "." + digits[exp+1:]
}
