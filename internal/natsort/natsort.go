// Package natsort implements "natural" string ordering, where runs of digits
// compare by numeric value instead of byte by byte ("img2" < "img10").
package natsort

// Compare returns -1, 0 or 1 depending on whether a sorts before, equal to,
// or after b in natural order.
//
// Leading zeros at the start of each string are ignored. Whitespace is skipped.
// A digit run starting with '0' is compared as a fraction (left-aligned), so
// "1.05" < "1.5"; any other digit run is compared by magnitude.
func Compare(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return sign(len(a) - len(b))
	}

	a = trimLeadingZeros(a)
	b = trimLeadingZeros(b)

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		for i < len(a) && isSpace(a[i]) {
			i++
		}
		for j < len(b) && isSpace(b[j]) {
			j++
		}

		ac, bc := at(a, i), at(b, j)
		aDigit, bDigit := isDigit(ac), isDigit(bc)

		if aDigit && bDigit {
			bias := 0
			fractional := ac == '0' || bc == '0'

			for {
				switch {
				case !aDigit:
					return -1
				case !bDigit:
					return 1
				case ac < bc:
					if bias == 0 {
						bias = -1
					}
					if fractional {
						return -1
					}
				case ac > bc:
					if bias == 0 {
						bias = 1
					}
					if fractional {
						return 1
					}
				}

				i++
				j++
				ac, bc = at(a, i), at(b, j)
				aDigit, bDigit = isDigit(ac), isDigit(bc)
				if !aDigit && !bDigit {
					break
				}
			}

			if !fractional && bias != 0 {
				return bias
			}
			continue
		}

		if i >= len(a) || j >= len(b) {
			break
		}
		if ac < bc {
			return -1
		}
		if ac > bc {
			return 1
		}

		i++
		j++
	}

	aLeft := i < len(a)
	bLeft := j < len(b)
	switch {
	case aLeft && !bLeft:
		return 1
	case !aLeft && bLeft:
		return -1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// trimLeadingZeros drops zeros at the start of s as long as a digit follows.
func trimLeadingZeros(s string) string {
	n := 0
	for n+1 < len(s) && s[n] == '0' && isDigit(s[n+1]) {
		n++
	}
	return s[n:]
}

func at(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
