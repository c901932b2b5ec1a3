package query

// likeMatch implements SQL LIKE semantics (§4.7): '%' matches any run of
// characters (including none), '_' matches exactly one character, and a
// doubled '%%' matches one literal '%'. It is an iterative two-pointer
// scan — the classic wildcard-matching algorithm, adapted with a
// lookahead for the doubled-percent literal — with O(n·m) worst-case time
// and O(1) auxiliary memory: no recursion, no backing slice for the
// pattern, just a handful of integer cursors.
func likeMatch(text, pattern string) bool {
	ti, pi := 0, 0
	starPi, starTi := -1, -1

	for ti < len(text) {
		matched := false
		if pi < len(pattern) {
			switch {
			case pattern[pi] == '%' && pi+1 < len(pattern) && pattern[pi+1] == '%':
				if text[ti] == '%' {
					ti++
					pi += 2
					matched = true
				}
			case pattern[pi] == '%':
				starPi, starTi = pi, ti
				pi++
				matched = true
			case pattern[pi] == '_' || pattern[pi] == text[ti]:
				ti++
				pi++
				matched = true
			}
		}
		if !matched {
			if starPi == -1 {
				return false
			}
			starTi++
			ti = starTi
			pi = starPi + 1
		}
	}

	// Trailing lone '%' wildcards (not part of a literal '%%' pair) match
	// the empty remainder of text.
	for pi < len(pattern) {
		if pattern[pi] == '%' && !(pi+1 < len(pattern) && pattern[pi+1] == '%') {
			pi++
			continue
		}
		break
	}
	return pi == len(pattern)
}
