package landscape

// Tent evaluates the tent function of the diagram point (b, d) at t.
// With m = (b+d)/2 it returns t-b on [b, m], d-t on (m, d] and 0 elsewhere.
// It requires b <= d.
func Tent(t, b, d float64) float64 {
	m := (b + d) / 2
	switch {
	case b <= t && t <= m:
		return t - b
	case m < t && t <= d:
		return d - t
	default:
		return 0
	}
}

// TentVec evaluates the tent of (b, d) at every value of grid and returns a
// new slice of the same length.
func TentVec(grid []float64, b, d float64) []float64 {
	return TentInto(make([]float64, len(grid)), grid, b, d)
}

// TentInto is TentVec writing into dst, which must have the length of grid.
// It returns dst.
func TentInto(dst, grid []float64, b, d float64) []float64 {
	if len(dst) != len(grid) {
		panic("landscape: TentInto length mismatch")
	}
	for i, t := range grid {
		dst[i] = Tent(t, b, d)
	}
	return dst
}
