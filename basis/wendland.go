package basis

// Wendland evaluates the compactly supported Wendland kernel at the scaled
// distance t = d/radius. The kernel is C2-smooth, strictly positive at 0,
// monotone decreasing, and exactly zero for t >= 1:
//
//	phi(t) = (1-t)^6 (35t^2 + 18t + 3) / 3
//
// Callers are expected to have already scaled by the support radius.
func Wendland(t float64) float64 {
	if t >= 1.0 {
		return 0.0
	}
	if t < 0.0 {
		t = -t
	}

	u := 1.0 - t
	u3 := u * u * u
	return u3 * u3 * (35.0*t*t + 18.0*t + 3.0) / 3.0
}
