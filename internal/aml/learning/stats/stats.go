// Package stats holds the small numerical primitives shared by the
// learning modules: Wilson confidence intervals, a chi-square
// significance test, Levenshtein/cosine similarity, and ordinary
// least squares, none of which any dependency in the module's stack
// provides off the shelf.
package stats

import "math"

// WilsonInterval returns the Wilson score interval for a binomial
// proportion estimated from successes out of total trials, per spec
// §4.7/§4.8 ("Wilson score", "confidenceInterval"). z defaults to 1.96
// (95%) when the caller passes 0.
func WilsonInterval(successes, total int, z float64) (center, lower, upper float64) {
	if total <= 0 {
		return 0, 0, 0
	}
	if z <= 0 {
		z = 1.96
	}
	n := float64(total)
	p := float64(successes) / n
	z2 := z * z
	denom := 1 + z2/n
	centerAdj := p + z2/(2*n)
	spread := z * math.Sqrt(p*(1-p)/n+z2/(4*n*n))
	lower = (centerAdj - spread) / denom
	upper = (centerAdj + spread) / denom
	center = centerAdj / denom
	if lower < 0 {
		lower = 0
	}
	if upper > 1 {
		upper = 1
	}
	return center, lower, upper
}

// ChiSquare2x2 computes Pearson's chi-square statistic for a 2x2
// contingency table laid out as:
//
//	          success   failure
//	observed     a         b
//	baseline     c         d
func ChiSquare2x2(a, b, c, d float64) float64 {
	n := a + b + c + d
	if n == 0 {
		return 0
	}
	rowObs := a + b
	rowBase := c + d
	colSucc := a + c
	colFail := b + d
	expected := func(row, col float64) float64 {
		e := row * col / n
		if e == 0 {
			return 1e-9
		}
		return e
	}
	ea := expected(rowObs, colSucc)
	eb := expected(rowObs, colFail)
	ec := expected(rowBase, colSucc)
	ed := expected(rowBase, colFail)
	term := func(o, e float64) float64 {
		d := o - e
		return d * d / e
	}
	return term(a, ea) + term(b, eb) + term(c, ec) + term(d, ed)
}

// ChiSquarePValue returns the upper-tail p-value for a chi-square
// statistic with one degree of freedom, using the exact identity
// chi2_1 = Z^2 so P(chi2 > x) = erfc(sqrt(x/2)).
func ChiSquarePValue(chi2 float64) float64 {
	if chi2 < 0 {
		chi2 = 0
	}
	return math.Erfc(math.Sqrt(chi2 / 2))
}

// TStatPValue approximates the two-tailed p-value for a t-statistic
// via p ≈ exp(-t), the coarse approximation spec §4.11 calls for in
// CUSUM change-point confirmation.
func TStatPValue(t float64) float64 {
	if t < 0 {
		t = -t
	}
	return math.Exp(-t)
}

// LevenshteinDistance computes the edit distance between two token
// sequences (used over action-type strings, not raw bytes).
func LevenshteinDistance(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// CosineSimilarity computes cosine similarity over two sparse count
// vectors keyed by feature name.
func CosineSimilarity(a, b map[string]float64) float64 {
	var dot, magA, magB float64
	for k, va := range a {
		dot += va * b[k]
		magA += va * va
	}
	for _, vb := range b {
		magB += vb * vb
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// OLS fits y = slope*x + intercept over equally spaced integer x
// values (0..n-1) and returns the R^2 goodness of fit.
func OLS(ys []float64) (slope, intercept, rSquared float64) {
	n := len(ys)
	if n < 2 {
		return 0, 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / nf, 0
	}
	slope = (nf*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / nf

	meanY := sumY / nf
	var ssTot, ssRes float64
	for i, y := range ys {
		x := float64(i)
		pred := slope*x + intercept
		ssRes += (y - pred) * (y - pred)
		ssTot += (y - meanY) * (y - meanY)
	}
	if ssTot == 0 {
		return slope, intercept, 1
	}
	rSquared = 1 - ssRes/ssTot
	return slope, intercept, rSquared
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation.
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	var sum float64
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// Autocorrelation computes the lag-k sample autocorrelation of a
// series, used by trend analysis's seasonality detection.
func Autocorrelation(series []float64, lag int) float64 {
	n := len(series)
	if lag <= 0 || lag >= n {
		return 0
	}
	m := Mean(series)
	var num, den float64
	for i := 0; i < n; i++ {
		den += (series[i] - m) * (series[i] - m)
	}
	for i := 0; i < n-lag; i++ {
		num += (series[i] - m) * (series[i+lag] - m)
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Clamp restricts x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
