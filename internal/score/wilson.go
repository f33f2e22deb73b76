// Package score turns sparse vote histograms into bounded popularity scores.
package score

import "math"

// bucketValues maps the five vote options onto the unit interval.
var bucketValues = [5]float64{0, 0.25, 0.5, 0.75, 1}

// z is the normal quantile for an 80% confidence interval.
const z = 1.281

// Wilson computes the Wilson lower-bound confidence score of a five-bucket
// vote histogram. The result is always within [0,1] and is 0 for an empty
// histogram, so few votes cannot dominate the ranking.
func Wilson(votes [5]int) float64 {
	n := 0
	for _, v := range votes {
		n += v
	}
	if n == 0 {
		return 0
	}
	count := float64(n)

	mean := 0.0
	for i, v := range votes {
		mean += float64(v) * bucketValues[i]
	}
	mean /= count

	variance := 0.0
	for i, v := range votes {
		d := mean - bucketValues[i]
		variance += d * d * float64(v)
	}
	variance /= count

	return (mean + z*z/(2*count) - (z/(2*count))*math.Sqrt(4*count*variance+z*z)) /
		(1 + z*z/count)
}
