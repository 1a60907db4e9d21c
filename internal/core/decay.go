// Package core holds the pure scoring and text kernels: decay models,
// similarity measures, keyword extraction, and pagination. Nothing here
// touches storage, the clock, or the network.
package core

import "math"

// DecayParams are the knobs for all three decay models. Zero values are not
// usable; build from config.
type DecayParams struct {
	Lambda float64 // exponential decay constant (1/seconds)
	Beta   float64 // use_count exponent

	// power-law
	Alpha        float64
	HalflifeDays float64

	// two-component
	LambdaFast float64
	LambdaSlow float64
	WeightFast float64
}

// Score computes the exponential-decay score:
//
//	score = use_count^beta * exp(-lambda * dt) * strength
//
// dt is clamped at zero so clock skew never inflates a score.
func Score(useCount int, lastUsed int64, strength float64, now int64, lambda, beta float64) float64 {
	if useCount <= 0 {
		return 0
	}
	dt := float64(now - lastUsed)
	if dt < 0 {
		dt = 0
	}
	return math.Pow(float64(useCount), beta) * math.Exp(-lambda*dt) * strength
}

// ScorePowerLaw computes the heavy-tailed variant:
//
//	score = use_count^beta * (1 + dt/tau)^(-alpha) * strength
//
// tau is derived so the curve halves at the configured half-life.
func ScorePowerLaw(useCount int, lastUsed int64, strength float64, now int64, alpha, beta, halflifeDays float64) float64 {
	if useCount <= 0 {
		return 0
	}
	dt := float64(now - lastUsed)
	if dt < 0 {
		dt = 0
	}
	tau := PowerLawTau(alpha, halflifeDays)
	return math.Pow(float64(useCount), beta) * math.Pow(1+dt/tau, -alpha) * strength
}

// PowerLawTau solves (1 + h/tau)^(-alpha) = 1/2 for tau, with h the
// half-life in seconds.
func PowerLawTau(alpha, halflifeDays float64) float64 {
	h := halflifeDays * 86400
	return h / (math.Pow(2, 1/alpha) - 1)
}

// ScoreTwoComponent mixes a fast and a slow exponential:
//
//	score = use_count^beta * (w*exp(-lf*dt) + (1-w)*exp(-ls*dt)) * strength
func ScoreTwoComponent(useCount int, lastUsed int64, strength float64, now int64, lambdaFast, lambdaSlow, weightFast, beta float64) float64 {
	if useCount <= 0 {
		return 0
	}
	dt := float64(now - lastUsed)
	if dt < 0 {
		dt = 0
	}
	mix := weightFast*math.Exp(-lambdaFast*dt) + (1-weightFast)*math.Exp(-lambdaSlow*dt)
	return math.Pow(float64(useCount), beta) * mix * strength
}

// DecayLambda converts a half-life in days to the exponential decay constant.
func DecayLambda(halflifeDays float64) float64 {
	return math.Ln2 / (halflifeDays * 86400)
}

// Halflife converts a decay constant back to a half-life in days.
func Halflife(lambda float64) float64 {
	return math.Ln2 / lambda / 86400
}

// TimeUntilThreshold returns the seconds until an exponentially decaying
// score drops below threshold, measured from now. Returns ok=false when the
// score is already at or below the threshold.
func TimeUntilThreshold(currentScore, threshold float64, lastUsed, now int64, lambda float64) (seconds float64, ok bool) {
	if currentScore <= threshold {
		return 0, false
	}
	total := -math.Log(threshold/currentScore) / lambda
	remaining := total - float64(now-lastUsed)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// ProjectScore evaluates the exponential score at a future instant.
func ProjectScore(useCount int, lastUsed int64, strength float64, target int64, lambda, beta float64) float64 {
	return Score(useCount, lastUsed, strength, target, lambda, beta)
}
