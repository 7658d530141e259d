package compliance

import (
	"fmt"
	"math"
)

// Score weights. The level thresholds are fixed; the weights are tunable.
const (
	criticalEventPenalty = 5.0
	criticalEventCap     = 40.0
	failedTransferWeight = 40.0
	failedTransferCap    = 20.0
	emergencyPenalty     = 3.0
	emergencyCap         = 15.0
)

// ScoreInputs are the counts the compliance score is computed from.
type ScoreInputs struct {
	UnacknowledgedCritical int
	TotalTransfers         int
	FailedTransfers        int
	EmergencyAccesses      int
}

// Result is a computed score with its level, deductions and recommendations.
type Result struct {
	Score           int
	Level           string
	Deductions      []Deduction
	Recommendations []string
}

// Score computes the 0..100 compliance score. Deductions and recommendations
// are always in the order security, transfers, emergency access, and only
// deductions that lower the rounded score are reported.
func Score(in ScoreInputs) Result {
	res := Result{Deductions: []Deduction{}, Recommendations: []string{}}
	score := 100.0

	if in.UnacknowledgedCritical > 0 {
		d := math.Min(criticalEventCap, criticalEventPenalty*float64(in.UnacknowledgedCritical))
		score -= d
		res.Deductions = append(res.Deductions, Deduction{
			Category: "security",
			Points:   d,
			Reason:   fmt.Sprintf("%s unacknowledged", plural(in.UnacknowledgedCritical, "critical security event")),
		})
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("%s: review and acknowledge them", plural(in.UnacknowledgedCritical, "unacknowledged critical security event")))
	}

	if d := transferDeduction(in); d > 0 && lowers(score, d) {
		score -= d
		res.Deductions = append(res.Deductions, Deduction{
			Category: "transfers",
			Points:   d,
			Reason:   fmt.Sprintf("%d of %d data transfers failed", in.FailedTransfers, in.TotalTransfers),
		})
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("%d of %d data transfers failed: check the linked facilities and retry", in.FailedTransfers, in.TotalTransfers))
	}

	if in.EmergencyAccesses > 0 {
		d := math.Min(emergencyCap, emergencyPenalty*float64(in.EmergencyAccesses))
		score -= d
		res.Deductions = append(res.Deductions, Deduction{
			Category: "emergency-access",
			Points:   d,
			Reason:   fmt.Sprintf("%s without consent", plural(in.EmergencyAccesses, "emergency access")),
		})
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("%s to your records: verify each was justified", plural(in.EmergencyAccesses, "emergency access")))
	}

	res.Score = int(math.Round(math.Max(0, math.Min(100, score))))
	res.Level = Level(res.Score)
	return res
}

// transferDeduction is proportional to the failure rate, so unlike the other
// deductions it can be fractional.
func transferDeduction(in ScoreInputs) float64 {
	if in.FailedTransfers <= 0 {
		return 0
	}
	total := in.TotalTransfers
	if total < 1 {
		total = 1
	}
	rate := float64(in.FailedTransfers) / float64(total)
	return math.Min(failedTransferCap, rate*failedTransferWeight)
}

// lowers reports whether taking d off score changes the rounded score.
func lowers(score, d float64) bool {
	return math.Round(score-d) < math.Round(score)
}

// Level maps a score onto a compliance level.
func Level(score int) string {
	switch {
	case score >= 80:
		return LevelExcellent
	case score >= 60:
		return LevelGood
	default:
		return LevelNeedsAttention
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	if noun[len(noun)-1] == 's' {
		return fmt.Sprintf("%d %ses", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
