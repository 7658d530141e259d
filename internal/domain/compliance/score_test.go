package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		in    ScoreInputs
		score int
		level string
	}{
		{"clean", ScoreInputs{}, 100, LevelExcellent},
		{"one critical", ScoreInputs{UnacknowledgedCritical: 1}, 95, LevelExcellent},
		{"critical capped", ScoreInputs{UnacknowledgedCritical: 10}, 60, LevelGood},
		{"half transfers failed", ScoreInputs{TotalTransfers: 2, FailedTransfers: 1}, 80, LevelExcellent},
		{"quarter transfers failed", ScoreInputs{TotalTransfers: 4, FailedTransfers: 1}, 90, LevelExcellent},
		{"third transfers failed rounds", ScoreInputs{TotalTransfers: 3, FailedTransfers: 1}, 87, LevelExcellent},
		{"failed with zero total", ScoreInputs{FailedTransfers: 1}, 80, LevelExcellent},
		{"two emergencies", ScoreInputs{EmergencyAccesses: 2}, 94, LevelExcellent},
		{"emergency capped", ScoreInputs{EmergencyAccesses: 10}, 85, LevelExcellent},
		{"everything capped", ScoreInputs{UnacknowledgedCritical: 50, TotalTransfers: 1, FailedTransfers: 1, EmergencyAccesses: 50}, 25, LevelNeedsAttention},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Score(tt.in)
			assert.Equal(t, tt.score, res.Score)
			assert.Equal(t, tt.level, res.Level)
			assert.GreaterOrEqual(t, res.Score, 0)
			assert.LessOrEqual(t, res.Score, 100)
		})
	}
}

func TestScore_DeductionOrder(t *testing.T) {
	res := Score(ScoreInputs{UnacknowledgedCritical: 2, TotalTransfers: 4, FailedTransfers: 2, EmergencyAccesses: 1})

	var cats []string
	for _, d := range res.Deductions {
		cats = append(cats, d.Category)
	}
	assert.Equal(t, []string{"security", "transfers", "emergency-access"}, cats)
	assert.Len(t, res.Recommendations, 3)
	assert.Contains(t, res.Recommendations[0], "2 unacknowledged critical security events")
	assert.Contains(t, res.Recommendations[1], "2 of 4 data transfers failed")
	assert.Contains(t, res.Recommendations[2], "1 emergency access")
	// 100 - 10 - 20 - 3
	assert.Equal(t, 67, res.Score)
}

func TestScore_CleanHasEmptyLists(t *testing.T) {
	res := Score(ScoreInputs{})
	assert.NotNil(t, res.Deductions)
	assert.NotNil(t, res.Recommendations)
	assert.Empty(t, res.Deductions)
	assert.Empty(t, res.Recommendations)

	// 1 failure in 1000 transfers is worth 0.04 points and leaves the score at 100.
	res = Score(ScoreInputs{TotalTransfers: 1000, FailedTransfers: 1})
	assert.Equal(t, 100, res.Score)
	assert.Empty(t, res.Deductions)
	assert.Empty(t, res.Recommendations)

	// 13 in 1000 is worth 0.52 and rounds the score down to 99.
	res = Score(ScoreInputs{TotalTransfers: 1000, FailedTransfers: 13})
	assert.Equal(t, 99, res.Score)
	assert.Len(t, res.Deductions, 1)
	assert.Len(t, res.Recommendations, 1)
}

func TestLevel_Boundaries(t *testing.T) {
	assert.Equal(t, LevelExcellent, Level(80))
	assert.Equal(t, LevelGood, Level(79))
	assert.Equal(t, LevelGood, Level(60))
	assert.Equal(t, LevelNeedsAttention, Level(59))
	assert.Equal(t, LevelNeedsAttention, Level(0))
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "1 emergency access", plural(1, "emergency access"))
	assert.Equal(t, "3 emergency accesses", plural(3, "emergency access"))
	assert.Equal(t, "2 critical security events", plural(2, "critical security event"))
}
