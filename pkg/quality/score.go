package quality

import (
	"math"

	"github.com/medtrack/data-ingress/pkg/config"
	"github.com/medtrack/data-ingress/pkg/model"
)

// Score aggregates the audit dimensions. Completeness is the mean rate over
// all tables; consistency and accuracy lose a fixed penalty per issue; the
// timeliness penalty applies per day beyond the freshness window.
func Score(
	sc config.ScoringConfig,
	completeness []model.CompletenessReport,
	consistency model.ConsistencyReport,
	accuracy model.AccuracyReport,
	timeliness model.TimelinessReport,
) model.QualityScore {
	var avg float64
	if len(completeness) > 0 {
		for _, c := range completeness {
			avg += c.CompletenessRate
		}
		avg /= float64(len(completeness))
	}

	consistencyScore := math.Max(0, 100-sc.ConsistencyPenalty*float64(consistency.TotalIssues()))
	accuracyScore := math.Max(0, 100-sc.AccuracyPenalty*float64(accuracy.TotalIssues))

	timelinessScore := 100.0
	if d := timeliness.DaysSinceLastSale; d != nil && *d > sc.FreshnessDays {
		timelinessScore = math.Max(0, 100-sc.TimelinessPenalty*float64(*d-sc.FreshnessDays))
	}

	overall := avg*sc.CompletenessWeight +
		consistencyScore*sc.ConsistencyWeight +
		accuracyScore*sc.AccuracyWeight +
		timelinessScore*sc.TimelinessWeight

	return model.QualityScore{
		Completeness: round2(avg),
		Consistency:  consistencyScore,
		Accuracy:     accuracyScore,
		Timeliness:   timelinessScore,
		Overall:      round2(overall),
		Grade:        Grade(overall),
	}
}

// Grade maps an overall score onto a letter grade
func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}
