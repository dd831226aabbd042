package routeopt

import "github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"

// scoreQuality applies spec §4.4's quality formula: start at 1.0, ×0.9 if
// stops>10, ×0.8 if duration>120min, ×0.85 if distance>50km, then bucket.
func scoreQuality(stopCount int, totalDurationMin, totalDistanceKm float64) domain.RouteQuality {
	score := 1.0
	if stopCount > 10 {
		score *= 0.9
	}
	if totalDurationMin > 120 {
		score *= 0.8
	}
	if totalDistanceKm > 50 {
		score *= 0.85
	}

	switch {
	case score >= 0.9:
		return domain.QualityExcellent
	case score >= 0.7:
		return domain.QualityGood
	case score >= 0.5:
		return domain.QualityAcceptable
	default:
		return domain.QualityPoor
	}
}
