package sla

import "github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"

// Thresholds is the per-service-type {warning,critical,breach} minute table
// (spec §4.3). EXPRESS and STANDARD ship with the spec's literal defaults;
// Config may override either.
type Thresholds struct {
	WarningMin  float64
	CriticalMin float64
	BreachMin   float64
}

func DefaultThresholds() map[domain.ServiceType]Thresholds {
	return map[domain.ServiceType]Thresholds{
		domain.ServiceExpress:  {WarningMin: 40, CriticalMin: 50, BreachMin: 60},
		domain.ServiceStandard: {WarningMin: 150, CriticalMin: 210, BreachMin: 240},
	}
}

// categoryFor maps an elapsed-minute value against t to an SLACategory.
func categoryFor(elapsedMin float64, t Thresholds) domain.SLACategory {
	switch {
	case elapsedMin >= t.BreachMin:
		return domain.SLABreached
	case elapsedMin >= t.CriticalMin:
		return domain.SLACritical
	case elapsedMin >= t.WarningMin:
		return domain.SLAWarning
	default:
		return domain.SLAHealthy
	}
}

// rank orders categories for the "max of (elapsed, predicted)" rule.
func rank(c domain.SLACategory) int {
	switch c {
	case domain.SLABreached:
		return 3
	case domain.SLACritical:
		return 2
	case domain.SLAWarning:
		return 1
	default:
		return 0
	}
}

func maxCategory(a, b domain.SLACategory) domain.SLACategory {
	if rank(b) > rank(a) {
		return b
	}
	return a
}
