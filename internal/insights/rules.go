package insights

import (
	"fmt"

	"github.com/google/uuid"
)

// Rule thresholds.
const (
	SleepDebtMedium     = -5.0
	SleepDebtHigh       = -10.0
	LowStepsThreshold   = 5000.0
	HighStepsThreshold  = 10000.0
	AdequateSteps       = 7000.0
	LowEfficiency       = 85.0
	PositiveTrend       = 10.0
	VeryNegativeBalance = -20.0
	GoodSleepHours      = 7.0
	GoodSleepEfficiency = 85.0
)

// Severity grades an insight.
type Severity string

const (
	SeverityInfo   Severity = "info"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Insight is a derived recommendation; it is never persisted.
type Insight struct {
	ID             string   `json:"id"`
	Rule           string   `json:"rule"`
	Title          string   `json:"title"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
	Severity       Severity `json:"severity"`
}

// TrainingContext carries the training stress balance supplied by the caller.
// Fitness and fatigue modelling lives outside this package.
type TrainingContext struct {
	Balance float64
}

// Rule evaluates one condition. tc is nil when no training context is known.
type Rule func(s WeeklySummary, tc *TrainingContext) (Insight, bool)

// Rules lists every rule in evaluation order.
var Rules = []Rule{
	SleepDebtRule,
	LowActivityRule,
	SleepEfficiencyRule,
	ActivityTrendRule,
	InactiveRecoveryRule,
	InsufficientRestRule,
	ReduceLoadRule,
	OptimalWindowRule,
}

// Generate evaluates every rule and returns the insights that fired.
func Generate(s WeeklySummary, tc *TrainingContext) []Insight {
	out := make([]Insight, 0, len(Rules))
	for _, rule := range Rules {
		if in, ok := rule(s, tc); ok {
			in.ID = uuid.NewString()
			out = append(out, in)
		}
	}
	return out
}

// SleepDebtRule fires when the week's sleep debt is below SleepDebtMedium,
// escalating to high below SleepDebtHigh.
func SleepDebtRule(s WeeklySummary, _ *TrainingContext) (Insight, bool) {
	if s.SleepDebtHours == nil || *s.SleepDebtHours >= SleepDebtMedium {
		return Insight{}, false
	}
	severity := SeverityMedium
	if *s.SleepDebtHours < SleepDebtHigh {
		severity = SeverityHigh
	}
	return Insight{
		Rule:           "sleep_debt",
		Title:          "Sleep debt is building",
		Message:        fmt.Sprintf("You are %.1f hours short of your sleep target this week.", -*s.SleepDebtHours),
		Recommendation: "Aim for an earlier bedtime over the next few nights.",
		Severity:       severity,
	}, true
}

// LowActivityRule fires when average daily steps fall under LowStepsThreshold.
func LowActivityRule(s WeeklySummary, _ *TrainingContext) (Insight, bool) {
	if s.AverageSteps == nil || *s.AverageSteps >= LowStepsThreshold {
		return Insight{}, false
	}
	return Insight{
		Rule:           "low_activity",
		Title:          "Low activity",
		Message:        fmt.Sprintf("You averaged %.0f steps a day.", *s.AverageSteps),
		Recommendation: "Add a short walk to your day.",
		Severity:       SeverityMedium,
	}, true
}

// SleepEfficiencyRule fires when average sleep efficiency is under LowEfficiency.
func SleepEfficiencyRule(s WeeklySummary, _ *TrainingContext) (Insight, bool) {
	if s.AverageSleepEfficiency == nil || *s.AverageSleepEfficiency >= LowEfficiency {
		return Insight{}, false
	}
	return Insight{
		Rule:           "sleep_efficiency",
		Title:          "Restless nights",
		Message:        fmt.Sprintf("Average sleep efficiency was %.0f%%.", *s.AverageSleepEfficiency),
		Recommendation: "Keep a consistent wake time and limit screens before bed.",
		Severity:       SeverityMedium,
	}, true
}

// ActivityTrendRule reports an activity score trend above PositiveTrend.
func ActivityTrendRule(s WeeklySummary, _ *TrainingContext) (Insight, bool) {
	if s.ActivityTrend == nil || *s.ActivityTrend <= PositiveTrend {
		return Insight{}, false
	}
	return Insight{
		Rule:           "activity_trend",
		Title:          "Activity is trending up",
		Message:        fmt.Sprintf("Your activity score rose %.0f points over the week.", *s.ActivityTrend),
		Recommendation: "Keep the momentum going.",
		Severity:       SeverityInfo,
	}, true
}

// InactiveRecoveryRule fires when the training balance is positive but
// average steps are under LowStepsThreshold. It needs a training context.
func InactiveRecoveryRule(s WeeklySummary, tc *TrainingContext) (Insight, bool) {
	if tc == nil || s.AverageSteps == nil || tc.Balance <= 0 || *s.AverageSteps >= LowStepsThreshold {
		return Insight{}, false
	}
	return Insight{
		Rule:           "inactive_recovery",
		Title:          "Recovered but inactive",
		Message:        "Your training balance is positive while daily movement is low.",
		Recommendation: "Light movement on rest days helps recovery.",
		Severity:       SeverityMedium,
	}, true
}

// InsufficientRestRule fires when the balance is below VeryNegativeBalance
// while average steps exceed HighStepsThreshold.
func InsufficientRestRule(s WeeklySummary, tc *TrainingContext) (Insight, bool) {
	if tc == nil || s.AverageSteps == nil || tc.Balance >= VeryNegativeBalance || *s.AverageSteps <= HighStepsThreshold {
		return Insight{}, false
	}
	return Insight{
		Rule:           "insufficient_rest",
		Title:          "Not enough rest",
		Message:        "Training fatigue is very high and daily step counts are high too.",
		Recommendation: "Schedule a true rest day and keep walking to a minimum.",
		Severity:       SeverityHigh,
	}, true
}

// ReduceLoadRule pairs sleep debt below SleepDebtMedium with a negative
// balance. Severity follows SleepDebtRule.
func ReduceLoadRule(s WeeklySummary, tc *TrainingContext) (Insight, bool) {
	if tc == nil || s.SleepDebtHours == nil || tc.Balance >= 0 || *s.SleepDebtHours >= SleepDebtMedium {
		return Insight{}, false
	}
	severity := SeverityMedium
	if *s.SleepDebtHours < SleepDebtHigh {
		severity = SeverityHigh
	}
	return Insight{
		Rule:           "reduce_load",
		Title:          "Reduce training load",
		Message:        "Sleep debt is accumulating while training fatigue outweighs fitness.",
		Recommendation: "Swap the next hard session for an easy one.",
		Severity:       severity,
	}, true
}

// OptimalWindowRule fires on a positive balance once the week clears every
// Good* and Adequate* target.
func OptimalWindowRule(s WeeklySummary, tc *TrainingContext) (Insight, bool) {
	if tc == nil || tc.Balance <= 0 ||
		s.AverageSleepHours == nil || *s.AverageSleepHours < GoodSleepHours ||
		s.AverageSleepEfficiency == nil || *s.AverageSleepEfficiency < GoodSleepEfficiency ||
		s.AverageSteps == nil || *s.AverageSteps < AdequateSteps {
		return Insight{}, false
	}
	return Insight{
		Rule:           "optimal_window",
		Title:          "Ready for a hard session",
		Message:        "Sleep, daily movement and training balance all look good.",
		Recommendation: "This is a good window for a key workout.",
		Severity:       SeverityInfo,
	}, true
}
