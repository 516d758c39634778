// Package safety aggregates interaction findings and patient-specific checks
// into per-medication verdicts.  The aggregator never blocks a scan on the
// interaction service: when the service is down it degrades to the static
// tables and says so in the verdict reasoning.
package safety

import (
	"context"
	"fmt"
	"strings"

	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	"github.com/dosewise/rxlens/internal/interactions"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// Assessment is the full safety outcome for one medication candidate.
type Assessment struct {
	Findings []rx.InteractionFinding
	Verdict  rx.SafetyVerdict
	Enhanced rx.EnhancedSafetyReport
}

// Aggregator runs interaction and patient-context checks over a medication
// list.
type Aggregator struct {
	client interactions.Client
	logger logging.Logger
}

// NewAggregator constructs an Aggregator.  The interaction client is
// required.
func NewAggregator(client interactions.Client, logger logging.Logger) (*Aggregator, error) {
	if client == nil {
		return nil, apperrors.InvalidParam("safety: interaction client is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Aggregator{client: client, logger: logger.Named("safety")}, nil
}

// Assess evaluates every candidate against the others, the patient's active
// medications, and the patient context.  The returned slice is parallel to
// meds.  Assess never returns an error for interaction-service outages; it
// falls back to the static tables and records the degradation in each
// verdict's reasoning.
func (a *Aggregator) Assess(ctx context.Context, meds []rx.MedicationCandidate, patient rx.PatientContext) []Assessment {
	names := make([]string, 0, len(meds)+len(patient.ActiveMedications))
	for i := range meds {
		names = append(names, meds[i].DrugName)
	}
	for _, active := range patient.ActiveMedications {
		if active = strings.TrimSpace(active); active != "" {
			names = append(names, active)
		}
	}

	pairFindings, degraded := a.pairFindings(ctx, names)

	assessments := make([]Assessment, len(meds))
	for i := range meds {
		findings := distribute(pairFindings, meds[i].DrugName)
		verdict := DetermineSafetyFlag(findings)
		if degraded {
			verdict.Reasoning += " (interaction service unavailable; built-in rules only)"
		}
		assessments[i] = Assessment{
			Findings: findings,
			Verdict:  verdict,
			Enhanced: a.EnhancedCheck(&meds[i], patient),
		}
	}
	return assessments
}

// pairFindings queries the interaction service, falling back to the static
// pair table when it is unreachable.  The degraded flag reports which source
// answered.
func (a *Aggregator) pairFindings(ctx context.Context, names []string) ([]interactions.PairFinding, bool) {
	findings, err := a.client.CheckInteractions(ctx, names)
	if err == nil {
		return findings, false
	}
	a.logger.Warn("interaction service unavailable, using static tables", logging.Err(err))

	var static []interactions.PairFinding
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			rule, ok := fallbackInteractions[pairKey(names[i], names[j])]
			if !ok {
				continue
			}
			static = append(static, interactions.PairFinding{
				DrugA:          names[i],
				DrugB:          names[j],
				Tier:           rule.tier,
				Description:    rule.description,
				Severity:       rule.severity,
				Recommendation: rule.recommendation,
			})
		}
	}
	return static, true
}

// distribute selects the pair findings involving drug and rewrites each as a
// per-candidate finding pointing at the other drug in the pair.
func distribute(pairs []interactions.PairFinding, drug string) []rx.InteractionFinding {
	var out []rx.InteractionFinding
	for _, p := range pairs {
		var other string
		switch {
		case strings.EqualFold(p.DrugA, drug):
			other = p.DrugB
		case strings.EqualFold(p.DrugB, drug):
			other = p.DrugA
		default:
			continue
		}
		out = append(out, rx.InteractionFinding{
			Tier:           p.Tier,
			InvolvedDrug:   other,
			Description:    p.Description,
			Severity:       p.Severity,
			Recommendation: p.Recommendation,
		})
	}
	return out
}

// DetermineSafetyFlag reduces a finding list to the candidate's flag: any
// tier-1 finding means RED, else any tier-2 means YELLOW, else GREEN.
func DetermineSafetyFlag(findings []rx.InteractionFinding) rx.SafetyVerdict {
	worst := rx.Tier(0)
	var worstDrug string
	for _, f := range findings {
		if worst == 0 || f.Tier < worst {
			worst = f.Tier
			worstDrug = f.InvolvedDrug
		}
	}
	switch worst {
	case rx.TierCritical:
		return rx.SafetyVerdict{
			Flag:      rx.FlagRed,
			Reasoning: fmt.Sprintf("Critical interaction with %s", worstDrug),
		}
	case rx.TierModerate:
		return rx.SafetyVerdict{
			Flag:      rx.FlagYellow,
			Reasoning: fmt.Sprintf("Moderate interaction with %s", worstDrug),
		}
	default:
		return rx.SafetyVerdict{Flag: rx.FlagGreen, Reasoning: "No significant interactions found"}
	}
}

// EnhancedCheck runs the food, age, and dosage checks for one candidate.
// Each category is independent; OverallSeverity is the worst across all of
// them and never escalates the interaction-derived flag.
func (a *Aggregator) EnhancedCheck(med *rx.MedicationCandidate, patient rx.PatientContext) rx.EnhancedSafetyReport {
	report := rx.EnhancedSafetyReport{OverallSeverity: rx.SeverityNone}
	drugKey := strings.ToLower(strings.TrimSpace(med.DrugName))

	if rule, ok := foodInteractions[drugKey]; ok {
		report.FoodInteractions = append(report.FoodInteractions, rx.InteractionFinding{
			Tier:           rx.TierMinor,
			InvolvedDrug:   med.DrugName,
			Description:    rule.description,
			Severity:       rule.severity,
			Recommendation: rule.recommendation,
		})
	}

	if patient.Age >= ElderlyAgeThreshold {
		if rule, ok := elderlyWarnings[drugKey]; ok {
			report.AgeWarnings = append(report.AgeWarnings, rx.AgeWarning{
				Category:       "elderly",
				Drug:           med.DrugName,
				Description:    rule.description,
				Severity:       rule.severity,
				Recommendation: rule.recommendation,
			})
		}
	}
	if patient.Age > 0 && patient.Age < PediatricAgeThreshold {
		if rule, ok := pediatricContraindications[drugKey]; ok {
			report.AgeWarnings = append(report.AgeWarnings, rx.AgeWarning{
				Category:       "pediatric",
				Drug:           med.DrugName,
				Description:    rule.description,
				Severity:       rule.severity,
				Recommendation: rule.recommendation,
			})
		}
	}

	if alert := checkDosage(med); alert != nil {
		report.DosageAlerts = append(report.DosageAlerts, *alert)
	}

	report.OverallSeverity = worstSeverity(report)
	return report
}

func worstSeverity(r rx.EnhancedSafetyReport) rx.Severity {
	worst := rx.SeverityNone
	bump := func(s rx.Severity) {
		if severityRank(s) > severityRank(worst) {
			worst = s
		}
	}
	for _, f := range r.FoodInteractions {
		bump(f.Severity)
	}
	for _, w := range r.AgeWarnings {
		bump(w.Severity)
	}
	for _, d := range r.DosageAlerts {
		bump(d.Severity)
	}
	return worst
}
