// ABOUTME: Built-in scorecard templates and heuristic answer pools
// ABOUTME: Templates are loaded by name; questions are ordered and weighted
package scorecard

import (
	"fmt"

	"github.com/harperreed/demogen/models"
)

var templates = map[string]models.ScorecardTemplate{
	"MEDDICC": {
		Name: "MEDDICC",
		Questions: []models.Question{
			{ID: "metrics", Category: "Metrics", Weight: 1,
				Prompt: "What are the quantifiable business metrics the customer cares about?"},
			{ID: "economic_buyer", Category: "Economic Buyer", Weight: 1,
				Prompt: "Who is the economic buyer with budget authority?"},
			{ID: "decision_criteria", Category: "Decision Criteria", Weight: 1,
				Prompt: "What are the formal decision criteria being used?"},
			{ID: "decision_process", Category: "Decision Process", Weight: 1,
				Prompt: "What is the decision process and timeline?"},
			{ID: "identify_pain", Category: "Identify Pain", Weight: 1,
				Prompt: "What is the critical business pain being addressed?"},
			{ID: "champion", Category: "Champion", Weight: 1,
				Prompt: "Who is our champion and how are they helping us?"},
			{ID: "competition", Category: "Competition", Weight: 1,
				Prompt: "What competitive alternatives are being considered?"},
		},
	},
	"BANT": {
		Name: "BANT",
		Questions: []models.Question{
			{ID: "budget", Category: "Budget", Weight: 1,
				Prompt: "Is budget identified and approved for this purchase?"},
			{ID: "authority", Category: "Authority", Weight: 1,
				Prompt: "Who has the authority to sign off on this deal?"},
			{ID: "need", Category: "Need", Weight: 1,
				Prompt: "What concrete need does this solve for the customer?"},
			{ID: "timeline", Category: "Timeline", Weight: 1,
				Prompt: "What is the timeline for a purchase decision?"},
		},
	},
}

// Template returns the named built-in template.
func Template(name string) (models.ScorecardTemplate, error) {
	tpl, ok := templates[name]
	if !ok {
		return models.ScorecardTemplate{}, fmt.Errorf("scorecard: unknown template %q", name)
	}
	return tpl, nil
}

// TemplateNames lists the built-in templates.
func TemplateNames() []string {
	return []string{"MEDDICC", "BANT"}
}

var heuristicAnswers = map[string][]string{
	"Metrics": {
		"Reduce operational costs by 30%",
		"Improve sales efficiency by 25%",
		"Increase revenue by $2M annually",
	},
	"Economic Buyer": {
		"VP of Sales - confirmed budget authority",
		"CFO - final approval on investments >$100k",
		"Chief Revenue Officer - owns this initiative",
	},
	"Decision Criteria": {
		"ROI >200%, implementation <90 days, enterprise security",
		"Must integrate with existing CRM, scalable to 500+ users",
		"TCO, deployment speed, vendor stability",
	},
	"Decision Process": {
		"Eval complete by Q4, board approval in Dec, go-live Q1",
		"30-day trial, vendor selection by month-end, Q1 implementation",
		"Technical review (2 weeks), procurement (3 weeks), deploy Q4",
	},
	"Identify Pain": {
		"Manual processes costing 20 hours/week per rep",
		"Lack of visibility into pipeline causing missed forecasts",
		"Data scattered across 5 systems, no single source of truth",
	},
	"Champion": {
		"Sales Operations Director - driving evaluation, has executive access",
		"VP Sales - used our solution in prev role, advocating internally",
		"Head of RevOps - aligned on vision, coaching us on internal politics",
	},
	"Competition": {
		"Evaluating Status Quo, Competitor A (concerns: price), Competitor B (concerns: complexity)",
		"Competitor A (incumbent, but lacks key features), Build in-house (rejected due to timeline)",
		"Only alternative is status quo - no other vendors in final consideration",
	},
	"Budget": {
		"Budget line approved in this fiscal year's tooling allocation",
		"Funding contingent on CFO sign-off, expected within 30 days",
		"Reallocating spend from a retiring legacy contract",
	},
	"Authority": {
		"VP of Sales signs below $250k, CFO above",
		"Procurement executes, economic buyer is the CRO",
		"Department head has delegated authority for this category",
	},
	"Need": {
		"Pipeline reviews consume a full day per week of manager time",
		"Forecast accuracy below 60% is blocking board commitments",
		"Rep onboarding takes 4 months without guided workflows",
	},
	"Timeline": {
		"Decision targeted for end of quarter, go-live next quarter",
		"Contract must be signed before the fiscal year closes",
		"Pilot this month, rollout decision within 60 days",
	},
}

const fallbackAnswer = "Information being gathered"
