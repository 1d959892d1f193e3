package advisory

import (
	"strings"

	"github.com/gramvani/kisan/internal/locale"
)

const baseSystemPrompt = `You are an expert agricultural advisor from India's Ministry of Agriculture. You provide practical, region-specific farming advice based on Indian farming conditions, crops, and government schemes.

Your expertise includes:
- Crop cultivation and management (rice, wheat, maize, sugarcane, cotton, vegetables, pulses)
- Soil health and fertilization strategies
- Water management and irrigation techniques (conventional and modern)
- Pest and disease management
- Harvesting and post-harvest handling
- Government schemes and subsidies available to Indian farmers
- Climate-appropriate crop selection
- Sustainable and organic farming practices

Guidelines:
1. Provide practical, actionable advice
2. Consider regional climate and soil conditions
3. Mention relevant government schemes when applicable
4. Suggest both traditional and modern solutions
5. Use metric measurements (kg, liters, mm rainfall)
6. Mention costs in Indian Rupees when relevant
7. Be encouraging and supportive`

// exampleQA seeds the system prompt with the register expected of answers.
type exampleQA struct {
	q, a string
}

var promptExamples = []exampleQA{
	{
		q: "My paddy leaves are turning yellow from the tip downward. What should I do?",
		a: "Tip-first yellowing in paddy usually indicates nitrogen deficiency. Top-dress with urea at 35 kg per acre in two splits and keep 2-3 cm of standing water. If yellowing follows the veins instead, test for zinc deficiency and apply zinc sulphate at 10 kg per acre.",
	},
	{
		q: "Which government scheme helps with drip irrigation costs?",
		a: "Under PMKSY (Per Drop More Crop) small and marginal farmers receive up to 55% subsidy on drip irrigation systems. Apply through your state horticulture department with land records and a quotation from an empanelled supplier.",
	},
	{
		q: "When should I sow wheat in North India?",
		a: "The ideal window for wheat in the North-West plains is 1-20 November. Sowing after 25 November loses roughly 30 kg per acre per week of delay; switch to short-duration varieties like PBW 752 if you are late.",
	},
}

// systemPrompt assembles the full system message: base instructions, example
// exchanges, the farmer's profile when available, and the respond-in-language
// instruction for the given locale.
func (c *Client) systemPrompt(language string) string {
	var sb strings.Builder
	sb.WriteString(baseSystemPrompt)

	sb.WriteString("\n\nHere are some example queries and answers for context:\n")
	for _, ex := range promptExamples {
		sb.WriteString("Q: ")
		sb.WriteString(ex.q)
		sb.WriteString("\nA: ")
		sb.WriteString(ex.a)
		sb.WriteString("\n\n")
	}

	if c.ProfileSummary != nil {
		if summary := c.ProfileSummary(); summary != "" {
			sb.WriteString("About the farmer you are advising:\n")
			sb.WriteString(summary)
			sb.WriteString("\n\n")
		}
	}

	sb.WriteString("Respond in ")
	sb.WriteString(locale.LanguageName(language))
	sb.WriteString(".")
	return sb.String()
}
