package llm

import "PerspectiveLens/internal/domain"

// Gemini structured output uses the OpenAPI subset with upper-case type names.
// Word limits are advisory and only reach the model through descriptions.

func stringField(description string) map[string]any {
	return map[string]any{"type": "STRING", "description": description}
}

func sourceList(description string) map[string]any {
	return map[string]any{
		"type":        "ARRAY",
		"description": description,
		"items":       map[string]any{"type": "STRING"},
	}
}

func object(properties map[string]any, order ...string) map[string]any {
	return map[string]any{
		"type":             "OBJECT",
		"properties":       properties,
		"required":         order,
		"propertyOrdering": order,
	}
}

func arrayOf(item map[string]any, maxItems int, description string) map[string]any {
	return map[string]any{
		"type":        "ARRAY",
		"description": description,
		"maxItems":    maxItems,
		"items":       item,
	}
}

// ResponseSchema returns the structured-output schema for a stage, or nil for
// an unknown stage.
func ResponseSchema(stage domain.StageID) map[string]any {
	switch stage {
	case domain.StageContextTrust:
		return object(map[string]any{
			"story_summary": stringField("What happened, at most 25 words."),
			"trust_signal": map[string]any{
				"type": "STRING",
				"enum": []string{
					string(domain.TrustHighAgreement),
					string(domain.TrustSomeConflicts),
					string(domain.TrustMajorDisputes),
				},
			},
			"reader_action": stringField("Suggested next step for the reader, at most 20 words."),
		}, "story_summary", "trust_signal", "reader_action")

	case domain.StageConsensus:
		fact := object(map[string]any{
			"fact":    stringField("Agreed fact, at most 30 words."),
			"sources": sourceList("Outlets stating the fact."),
		}, "fact", "sources")
		return object(map[string]any{
			"consensus": arrayOf(fact, 4, "Facts the outlets agree on."),
		}, "consensus")

	case domain.StageDisputes:
		dispute := object(map[string]any{
			"what":      stringField("Disputed point, at most 8 words."),
			"claim_a":   stringField("First claim, at most 25 words."),
			"claim_b":   stringField("Contradicting claim, at most 25 words."),
			"sources_a": sourceList("Outlets behind claim_a."),
			"sources_b": sourceList("Outlets behind claim_b."),
		}, "what", "claim_a", "claim_b", "sources_a", "sources_b")
		return object(map[string]any{
			"factual_disputes": arrayOf(dispute, 3, "Contradicting factual claims; empty when outlets agree."),
		}, "factual_disputes")

	case domain.StagePerspectives:
		angle := object(map[string]any{
			"angle":          stringField("Dimension of difference, at most 5 words."),
			"group1":         stringField("First framing, at most 15 words."),
			"group1_sources": sourceList("Outlets using the first framing."),
			"group2":         stringField("Second framing, at most 15 words."),
			"group2_sources": sourceList("Outlets using the second framing."),
		}, "angle", "group1", "group1_sources", "group2", "group2_sources")
		return object(map[string]any{
			"coverage_angles": arrayOf(angle, 3, "Framing differences between outlet groups."),
		}, "coverage_angles")
	}
	return nil
}
