package tools

import (
	"context"
	"encoding/json"
	"math"
)

func idealWeightTool() *Tool {
	return &Tool{
		Name:        "idealweight",
		Description: "Calculate ideal body weight in kilograms from height and gender using the Devine formula.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"height": map[string]any{
					"type":        "number",
					"description": "Height in centimeters",
				},
				"gender": map[string]any{
					"type":        "string",
					"description": "Either male or female",
				},
			},
			"required": []string{"height", "gender"},
		},
		Handler: handleIdealWeight,
	}
}

func handleIdealWeight(_ context.Context, args map[string]any) (string, error) {
	gender, err := stringArg(args, "gender")
	if err != nil {
		return "", err
	}
	if err := oneOf("gender", gender, "male", "female"); err != nil {
		return "", err
	}
	heightCm, err := numberInRange(args, "height", 130, 230)
	if err != nil {
		return "", err
	}

	heightIn := heightCm / 2.54
	base := 50.0
	if gender == "female" {
		base = 45.5
	}
	ideal := base + 2.3*(heightIn-60)

	out, _ := json.Marshal(map[string]any{
		"ideal_weight_kg": math.Round(ideal*10) / 10,
		"formula":         "Devine",
	})
	return string(out), nil
}
