package tools

import (
	"context"
	"encoding/json"
	"math"
)

func bmiTool() *Tool {
	return &Tool{
		Name:        "bmi",
		Description: "Calculate Body Mass Index and its category. Metric units take weight in kilograms and height in meters; imperial units take pounds and inches.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"weight": map[string]any{
					"type":        "number",
					"description": "Body weight (kg for metric, lb for imperial)",
				},
				"height": map[string]any{
					"type":        "number",
					"description": "Height (m for metric, in for imperial)",
				},
				"units": map[string]any{
					"type":        "string",
					"description": "Unit system: metric (default) or imperial",
				},
			},
			"required": []string{"weight", "height"},
		},
		Handler: handleBMI,
	}
}

func handleBMI(_ context.Context, args map[string]any) (string, error) {
	units := optionalString(args, "units", "metric")
	if err := oneOf("units", units, "metric", "imperial"); err != nil {
		return "", err
	}

	var bmi float64
	switch units {
	case "imperial":
		weight, err := numberInRange(args, "weight", 2, 1500)
		if err != nil {
			return "", err
		}
		height, err := numberInRange(args, "height", 12, 110)
		if err != nil {
			return "", err
		}
		bmi = 703 * weight / (height * height)
	default:
		weight, err := numberInRange(args, "weight", 1, 700)
		if err != nil {
			return "", err
		}
		height, err := numberInRange(args, "height", 0.3, 2.8)
		if err != nil {
			return "", err
		}
		bmi = weight / (height * height)
	}

	out, _ := json.Marshal(map[string]any{
		"bmi":      round2(bmi),
		"category": bmiCategory(bmi),
	})
	return string(out), nil
}

// bmiCategory maps a BMI value to the standard WHO bands.
func bmiCategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "Underweight"
	case bmi < 25:
		return "Normal"
	case bmi < 30:
		return "Overweight"
	default:
		return "Obese"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
