package tools

import (
	"context"
	"encoding/json"
	"math"
)

func bodyFatTool() *Tool {
	return &Tool{
		Name:        "bodyfat",
		Description: "Estimate body fat percentage from circumference measurements using the US Navy method. All measurements in centimeters. Hip is required for females.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"gender": map[string]any{
					"type":        "string",
					"description": "Either male or female",
				},
				"height": map[string]any{
					"type":        "number",
					"description": "Height in centimeters",
				},
				"neck": map[string]any{
					"type":        "number",
					"description": "Neck circumference in centimeters",
				},
				"waist": map[string]any{
					"type":        "number",
					"description": "Waist circumference in centimeters",
				},
				"hip": map[string]any{
					"type":        "number",
					"description": "Hip circumference in centimeters (females only)",
				},
			},
			"required": []string{"gender", "height", "neck", "waist"},
		},
		Handler: handleBodyFat,
	}
}

func handleBodyFat(_ context.Context, args map[string]any) (string, error) {
	gender, err := stringArg(args, "gender")
	if err != nil {
		return "", err
	}
	if err := oneOf("gender", gender, "male", "female"); err != nil {
		return "", err
	}
	height, err := numberInRange(args, "height", 100, 250)
	if err != nil {
		return "", err
	}
	neck, err := numberInRange(args, "neck", 20, 80)
	if err != nil {
		return "", err
	}
	waist, err := numberInRange(args, "waist", 40, 200)
	if err != nil {
		return "", err
	}

	var pct float64
	switch gender {
	case "male":
		if waist <= neck {
			return "", &ValidationError{Field: "waist", Message: "waist must exceed neck circumference"}
		}
		pct = 86.010*math.Log10(waist-neck) - 70.041*math.Log10(height) + 36.76
	default:
		hip, err := numberInRange(args, "hip", 50, 200)
		if err != nil {
			return "", err
		}
		if waist+hip <= neck {
			return "", &ValidationError{Field: "hip", Message: "waist plus hip must exceed neck circumference"}
		}
		pct = 163.205*math.Log10(waist+hip-neck) - 97.684*math.Log10(height) - 78.387
	}

	out, _ := json.Marshal(map[string]any{
		"body_fat_percent": round2(pct),
		"method":           "US Navy",
	})
	return string(out), nil
}
