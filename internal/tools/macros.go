package tools

import (
	"context"
	"encoding/json"
	"math"
)

// activityMultipliers maps the 1 (sedentary) to 7 (very active) scale
// onto TDEE factors.
var activityMultipliers = map[int]float64{
	1: 1.0,
	2: 1.2,
	3: 1.375,
	4: 1.465,
	5: 1.55,
	6: 1.725,
	7: 1.9,
}

var goalAdjustments = map[string]float64{
	"maintain":    1.0,
	"mildlose":    0.90,
	"weightlose":  0.80,
	"extremelose": 0.70,
	"mildgain":    1.10,
	"weightgain":  1.20,
	"extremegain": 1.30,
}

type macroRatio struct {
	carbs, protein, fat float64
}

var macroProfiles = map[string]macroRatio{
	"balanced":    {carbs: 0.50, protein: 0.20, fat: 0.30},
	"lowfat":      {carbs: 0.60, protein: 0.25, fat: 0.15},
	"lowcarbs":    {carbs: 0.20, protein: 0.40, fat: 0.40},
	"highprotein": {carbs: 0.30, protein: 0.40, fat: 0.30},
}

func macrosTool() *Tool {
	return &Tool{
		Name:        "macros",
		Description: "Calculate daily calorie target (Mifflin-St Jeor BMR scaled by activity and goal) and gram breakdowns for the balanced, lowfat, lowcarbs and highprotein macro profiles.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"age": map[string]any{
					"type":        "integer",
					"description": "Age in years",
				},
				"gender": map[string]any{
					"type":        "string",
					"description": "Either male or female",
				},
				"height": map[string]any{
					"type":        "number",
					"description": "Height in centimeters",
				},
				"weight": map[string]any{
					"type":        "number",
					"description": "Weight in kilograms",
				},
				"activity_level": map[string]any{
					"type":        "integer",
					"description": "Activity level from 1 (sedentary) to 7 (very active)",
				},
				"goal": map[string]any{
					"type":        "string",
					"description": "One of maintain, mildlose, weightlose, extremelose, mildgain, weightgain, extremegain",
				},
			},
			"required": []string{"age", "gender", "height", "weight", "activity_level", "goal"},
		},
		Handler: handleMacros,
	}
}

func handleMacros(_ context.Context, args map[string]any) (string, error) {
	age, err := numberInRange(args, "age", 10, 120)
	if err != nil {
		return "", err
	}
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
	weight, err := numberInRange(args, "weight", 1, 700)
	if err != nil {
		return "", err
	}
	level, err := numberInRange(args, "activity_level", 1, 7)
	if err != nil {
		return "", err
	}
	if level != math.Trunc(level) {
		return "", &ValidationError{Field: "activity_level", Message: "must be a whole number from 1 to 7"}
	}
	goal, err := stringArg(args, "goal")
	if err != nil {
		return "", err
	}
	adjustment, ok := goalAdjustments[goal]
	if !ok {
		return "", &ValidationError{Field: "goal", Message: "unknown goal " + goal}
	}

	bmr := 10*weight + 6.25*height - 5*age + 5
	if gender == "female" {
		bmr = 10*weight + 6.25*height - 5*age - 161
	}
	tdee := bmr * activityMultipliers[int(level)]
	target := tdee * adjustment

	result := map[string]any{"calories": math.Round(target)}
	for name, ratio := range macroProfiles {
		result[name] = map[string]float64{
			"carbs":   math.Round(target * ratio.carbs / 4),
			"protein": math.Round(target * ratio.protein / 4),
			"fat":     math.Round(target * ratio.fat / 9),
		}
	}
	out, _ := json.Marshal(result)
	return string(out), nil
}
