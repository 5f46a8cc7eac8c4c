package tools

import (
	"context"
	"strings"
)

func (r *Registry) mealPlanTool() *Tool {
	return &Tool{
		Name:        "mealplan",
		Description: "Generate a full-day meal plan from the recipe provider, honoring a dietary style, excluded ingredients, and a daily calorie target.",
		External:    true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target_calories": map[string]any{
					"type":        "integer",
					"description": "Target calorie intake for the day",
				},
				"diet": map[string]any{
					"type":        "string",
					"description": "Optional dietary style, e.g. vegetarian, vegan, ketogenic, paleo",
				},
				"allergies": map[string]any{
					"type":        "array",
					"description": "Ingredients to exclude, e.g. peanut, shellfish",
				},
			},
			"required": []string{"target_calories"},
		},
		Handler: r.handleMealPlan,
	}
}

func (r *Registry) handleMealPlan(ctx context.Context, args map[string]any) (string, error) {
	calories, err := numberInRange(args, "target_calories", 500, 10000)
	if err != nil {
		return "", err
	}

	req := MealPlanRequest{
		TargetCalories: int(calories),
		Diet:           strings.ToLower(optionalString(args, "diet", "")),
	}
	if raw, ok := args["allergies"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok && s != "" {
				req.Allergies = append(req.Allergies, s)
			}
		}
	}

	return r.planner.GenerateMealPlan(ctx, req)
}

func (r *Registry) nutritionTool() *Tool {
	return &Tool{
		Name:        "nutrition",
		Description: "Look up nutrition facts for a food item: calories, protein, fat, carbs, and notable micronutrients.",
		External:    true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"food": map[string]any{
					"type":        "string",
					"description": "Name of the food, e.g. banana, boiled egg, almonds",
				},
			},
			"required": []string{"food"},
		},
		Handler: r.handleNutrition,
	}
}

func (r *Registry) handleNutrition(ctx context.Context, args map[string]any) (string, error) {
	food, err := stringArg(args, "food")
	if err != nil {
		return "", err
	}
	food = strings.TrimSpace(food)
	if food == "" {
		return "", &ValidationError{Field: "food", Message: "must not be empty"}
	}
	return r.nutrition.Lookup(ctx, food)
}
