package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fitstack/coach/internal/gateway"
)

// GatewayPlanner adapts the recipe gateway client to the MealPlanner
// contract, rendering the plan as JSON for the model.
type GatewayPlanner struct {
	Client *gateway.RecipeClient
}

func (p GatewayPlanner) GenerateMealPlan(ctx context.Context, req MealPlanRequest) (string, error) {
	plan, err := p.Client.GenerateMealPlan(ctx, gateway.MealPlanRequest{
		TargetCalories: req.TargetCalories,
		Diet:           req.Diet,
		Allergies:      req.Allergies,
	})
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("encode meal plan: %w", err)
	}
	return string(out), nil
}

// GatewayNutrition adapts the nutrition gateway client to the
// NutritionLookup contract.
type GatewayNutrition struct {
	Client *gateway.NutritionClient
}

func (n GatewayNutrition) Lookup(ctx context.Context, query string) (string, error) {
	food, err := n.Client.Lookup(ctx, query)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(food)
	if err != nil {
		return "", fmt.Errorf("encode nutrition: %w", err)
	}
	return string(out), nil
}
