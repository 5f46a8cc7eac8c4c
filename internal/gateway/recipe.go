package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const recipeProvider = "recipe"

// MealPlanRequest describes one day of meals to generate.
type MealPlanRequest struct {
	TargetCalories int
	Diet           string   // e.g. "vegetarian", "ketogenic"
	Allergies      []string // excluded ingredients
}

// Meal is a single planned meal.
type Meal struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Minutes  int    `json:"readyInMinutes"`
	Servings int    `json:"servings"`
	URL      string `json:"sourceUrl"`
}

// MealPlan is the generated day.
type MealPlan struct {
	Meals     []Meal `json:"meals"`
	Nutrients struct {
		Calories float64 `json:"calories"`
		Protein  float64 `json:"protein"`
		Fat      float64 `json:"fat"`
		Carbs    float64 `json:"carbohydrates"`
	} `json:"nutrients"`
}

// RecipeClient generates meal plans via the recipe provider's
// day-planner endpoint.
type RecipeClient struct {
	caller  *Caller
	baseURL string
	apiKey  string
}

func NewRecipeClient(caller *Caller, baseURL, apiKey string) *RecipeClient {
	return &RecipeClient{
		caller:  caller,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
	}
}

func (c *RecipeClient) GenerateMealPlan(ctx context.Context, req MealPlanRequest) (*MealPlan, error) {
	q := url.Values{}
	q.Set("timeFrame", "day")
	if req.TargetCalories > 0 {
		q.Set("targetCalories", strconv.Itoa(req.TargetCalories))
	}
	if req.Diet != "" {
		q.Set("diet", req.Diet)
	}
	if len(req.Allergies) > 0 {
		q.Set("exclude", strings.Join(req.Allergies, ","))
	}
	if c.apiKey != "" {
		q.Set("apiKey", c.apiKey)
	}

	body, err := c.caller.Get(ctx, recipeProvider, c.baseURL+"/mealplanner/generate?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var plan MealPlan
	if err := json.Unmarshal(body, &plan); err != nil {
		return nil, fmt.Errorf("decode meal plan: %w", err)
	}
	return &plan, nil
}
