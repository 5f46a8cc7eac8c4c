// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"fmt"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	External    bool           `json:"-"` // true when the handler calls a provider
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// MealPlanner generates a day of meals for a calorie target.
type MealPlanner interface {
	GenerateMealPlan(ctx context.Context, req MealPlanRequest) (string, error)
}

// NutritionLookup resolves a food query to its composition.
type NutritionLookup interface {
	Lookup(ctx context.Context, query string) (string, error)
}

// MealPlanRequest mirrors the recipe provider contract without
// importing it, so pure-computation builds and tests need no gateway.
type MealPlanRequest struct {
	TargetCalories int
	Diet           string
	Allergies      []string
}

// Registry holds available tools. Read-only after construction.
type Registry struct {
	tools     map[string]*Tool
	names     []string
	planner   MealPlanner
	nutrition NutritionLookup
}

// NewRegistry creates a registry with the computational tools plus,
// when the collaborators are non-nil, the provider-backed ones.
func NewRegistry(planner MealPlanner, nutrition NutritionLookup) *Registry {
	r := &Registry{
		tools:     make(map[string]*Tool),
		planner:   planner,
		nutrition: nutrition,
	}
	r.Register(bmiTool())
	r.Register(bodyFatTool())
	r.Register(idealWeightTool())
	r.Register(macrosTool())
	if planner != nil {
		r.Register(r.mealPlanTool())
	}
	if nutrition != nil {
		r.Register(r.nutritionTool())
	}
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	if _, dup := r.tools[t.Name]; !dup {
		r.names = append(r.names, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tools in registration order, shaped for the LLM.
func (r *Registry) List() []map[string]any {
	result := make([]map[string]any, 0, len(r.names))
	for _, name := range r.names {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute validates the arguments against the tool's schema and runs
// the handler. Unknown tool names are a validation failure, not a
// dispatch attempt.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ValidationError{Field: "tool_name", Message: fmt.Sprintf("unknown tool %q", name)}
	}
	if err := validateSchema(tool.Parameters, args); err != nil {
		return "", err
	}
	return tool.Handler(ctx, args)
}
