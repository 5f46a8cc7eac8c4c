package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const nutritionProvider = "nutrition"

// Micronutrient is one named nutrient amount from a food record.
type Micronutrient struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}

// FoodNutrition is the per-serving composition of a matched food.
type FoodNutrition struct {
	Description    string          `json:"description"`
	Calories       float64         `json:"calories"`
	Protein        float64         `json:"protein"`
	Fat            float64         `json:"fat"`
	Carbs          float64         `json:"carbs"`
	Micronutrients []Micronutrient `json:"micronutrients"`
}

// NutritionClient looks up food composition via the nutrition
// provider. Lookup is two calls: a search resolves the query to a
// food record ID, then the detail endpoint supplies the full
// nutrient report.
type NutritionClient struct {
	caller  *Caller
	baseURL string
	apiKey  string
}

func NewNutritionClient(caller *Caller, baseURL, apiKey string) *NutritionClient {
	return &NutritionClient{
		caller:  caller,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// wire shapes for the provider's search and detail responses

type foodSearchResponse struct {
	Foods []struct {
		FdcID       int64  `json:"fdcId"`
		Description string `json:"description"`
	} `json:"foods"`
}

type foodDetailResponse struct {
	Description   string `json:"description"`
	FoodNutrients []struct {
		Nutrient struct {
			Name     string `json:"name"`
			UnitName string `json:"unitName"`
		} `json:"nutrient"`
		Amount float64 `json:"amount"`
	} `json:"foodNutrients"`
}

// Lookup returns the composition of the best match for query.
func (c *NutritionClient) Lookup(ctx context.Context, query string) (*FoodNutrition, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("pageSize", "1")
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}

	body, err := c.caller.Get(ctx, nutritionProvider, c.baseURL+"/v1/foods/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var search foodSearchResponse
	if err := json.Unmarshal(body, &search); err != nil {
		return nil, fmt.Errorf("decode food search: %w", err)
	}
	if len(search.Foods) == 0 {
		return nil, fmt.Errorf("no food matched %q", query)
	}

	dq := url.Values{}
	if c.apiKey != "" {
		dq.Set("api_key", c.apiKey)
	}
	detailURL := fmt.Sprintf("%s/v1/food/%d?%s", c.baseURL, search.Foods[0].FdcID, dq.Encode())
	body, err = c.caller.Get(ctx, nutritionProvider, detailURL, nil)
	if err != nil {
		return nil, err
	}

	var detail foodDetailResponse
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("decode food detail: %w", err)
	}

	out := &FoodNutrition{Description: detail.Description}
	if out.Description == "" {
		out.Description = search.Foods[0].Description
	}
	for _, n := range detail.FoodNutrients {
		switch strings.ToLower(n.Nutrient.Name) {
		case "energy":
			out.Calories = n.Amount
		case "protein":
			out.Protein = n.Amount
		case "total lipid (fat)":
			out.Fat = n.Amount
		case "carbohydrate, by difference":
			out.Carbs = n.Amount
		default:
			out.Micronutrients = append(out.Micronutrients, Micronutrient{
				Name:   n.Nutrient.Name,
				Amount: n.Amount,
				Unit:   n.Nutrient.UnitName,
			})
		}
	}
	return out, nil
}
