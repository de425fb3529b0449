package domain

import (
	"context"
	"encoding/json"
)

// AnalysisRequest is the JSON body POSTed to the analysis service.
// Exactly one of ImageURL and ImageBase64 is set.
type AnalysisRequest struct {
	ImageURL    string `json:"imageUrl,omitempty" validate:"required_without=ImageBase64,excluded_with=ImageBase64"`
	ImageBase64 string `json:"imageBase64,omitempty" validate:"required_without=ImageURL"`
	UserName    string `json:"userName" validate:"required"`
	UserEmail   string `json:"userEmail" validate:"required"`
}

// FoodItem is one recognised food. Numbers are kept in the literal form
// the service sent so they can be echoed without reformatting.
type FoodItem struct {
	Name     string      `json:"name"`
	Portion  string      `json:"portion"`
	Calories json.Number `json:"calories"`
	Protein  json.Number `json:"protein"`
	Carbs    json.Number `json:"carbs"`
	Fat      json.Number `json:"fat"`
}

// Totals are the service-computed aggregates. The relay never recomputes them.
type Totals struct {
	Calories json.Number `json:"total_calories"`
	Protein  json.Number `json:"total_protein"`
	Carbs    json.Number `json:"total_carbs"`
	Fat      json.Number `json:"total_fat"`
}

type AnalysisResult struct {
	Foods []FoodItem `json:"foods"`
	Totals
}

//go:generate go run go.uber.org/mock/mockgen -destination=../mocks/mock_domain.go -package=mocks foodrelay/internal/domain Analyzer,Dispatcher

// Analyzer sends one request to the analysis service. Implementations
// must not retry.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
}
