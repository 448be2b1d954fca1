// Package nutrition holds the domain model shared by the extraction
// pipeline and the meal tracker: food entries as spoken, their persisted
// form, meal groups, and daily goals.
package nutrition

import (
	"time"
	"unicode/utf8"
)

// TranscriptLimit bounds the transcript snippet stored on a meal group.
const TranscriptLimit = 120

// FoodEntry is one food or drink mention extracted from an utterance.
// Fiber and Micronutrients are optional in the tool-call payload and
// default to 0 / empty.
type FoodEntry struct {
	Name           string  `json:"name"`
	Quantity       string  `json:"quantity"`
	Calories       float64 `json:"calories"`
	Protein        float64 `json:"protein"`
	Carbs          float64 `json:"carbs"`
	Fat            float64 `json:"fat"`
	Fiber          float64 `json:"fiber"`
	Micronutrients string  `json:"micronutrients,omitempty"`
}

// FoodItem is the persisted form of a FoodEntry, bound to a meal.
type FoodItem struct {
	FoodEntry
	ID       string    `json:"id"`
	MealID   string    `json:"mealId"`
	LoggedAt time.Time `json:"loggedAt"`
}

// MealGroup collects the items logged in one recording session.
// Pending marks a meal whose extraction has not finished yet.
type MealGroup struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	CreatedAt  time.Time `json:"createdAt"`
	Transcript string    `json:"transcript,omitempty"`
	Pending    bool      `json:"pending,omitempty"`
}

// Goals is the single per-user nutrition targets record.
type Goals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
}

// Snippet truncates a transcript to TranscriptLimit runes.
func Snippet(s string) string {
	if utf8.RuneCountInString(s) <= TranscriptLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:TranscriptLimit])
}
