// Package extractor defines the wire contract between the recording
// client and the extraction endpoint, and the HTTP client that submits
// finalized recordings. One request per finalized recording; retry
// responsibility lives server-side where the upstream credential is.
package extractor

import (
	"errors"

	"nosh/nutrition"
)

// MinPayloadBytes is the smallest decoded PCM payload the endpoint
// accepts. Anything shorter is a near-silent or empty recording and is
// rejected before an upstream call is spent.
const MinPayloadBytes = 1000

// Supported language hints for the extraction instruction.
const (
	LangEnglish    = "en-US"
	LangPortuguese = "pt-BR"
)

// SupportedLanguage reports whether lang is an accepted hint value.
func SupportedLanguage(lang string) bool {
	return lang == LangEnglish || lang == LangPortuguese
}

// Request is the JSON body posted to the extraction endpoint.
type Request struct {
	AudioBase64       string `json:"audioBase64"`
	PreferredLanguage string `json:"preferredLanguage,omitempty"`
}

// Result is the endpoint's success response. Foods preserves the order
// of the model's tool calls and may be empty for food-free utterances.
type Result struct {
	Transcription string                `json:"transcription"`
	Foods         []nutrition.FoodEntry `json:"foods"`
}

// ErrorBody is the endpoint's error response shape.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Errors mapped from endpoint status codes. Owned here so both the
// client and its callers can branch with errors.Is.
var (
	ErrTooShort     = errors.New("audio payload too short")
	ErrRateLimited  = errors.New("extraction quota exceeded")
	ErrOverloaded   = errors.New("extraction model overloaded")
	ErrUpstreamAuth = errors.New("extraction service misconfigured")
	ErrUpstream     = errors.New("extraction service error")
)
