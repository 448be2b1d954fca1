// Package endpoint implements the audio extraction endpoint: it is the
// only component holding the upstream credential. It validates the posted
// payload, reframes the PCM as WAV, runs one multimodal generation call
// with the log_food tool, and normalizes the model's output into the
// stable response shape the client parses.
package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"

	"nosh/encoder"
	"nosh/extractor"
	"nosh/log"
	"nosh/nutrition"
)

const (
	toolName        = "log_food"
	maxBodyBytes    = 32 << 20
	maxDetailLength = 300

	defaultMaxRetries = 2
	defaultRetryDelay = 2 * time.Second
)

// FuncCall is a tool invocation emitted by the model.
type FuncCall struct {
	Name string
	Args json.RawMessage
}

// Part is one piece of model output: free text or a tool call.
type Part struct {
	Text string
	Call *FuncCall
}

// Generator runs one upstream multimodal generation call over a WAV
// payload and returns the raw output parts.
type Generator interface {
	Generate(ctx context.Context, wav []byte, language string) ([]Part, error)
}

// Config bounds the retry behavior on transient upstream failures. The
// counts are configuration, not constants, because the fixed-delay policy
// is unproven under sustained throttling.
type Config struct {
	MaxRetries int           // extra attempts after the first call
	RetryDelay time.Duration // fixed delay between attempts
}

// Handler serves extraction requests.
type Handler struct {
	gen   Generator
	cfg   Config
	sleep func(time.Duration)
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithSleeper overrides how retry delays are performed (used in tests).
func WithSleeper(fn func(time.Duration)) HandlerOption {
	return func(h *Handler) { h.sleep = fn }
}

func NewHandler(gen Generator, cfg Config, opts ...HandlerOption) *Handler {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	h := &Handler{gen: gen, cfg: cfg, sleep: time.Sleep}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req extractor.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", truncate(err.Error()))
		return
	}
	if req.AudioBase64 == "" {
		writeError(w, http.StatusBadRequest, "Missing audio payload", "")
		return
	}

	pcm, err := encoder.DecodeTransport(req.AudioBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid audio encoding", truncate(err.Error()))
		return
	}
	if len(pcm) < extractor.MinPayloadBytes {
		writeError(w, http.StatusBadRequest, "Audio too short", "")
		return
	}

	wav := encoder.WAVFromBytes(pcm)

	parts, err := h.generateWithRetry(r.Context(), wav, req.PreferredLanguage)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}

	result := normalize(parts)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Errorf("encode extraction response: %v", err)
	}
}

// generateWithRetry retries only on transient upstream statuses (429 and
// 503) up to the configured extra attempts, with a fixed delay between
// attempts. Everything else is terminal on the first occurrence.
func (h *Handler) generateWithRetry(ctx context.Context, wav []byte, lang string) ([]Part, error) {
	attempts := h.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		parts, err := h.gen.Generate(ctx, wav, lang)
		if err == nil {
			return parts, nil
		}
		lastErr = err

		status := upstreamStatus(err)
		if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
			return nil, err
		}
		if attempt < attempts {
			log.Warnf("upstream %d, retrying (%d/%d)", status, attempt, attempts-1)
			h.sleep(h.cfg.RetryDelay)
		}
	}
	return nil, lastErr
}

func (h *Handler) writeUpstreamError(w http.ResponseWriter, err error) {
	detail := truncate(err.Error())
	switch upstreamStatus(err) {
	case http.StatusTooManyRequests:
		writeError(w, http.StatusTooManyRequests, "Quota exceeded", detail)
	case http.StatusServiceUnavailable:
		writeError(w, http.StatusServiceUnavailable, "Model overloaded", detail)
	case http.StatusUnauthorized:
		writeError(w, http.StatusBadGateway, "Invalid API key", detail)
	default:
		writeError(w, http.StatusBadGateway, "Upstream API error", detail)
	}
}

// upstreamStatus extracts the HTTP status of an upstream API error, or 0
// when the error carries none.
func upstreamStatus(err error) int {
	var gax *apierror.APIError
	if errors.As(err, &gax) {
		err = gax.Unwrap()
	}
	var api genai.APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return 0
}

// normalize scans the model's output parts: the last plain-text part wins
// as the transcription, each log_food call becomes a FoodEntry. Malformed
// entries are dropped, never fatal; zero tool calls is a valid food-free
// result.
func normalize(parts []Part) extractor.Result {
	result := extractor.Result{Foods: []nutrition.FoodEntry{}}
	for _, p := range parts {
		if p.Text != "" {
			result.Transcription = p.Text
		}
		if p.Call == nil || p.Call.Name != toolName {
			continue
		}
		var entry nutrition.FoodEntry
		if err := unmarshalRepair(p.Call.Args, &entry); err != nil {
			log.Warnf("drop malformed %s call: %v", toolName, err)
			continue
		}
		if strings.TrimSpace(entry.Name) == "" {
			continue
		}
		result.Foods = append(result.Foods, entry)
	}
	return result
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(extractor.ErrorBody{Error: msg, Details: details})
}

func truncate(s string) string {
	if len(s) > maxDetailLength {
		return s[:maxDetailLength]
	}
	return s
}

var languageHints = map[string]string{
	extractor.LangEnglish:    "The speaker is most likely using English.",
	extractor.LangPortuguese: "The speaker may be using Portuguese.",
}

func instruction(lang string) string {
	hint, ok := languageHints[lang]
	if !ok {
		hint = languageHints[extractor.LangEnglish]
	}
	return fmt.Sprintf("Listen to the audio and transcribe what the speaker says. "+
		"For every distinct food or drink mention, call the %s function once with "+
		"the stated quantity and your best estimate of its nutrients for that "+
		"quantity. Do not invent foods that were not mentioned. %s", toolName, hint)
}
