package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"

	"nosh/encoder"
	"nosh/extractor"
)

type genResult struct {
	parts []Part
	err   error
}

// scriptedGen returns one scripted result per Generate call and records
// the WAV payloads it was handed.
type scriptedGen struct {
	script []genResult
	calls  int
	wavs   [][]byte
	langs  []string
}

func (g *scriptedGen) Generate(_ context.Context, wav []byte, language string) ([]Part, error) {
	g.wavs = append(g.wavs, wav)
	g.langs = append(g.langs, language)
	idx := g.calls
	g.calls++
	if idx >= len(g.script) {
		idx = len(g.script) - 1
	}
	return g.script[idx].parts, g.script[idx].err
}

func callTool(t *testing.T, args string) Part {
	t.Helper()
	return Part{Call: &FuncCall{Name: toolName, Args: json.RawMessage(args)}}
}

func validPayload(t *testing.T) string {
	t.Helper()
	pcm := make([]byte, 2*extractor.MinPayloadBytes)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	return encoder.EncodeTransport(pcm)
}

func post(t *testing.T, h *Handler, req extractor.Request) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/extract", bytes.NewReader(body)))
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) extractor.ErrorBody {
	t.Helper()
	var body extractor.ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return body
}

func newTestHandler(gen Generator) *Handler {
	return NewHandler(gen, Config{MaxRetries: 2, RetryDelay: time.Millisecond},
		WithSleeper(func(time.Duration) {}))
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(&scriptedGen{script: []genResult{{}}})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/extract", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestBadRequests(t *testing.T) {
	short := encoder.EncodeTransport(make([]byte, extractor.MinPayloadBytes-1))
	tests := []struct {
		name    string
		req     extractor.Request
		wantMsg string
	}{
		{"missing payload", extractor.Request{PreferredLanguage: extractor.LangEnglish}, "Missing audio payload"},
		{"bad base64", extractor.Request{AudioBase64: "not$$base64!"}, "Invalid audio encoding"},
		{"too short", extractor.Request{AudioBase64: short}, "Audio too short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGen{script: []genResult{{}}}
			w := post(t, newTestHandler(gen), tt.req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if body := decodeError(t, w); body.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", body.Error, tt.wantMsg)
			}
			if gen.calls != 0 {
				t.Errorf("generator called %d times before validation", gen.calls)
			}
		})
	}
}

func TestExtraction(t *testing.T) {
	gen := &scriptedGen{script: []genResult{{parts: []Part{
		{Text: "draft transcription"},
		callTool(t, `{"name":"oatmeal","quantity":"1 cup","calories":150,"protein":5,"carbs":27,"fat":3,"fiber":4}`),
		callTool(t, `{"name":"black coffee","quantity":"1 mug","calories":2,"protein":0.3,"carbs":0,"fat":0,"fiber":0,"micronutrients":"caffeine 95mg"}`),
		{Text: "I had a cup of oatmeal and a mug of black coffee"},
	}}}}
	w := post(t, newTestHandler(gen), extractor.Request{
		AudioBase64:       validPayload(t),
		PreferredLanguage: extractor.LangPortuguese,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var res extractor.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Transcription != "I had a cup of oatmeal and a mug of black coffee" {
		t.Errorf("transcription = %q, want the last text part", res.Transcription)
	}
	if len(res.Foods) != 2 {
		t.Fatalf("foods = %d, want 2", len(res.Foods))
	}
	if res.Foods[0].Name != "oatmeal" || res.Foods[1].Name != "black coffee" {
		t.Errorf("food order = %q, %q", res.Foods[0].Name, res.Foods[1].Name)
	}
	if res.Foods[1].Micronutrients != "caffeine 95mg" {
		t.Errorf("micronutrients = %q", res.Foods[1].Micronutrients)
	}
	if gen.langs[0] != extractor.LangPortuguese {
		t.Errorf("language = %q, want %q", gen.langs[0], extractor.LangPortuguese)
	}
}

func TestReframesAsWAV(t *testing.T) {
	gen := &scriptedGen{script: []genResult{{}}}
	payload := validPayload(t)
	post(t, newTestHandler(gen), extractor.Request{AudioBase64: payload})
	if len(gen.wavs) != 1 {
		t.Fatalf("generator called %d times, want 1", len(gen.wavs))
	}
	wav := gen.wavs[0]
	if string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("payload not WAV framed: % x", wav[:12])
	}
	if want := 44 + 2*extractor.MinPayloadBytes; len(wav) != want {
		t.Errorf("wav length = %d, want %d", len(wav), want)
	}
}

func TestNoFoodsIsEmptyArray(t *testing.T) {
	gen := &scriptedGen{script: []genResult{{parts: []Part{{Text: "just saying hello"}}}}}
	w := post(t, newTestHandler(gen), extractor.Request{AudioBase64: validPayload(t)})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"foods":[]`) {
		t.Errorf("body = %s, want empty foods array, not null", w.Body.String())
	}
}

func TestMalformedCallHandling(t *testing.T) {
	gen := &scriptedGen{script: []genResult{{parts: []Part{
		// unquoted keys come back repaired
		callTool(t, `{name: "banana", quantity: "1 medium", calories: 105, protein: 1.3, carbs: 27, fat: 0.4, fiber: 3.1}`),
		// nameless entries are dropped
		callTool(t, `{"quantity":"1 cup","calories":100}`),
		// irreparably shaped args are dropped
		callTool(t, `[1, 2`),
		{Call: &FuncCall{Name: "unknown_tool", Args: json.RawMessage(`{}`)}},
	}}}}
	w := post(t, newTestHandler(gen), extractor.Request{AudioBase64: validPayload(t)})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var res extractor.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(res.Foods) != 1 || res.Foods[0].Name != "banana" {
		t.Fatalf("foods = %+v, want only the repaired banana entry", res.Foods)
	}
	if res.Foods[0].Calories != 105 {
		t.Errorf("calories = %v, want 105", res.Foods[0].Calories)
	}
}

func TestRetryRecovers(t *testing.T) {
	overloaded := genai.APIError{Code: http.StatusServiceUnavailable, Message: "overloaded"}
	gen := &scriptedGen{script: []genResult{
		{err: overloaded},
		{err: overloaded},
		{parts: []Part{{Text: "third time lucky"}}},
	}}
	var slept []time.Duration
	h := NewHandler(gen, Config{MaxRetries: 2, RetryDelay: 2 * time.Second},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }))

	w := post(t, h, extractor.Request{AudioBase64: validPayload(t)})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3", gen.calls)
	}
	if len(slept) != 2 || slept[0] != 2*time.Second {
		t.Errorf("slept = %v, want two 2s delays", slept)
	}
}

func TestUpstreamErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantMsg   string
		wantCalls int
	}{
		{"overloaded exhausts retries", genai.APIError{Code: 503}, http.StatusServiceUnavailable, "Model overloaded", 3},
		{"quota exhausts retries", genai.APIError{Code: 429}, http.StatusTooManyRequests, "Quota exceeded", 3},
		{"bad key fails fast", genai.APIError{Code: 401}, http.StatusBadGateway, "Invalid API key", 1},
		{"other upstream failure", genai.APIError{Code: 500}, http.StatusBadGateway, "Upstream API error", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGen{script: []genResult{{err: tt.err}}}
			w := post(t, newTestHandler(gen), extractor.Request{AudioBase64: validPayload(t)})
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if body := decodeError(t, w); body.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", body.Error, tt.wantMsg)
			}
			if gen.calls != tt.wantCalls {
				t.Errorf("generator calls = %d, want %d", gen.calls, tt.wantCalls)
			}
		})
	}
}
