package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitParsesFoodsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s", r.Method)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.AudioBase64 == "" {
			t.Fatal("missing audioBase64")
		}
		if req.PreferredLanguage != LangEnglish {
			t.Fatalf("language = %q", req.PreferredLanguage)
		}
		w.Write([]byte(`{
			"transcription": "two bananas and three eggs",
			"foods": [
				{"name":"banana","quantity":"2","calories":210,"protein":2.6,"carbs":54,"fat":0.8},
				{"name":"egg","quantity":"3","calories":234,"protein":18.9,"carbs":1.1,"fat":15.9,"fiber":0}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.Submit(context.Background(), "QUJD", LangEnglish)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Transcription != "two bananas and three eggs" {
		t.Errorf("Transcription = %q", result.Transcription)
	}
	if len(result.Foods) != 2 {
		t.Fatalf("len(Foods) = %d, want 2", len(result.Foods))
	}
	if result.Foods[0].Name != "banana" || result.Foods[1].Name != "egg" {
		t.Errorf("order not preserved: %q, %q", result.Foods[0].Name, result.Foods[1].Name)
	}
	// Optional fields default rather than reject.
	if result.Foods[0].Fiber != 0 || result.Foods[0].Micronutrients != "" {
		t.Errorf("optional defaults: fiber=%v micro=%q", result.Foods[0].Fiber, result.Foods[0].Micronutrients)
	}
}

func TestSubmitEmptyFoods(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"transcription":"nice weather today","foods":[]}`))
	}))
	defer server.Close()

	result, err := NewClient(server.URL).Submit(context.Background(), "QUJD", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(result.Foods) != 0 {
		t.Errorf("len(Foods) = %d, want 0", len(result.Foods))
	}
}

func TestSubmitStatusMapping(t *testing.T) {
	for _, tt := range []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"too short", 400, `{"error":"Audio too short"}`, ErrTooShort},
		{"quota", 429, `{"error":"Quota exceeded"}`, ErrRateLimited},
		{"overloaded", 503, `{"error":"Model overloaded"}`, ErrOverloaded},
		{"bad key", 502, `{"error":"Invalid API key"}`, ErrUpstreamAuth},
		{"upstream", 502, `{"error":"Upstream API error"}`, ErrUpstream},
		{"server", 500, `{"error":"boom"}`, ErrUpstream},
	} {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).Submit(context.Background(), "QUJD", "")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubmitDebugCallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"transcription":"toast","foods":[{"name":"toast","quantity":"1 slice","calories":80,"protein":3,"carbs":14,"fat":1}]}`))
	}))
	defer server.Close()

	var got *Debug
	client := NewClient(server.URL, WithDebug(func(d Debug) { got = &d }))
	if _, err := client.Submit(context.Background(), "QUJD", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got == nil {
		t.Fatal("debug callback not invoked")
	}
	if !got.OK || got.StatusCode != 200 || got.Items != 1 {
		t.Errorf("debug = %+v", got)
	}
	if got.PayloadKB <= 0 {
		t.Errorf("PayloadKB = %v", got.PayloadKB)
	}
	if got.Metrics == nil {
		t.Error("metrics missing")
	}
}

func TestSubmitNetworkError(t *testing.T) {
	client := NewClient("http://127.0.0.1:1/extract")
	if _, err := client.Submit(context.Background(), "QUJD", ""); err == nil {
		t.Error("expected transport error")
	}
}
