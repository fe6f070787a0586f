package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/daveenci-ai/daveenci-ai-avatar/pkg/models"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("test-token")
	c.baseURL = srv.URL
	c.pollInterval = 5 * time.Millisecond
	return c
}

func defaultParams() models.GenerationParams {
	var p models.GenerationParams
	p.ApplyDefaults()
	return p
}

func TestParseModelRef(t *testing.T) {
	cases := []struct {
		ref     string
		owner   string
		name    string
		version string
		wantErr bool
	}{
		{ref: "daveenci/zara-lora", owner: "daveenci", name: "zara-lora"},
		{ref: "daveenci/zara-lora:abc123", owner: "daveenci", name: "zara-lora", version: "abc123"},
		{ref: "https://replicate.com/daveenci/zara-lora", owner: "daveenci", name: "zara-lora"},
		{ref: "https://replicate.com/daveenci/zara-lora/versions/abc123", owner: "daveenci", name: "zara-lora", version: "abc123"},
		{ref: "just-a-name", wantErr: true},
		{ref: "", wantErr: true},
		{ref: "a/b/c", wantErr: true},
	}
	for _, tc := range cases {
		owner, name, version, err := ParseModelRef(tc.ref)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseModelRef(%q): expected error", tc.ref)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseModelRef(%q): %v", tc.ref, err)
			continue
		}
		if owner != tc.owner || name != tc.name || version != tc.version {
			t.Errorf("ParseModelRef(%q) = (%q, %q, %q), want (%q, %q, %q)",
				tc.ref, owner, name, version, tc.owner, tc.name, tc.version)
		}
	}
}

func TestGenerateImmediateSuccess(t *testing.T) {
	var gotPath, gotAuth, gotPrefer string
	var gotBody map[string]interface{}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotPrefer = r.Header.Get("Prefer")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "pred-1",
			"status": "succeeded",
			"output": []string{"https://replicate.delivery/a.webp", "https://replicate.delivery/b.webp"},
		})
	}))

	params := defaultParams()
	params.NumOutputs = 2
	urls, err := client.Generate(context.Background(), "daveenci/zara-lora", "zara on a beach", params)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(urls) != 2 || urls[0] != "https://replicate.delivery/a.webp" {
		t.Errorf("unexpected outputs: %v", urls)
	}
	if gotPath != "/models/daveenci/zara-lora/predictions" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotPrefer != "wait" {
		t.Errorf("expected Prefer: wait, got %q", gotPrefer)
	}
	input, ok := gotBody["input"].(map[string]interface{})
	if !ok {
		t.Fatalf("request body has no input object: %v", gotBody)
	}
	if input["prompt"] != "zara on a beach" {
		t.Errorf("unexpected prompt %v", input["prompt"])
	}
	if input["num_outputs"] != float64(2) {
		t.Errorf("unexpected num_outputs %v", input["num_outputs"])
	}
}

func TestGeneratePollsUntilSucceeded(t *testing.T) {
	var polls int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "pred-2", "status": "processing"})
			return
		}
		if r.URL.Path != "/predictions/pred-2" {
			t.Errorf("unexpected poll path %q", r.URL.Path)
		}
		polls++
		if polls < 3 {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "pred-2", "status": "processing"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "pred-2",
			"status": "succeeded",
			"output": "https://replicate.delivery/single.webp",
		})
	}))

	urls, err := client.Generate(context.Background(), "daveenci/zara-lora", "portrait", defaultParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://replicate.delivery/single.webp" {
		t.Errorf("unexpected outputs: %v", urls)
	}
	if polls != 3 {
		t.Errorf("expected 3 polls, got %d", polls)
	}
}

func TestGenerateVersionedRefUsesPredictionsEndpoint(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "pred-3",
			"status": "succeeded",
			"output": []string{"https://replicate.delivery/c.webp"},
		})
	}))

	_, err := client.Generate(context.Background(), "daveenci/zara-lora:ver42", "portrait", defaultParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gotPath != "/predictions" {
		t.Errorf("expected /predictions for versioned ref, got %q", gotPath)
	}
	if gotBody["version"] != "ver42" {
		t.Errorf("expected version ver42 in body, got %v", gotBody["version"])
	}
}

func TestGenerateMapsAuthAndRateErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrInvalidToken},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusPaymentRequired, ErrRateLimited},
	}
	for _, tc := range cases {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "nope"})
		}))
		_, err := client.Generate(context.Background(), "daveenci/zara-lora", "portrait", defaultParams())
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestGenerateFailedPrediction(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "pred-4",
			"status": "failed",
			"error":  "NSFW content detected",
		})
	}))

	_, err := client.Generate(context.Background(), "daveenci/zara-lora", "portrait", defaultParams())
	if err == nil {
		t.Fatal("expected error for failed prediction")
	}
	if !strings.Contains(err.Error(), "NSFW content detected") {
		t.Errorf("error should carry upstream detail, got %v", err)
	}
}

func TestGenerateEmptyOutput(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "pred-5",
			"status": "succeeded",
			"output": []string{},
		})
	}))

	_, err := client.Generate(context.Background(), "daveenci/zara-lora", "portrait", defaultParams())
	if err == nil || !strings.Contains(err.Error(), "no output") {
		t.Errorf("expected no-output error, got %v", err)
	}
}

func TestGenerateSendsSeedOnlyWhenSet(t *testing.T) {
	var gotInput map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotInput, _ = body["input"].(map[string]interface{})
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "pred-6",
			"status": "succeeded",
			"output": []string{"https://replicate.delivery/d.webp"},
		})
	}))

	params := defaultParams()
	if _, err := client.Generate(context.Background(), "daveenci/zara-lora", "portrait", params); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, present := gotInput["seed"]; present {
		t.Errorf("seed should be omitted when unset, input: %v", gotInput)
	}

	seed := int64(1234)
	params.Seed = &seed
	if _, err := client.Generate(context.Background(), "daveenci/zara-lora", "portrait", params); err != nil {
		t.Fatalf("Generate with seed: %v", err)
	}
	if gotInput["seed"] != float64(1234) {
		t.Errorf("expected seed 1234, got %v", gotInput["seed"])
	}
}
