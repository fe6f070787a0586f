// internal/replicate/client.go
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/daveenci-ai/daveenci-ai-avatar/pkg/models"
)

const defaultBaseURL = "https://api.replicate.com/v1"

// Sentinel errors so callers can map upstream failures to distinct
// HTTP statuses without parsing message text.
var (
	ErrInvalidToken = errors.New("replicate: invalid API token")
	ErrRateLimited  = errors.New("replicate: rate limited")
)

// Client is a thin JSON-over-HTTP client for the Replicate predictions
// API. One Generate call is one logical prediction: create, wait for a
// terminal state, collect output URLs. No retries happen at this layer.
type Client struct {
	token        string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

func NewClient(token string) *Client {
	return &Client{
		token:        token,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		pollInterval: 2 * time.Second,
	}
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  interface{}     `json:"error"`
}

// ParseModelRef accepts "owner/name", "owner/name:version", a
// https://replicate.com/owner/name page URL, or the .../versions/<id>
// variant, and splits it into parts. Version is empty when the ref pins
// no version (the latest one is used).
func ParseModelRef(ref string) (owner, name, version string, err error) {
	r := strings.TrimSpace(ref)
	if i := strings.Index(r, "replicate.com/"); i >= 0 {
		r = r[i+len("replicate.com/"):]
	}
	r = strings.Trim(r, "/")
	if i := strings.Index(r, "/versions/"); i >= 0 {
		version = r[i+len("/versions/"):]
		r = r[:i]
	} else if i := strings.LastIndex(r, ":"); i >= 0 {
		version = r[i+1:]
		r = r[:i]
	}
	parts := strings.Split(r, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid model reference %q (want owner/name)", ref)
	}
	return parts[0], parts[1], version, nil
}

// Generate runs one prediction against the avatar's model and returns
// the ephemeral output URLs in upstream order.
func (c *Client) Generate(ctx context.Context, modelRef, prompt string, params models.GenerationParams) ([]string, error) {
	owner, name, version, err := ParseModelRef(modelRef)
	if err != nil {
		return nil, err
	}

	input := map[string]interface{}{
		"prompt":              prompt,
		"lora_scale":          params.LoraScale,
		"guidance_scale":      params.GuidanceScale,
		"num_inference_steps": params.NumInferenceSteps,
		"num_outputs":         params.NumOutputs,
		"aspect_ratio":        params.AspectRatio,
		"output_format":       params.OutputFormat,
		"output_quality":      params.OutputQuality,
		"go_fast":             params.GoFast,
	}
	if params.Seed != nil {
		input["seed"] = *params.Seed
	}

	var url string
	body := map[string]interface{}{"input": input}
	if version != "" {
		url = fmt.Sprintf("%s/predictions", c.baseURL)
		body["version"] = version
	} else {
		url = fmt.Sprintf("%s/models/%s/%s/predictions", c.baseURL, owner, name)
	}

	log.Printf("🧠 [REPLICATE] Creating prediction for %s/%s (outputs=%d)", owner, name, params.NumOutputs)
	pred, err := c.createPrediction(ctx, url, body)
	if err != nil {
		return nil, err
	}

	pred, err = c.waitForTerminal(ctx, pred)
	if err != nil {
		return nil, err
	}

	outputs, err := parseOutput(pred.Output)
	if err != nil {
		return nil, fmt.Errorf("prediction %s: %w", pred.ID, err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("prediction %s succeeded but returned no output", pred.ID)
	}
	log.Printf("✅ [REPLICATE] Prediction %s succeeded with %d output(s)", pred.ID, len(outputs))
	return outputs, nil
}

func (c *Client) createPrediction(ctx context.Context, url string, body map[string]interface{}) (*prediction, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build prediction request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	// Blocks up to ~60s server-side; long runs fall back to polling.
	req.Header.Set("Prefer", "wait")

	return c.do(req)
}

func (c *Client) getPrediction(ctx context.Context, id string) (*prediction, error) {
	url := fmt.Sprintf("%s/predictions/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*prediction, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call replicate: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read replicate response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, apiDetail(raw))
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, apiDetail(raw))
	case resp.StatusCode >= 400:
		log.Printf("❌ [REPLICATE] API error %d: %s", resp.StatusCode, string(raw))
		return nil, fmt.Errorf("replicate returned status %d: %s", resp.StatusCode, apiDetail(raw))
	}

	var pred prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return nil, fmt.Errorf("unmarshal prediction: %w", err)
	}
	return &pred, nil
}

// waitForTerminal polls until the prediction leaves the starting or
// processing states. Cancellation of ctx aborts the wait.
func (c *Client) waitForTerminal(ctx context.Context, pred *prediction) (*prediction, error) {
	for {
		switch pred.Status {
		case "succeeded":
			return pred, nil
		case "failed", "canceled":
			return nil, fmt.Errorf("prediction %s %s: %s", pred.ID, pred.Status, predError(pred))
		case "starting", "processing":
			select {
			case <-time.After(c.pollInterval):
			case <-ctx.Done():
				return nil, fmt.Errorf("prediction %s wait cancelled: %w", pred.ID, ctx.Err())
			}
			log.Printf("🔄 [REPLICATE] Polling prediction %s (status=%s)", pred.ID, pred.Status)
			next, err := c.getPrediction(ctx, pred.ID)
			if err != nil {
				return nil, err
			}
			pred = next
		default:
			return nil, fmt.Errorf("prediction %s in unexpected state %q", pred.ID, pred.Status)
		}
	}
}

// parseOutput handles both output shapes replicate models produce:
// a list of URLs or a single URL string.
func parseOutput(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil, nil
		}
		return []string{one}, nil
	}
	return nil, fmt.Errorf("unrecognised output shape: %s", string(raw))
}

func predError(pred *prediction) string {
	if pred.Error == nil {
		return "no error detail"
	}
	return fmt.Sprintf("%v", pred.Error)
}

// apiDetail pulls the human-readable part out of an error body.
func apiDetail(raw []byte) string {
	var payload struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Title != "" {
			return payload.Title
		}
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "no response body"
	}
	return s
}
