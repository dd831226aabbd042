// Package oracle implements the optional RouteOracle port (spec §4.4,
// §9's "Optional LLM oracle"): ranking the Route Optimization Engine's
// stops with a chat-completion model. On any failure Rank returns an error
// and the engine keeps its own ordering. Adapted from the teacher's pkg/ai.AIClient/
// OpenAIClient (renamed import path, trimmed to the single
// GenerateResponse call this port needs, and the streaming/provider-info
// methods the engine never calls are dropped) — the teacher used AIClient
// for open-ended chat generation; here it is narrowed to a JSON-index
// ranking task.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
)

// OpenAIOracle implements ports.RouteOracle against the OpenAI chat
// completions API. Any HTTP, parse, or validation error is returned to the
// caller, which per spec §4.4 treats any oracle error as "absent" and
// falls back to the engine's own ordering — this package does not need to
// swallow errors itself.
type OpenAIOracle struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
}

func NewOpenAIOracle(apiKey, model string, logger core.Logger) *OpenAIOracle {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("oracle/openai")
	}
	return &OpenAIOracle{
		apiKey:     apiKey,
		model:      model,
		baseURL:    "https://api.openai.com/v1",
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logger,
	}
}

// Rank asks the model for a permutation of stop indices minimizing travel,
// starting from start. It returns an error (never a partial/garbage
// ranking) when the API call fails or the response isn't a valid
// permutation of len(stops) indices, so the engine's "total distance <
// NN's" comparison never runs against a malformed ordering.
func (o *OpenAIOracle) Rank(ctx context.Context, start domain.LatLng, stops []domain.Stop) ([]int, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("oracle: no API key configured")
	}
	if len(stops) == 0 {
		return nil, nil
	}

	prompt := buildRankingPrompt(start, stops)
	payload := map[string]interface{}{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a route-ordering assistant. Reply with ONLY a JSON array of zero-based stop indices, a permutation of all indices, in visit order. No prose."},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.0,
		"max_tokens":  200,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("oracle: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("oracle: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle: request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("oracle: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("oracle: unexpected response status %d", resp.StatusCode)
	}

	ranking, err := parseRanking(parsed.Choices[0].Message.Content, len(stops))
	if err != nil {
		o.logger.WarnWithContext(ctx, "oracle: unparseable ranking", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	return ranking, nil
}

func buildRankingPrompt(start domain.LatLng, stops []domain.Stop) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Start: (%.5f,%.5f)\nStops:\n", start.Lat, start.Lng)
	for i, s := range stops {
		fmt.Fprintf(&b, "%d: type=%s lat=%.5f lng=%.5f\n", i, s.Type, s.Location.Lat, s.Location.Lng)
	}
	return b.String()
}

func parseRanking(content string, n int) ([]int, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < 0 || end < start {
		return nil, fmt.Errorf("oracle: no JSON array found in response")
	}
	var indices []int
	if err := json.Unmarshal([]byte(content[start:end+1]), &indices); err != nil {
		return nil, fmt.Errorf("oracle: invalid JSON array: %w", err)
	}
	if len(indices) != n {
		return nil, fmt.Errorf("oracle: ranking length %d does not match stop count %d", len(indices), n)
	}
	seen := make(map[int]bool, n)
	for _, idx := range indices {
		if idx < 0 || idx >= n || seen[idx] {
			return nil, fmt.Errorf("oracle: ranking is not a valid permutation")
		}
		seen[idx] = true
	}
	return indices, nil
}
