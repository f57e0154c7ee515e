// Package reasoning talks to the external completion service used for
// severity scoring and strategy synthesis. Everything it returns is treated
// as untrusted input by its callers.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/julianstephens/daylitd/internal/errors"
)

// GenerationConfig tunes a single completion.
type GenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string   `json:"responseMimeType,omitempty"`
}

// Request is one generate call.
type Request struct {
	Model            string
	Prompt           string
	GenerationConfig GenerationConfig
}

// Client performs a single generate call and returns the raw response text.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// HTTPClient implements Client against a generateContent-style JSON API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewHTTPClient creates a client. A nil httpClient uses http.DefaultClient;
// per-attempt deadlines come from the caller's context.
func NewHTTPClient(httpClient *http.Client, baseURL, apiKey string) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

type wirePart struct {
	Text string `json:"text"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireRequest struct {
	Contents         []wireContent    `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type wireResponse struct {
	Candidates []struct {
		Content wireContent `json:"content"`
	} `json:"candidates"`
}

// Generate sends the prompt and returns the concatenated text of the first
// candidate. Empty or undecodable responses are reported as retryable.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(wireRequest{
		Contents:         []wireContent{{Role: "user", Parts: []wirePart{{Text: req.Prompt}}}},
		GenerationConfig: req.GenerationConfig,
	})
	if err != nil {
		return "", fmt.Errorf("reasoning: marshaling request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(req.Model), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("reasoning: creating request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpRequest.Header.Set("x-goog-api-key", c.apiKey)
	}

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return "", &errors.ExternalServiceError{
			Retryable: true,
			Message:   "upstream unreachable",
			Err:       err,
		}
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return "", readServiceError(httpResponse)
	}

	var wire wireResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wire); err != nil {
		return "", &errors.ExternalServiceError{
			StatusCode: httpResponse.StatusCode,
			Retryable:  true,
			Message:    "undecodable response body",
			Err:        err,
		}
	}

	var text strings.Builder
	if len(wire.Candidates) > 0 {
		for _, part := range wire.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", &errors.ExternalServiceError{
			StatusCode: httpResponse.StatusCode,
			Retryable:  true,
			Message:    "empty response",
		}
	}
	return text.String(), nil
}

func (c *HTTPClient) endpoint(model string) string {
	return fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
}

// readServiceError converts a non-200 response into a classified
// ExternalServiceError, preferring the {"error":{"message":...}} envelope.
func readServiceError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		message = wireError.Error.Message
	}
	if message == "" {
		message = http.StatusText(httpResponse.StatusCode)
	}
	return errors.NewExternalServiceError(httpResponse.StatusCode, message)
}
