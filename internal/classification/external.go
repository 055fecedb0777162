package classification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/echoledger/platform/internal/shared/errors"
)

// ExternalClassifier is the escalation collaborator. It is untrusted for
// latency and availability but trusted for the correctness of the fields
// it returns.
type ExternalClassifier interface {
	Classify(ctx context.Context, text string) (DirectiveAnalysis, error)
}

// HTTPClassifier calls an external classification service over HTTP.
type HTTPClassifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClassifier creates an external classifier client. The timeout
// bounds a single escalation attempt end to end.
func NewHTTPClassifier(baseURL string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type externalRequest struct {
	DirectiveText string `json:"directive_text"`
}

// Classify sends the raw text to the external service and decodes its
// analysis. Any transport or decode failure is reported as
// ExternalUnavailable so the router can fall back to the local result.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (DirectiveAnalysis, error) {
	body, err := json.Marshal(externalRequest{DirectiveText: text})
	if err != nil {
		return DirectiveAnalysis{}, errors.ExternalUnavailable("external-classifier", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return DirectiveAnalysis{}, errors.ExternalUnavailable("external-classifier", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DirectiveAnalysis{}, errors.ExternalUnavailable("external-classifier", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DirectiveAnalysis{}, errors.ExternalUnavailable("external-classifier",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var analysis DirectiveAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return DirectiveAnalysis{}, errors.ExternalUnavailable("external-classifier", err)
	}

	return analysis, nil
}
