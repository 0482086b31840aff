package llm

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderVertex    = "vertex"

	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	AnthropicVersion        = "2023-06-01"
	VertexAnthropicVersion  = "vertex-2023-10-16"
	messagesPath            = "/v1/messages"
)

// endpoint shapes requests for one provider.
type endpoint interface {
	provider() string
	url(stream bool) string
	// prepare adjusts the body fields that differ between providers.
	prepare(body *wireRequest)
	authorize(req *http.Request) error
}

type anthropicEndpoint struct {
	baseURL string
	apiKey  string
	model   string
}

func (e *anthropicEndpoint) provider() string { return ProviderAnthropic }

func (e *anthropicEndpoint) url(bool) string { return e.baseURL + messagesPath }

func (e *anthropicEndpoint) prepare(body *wireRequest) { body.Model = e.model }

func (e *anthropicEndpoint) authorize(req *http.Request) error {
	req.Header.Set("x-api-key", e.apiKey)
	req.Header.Set("anthropic-version", AnthropicVersion)
	return nil
}

type vertexEndpoint struct {
	baseURL string
	project string
	region  string
	model   string
	tokens  oauth2.TokenSource
}

// VertexBaseURL returns the regional Vertex AI host. The global region has
// no region prefix.
func VertexBaseURL(region string) string {
	if region == "" || region == "global" {
		return "https://aiplatform.googleapis.com"
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com", region)
}

func (e *vertexEndpoint) provider() string { return ProviderVertex }

func (e *vertexEndpoint) url(stream bool) string {
	method := "rawPredict"
	if stream {
		method = "streamRawPredict"
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/anthropic/models/%s:%s",
		e.baseURL, e.project, e.region, e.model, method)
}

func (e *vertexEndpoint) prepare(body *wireRequest) {
	body.Model = ""
	body.AnthropicVersion = VertexAnthropicVersion
}

func (e *vertexEndpoint) authorize(req *http.Request) error {
	tok, err := e.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to get Google access token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

func trimBaseURL(base, fallback string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return fallback
	}
	return base
}
