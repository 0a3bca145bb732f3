package llmclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/mazerunner/harness/pkg/apperrors"
)

// HTTPClient is the resty-backed Client implementation serving both chat
// backend providers: one HTTP call per iteration of the turn's tool loop,
// against whichever EndpointConfig the caller resolved for the
// experiment's provider.
//
// The dependency is sourced from the pack's go-resty/resty/v2 presence
// (pack repo emergent-company-emergent/tools/emergent-cli's go.mod) rather
// than a call site: no example repo in the retrieval pack issues a live
// resty request, only a blank import in a dependency smoke test
// (deps_test.go). The usage below follows resty's own public API rather
// than an in-pack pattern; see DESIGN.md.
type HTTPClient struct {
	rest  *resty.Client
	model string
}

// NewHTTPClient builds an HTTPClient targeting endpoint for model.
func NewHTTPClient(endpoint EndpointConfig, model string) *HTTPClient {
	rest := resty.New().
		SetBaseURL(endpoint.BaseURL).
		SetTimeout(endpoint.RequestTimeout)
	if endpoint.APIKey != "" {
		rest.SetHeader(endpoint.APIKeyHeader, endpoint.APIKey)
	}
	return &HTTPClient{rest: rest, model: model}
}

// Generate issues one non-streaming POST /chat call and decodes its
// response, classifying any failure into the shared error taxonomy.
func (c *HTTPClient) Generate(ctx context.Context, input *GenerateInput) (*Response, error) {
	body := wireRequest{
		Model:    c.model,
		Messages: toWireMessages(input.Messages),
		Tools:    toWireTools(input.Tools),
		Options: wireOptions{
			NumCtx:        input.Options.NumCtx,
			Temperature:   input.Options.Temperature,
			RepeatPenalty: input.Options.RepeatPenalty,
			NumPredict:    input.Options.NumPredict,
		},
		Stream: false,
	}

	var wr wireResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&wr).
		Post("/chat")
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if resp.IsError() {
		return nil, classifyHTTPStatus(resp.StatusCode(), resp.String())
	}

	return fromWireResponse(&wr), nil
}

// classifyTransportError maps a resty/net error into the shared error
// taxonomy, using errors.Is against the context sentinels (not ctx.Err())
// so a concurrently expiring, unrelated context doesn't misclassify a
// genuine connection failure.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.New(apperrors.KindTransportTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.New(apperrors.KindTransportTimeout, err)
	}
	return apperrors.New(apperrors.KindTransportError, err)
}

func classifyHTTPStatus(status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return apperrors.Newf(apperrors.KindRateLimited, "chat backend rate limited (status %d)", status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.Newf(apperrors.KindTransportError, "chat backend rejected credentials (status %d)", status)
	case status >= 500:
		return apperrors.Newf(apperrors.KindTransportError, "chat backend error (status %d): %s", status, body)
	default:
		return apperrors.Newf(apperrors.KindSchemaError, "unexpected chat backend response (status %d): %s", status, body)
	}
}

var _ Client = (*HTTPClient)(nil)
