package meshapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/ports"
	"weallmesh/pkg/auth"
	apperrors "weallmesh/pkg/errors"

	"go.uber.org/zap"
)

// Errors bodies are truncated to this many bytes before they are
// folded into an error message.
const maxErrorBody = 512

// Options configures clients produced by Factory. The zero value is
// usable.
type Options struct {
	HTTPClient *http.Client
	Tokens     *auth.TokenStore
	Logger     *zap.SugaredLogger
}

// Client is a JSON-over-HTTP client bound to one normalized base
// endpoint. Per-call deadlines come from the caller's context; the
// embedded http.Client timeout is only a safety net.
type Client struct {
	base   string
	http   *http.Client
	tokens *auth.TokenStore
	logger *zap.SugaredLogger
}

func New(base string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		base:   base,
		http:   httpClient,
		tokens: opts.Tokens,
		logger: logger,
	}
}

// Factory returns a ClientFactory binding fresh clients to selected
// base endpoints.
func Factory(opts Options) ports.ClientFactory {
	return func(base string) ports.MeshClient {
		return New(base, opts)
	}
}

func (c *Client) Base() string {
	return c.base
}

// Do performs one JSON request. Success is a 2xx status with a
// parseable body; non-2xx responses come back as REMOTE_REJECTED and
// transport failures as TRANSIENT_NETWORK.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Bearer(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewTransientError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewTransientError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(raw)
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
		return apperrors.NewRemoteRejectedError(resp.StatusCode, detail)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return apperrors.NewTransientError(fmt.Errorf("unparseable response body: %w", err))
		}
	}
	return nil
}

// learnResponse is the optional-field schema of the learn endpoint.
// Only peers is guaranteed; rules and seeds default to absent.
type learnResponse struct {
	Peers []ports.PeerAdvice `json:"peers"`
	Rules *domain.RulesPatch `json:"rules,omitempty"`
	Seeds []string           `json:"seeds,omitempty"`
}

// Learn fetches a peer recommendation list plus optional rules and
// seed addresses. The purpose-aware lookup is preferred; endpoints
// that reject it get the generic lookup, so pools refresh across
// heterogeneous remote versions.
func (c *Client) Learn(ctx context.Context, purpose domain.Purpose, count int) (*ports.LearnResult, error) {
	reqBody := map[string]any{
		"purpose": purpose,
		"count":   count,
	}

	var resp learnResponse
	err := c.Do(ctx, http.MethodPost, "/mesh/peers/recommend", reqBody, &resp)
	if err != nil {
		status, rejected := apperrors.IsRemoteRejected(err)
		if !rejected || !purposeUnsupported(status) {
			return nil, err
		}
		c.logger.Debugw("purpose-aware lookup unsupported, using generic lookup",
			"base", c.base, "status", status)
		resp = learnResponse{}
		if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/mesh/peers?count=%d", count), nil, &resp); err != nil {
			return nil, err
		}
	}

	return &ports.LearnResult{
		Peers: resp.Peers,
		Rules: resp.Rules,
		Seeds: resp.Seeds,
	}, nil
}

// purposeUnsupported recognizes remotes that predate the purpose-aware
// recommend endpoint.
func purposeUnsupported(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusMethodNotAllowed:
		return true
	}
	return false
}
