// client.go - Client for the remote pool service (ASP).
//
// Every endpoint is a JSON POST. Non-2xx responses become UpstreamError with an
// endpoint specific message; transport failures become NetworkError.

package poolclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"privacypool/internal/metrics"
	"privacypool/internal/poolerr"
)

// DefaultBaseURL is the staging pool service.
const DefaultBaseURL = "https://privacypoolsstaging.visoft.dev/asp"

const maxResponseSize = 8 << 20

const (
	endpointExecute  = "executeAccountTransaction"
	endpointProof    = "getProofData"
	endpointFee      = "getTransactionFee"
	endpointDecimals = "getTokenDecimals"
	endpointName     = "getTokenName"
)

// Messages reported when the service answers with a failure status.
const (
	MsgExecuteFailed   = "Error while executing transaction."
	MsgProofDataFailed = "Error while fetching proof data. Make sure the passed data is correct or try again later."
	MsgFeeFailed       = "Failed to fetch withdraw fee."
	MsgDecimalsFailed  = "Failed to fetch token decimals."
	MsgNameFailed      = "Failed to fetch token name."
)

// Client talks to the pool service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a client for baseURL. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "pool-client").Logger(),
	}
}

type tokenRequest struct {
	TokenAddress string `json:"token_address"`
}

type executeResponse struct {
	TransactionHash string `json:"transaction_hash"`
}

type serviceError struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

// ExecuteTransaction submits a signed account transaction and returns its hash.
// A failure carrying {code, message} is reported as "[code] message".
func (c *Client) ExecuteTransaction(ctx context.Context, body json.RawMessage) (string, error) {
	status, raw, err := c.post(ctx, endpointExecute, body)
	if err != nil {
		return "", err
	}
	if !ok(status) {
		var se serviceError
		if err := json.Unmarshal(raw, &se); err != nil {
			return "", poolerr.UpstreamError("", MsgExecuteFailed)
		}
		return "", poolerr.UpstreamError(codeString(se.Code), se.Message)
	}

	var resp executeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.log.Warn().Err(err).Msg("malformed transaction response")
		return "", poolerr.ErrNetwork
	}
	return resp.TransactionHash, nil
}

// GetProofData returns the service's proof data for body.
func (c *Client) GetProofData(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return c.data(ctx, endpointProof, body, MsgProofDataFailed)
}

// GetTransactionFee returns the withdraw fee quote for body.
func (c *Client) GetTransactionFee(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return c.data(ctx, endpointFee, body, MsgFeeFailed)
}

// GetTokenDecimals returns the decimals reported for tokenAddress.
func (c *Client) GetTokenDecimals(ctx context.Context, tokenAddress string) (json.RawMessage, error) {
	body, err := json.Marshal(tokenRequest{TokenAddress: tokenAddress})
	if err != nil {
		return nil, err
	}
	return c.data(ctx, endpointDecimals, body, MsgDecimalsFailed)
}

// GetTokenName returns the name reported for tokenAddress.
func (c *Client) GetTokenName(ctx context.Context, tokenAddress string) (json.RawMessage, error) {
	body, err := json.Marshal(tokenRequest{TokenAddress: tokenAddress})
	if err != nil {
		return nil, err
	}
	return c.data(ctx, endpointName, body, MsgNameFailed)
}

// Ping reports whether the service answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pool service unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) data(ctx context.Context, endpoint string, body json.RawMessage, failure string) (json.RawMessage, error) {
	status, raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, poolerr.UpstreamError("", failure)
	}
	if !json.Valid(raw) {
		c.log.Warn().Str("endpoint", endpoint).Msg("malformed pool service response")
		return nil, poolerr.ErrNetwork
	}
	return json.RawMessage(raw), nil
}

func (c *Client) post(ctx context.Context, endpoint string, body json.RawMessage) (int, []byte, error) {
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}
	url := fmt.Sprintf("%s/%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("pool service unreachable")
		return 0, nil, poolerr.ErrNetwork
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("failed to read pool service response")
		return 0, nil, poolerr.ErrNetwork
	}
	metrics.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	c.log.Debug().Str("endpoint", endpoint).Int("status", resp.StatusCode).Msg("pool service response")
	return resp.StatusCode, raw, nil
}

func ok(status int) bool { return status >= 200 && status < 300 }

// codeString renders a JSON code value the way it reads: strings unquoted,
// numbers as written, absent as "undefined".
func codeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "undefined"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
