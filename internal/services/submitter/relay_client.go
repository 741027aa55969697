package submitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/solstream/trade-engine/internal/config"
)

// RelayClient speaks the bundle relay's JSON-RPC surface: sendBundle to
// enqueue an atomic group and getBundleStatuses to follow it.
type RelayClient struct {
	url        string
	httpClient *http.Client
}

func NewRelayClient(conf *config.RelayConfig) *RelayClient {
	return &RelayClient{
		url:        conf.URL,
		httpClient: &http.Client{Timeout: conf.HTTPTimeout},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

// BundleStatus is one entry of a getBundleStatuses response.
type BundleStatus struct {
	BundleID           string        `json:"bundle_id"`
	Transactions       []string      `json:"transactions"`
	Slot               uint64        `json:"slot"`
	ConfirmationStatus string        `json:"confirmation_status"`
	Err                bundleWireErr `json:"err"`
}

// bundleWireErr is the relay's serialized Result: {"Ok":null} for a clean
// landing, {"Err":<TransactionError>} when the bundle failed on chain.
type bundleWireErr struct {
	Ok  json.RawMessage `json:"Ok"`
	Err json.RawMessage `json:"Err"`
}

// Failed reports whether the relay recorded an on-chain failure for the
// bundle.
func (s *BundleStatus) Failed() bool {
	return len(s.Err.Err) > 0 && string(s.Err.Err) != "null"
}

// FailureDetail returns the relay's serialized transaction error, empty
// when the bundle did not fail.
func (s *BundleStatus) FailureDetail() string {
	if !s.Failed() {
		return ""
	}
	return string(s.Err.Err)
}

// SendBundle enqueues base64-encoded transactions as one atomic bundle
// and returns the relay's bundle id.
func (c *RelayClient) SendBundle(ctx context.Context, txs []string) (string, error) {
	var result string
	err := c.call(ctx, "sendBundle", []interface{}{
		txs,
		map[string]string{"encoding": "base64"},
	}, &result)
	if err != nil {
		return "", err
	}
	if result == "" {
		return "", fmt.Errorf("relay returned empty bundle id")
	}
	return result, nil
}

// GetBundleStatuses looks up the current relay-side status of the given
// bundle ids. Unknown bundles are simply absent from the response.
func (c *RelayClient) GetBundleStatuses(ctx context.Context, bundleIDs []string) ([]BundleStatus, error) {
	var result struct {
		Value []BundleStatus `json:"value"`
	}
	if err := c.call(ctx, "getBundleStatuses", []interface{}{bundleIDs}, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *RelayClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	payload, err := sonic.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("relay response read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay returned %d: %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("relay response malformed: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if len(envelope.Result) == 0 {
		return fmt.Errorf("relay response missing result")
	}
	return sonic.Unmarshal(envelope.Result, result)
}
