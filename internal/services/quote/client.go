// Package quote talks to the external swap aggregator: priced routes and
// the instruction bundles that execute them.
package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"

	"github.com/solstream/trade-engine/internal/common"
	"github.com/solstream/trade-engine/internal/config"
	"github.com/solstream/trade-engine/internal/domain"
	"github.com/solstream/trade-engine/internal/metrics"
)

// Client is a pure network reader against the aggregator; it retains no
// state between calls.
type Client struct {
	quoteURL        string
	instructionsURL string
	platformFeeBps  uint16
	httpClient      *http.Client
}

func NewClient(conf *config.AggregatorConfig) *Client {
	return &Client{
		quoteURL:        conf.QuoteURL,
		instructionsURL: conf.SwapInstructionsURL,
		platformFeeBps:  conf.PlatformFeeBps,
		httpClient:      &http.Client{Timeout: conf.HTTPTimeout},
	}
}

// GetQuote fetches a priced route for the pair. Non-positive amounts are
// rejected locally without a network call. A missing or empty route plan, or
// a non-positive output amount, surfaces as ErrRouteUnavailable.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps uint16, includeFee bool) (*domain.Quote, error) {
	if amount == 0 {
		return nil, common.ErrInvalidAmount
	}

	params := url.Values{}
	params.Set("inputMint", inputMint.String())
	params.Set("outputMint", outputMint.String())
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.FormatUint(uint64(slippageBps), 10))
	if includeFee && c.platformFeeBps > 0 {
		params.Set("platformFeeBps", strconv.FormatUint(uint64(c.platformFeeBps), 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.quoteURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.QuoteRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.QuoteRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("quote response read failed: %w", err)
	}

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		metrics.QuoteRequests.WithLabelValues("no_route").Inc()
		return nil, fmt.Errorf("%w: aggregator returned %d", common.ErrRouteUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.QuoteRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("quote endpoint returned %d", resp.StatusCode)
	}

	var q domain.Quote
	if err := sonic.Unmarshal(body, &q); err != nil {
		metrics.QuoteRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("malformed quote payload: %w", err)
	}
	q.Raw = body

	if len(q.RoutePlan) == 0 || q.OutAmountBaseUnits() == 0 {
		metrics.QuoteRequests.WithLabelValues("no_route").Inc()
		return nil, common.ErrRouteUnavailable
	}

	metrics.QuoteRequests.WithLabelValues("ok").Inc()
	return &q, nil
}

type instructionsRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
	FeeAccount       string          `json:"feeAccount,omitempty"`
}

// GetSwapInstructions exchanges a quote for the instruction bundle that
// executes it. The quote payload is forwarded verbatim; a quote must not be
// reused across submission attempts, so callers fetch a fresh one per call.
func (c *Client) GetSwapInstructions(ctx context.Context, quote *domain.Quote, signer solana.PublicKey, feeAccount string) (*domain.InstructionBundle, error) {
	reqBody, err := sonic.Marshal(instructionsRequest{
		QuoteResponse:    json.RawMessage(quote.Raw),
		UserPublicKey:    signer.String(),
		WrapAndUnwrapSol: true,
		FeeAccount:       feeAccount,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.instructionsURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("swap instructions request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("swap instructions response read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("swap instructions endpoint returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var bundle domain.InstructionBundle
	if err := sonic.Unmarshal(body, &bundle); err != nil {
		return nil, fmt.Errorf("malformed instruction payload: %w", err)
	}

	if bundle.Error != "" {
		if isStaleRouteSignal(bundle.Error) {
			return nil, fmt.Errorf("%w: %s", common.ErrRouteExpired, bundle.Error)
		}
		return nil, fmt.Errorf("aggregator rejected quote: %s", bundle.Error)
	}
	if bundle.SwapInstruction == nil && bundle.SwapTransactionB64 == "" {
		return nil, fmt.Errorf("aggregator returned neither instructions nor a transaction payload")
	}

	return &bundle, nil
}

func isStaleRouteSignal(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "stale") ||
		strings.Contains(lower, "expired") ||
		strings.Contains(lower, "route plan no longer valid")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
