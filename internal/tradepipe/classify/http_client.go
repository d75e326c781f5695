package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
	"github.com/whalefollow/tradepipe/pkg/retry"
)

// Config for the translate-API client. BaseURL and APIKey are required;
// the rest default to values safe for a paid, rate-limited provider.
type Config struct {
	BaseURL string
	APIKey  string
	Chain   string // provider chain slug, e.g. "eth"

	Timeout time.Duration
	// RatePerSec caps outgoing decode calls client-side so a misconfigured
	// concurrency setting cannot blow through the provider quota.
	RatePerSec float64
	Burst      int
}

// HTTPClient decodes transactions through a Noves-style translate API:
// GET {base}/evm/{chain}/tx/{hash} with an apiKey header.
type HTTPClient struct {
	base  string
	chain string
	key   string
	hc    *http.Client
	lim   *rate.Limiter
}

func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("classifier base url is empty")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("classifier api key is empty")
	}
	if cfg.Chain == "" {
		cfg.Chain = "eth"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &HTTPClient{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		chain: cfg.Chain,
		key:   cfg.APIKey,
		hc:    &http.Client{Timeout: cfg.Timeout},
		lim:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}, nil
}

// wire shapes as returned by the provider
type wireToken struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
}

type wireTransfer struct {
	Token  wireToken `json:"token"`
	Amount string    `json:"amount"`
}

type wireFee struct {
	Amount string    `json:"amount"`
	Token  wireToken `json:"token"`
}

type wireClassification struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Protocol    struct {
		Name string `json:"name"`
	} `json:"protocol"`
	Sent     []wireTransfer `json:"sent"`
	Received []wireTransfer `json:"received"`
}

type wireResponse struct {
	ClassificationData wireClassification `json:"classificationData"`
	RawTransactionData struct {
		FromAddress    string  `json:"fromAddress"`
		BlockNumber    int64   `json:"blockNumber"`
		GasUsed        string  `json:"gasUsed"`
		TransactionFee wireFee `json:"transactionFee"`
	} `json:"rawTransactionData"`
	USDValue float64 `json:"usdValue"`
}

func (c *HTTPClient) Decode(ctx context.Context, hash string) (*model.Classification, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/evm/%s/tx/%s", c.base, c.chain, hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apiKey", c.key)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// provider has no data for this hash; not an error
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("classify %s status=%d", hash, resp.StatusCode)
	case resp.StatusCode >= 400:
		// bad key, malformed hash: retrying only burns quota
		return nil, retry.Permanent(fmt.Errorf("classify %s status=%d", hash, resp.StatusCode))
	}

	var w wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, fmt.Errorf("classify %s decode: %w", hash, err)
	}
	return toClassification(w), nil
}

func toClassification(w wireResponse) *model.Classification {
	c := &model.Classification{
		Type:        w.ClassificationData.Type,
		Description: w.ClassificationData.Description,
		Sender:      w.RawTransactionData.FromAddress,
		USDValue:    w.USDValue,
		Protocol:    w.ClassificationData.Protocol.Name,
		GasUsed:     w.RawTransactionData.GasUsed,
		FeeAmount:   w.RawTransactionData.TransactionFee.Amount,
		FeeSymbol:   w.RawTransactionData.TransactionFee.Token.Symbol,
		BlockNumber: w.RawTransactionData.BlockNumber,
	}
	for _, t := range w.ClassificationData.Sent {
		c.Sent = append(c.Sent, model.TokenTransfer{
			Symbol:  t.Token.Symbol,
			Address: t.Token.Address,
			Amount:  t.Amount,
		})
	}
	for _, t := range w.ClassificationData.Received {
		c.Received = append(c.Received, model.TokenTransfer{
			Symbol:  t.Token.Symbol,
			Address: t.Token.Address,
			Amount:  t.Amount,
		})
	}
	return c
}
