package ledger

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/quantumauth-io/quantum-go-utils/retry"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
)

var errStillPending = errors.New("ledger: transaction pending")

// WaitForTransaction polls the node until the transaction leaves the pending
// state. Not-found and pending responses keep polling; any other API error
// ends the wait immediately.
func (c *Client) WaitForTransaction(ctx context.Context, hash string) (_ *Receipt, err error) {
	ctx, span := c.startSpan(ctx, "ledger.WaitForTransaction", attribute.String("ledger.tx_hash", hash))
	defer func() { endSpan(span, err) }()

	if hash == "" {
		return nil, errors.New("ledger: empty transaction hash")
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	cfg := retry.DefaultConfig()
	cfg.InitialDelayBeforeRetrying = c.cfg.PollInterval
	cfg.MaxDelayBeforeRetrying = c.cfg.MaxPollBackoff

	var (
		receipt  *Receipt
		terminal error
		polls    int
	)

	_, retryErr := retry.Retry(waitCtx, cfg,
		func(ctx context.Context) ([]interface{}, error) {
			polls++
			r, pollErr := c.pollTransaction(ctx, hash)
			switch {
			case pollErr == nil:
				receipt = r
				return nil, nil
			case errors.Is(pollErr, errStillPending), errors.Is(pollErr, ErrNotFound):
				return nil, pollErr
			default:
				var apiErr *APIError
				if errors.As(pollErr, &apiErr) && apiErr.Transient() {
					return nil, pollErr
				}
				terminal = pollErr
				return nil, nil
			}
		},
		nil, // always retry
		"wait for transaction "+hash)

	span.SetAttributes(attribute.Int("ledger.polls", polls))

	switch {
	case terminal != nil:
		return nil, terminal
	case receipt != nil:
		if !receipt.Success {
			return receipt, &AbortedError{Hash: receipt.Hash, VMStatus: receipt.VMStatus}
		}
		return receipt, nil
	case ctx.Err() != nil:
		return nil, errors.Wrapf(ctx.Err(), "wait for transaction %s", hash)
	case waitCtx.Err() != nil:
		log.Warn("transaction not confirmed in time", "hash", hash, "timeout", c.cfg.ConfirmTimeout, "polls", polls)
		return nil, errors.Wrapf(ErrConfirmationTimeout, "hash %s", hash)
	case retryErr != nil:
		return nil, errors.Wrapf(retryErr, "wait for transaction %s", hash)
	default:
		return nil, errors.Wrapf(ErrConfirmationTimeout, "hash %s", hash)
	}
}

func (c *Client) pollTransaction(ctx context.Context, hash string) (*Receipt, error) {
	body, err := c.do(ctx, http.MethodGet, "/transactions/by_hash/"+url.PathEscape(hash), nil)
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	if res.Get("type").String() == "pending_transaction" {
		return nil, errStillPending
	}

	return &Receipt{
		Hash:     res.Get("hash").String(),
		Version:  res.Get("version").Uint(),
		Success:  res.Get("success").Bool(),
		VMStatus: res.Get("vm_status").String(),
		GasUsed:  res.Get("gas_used").Uint(),
	}, nil
}
