package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/constants"
)

const tracerName = "github.com/quantumauth-io/gamevault-client/internal/ledger"

// Config configures the REST client.
type Config struct {
	NodeURL        string
	RequestTimeout time.Duration

	// ConfirmTimeout bounds WaitForTransaction when the caller's context
	// has no earlier deadline.
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	MaxPollBackoff time.Duration

	HTTPClient *http.Client
	Tracer     trace.Tracer
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 60 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxPollBackoff < c.PollInterval {
		c.MaxPollBackoff = 4 * c.PollInterval
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.RequestTimeout}
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(tracerName)
	}
	return c
}

// Client talks to a ledger node's REST API. It implements Gateway and also
// exposes the submission endpoints the signer needs.
type Client struct {
	cfg     Config
	baseURL *url.URL
}

var _ Gateway = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.NodeURL)
	if raw == "" {
		return nil, errors.New("ledger: node url is empty")
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "ledger: parse node url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Newf("ledger: unsupported node url scheme %q", u.Scheme)
	}

	return &Client{cfg: cfg.withDefaults(), baseURL: u}, nil
}

func (c *Client) NodeURL() string { return c.baseURL.String() }

func (c *Client) GetResource(ctx context.Context, address, resourceType string) (_ json.RawMessage, err error) {
	ctx, span := c.startSpan(ctx, "ledger.GetResource",
		attribute.String("ledger.address", address),
		attribute.String("ledger.resource_type", resourceType),
	)
	defer func() { endSpan(span, err) }()

	body, err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(address)+"/resource/"+url.PathEscape(resourceType), nil)
	if err != nil {
		return nil, err
	}

	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return nil, errors.Newf("ledger: resource %s has no data field", resourceType)
	}
	return json.RawMessage(data.Raw), nil
}

func (c *Client) GetTableItem(ctx context.Context, req TableItemRequest) (_ json.RawMessage, err error) {
	ctx, span := c.startSpan(ctx, "ledger.GetTableItem",
		attribute.String("ledger.table_handle", req.Handle),
		attribute.String("ledger.key_type", req.KeyType),
	)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(req.Handle) == "" {
		return nil, errors.New("ledger: table handle is empty")
	}

	body, err := c.do(ctx, http.MethodPost, "/tables/"+url.PathEscape(req.Handle)+"/item", req)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *Client) CallView(ctx context.Context, req ViewRequest) (_ []json.RawMessage, err error) {
	ctx, span := c.startSpan(ctx, "ledger.CallView", attribute.String("ledger.function", req.Function))
	defer func() { endSpan(span, err) }()

	if req.TypeArguments == nil {
		req.TypeArguments = []string{}
	}
	if req.Arguments == nil {
		req.Arguments = []any{}
	}

	body, err := c.do(ctx, http.MethodPost, "/view", req)
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, errors.Newf("ledger: view %s returned non-array result", req.Function)
	}
	out := make([]json.RawMessage, 0, len(res.Array()))
	for _, item := range res.Array() {
		out = append(out, json.RawMessage(item.Raw))
	}
	return out, nil
}

func (c *Client) GetSpendableBalance(ctx context.Context, address string) (uint64, error) {
	results, err := c.CallView(ctx, ViewRequest{
		Function:      constants.CoinBalanceView,
		TypeArguments: []string{constants.NativeCoinType},
		Arguments:     []any{address},
	})
	if err != nil {
		return 0, errors.Wrapf(err, "balance of %s", address)
	}
	if len(results) == 0 {
		return 0, errors.Newf("ledger: empty balance result for %s", address)
	}

	var bal codec.U64
	if err := json.Unmarshal(results[0], &bal); err != nil {
		return 0, errors.Wrapf(err, "decode balance of %s", address)
	}
	return uint64(bal), nil
}

// AccountInfo is the subset of GET /accounts/{address} the signer needs.
type AccountInfo struct {
	SequenceNumber uint64
	AuthKey        string
}

func (c *Client) Account(ctx context.Context, address string) (_ AccountInfo, err error) {
	ctx, span := c.startSpan(ctx, "ledger.Account", attribute.String("ledger.address", address))
	defer func() { endSpan(span, err) }()

	body, err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(address), nil)
	if err != nil {
		return AccountInfo{}, err
	}

	res := gjson.ParseBytes(body)
	return AccountInfo{
		SequenceNumber: res.Get("sequence_number").Uint(),
		AuthKey:        res.Get("authentication_key").String(),
	}, nil
}

// EncodeSubmission asks the node for the signing message of an unsigned
// transaction. The returned bytes are what the account key signs.
func (c *Client) EncodeSubmission(ctx context.Context, unsigned any) (_ []byte, err error) {
	ctx, span := c.startSpan(ctx, "ledger.EncodeSubmission")
	defer func() { endSpan(span, err) }()

	body, err := c.do(ctx, http.MethodPost, "/transactions/encode_submission", unsigned)
	if err != nil {
		return nil, err
	}

	var hexMsg string
	if err := json.Unmarshal(body, &hexMsg); err != nil {
		return nil, errors.Wrap(err, "ledger: decode signing message")
	}
	return codec.FromHex(hexMsg).Bytes()
}

// SubmitTransaction posts a signed transaction and returns its hash.
func (c *Client) SubmitTransaction(ctx context.Context, signed any) (_ PendingTransaction, err error) {
	ctx, span := c.startSpan(ctx, "ledger.SubmitTransaction")
	defer func() { endSpan(span, err) }()

	body, err := c.do(ctx, http.MethodPost, "/transactions", signed)
	if err != nil {
		return PendingTransaction{}, err
	}

	hash := gjson.GetBytes(body, "hash").String()
	if hash == "" {
		return PendingTransaction{}, errors.New("ledger: submission response has no hash")
	}
	span.SetAttributes(attribute.String("ledger.tx_hash", hash))
	return PendingTransaction{Hash: hash}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, errors.Wrapf(err, "ledger: encode %s %s", method, path)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "ledger: build %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "ledger: %s %s", method, path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, errors.Wrapf(err, "ledger: read %s %s", method, path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseAPIError(resp.StatusCode, body)
		if apiErr.Transient() {
			log.Warn("ledger request failed", "method", method, "path", path, "status", resp.StatusCode, "code", apiErr.Code)
		}
		return nil, apiErr
	}
	return body, nil
}

func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.cfg.Tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
