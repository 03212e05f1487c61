package ledger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		NodeURL:        srv.URL + "/",
		PollInterval:   5 * time.Millisecond,
		MaxPollBackoff: 10 * time.Millisecond,
		ConfirmTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)

	_, err = NewClient(Config{NodeURL: "ftp://node"})
	require.Error(t, err)
}

func TestGetResource(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/0xabc/resource/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		if r.URL.Path == "/accounts/0xabc/resource/0xabc::license::GameRegistry" {
			_, _ = io.WriteString(w, `{"type":"0xabc::license::GameRegistry","data":{"games":{"handle":"0x11"},"next_game_id":"3"}}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Resource not found","error_code":"resource_not_found","vm_error_code":null}`)
	})
	c := newTestClient(t, mux)

	data, err := c.GetResource(context.Background(), "0xabc", "0xabc::license::GameRegistry")
	require.NoError(t, err)
	require.JSONEq(t, `{"games":{"handle":"0x11"},"next_game_id":"3"}`, string(data))

	_, err = c.GetResource(context.Background(), "0xabc", "0xabc::other::Thing")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "resource_not_found", apiErr.Code)
	require.False(t, apiErr.Transient())
}

func TestGetTableItem_SendsKeyTypes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tables/0x11/item", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "u64", body["key_type"])
		require.Equal(t, "0xabc::license::GameInfo", body["value_type"])
		require.Equal(t, "7", body["key"])
		_, _ = io.WriteString(w, `{"id":"7","price":"599000000","is_active":true}`)
	}))

	raw, err := c.GetTableItem(context.Background(), TableItemRequest{
		Handle:    "0x11",
		KeyType:   "u64",
		ValueType: "0xabc::license::GameInfo",
		Key:       "7",
	})
	require.NoError(t, err)
	require.Contains(t, string(raw), `"price":"599000000"`)

	_, err = c.GetTableItem(context.Background(), TableItemRequest{})
	require.Error(t, err)
}

func TestCallView_AndBalance(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/view", r.URL.Path)
		var req ViewRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "0x1::coin::balance", req.Function)
		require.Equal(t, []string{"0x1::aptos_coin::AptosCoin"}, req.TypeArguments)
		require.Equal(t, []any{"0xabc"}, req.Arguments)
		_, _ = io.WriteString(w, `["300000000"]`)
	}))

	bal, err := c.GetSpendableBalance(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Equal(t, uint64(300_000_000), bal)
}

func TestCallView_RejectsNonArray(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"oops":true}`)
	}))

	_, err := c.CallView(context.Background(), ViewRequest{Function: "0x1::m::f"})
	require.Error(t, err)
}

func TestWaitForTransaction_PendingThenSuccess(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transactions/by_hash/0xfeed", r.URL.Path)
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"not found","error_code":"transaction_not_found"}`)
		case 2:
			_, _ = io.WriteString(w, `{"type":"pending_transaction","hash":"0xfeed"}`)
		default:
			_, _ = io.WriteString(w, `{"type":"user_transaction","hash":"0xfeed","version":"42","success":true,"vm_status":"Executed successfully","gas_used":"12"}`)
		}
	}))

	receipt, err := c.WaitForTransaction(context.Background(), "0xfeed")
	require.NoError(t, err)
	require.True(t, receipt.Success)
	require.Equal(t, uint64(42), receipt.Version)
	require.Equal(t, uint64(12), receipt.GasUsed)
	require.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWaitForTransaction_Aborted(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"type":"user_transaction","hash":"0xdead","version":"9","success":false,"vm_status":"Move abort in 0x1::coin: EINSUFFICIENT_BALANCE(0x10006)"}`)
	}))

	receipt, err := c.WaitForTransaction(context.Background(), "0xdead")
	require.Error(t, err)
	require.NotNil(t, receipt)

	var aborted *AbortedError
	require.True(t, errors.As(err, &aborted))
	require.Contains(t, aborted.VMStatus, "EINSUFFICIENT_BALANCE")
}

func TestWaitForTransaction_TerminalErrorStopsPolling(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"invalid hash","error_code":"invalid_input"}`)
	}))

	_, err := c.WaitForTransaction(context.Background(), "0xnothex")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}

func TestWaitForTransaction_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"type":"pending_transaction","hash":"0xslow"}`)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		NodeURL:        srv.URL,
		PollInterval:   5 * time.Millisecond,
		MaxPollBackoff: 5 * time.Millisecond,
		ConfirmTimeout: 60 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = c.WaitForTransaction(context.Background(), "0xslow")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrConfirmationTimeout))
}

func TestSubmitFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/0xabc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"sequence_number":"5","authentication_key":"0xabc"}`)
	})
	mux.HandleFunc("/transactions/encode_submission", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		_, _ = io.WriteString(w, `"0x0102ff"`)
	})
	mux.HandleFunc("/transactions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"hash":"0xbeef","type":"pending_transaction"}`)
	})
	c := newTestClient(t, mux)

	acct, err := c.Account(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Equal(t, uint64(5), acct.SequenceNumber)

	msg, err := c.EncodeSubmission(context.Background(), map[string]any{"sender": "0xabc"})
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0xff}, msg)

	pending, err := c.SubmitTransaction(context.Background(), map[string]any{"sender": "0xabc"})
	require.NoError(t, err)
	require.Equal(t, "0xbeef", pending.Hash)
}

func TestAPIError_Transient(t *testing.T) {
	require.True(t, parseAPIError(http.StatusServiceUnavailable, nil).Transient())
	require.True(t, parseAPIError(http.StatusTooManyRequests, []byte("not json")).Transient())
	e := parseAPIError(http.StatusBadRequest, []byte(`{"message":"bad","error_code":"invalid_input","vm_error_code":7}`))
	require.False(t, e.Transient())
	require.Equal(t, uint64(7), e.VMErrorCode)
	require.Contains(t, e.Error(), "invalid_input")
}
