package http

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/vaulterr"
)

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Silent    bool   `json:"silent,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Hash      string `json:"hash,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Required  *amount `json:"required,omitempty"`
	Available *amount `json:"available,omitempty"`
	Shortfall *amount `json:"shortfall,omitempty"`
}

type amount struct {
	Octas   uint64 `json:"octas"`
	Display string `json:"display"`
}

func newAmount(octas uint64) *amount {
	return &amount{Octas: octas, Display: codec.FormatAmount(octas)}
}

var statusByKind = map[vaulterr.Kind]int{
	vaulterr.KindInvalidArgument:     http.StatusBadRequest,
	vaulterr.KindListingUnavailable:  http.StatusNotFound,
	vaulterr.KindInsufficientFunds:   http.StatusPaymentRequired,
	vaulterr.KindUserCancelled:       http.StatusConflict,
	vaulterr.KindNotTransferable:     http.StatusConflict,
	vaulterr.KindSignerUnavailable:   http.StatusPreconditionRequired,
	vaulterr.KindRegistryUnavailable: http.StatusServiceUnavailable,
	vaulterr.KindTransactionFailed:   http.StatusBadGateway,
	vaulterr.KindDecode:              http.StatusBadGateway,
}

func statusFor(err error) int {
	if s, ok := statusByKind[vaulterr.KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError renders a taxonomy error. Unknown errors keep their detail out
// of the response.
func writeError(c *gin.Context, err error) {
	kind := vaulterr.KindOf(err)
	res := errorResponse{
		Code:      kind.String(),
		Message:   vaulterr.UserMessage(err),
		Retryable: vaulterr.Retryable(err),
		Silent:    vaulterr.Silent(err),
		RequestID: c.GetString(ctxKeyRequestID),
	}
	if kind != vaulterr.KindUnknown {
		res.Detail = err.Error()
	} else {
		log.Error("unclassified api error", "path", c.FullPath(), "request_id", res.RequestID, "error", err)
	}

	var tf *vaulterr.TransactionFailed
	if errors.As(err, &tf) {
		res.Hash = tf.Hash
	}
	var fi *vaulterr.InsufficientFunds
	if errors.As(err, &fi) && fi.Known() {
		res.Required = newAmount(fi.Required)
		res.Available = newAmount(fi.Available)
		res.Shortfall = newAmount(fi.Shortfall)
	}

	c.AbortWithStatusJSON(statusFor(err), res)
}

func writeBindError(c *gin.Context, err error) {
	writeError(c, vaulterr.InvalidArg("body", HTTPErrorInvalidJSONText+": "+err.Error()))
}
