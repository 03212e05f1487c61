package http

import "time"

// Generic HTTP / JSON strings
const (
	HTTPErrorInvalidJSONText = "invalid JSON"
	HTTPErrorForbiddenText   = "forbidden"
	HTTPErrorForbiddenHost   = "forbidden host"
)

// Common JSON keys
const (
	JSONKeyStatus    = "status"
	JSONKeyVersion   = "version"
	JSONKeyRegistry  = "registry"
	JSONKeySigner    = "signer"
	JSONKeyOwned     = "owned"
	JSONKeyCanLaunch = "can_launch"
	JSONKeyBalance   = "balance"
	JSONKeyDisplay   = "display"
	JSONKeyGameIDs   = "game_ids"
	JSONKeyHash      = "hash"
	JSONKeyAccount   = "account"
	JSONKeyGameID    = "game_id"
)

// Route params
const (
	ParamAccount = "account"
	ParamGameID  = "gameId"
)

const (
	RequestIDHeader = "X-Request-ID"
	ctxKeyRequestID = "request_id"

	CORSMaxAge = 10 * time.Minute
)
