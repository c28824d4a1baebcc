package payment

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount          = errors.New("invalid payment amount")
	ErrBelowMinimumFee        = errors.New("payment amount below minimum fee")
	ErrUnsupportedCurrency    = errors.New("currency not supported by gateway")
	ErrMissingCatUsername     = errors.New("patron has no catalog username")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrUnknownSource          = errors.New("no payment handler configured for source")
	ErrTransactionIDMismatch  = errors.New("callback transaction id does not match")
	ErrSignatureMismatch      = errors.New("callback signature mismatch")
	ErrUnrecognizedStatus     = errors.New("unrecognized gateway status")
	ErrMissingCallbackParam   = errors.New("missing callback parameter")
	ErrDuplicateOrder         = errors.New("gateway reports duplicate order")
	ErrAlreadyProcessed       = errors.New("gateway reports payment already processed")
	ErrGatewayCanceled        = errors.New("gateway reports payment canceled")
	ErrGatewaySystemError     = errors.New("gateway system error")
	ErrGatewayInvalidRequest  = errors.New("gateway rejected request as invalid")
	ErrGatewayMalformedAnswer = errors.New("gateway response is missing expected fields")
)

// ConfigError means a source is missing a setting its gateway cannot work
// without. It is raised when the gateway is constructed.
type ConfigError struct {
	Source string
	Key    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("payment source %q: missing required setting %q", e.Source, e.Key)
}

// GatewayError wraps anything that went wrong while registering a payment
// with the gateway: transport failures, non-success HTTP answers and
// recognized failure statuses.
type GatewayError struct {
	Gateway    string
	HTTPStatus int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: gateway answered %d: %v", e.Gateway, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Gateway, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// CallbackError describes why a gateway callback was rejected.
type CallbackError struct {
	Gateway string
	Err     error
	Detail  string
}

func (e *CallbackError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s callback: %v: %s", e.Gateway, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s callback: %v", e.Gateway, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

func missingParam(gateway, name string) error {
	return &CallbackError{Gateway: gateway, Err: ErrMissingCallbackParam, Detail: name}
}
