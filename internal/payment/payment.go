package payment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"finna-payment/internal/config"
	"finna-payment/internal/logger"

	"go.uber.org/zap"
)

const (
	HandlerCPU        = "cpu"
	HandlerPaytrailE2 = "paytrail_e2"
	HandlerPaytrail   = "paytrail"
	HandlerTurku      = "turku"
	HandlerTurkuAPI   = "turku_api"
)

// Gateway encapsulates one payment provider's wire contract.
type Gateway interface {
	Name() string
	Limits() Limits
	// BuildRequest registers the payment with the provider, or prepares the
	// form the patron posts to it.
	BuildRequest(ctx context.Context, req *GatewayRequest) (*Redirect, error)
	// ParseResponse extracts and authenticates a callback.
	ParseResponse(r *http.Request) (*GatewayResponse, error)
}

// Limits are the provider's field constraints.
type Limits struct {
	DescriptionMax int
	ProductCodeMax int
	Latin1Only     bool
	// DefaultLanguages is used when the source has no supportedLanguages.
	DefaultLanguages string
}

// NewGateway builds the adapter named by cfg.Handler.
func NewGateway(source string, cfg config.Gateway, client *http.Client) (Gateway, error) {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	required := []struct{ key, value string }{
		{"merchantId", cfg.MerchantID},
		{"secret", cfg.Secret},
		{"url", cfg.URL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, &ConfigError{Source: source, Key: r.key}
		}
	}

	base := baseGateway{
		source:     source,
		merchantID: cfg.MerchantID,
		secret:     cfg.Secret,
		url:        strings.TrimRight(cfg.URL, "/"),
		httpClient: client,
		now:        time.Now,
	}

	switch cfg.Handler {
	case HandlerCPU:
		return &cpuGateway{baseGateway: base}, nil
	case HandlerPaytrailE2:
		return &paytrailE2Gateway{baseGateway: base}, nil
	case HandlerPaytrail:
		return &paytrailGateway{baseGateway: base}, nil
	case HandlerTurku:
		return &turkuGateway{baseGateway: base}, nil
	case HandlerTurkuAPI:
		return &turkuAPIGateway{baseGateway: base}, nil
	default:
		return nil, &ConfigError{Source: source, Key: "handler"}
	}
}

type baseGateway struct {
	source     string
	merchantID string
	secret     string
	url        string
	httpClient *http.Client
	now        func() time.Time
}

// send performs one outbound call. Transport failures and non-2xx answers
// come back as *GatewayError; there is no retry.
func (b *baseGateway) send(ctx context.Context, gateway, endpoint string, header http.Header, body []byte) (*http.Response, []byte, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", gateway),
		zap.String("source", b.source),
		zap.String("endpoint", endpoint),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		log.Error("Failed creating request", zap.Error(err))
		return nil, nil, &GatewayError{Gateway: gateway, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	log.Info("Sending payment request")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		log.Error("Gateway request failed", zap.Error(err))
		return nil, nil, &GatewayError{Gateway: gateway, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return nil, nil, &GatewayError{Gateway: gateway, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error("Gateway returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", respBody),
		)
		return nil, nil, &GatewayError{
			Gateway:    gateway,
			HTTPStatus: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(respBody))),
		}
	}

	return resp, respBody, nil
}

// formParams merges query string and form body.
func formParams(r *http.Request) (map[string]string, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(r.Form))
	for k := range r.Form {
		out[k] = r.Form.Get(k)
	}
	return out, nil
}

func requireParams(gateway string, params map[string]string, names ...string) error {
	for _, name := range names {
		if _, ok := params[name]; !ok {
			return missingParam(gateway, name)
		}
	}
	return nil
}
