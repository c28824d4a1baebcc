package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

const (
	headerTurkuSP = "X-TURKU-SP"
	headerTurkuTS = "X-TURKU-TS"
)

// turkuHeaders signs body for the City of Turku payment proxy.
func turkuHeaders(merchantID, secret string, now time.Time, body []byte) http.Header {
	ts := now.UTC().Format(time.RFC3339)
	h := make(http.Header)
	h.Set(headerTurkuSP, merchantID)
	h.Set(headerTurkuTS, ts)
	h.Set("Authorization", turkuSignature(secret, merchantID, ts, string(body)))
	return h
}

type turkuProduct struct {
	Title    string `json:"title"`
	Code     string `json:"code"`
	Amount   int    `json:"amount"`
	Price    string `json:"price"`
	VAT      string `json:"vat"`
	Discount string `json:"discount"`
	Type     string `json:"type"`
}

type turkuContact struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type turkuPayment struct {
	OrderNumber string `json:"orderNumber"`
	Currency    string `json:"currency"`
	Locale      string `json:"locale"`
	URLSet      struct {
		Success      string `json:"success"`
		Failure      string `json:"failure"`
		Pending      string `json:"pending"`
		Notification string `json:"notification"`
	} `json:"urlSet"`
	OrderDetails struct {
		IncludeVat string         `json:"includeVat"`
		Contact    turkuContact   `json:"contact"`
		Products   []turkuProduct `json:"products"`
	} `json:"orderDetails"`
}

// turkuGateway posts an E2 style order to the Turku proxy, which answers
// with the payment page address. Callbacks use the E2 format.
type turkuGateway struct {
	baseGateway
}

func (t *turkuGateway) Name() string { return HandlerTurku }

func (t *turkuGateway) Limits() Limits {
	return Limits{
		DescriptionMax:   100,
		ProductCodeMax:   25,
		DefaultLanguages: "fi=fi_FI:sv=sv_SE:en=en_US",
	}
}

func (t *turkuGateway) BuildRequest(ctx context.Context, req *GatewayRequest) (*Redirect, error) {
	var p turkuPayment
	p.OrderNumber = req.TransactionID
	p.Currency = req.Currency
	p.Locale = req.Language
	p.URLSet.Success = req.ReturnURL
	p.URLSet.Failure = req.ReturnURL
	p.URLSet.Pending = req.ReturnURL
	p.URLSet.Notification = req.NotifyURL
	p.OrderDetails.IncludeVat = "1"
	p.OrderDetails.Contact = turkuContact{
		FirstName: req.Customer.Firstname,
		LastName:  req.Customer.Lastname,
		Email:     req.Customer.Email,
	}
	for _, item := range req.Items {
		p.OrderDetails.Products = append(p.OrderDetails.Products, turkuProduct{
			Title:    item.Description,
			Code:     item.ProductCode,
			Amount:   item.Quantity,
			Price:    minorToDecimal(item.UnitPrice),
			VAT:      "0.00",
			Discount: "0.00",
			Type:     "1",
		})
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, &GatewayError{Gateway: t.Name(), Err: err}
	}

	_, respBody, err := t.send(ctx, t.Name(), t.url, turkuHeaders(t.merchantID, t.secret, t.now(), body), body)
	if err != nil {
		return nil, err
	}

	var res struct {
		URL   string `json:"url"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, &GatewayError{Gateway: t.Name(), Err: fmt.Errorf("%w: %v", ErrGatewayMalformedAnswer, err)}
	}
	if res.URL == "" {
		return nil, &GatewayError{Gateway: t.Name(), Err: fmt.Errorf("%w: url", ErrGatewayMalformedAnswer)}
	}
	return &Redirect{URL: res.URL}, nil
}

func (t *turkuGateway) ParseResponse(r *http.Request) (*GatewayResponse, error) {
	return parseE2Callback(t.Name(), t.secret, r)
}

// turkuAPIGateway fronts the Paytrail Payment API through the Turku proxy.
// Requests and callbacks are authenticated with the X-TURKU-* headers.
type turkuAPIGateway struct {
	baseGateway
}

func (t *turkuAPIGateway) Name() string { return HandlerTurkuAPI }

func (t *turkuAPIGateway) Limits() Limits {
	return Limits{
		DescriptionMax:   1000,
		ProductCodeMax:   100,
		DefaultLanguages: "fi=FI:sv=SV:en=EN",
	}
}

func (t *turkuAPIGateway) BuildRequest(ctx context.Context, req *GatewayRequest) (*Redirect, error) {
	body, err := json.Marshal(newPaytrailPayment(req))
	if err != nil {
		return nil, &GatewayError{Gateway: t.Name(), Err: err}
	}

	_, respBody, err := t.send(ctx, t.Name(), t.url+"/payments", turkuHeaders(t.merchantID, t.secret, t.now(), body), body)
	if err != nil {
		return nil, err
	}

	var res paytrailPaymentResponse
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, &GatewayError{Gateway: t.Name(), Err: fmt.Errorf("%w: %v", ErrGatewayMalformedAnswer, err)}
	}
	return res.redirect(t.Name())
}

func (t *turkuAPIGateway) ParseResponse(r *http.Request) (*GatewayResponse, error) {
	sp := r.Header.Get(headerTurkuSP)
	ts := r.Header.Get(headerTurkuTS)
	auth := r.Header.Get("Authorization")
	switch {
	case sp == "":
		return nil, missingParam(t.Name(), headerTurkuSP)
	case ts == "":
		return nil, missingParam(t.Name(), headerTurkuTS)
	case auth == "":
		return nil, missingParam(t.Name(), "Authorization")
	}

	var (
		params  map[string]string
		payload string
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if r.Method == http.MethodPost && mediaType == "application/json" {
		raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			return nil, &CallbackError{Gateway: t.Name(), Err: ErrMissingCallbackParam, Detail: err.Error()}
		}
		if params, err = jsonParams(raw); err != nil {
			return nil, &CallbackError{Gateway: t.Name(), Err: ErrMissingCallbackParam, Detail: "body: " + err.Error()}
		}
		payload = string(raw)
	} else {
		params = queryParams(r.URL.Query())
		payload = checkoutLines(params)
	}

	if err := requireParams(t.Name(), params, "checkout-reference", "checkout-stamp", "checkout-status"); err != nil {
		return nil, err
	}

	if !signatureMatches(turkuSignature(t.secret, sp, ts, payload), auth) {
		return nil, &CallbackError{Gateway: t.Name(), Err: ErrSignatureMismatch}
	}
	if !strings.EqualFold(sp, t.merchantID) {
		return nil, &CallbackError{Gateway: t.Name(), Err: ErrSignatureMismatch, Detail: "service provider " + sp}
	}

	return &GatewayResponse{
		TransactionID: params["checkout-stamp"],
		RawStatus:     params["checkout-status"],
		Status:        paytrailStatus(params["checkout-status"]),
		Reference:     params["checkout-reference"],
		PaymentID:     params["checkout-transaction-id"],
	}, nil
}
