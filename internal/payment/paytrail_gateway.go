package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type paytrailItem struct {
	UnitPrice     int64  `json:"unitPrice"`
	Units         int    `json:"units"`
	VatPercentage int    `json:"vatPercentage"`
	ProductCode   string `json:"productCode"`
	Description   string `json:"description,omitempty"`
	Stamp         string `json:"stamp,omitempty"`
	Reference     string `json:"reference,omitempty"`
	Merchant      string `json:"merchant,omitempty"`
}

type paytrailCustomer struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type paytrailURLs struct {
	Success string `json:"success"`
	Cancel  string `json:"cancel"`
}

type paytrailPayment struct {
	Stamp        string           `json:"stamp"`
	Reference    string           `json:"reference"`
	Amount       int64            `json:"amount"`
	Currency     string           `json:"currency"`
	Language     string           `json:"language"`
	OrderID      string           `json:"orderId,omitempty"`
	Items        []paytrailItem   `json:"items"`
	Customer     paytrailCustomer `json:"customer"`
	RedirectUrls paytrailURLs     `json:"redirectUrls"`
	CallbackUrls paytrailURLs     `json:"callbackUrls"`
}

type paytrailPaymentResponse struct {
	TransactionID string `json:"transactionId"`
	Href          string `json:"href"`
	Reference     string `json:"reference"`
}

// newPaytrailPayment builds the Payment API body shared by Paytrail and the
// Turku proxy. Items of a shop-in-shop sub-merchant carry their own stamp.
func newPaytrailPayment(req *GatewayRequest) paytrailPayment {
	p := paytrailPayment{
		Stamp:     req.TransactionID,
		Reference: req.TransactionID,
		Amount:    req.Total(),
		Currency:  req.Currency,
		Language:  req.Language,
		Customer: paytrailCustomer{
			Email:     req.Customer.Email,
			FirstName: req.Customer.Firstname,
			LastName:  req.Customer.Lastname,
		},
		RedirectUrls: paytrailURLs{Success: req.ReturnURL, Cancel: req.ReturnURL},
		CallbackUrls: paytrailURLs{Success: req.NotifyURL, Cancel: req.NotifyURL},
	}
	for i, item := range req.Items {
		pi := paytrailItem{
			UnitPrice:   item.UnitPrice,
			Units:       item.Quantity,
			ProductCode: item.ProductCode,
			Description: item.Description,
		}
		if item.Merchant != "" {
			pi.Merchant = item.Merchant
			pi.Stamp = req.TransactionID + "-" + strconv.Itoa(i+1)
			pi.Reference = req.TransactionID
		}
		p.Items = append(p.Items, pi)
	}
	return p
}

func (r *paytrailPaymentResponse) redirect(gateway string) (*Redirect, error) {
	if r.Href == "" {
		return nil, &GatewayError{Gateway: gateway, Err: fmt.Errorf("%w: href", ErrGatewayMalformedAnswer)}
	}
	return &Redirect{URL: r.Href}, nil
}

func paytrailStatus(raw string) GatewayStatus {
	switch raw {
	case "ok":
		return GatewayStatusPaid
	case "fail":
		return GatewayStatusCanceled
	case "new", "pending", "delayed":
		return GatewayStatusPending
	default:
		return GatewayStatusUnknown
	}
}

type paytrailGateway struct {
	baseGateway
}

func (p *paytrailGateway) Name() string { return HandlerPaytrail }

func (p *paytrailGateway) Limits() Limits {
	return Limits{
		DescriptionMax:   1000,
		ProductCodeMax:   100,
		DefaultLanguages: "fi=FI:sv=SV:en=EN",
	}
}

func (p *paytrailGateway) BuildRequest(ctx context.Context, req *GatewayRequest) (*Redirect, error) {
	body, err := json.Marshal(newPaytrailPayment(req))
	if err != nil {
		return nil, &GatewayError{Gateway: p.Name(), Err: err}
	}

	headers := map[string]string{
		"checkout-account":   p.merchantID,
		"checkout-algorithm": "sha256",
		"checkout-method":    http.MethodPost,
		"checkout-nonce":     uuid.New().String(),
		"checkout-timestamp": p.now().UTC().Format(time.RFC3339Nano),
	}

	h := make(http.Header)
	for k, v := range headers {
		h.Set(k, v)
	}
	h.Set("signature", paytrailSignature(p.secret, headers, string(body)))

	resp, respBody, err := p.send(ctx, p.Name(), p.url+"/payments", h, body)
	if err != nil {
		return nil, err
	}

	if sig := resp.Header.Get("signature"); sig != "" {
		expected := paytrailSignature(p.secret, checkoutHeaders(resp.Header), string(respBody))
		if !signatureMatches(expected, sig) {
			return nil, &GatewayError{Gateway: p.Name(), Err: ErrSignatureMismatch}
		}
	}

	var res paytrailPaymentResponse
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, &GatewayError{Gateway: p.Name(), Err: fmt.Errorf("%w: %v", ErrGatewayMalformedAnswer, err)}
	}
	return res.redirect(p.Name())
}

func (p *paytrailGateway) ParseResponse(r *http.Request) (*GatewayResponse, error) {
	params := queryParams(r.URL.Query())

	if err := requireParams(p.Name(), params, "checkout-reference", "checkout-stamp", "checkout-status", "signature"); err != nil {
		return nil, err
	}

	expected := paytrailSignature(p.secret, params, "")
	if !signatureMatches(expected, params["signature"]) {
		return nil, &CallbackError{Gateway: p.Name(), Err: ErrSignatureMismatch}
	}

	return &GatewayResponse{
		TransactionID: params["checkout-stamp"],
		RawStatus:     params["checkout-status"],
		Status:        paytrailStatus(params["checkout-status"]),
		Reference:     params["checkout-reference"],
		PaymentID:     params["checkout-transaction-id"],
	}, nil
}
