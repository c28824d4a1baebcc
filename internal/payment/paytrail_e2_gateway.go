package payment

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// e2ParamsOut is the order in which the return authcode is computed.
var e2ParamsOut = []string{"ORDER_NUMBER", "PAYMENT_ID", "TIMESTAMP", "STATUS"}

// paytrailE2Gateway is the legacy Paytrail form interface: the patron's
// browser posts a signed form straight to the provider.
type paytrailE2Gateway struct {
	baseGateway
}

func (p *paytrailE2Gateway) Name() string { return HandlerPaytrailE2 }

func (p *paytrailE2Gateway) Limits() Limits {
	return Limits{
		DescriptionMax:   255,
		ProductCodeMax:   16,
		Latin1Only:       true,
		DefaultLanguages: "fi=fi_FI:sv=sv_SE:en=en_US",
	}
}

func (p *paytrailE2Gateway) BuildRequest(_ context.Context, req *GatewayRequest) (*Redirect, error) {
	fields := []FormField{
		{"MERCHANT_ID", p.merchantID},
		{"URL_SUCCESS", req.ReturnURL},
		{"URL_CANCEL", req.ReturnURL},
		{"URL_NOTIFY", req.NotifyURL},
		{"ORDER_NUMBER", req.TransactionID},
		{"PARAMS_IN", ""},
		{"PARAMS_OUT", strings.Join(e2ParamsOut, ",")},
	}
	for i, item := range req.Items {
		n := strconv.Itoa(i)
		fields = append(fields,
			FormField{"ITEM_TITLE[" + n + "]", item.Description},
			FormField{"ITEM_ID[" + n + "]", item.ProductCode},
			FormField{"ITEM_QUANTITY[" + n + "]", strconv.Itoa(item.Quantity)},
			FormField{"ITEM_UNIT_PRICE[" + n + "]", minorToDecimal(item.UnitPrice)},
			FormField{"ITEM_VAT_PERCENT[" + n + "]", "0.00"},
			FormField{"ITEM_DISCOUNT_PERCENT[" + n + "]", "0"},
			FormField{"ITEM_TYPE[" + n + "]", "1"},
		)
	}
	fields = append(fields,
		FormField{"MSG_UI_MERCHANT_PANEL", req.Description},
		FormField{"LOCALE", req.Language},
		FormField{"CURRENCY", req.Currency},
		FormField{"PAYER_PERSON_EMAIL", req.Customer.Email},
		FormField{"PAYER_PERSON_FIRSTNAME", latin1Safe(req.Customer.Firstname)},
		FormField{"PAYER_PERSON_LASTNAME", latin1Safe(req.Customer.Lastname)},
		FormField{"ALG", "1"},
	)

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	fields[5].Value = strings.Join(names, ",")

	values := make([]string, 0, len(fields)+1)
	values = append(values, p.secret)
	for _, f := range fields {
		values = append(values, f.Value)
	}
	fields = append(fields, FormField{"AUTHCODE", strings.ToUpper(sha256Hex(strings.Join(values, "|")))})

	return &Redirect{FormAction: p.url, FormFields: fields}, nil
}

func (p *paytrailE2Gateway) ParseResponse(r *http.Request) (*GatewayResponse, error) {
	return parseE2Callback(p.Name(), p.secret, r)
}

// parseE2Callback verifies a return or notify request in the E2 format,
// which the Turku form proxy shares.
func parseE2Callback(gateway, secret string, r *http.Request) (*GatewayResponse, error) {
	params, err := formParams(r)
	if err != nil {
		return nil, &CallbackError{Gateway: gateway, Err: ErrMissingCallbackParam, Detail: err.Error()}
	}

	required := append(append([]string{}, e2ParamsOut...), "RETURN_AUTHCODE")
	if err := requireParams(gateway, params, required...); err != nil {
		return nil, err
	}

	values := make([]string, 0, len(e2ParamsOut)+1)
	for _, name := range e2ParamsOut {
		values = append(values, params[name])
	}
	values = append(values, secret)

	expected := strings.ToUpper(sha256Hex(strings.Join(values, "|")))
	if !signatureMatches(expected, params["RETURN_AUTHCODE"]) {
		return nil, &CallbackError{Gateway: gateway, Err: ErrSignatureMismatch}
	}

	return &GatewayResponse{
		TransactionID: params["ORDER_NUMBER"],
		RawStatus:     params["STATUS"],
		Status:        e2Status(params["STATUS"]),
		PaymentID:     params["PAYMENT_ID"],
	}, nil
}

func e2Status(raw string) GatewayStatus {
	switch raw {
	case "PAID":
		return GatewayStatusPaid
	case "CANCELLED":
		return GatewayStatusCanceled
	default:
		return GatewayStatusUnknown
	}
}

// minorToDecimal renders cents as "12.50".
func minorToDecimal(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
