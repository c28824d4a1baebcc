package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

const cpuAPIVersion = "2.1.2"

// CPU status codes, shared by the registration answer and callbacks.
const (
	cpuStatusCanceled       = 0
	cpuStatusSuccess        = 1
	cpuStatusPending        = 2
	cpuStatusIDExists       = 97
	cpuStatusError          = 98
	cpuStatusInvalidRequest = 99
)

type cpuGateway struct {
	baseGateway
}

type cpuProduct struct {
	Code        string `json:"Code"`
	Amount      int    `json:"Amount"`
	Price       int64  `json:"Price"`
	Description string `json:"Description"`
	Taxcode     string `json:"Taxcode"`
}

type cpuPayment struct {
	APIVersion          string       `json:"ApiVersion"`
	Source              string       `json:"Source"`
	ID                  string       `json:"Id"`
	Mode                int          `json:"Mode"`
	Action              string       `json:"Action"`
	Description         string       `json:"Description"`
	Products            []cpuProduct `json:"Products"`
	Email               string       `json:"Email"`
	FirstName           string       `json:"FirstName"`
	LastName            string       `json:"LastName"`
	Language            string       `json:"Language"`
	ReturnAddress       string       `json:"ReturnAddress"`
	NotificationAddress string       `json:"NotificationAddress"`
	Hash                string       `json:"Hash"`
}

type cpuResponse struct {
	ID             string `json:"Id"`
	Status         int    `json:"Status"`
	Reference      string `json:"Reference"`
	PaymentAddress string `json:"PaymentAddress"`
	Hash           string `json:"Hash"`
}

func (c *cpuGateway) Name() string { return HandlerCPU }

func (c *cpuGateway) Limits() Limits {
	return Limits{
		DescriptionMax:   100,
		ProductCodeMax:   25,
		DefaultLanguages: "fi=fi_FI:sv=sv_SE:en=en_US",
	}
}

func (c *cpuGateway) BuildRequest(ctx context.Context, req *GatewayRequest) (*Redirect, error) {
	p := cpuPayment{
		APIVersion:          cpuAPIVersion,
		Source:              c.merchantID,
		ID:                  req.TransactionID,
		Mode:                3,
		Action:              "new",
		Description:         req.Description,
		Email:               req.Customer.Email,
		FirstName:           req.Customer.Firstname,
		LastName:            req.Customer.Lastname,
		Language:            req.Language,
		ReturnAddress:       req.ReturnURL,
		NotificationAddress: req.NotifyURL,
	}
	for _, item := range req.Items {
		p.Products = append(p.Products, cpuProduct{
			Code:        item.ProductCode,
			Amount:      item.Quantity,
			Price:       item.UnitPrice,
			Description: item.Description,
			Taxcode:     "0",
		})
	}
	p.Hash = c.paymentHash(&p)

	body, err := json.Marshal(p)
	if err != nil {
		return nil, &GatewayError{Gateway: c.Name(), Err: err}
	}

	_, respBody, err := c.send(ctx, c.Name(), c.url, nil, body)
	if err != nil {
		return nil, err
	}

	var res cpuResponse
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, &GatewayError{Gateway: c.Name(), Err: fmt.Errorf("%w: %v", ErrGatewayMalformedAnswer, err)}
	}

	if res.Hash != "" && !signatureMatches(c.responseHash(res.ID, strconv.Itoa(res.Status), res.Reference), res.Hash) {
		return nil, &GatewayError{Gateway: c.Name(), Err: ErrSignatureMismatch}
	}

	switch res.Status {
	case cpuStatusPending:
		if res.PaymentAddress == "" {
			return nil, &GatewayError{Gateway: c.Name(), Err: fmt.Errorf("%w: PaymentAddress", ErrGatewayMalformedAnswer)}
		}
		return &Redirect{URL: res.PaymentAddress}, nil
	case cpuStatusSuccess:
		return nil, &GatewayError{Gateway: c.Name(), Err: ErrAlreadyProcessed}
	case cpuStatusCanceled:
		return nil, &GatewayError{Gateway: c.Name(), Err: ErrGatewayCanceled}
	case cpuStatusIDExists:
		return nil, &GatewayError{Gateway: c.Name(), Err: ErrDuplicateOrder}
	case cpuStatusError:
		return nil, &GatewayError{Gateway: c.Name(), Err: ErrGatewaySystemError}
	case cpuStatusInvalidRequest:
		return nil, &GatewayError{Gateway: c.Name(), Err: ErrGatewayInvalidRequest}
	default:
		return nil, &GatewayError{Gateway: c.Name(), Err: fmt.Errorf("%w: %d", ErrUnrecognizedStatus, res.Status)}
	}
}

// paymentHash signs the request fields in wire order, '&'-separated, with
// the secret last.
func (c *cpuGateway) paymentHash(p *cpuPayment) string {
	parts := []string{
		p.APIVersion, p.Source, p.ID, strconv.Itoa(p.Mode), p.Action, p.Description,
	}
	for _, prod := range p.Products {
		parts = append(parts,
			prod.Code, strconv.Itoa(prod.Amount), strconv.FormatInt(prod.Price, 10),
			prod.Description, prod.Taxcode,
		)
	}
	parts = append(parts,
		p.Email, p.FirstName, p.LastName, p.Language,
		p.ReturnAddress, p.NotificationAddress, c.secret,
	)
	return sha256Hex(strings.Join(parts, "&"))
}

func (c *cpuGateway) responseHash(id, status, reference string) string {
	return sha256Hex(strings.Join([]string{id, status, reference, c.secret}, "&"))
}

func (c *cpuGateway) ParseResponse(r *http.Request) (*GatewayResponse, error) {
	params, err := c.callbackParams(r)
	if err != nil {
		return nil, &CallbackError{Gateway: c.Name(), Err: ErrMissingCallbackParam, Detail: err.Error()}
	}

	if err := requireParams(c.Name(), params, "Id", "Status", "Reference", "Hash"); err != nil {
		return nil, err
	}

	expected := c.responseHash(params["Id"], params["Status"], params["Reference"])
	if !signatureMatches(expected, params["Hash"]) {
		return nil, &CallbackError{Gateway: c.Name(), Err: ErrSignatureMismatch}
	}

	return &GatewayResponse{
		TransactionID: params["Id"],
		RawStatus:     params["Status"],
		Status:        cpuStatus(params["Status"]),
		Reference:     params["Reference"],
	}, nil
}

// callbackParams accepts either a JSON body or query/form values.
func (c *cpuGateway) callbackParams(r *http.Request) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if r.Method == http.MethodPost && mediaType == "application/json" {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if len(body) > 0 {
			return jsonParams(body)
		}
	}
	return formParams(r)
}

func cpuStatus(raw string) GatewayStatus {
	code, err := strconv.Atoi(raw)
	if err != nil {
		return GatewayStatusUnknown
	}
	switch code {
	case cpuStatusSuccess:
		return GatewayStatusPaid
	case cpuStatusCanceled:
		return GatewayStatusCanceled
	case cpuStatusPending:
		return GatewayStatusPending
	default:
		return GatewayStatusUnknown
	}
}
