package payment

import (
	"time"

	"finna-payment/internal/utils"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusCanceled Status = "canceled"
)

type Transaction struct {
	ID             int64
	TransactionID  string
	SourceID       string
	Gateway        string
	UserID         int64
	CatUsername    string
	Amount         int64
	TransactionFee int64
	Currency       string
	Status         Status
	CreatedAt      time.Time
	PaidAt         *time.Time
}

// Total is the amount charged from the patron, transaction fee included.
func (t *Transaction) Total() int64 {
	return t.Amount + t.TransactionFee
}

type FeeLine struct {
	Type         string
	Description  string
	Title        string
	Organization string
	Amount       int64
}

type User struct {
	ID        int64  `json:"id"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
	Email     string `json:"email,omitempty"`
	Language  string `json:"language,omitempty"`
}

type Patron struct {
	CatUsername string `json:"cat_username"`
	Name        string `json:"name,omitempty"`
	Firstname   string `json:"firstname,omitempty"`
	Lastname    string `json:"lastname,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Fine is one outstanding charge as reported by the library system.
type Fine = utils.Fine

type Customer struct {
	Firstname string
	Lastname  string
	Email     string
}

type LineItem struct {
	ProductCode string
	Description string
	Quantity    int
	UnitPrice   int64
	Merchant    string
}

// GatewayRequest is everything an adapter needs to register a payment.
type GatewayRequest struct {
	TransactionID string
	SourceID      string
	Amount        int64
	Currency      string
	Language      string
	Description   string
	Customer      Customer
	Items         []LineItem
	ReturnURL     string
	NotifyURL     string
}

// Total sums the line items.
func (r *GatewayRequest) Total() int64 {
	var total int64
	for _, item := range r.Items {
		total += int64(item.Quantity) * item.UnitPrice
	}
	return total
}

// Redirect tells the HTTP layer how to send the patron to the gateway.
// Exactly one of URL or FormAction is set.
type Redirect struct {
	URL        string
	FormAction string
	FormFields []FormField
}

type FormField struct {
	Name  string
	Value string
}

func (r *Redirect) IsForm() bool {
	return r.FormAction != ""
}

// GatewayStatus is the gateway's status vocabulary folded into the outcomes
// this service understands.
type GatewayStatus int

const (
	GatewayStatusUnknown GatewayStatus = iota
	GatewayStatusPaid
	GatewayStatusCanceled
	GatewayStatusPending
)

func (s GatewayStatus) String() string {
	switch s {
	case GatewayStatusPaid:
		return "paid"
	case GatewayStatusCanceled:
		return "canceled"
	case GatewayStatusPending:
		return "pending"
	default:
		return "unknown"
	}
}

// GatewayResponse is a verified callback. It is never persisted.
type GatewayResponse struct {
	TransactionID string
	RawStatus     string
	Status        GatewayStatus
	Reference     string
	PaymentID     string
}

type ResultCode string

const (
	PaymentSuccess ResultCode = "success"
	PaymentCancel  ResultCode = "cancel"
	PaymentPending ResultCode = "pending"
	PaymentFailure ResultCode = "failure"
)

type Result struct {
	Code ResultCode
	// Transitioned reports whether this call moved the transaction to its
	// new status, as opposed to finding it already there.
	Transitioned bool
}
