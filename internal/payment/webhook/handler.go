package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"finna-payment/internal/logger"
	"finna-payment/internal/payment"
	"finna-payment/internal/utils"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Registry resolves the payment handler of a library source.
type Registry interface {
	Handler(source string) (*payment.Handler, error)
}

// Handler exposes payment start, gateway callbacks and status lookup over HTTP.
type Handler struct {
	registry      Registry
	publicBaseURL string
	statusParam   string
}

func NewHandler(registry Registry, publicBaseURL, statusParam string) *Handler {
	if statusParam == "" {
		statusParam = payment.DefaultStatusParam
	}
	return &Handler{
		registry:      registry,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		statusParam:   statusParam,
	}
}

// Register mounts the routes. Patron facing API routes go through auth;
// gateway callbacks are authenticated by their signatures instead.
func (h *Handler) Register(r *mux.Router, auth func(http.Handler) http.Handler) {
	api := r.PathPrefix("/api/v1/payments").Subrouter()
	api.Use(mux.MiddlewareFunc(auth))
	api.HandleFunc("/{source}", h.StartPayment).Methods(http.MethodPost)
	api.HandleFunc("/{source}/transactions/{id}", h.TransactionStatus).Methods(http.MethodGet)

	r.HandleFunc("/payment/{source}/return", h.Return).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/payment/{source}/notify", h.Notify).Methods(http.MethodGet, http.MethodPost)
}

// startPaymentRequest is the optional body of a payment start. What is paid
// and where the patron returns come from the signed token only.
type startPaymentRequest struct {
	Currency string `json:"currency,omitempty"`
}

type transactionResponse struct {
	TransactionID  string     `json:"transaction_id"`
	Source         string     `json:"source"`
	Status         string     `json:"status"`
	Amount         int64      `json:"amount"`
	TransactionFee int64      `json:"transaction_fee"`
	Currency       string     `json:"currency"`
	CreatedAt      time.Time  `json:"created_at"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

type callbackResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx)
	source := mux.Vars(r)["source"]

	id, ok := utils.IdentityFromContext(ctx)
	if !ok {
		utils.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ph, err := h.registry.Handler(source)
	if err != nil {
		utils.WriteJSONError(w, "online payment is not available", http.StatusNotFound)
		return
	}

	var body startPaymentRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		log.Warn("Invalid payment request body", zap.Error(err))
		utils.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(id.Fines) == 0 {
		utils.WriteJSONError(w, "no fines to pay", http.StatusBadRequest)
		return
	}

	var amount int64
	for _, f := range id.Fines {
		if f.Balance < 0 || f.Balance > math.MaxInt64-amount {
			utils.WriteJSONError(w, payment.ErrInvalidAmount.Error(), http.StatusBadRequest)
			return
		}
		amount += f.Balance
	}

	returnURL := id.ReturnURL
	if returnURL == "" {
		returnURL = h.publicBaseURL + "/payment/" + source + "/return"
	}
	notifyURL := h.publicBaseURL + "/payment/" + source + "/notify"

	redirect, err := ph.StartPayment(ctx, payment.StartRequest{
		ReturnBaseURL: returnURL,
		NotifyBaseURL: notifyURL,
		User: payment.User{
			ID:       id.UserID,
			Email:    id.Email,
			Language: id.Language,
		},
		Patron: payment.Patron{
			CatUsername: id.CatUsername,
			Name:        id.Name,
			Email:       id.Email,
		},
		SourceID:       source,
		Amount:         amount,
		TransactionFee: ph.TransactionFee(),
		Fines:          id.Fines,
		Currency:       body.Currency,
		StatusParam:    h.statusParam,
	})
	if err != nil {
		writeStartError(w, err)
		return
	}

	if redirect.IsForm() {
		if err := renderForm(w, redirect); err != nil {
			log.Error("Failed to render payment form", zap.Error(err))
		}
		return
	}
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

func writeStartError(w http.ResponseWriter, err error) {
	var gwErr *payment.GatewayError
	switch {
	case errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrBelowMinimumFee),
		errors.Is(err, payment.ErrUnsupportedCurrency),
		errors.Is(err, payment.ErrMissingCatUsername):
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &gwErr):
		utils.WriteJSONError(w, "payment gateway unavailable", http.StatusBadGateway)
	default:
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
	}
}

// Return handles the patron's browser coming back from the gateway.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	res, txID, code := h.process(r)
	if code != 0 {
		utils.WriteJSONError(w, http.StatusText(code), code)
		return
	}

	status := http.StatusOK
	if res.Code == payment.PaymentFailure {
		status = http.StatusBadRequest
	}
	utils.WriteJSON(w, callbackResponse{TransactionID: txID, Status: string(res.Code)}, status)
}

// Notify handles the gateway's server-to-server notification. Gateways
// retry until they see a 2xx answer.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	res, _, code := h.process(r)
	if code == 0 && res.Code == payment.PaymentFailure {
		code = http.StatusBadRequest
	}
	if code != 0 {
		http.Error(w, "FAIL", code)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// process runs a callback through the source's handler. A non-zero status
// code means the callback could not be matched to a transaction.
func (h *Handler) process(r *http.Request) (payment.Result, string, int) {
	ctx := r.Context()
	source := mux.Vars(r)["source"]
	log := logger.FromCtx(ctx).With(zap.String("source", source), zap.String("path", r.URL.Path))

	ph, err := h.registry.Handler(source)
	if err != nil {
		log.Warn("Callback for unknown source")
		return payment.Result{}, "", http.StatusNotFound
	}

	txID := r.URL.Query().Get(h.statusParam)
	if txID == "" {
		log.Warn("Callback without transaction id", zap.String("param", h.statusParam))
		return payment.Result{}, "", http.StatusBadRequest
	}

	t, err := ph.Transaction(ctx, txID)
	if err != nil {
		if errors.Is(err, payment.ErrTransactionNotFound) {
			log.Warn("Callback for unknown transaction", zap.String("transaction_id", txID))
			return payment.Result{}, txID, http.StatusNotFound
		}
		log.Error("Failed to load transaction", zap.String("transaction_id", txID), zap.Error(err))
		return payment.Result{}, txID, http.StatusInternalServerError
	}

	res, err := ph.ProcessPaymentResponse(ctx, t, r)
	if err != nil {
		return res, txID, http.StatusInternalServerError
	}
	return res, txID, 0
}

// TransactionStatus lets a patron poll one of their own transactions.
func (h *Handler) TransactionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	id, ok := utils.IdentityFromContext(ctx)
	if !ok {
		utils.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ph, err := h.registry.Handler(vars["source"])
	if err != nil {
		utils.WriteJSONError(w, "online payment is not available", http.StatusNotFound)
		return
	}

	t, err := ph.Transaction(ctx, vars["id"])
	if err != nil || t.UserID != id.UserID {
		if err != nil && !errors.Is(err, payment.ErrTransactionNotFound) {
			logger.FromCtx(ctx).Error("Failed to load transaction", zap.Error(err))
			utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
			return
		}
		utils.WriteJSONError(w, "transaction not found", http.StatusNotFound)
		return
	}

	utils.WriteJSON(w, transactionResponse{
		TransactionID:  t.TransactionID,
		Source:         t.SourceID,
		Status:         string(t.Status),
		Amount:         t.Amount,
		TransactionFee: t.TransactionFee,
		Currency:       t.Currency,
		CreatedAt:      t.CreatedAt,
		PaidAt:         t.PaidAt,
	}, http.StatusOK)
}
