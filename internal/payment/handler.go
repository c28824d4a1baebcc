package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finna-payment/internal/config"
	"finna-payment/internal/logger"
	"finna-payment/internal/utils"

	"go.uber.org/zap"
)

const (
	DefaultStatusParam = "finna_payment_id"
	defaultCurrency    = "EUR"
	defaultDescription = "Library fines"
)

// TransactionStore persists transactions. MarkPaid and MarkCanceled are
// conditional updates and report whether the row actually changed, which is
// what makes duplicate callbacks harmless across processes.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, t *Transaction, lines []FeeLine) error
	GetTransaction(ctx context.Context, transactionID string) (*Transaction, error)
	MarkPaid(ctx context.Context, transactionID string, paidAt time.Time) (bool, error)
	MarkCanceled(ctx context.Context, transactionID string) (bool, error)
}

type EventLog interface {
	AddEvent(ctx context.Context, transactionID, message string, data map[string]any) error
}

// Notifier is told about transactions that became paid.
type Notifier interface {
	TransactionPaid(ctx context.Context, t *Transaction) error
}

type Dependencies struct {
	Store      TransactionStore
	Events     EventLog
	Translator Translator
	Notifier   Notifier
	Metrics    *Metrics
}

type StartRequest struct {
	ReturnBaseURL  string
	NotifyBaseURL  string
	User           User
	Patron         Patron
	SourceID       string
	Amount         int64
	TransactionFee int64
	Fines          []Fine
	Currency       string
	StatusParam    string
}

// Handler drives transactions of one library source through its gateway.
type Handler struct {
	source     string
	cfg        config.Gateway
	gateway    Gateway
	store      TransactionStore
	events     EventLog
	translator Translator
	notifier   Notifier
	metrics    *Metrics

	codes     productCodes
	merchants map[string]string
	languages languageMap
	currency  string
	now       func() time.Time
}

func NewHandler(source string, cfg config.Gateway, gw Gateway, deps Dependencies) *Handler {
	limits := gw.Limits()

	currency := strings.ToUpper(cfg.Currency)
	if currency == "" {
		currency = defaultCurrency
	}

	return &Handler{
		source:     source,
		cfg:        cfg,
		gateway:    gw,
		store:      deps.Store,
		events:     deps.Events,
		translator: deps.Translator,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		codes:      newProductCodes(cfg, limits.ProductCodeMax),
		merchants:  parseMappings(cfg.OrganizationMerchantIDMappings),
		languages:  newLanguageMap(cfg.SupportedLanguages, limits.DefaultLanguages),
		currency:   currency,
		now:        time.Now,
	}
}

func (h *Handler) Source() string { return h.source }

func (h *Handler) GatewayName() string { return h.gateway.Name() }

// TransactionFee is the configured service charge added to each payment.
func (h *Handler) TransactionFee() int64 { return h.cfg.TransactionFee }

// MinimumFee is the smallest total this source accepts for online payment.
func (h *Handler) MinimumFee() int64 { return h.cfg.MinimumFee }

// PaymentAllowed reports whether amount (fee excluded) can be paid online.
func (h *Handler) PaymentAllowed(amount int64) bool {
	return amount > 0 && amount+h.cfg.TransactionFee >= h.cfg.MinimumFee
}

func (h *Handler) Transaction(ctx context.Context, transactionID string) (*Transaction, error) {
	t, err := h.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.SourceID != h.source {
		return nil, ErrTransactionNotFound
	}
	return t, nil
}

func (h *Handler) validate(in *StartRequest) error {
	if in.Amount < 0 || in.TransactionFee < 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(in.Patron.CatUsername) == "" {
		return ErrMissingCatUsername
	}
	if in.Currency == "" {
		in.Currency = h.currency
	}
	if !strings.EqualFold(in.Currency, h.currency) {
		return fmt.Errorf("%w: %s", ErrUnsupportedCurrency, in.Currency)
	}
	in.Currency = h.currency

	if len(in.Fines) > 0 {
		var sum int64
		for _, f := range in.Fines {
			if f.Balance < 0 {
				return fmt.Errorf("%w: negative fine balance", ErrInvalidAmount)
			}
			if f.Balance > math.MaxInt64-sum {
				return fmt.Errorf("%w: fines total out of range", ErrInvalidAmount)
			}
			sum += f.Balance
		}
		if sum != in.Amount {
			return fmt.Errorf("%w: fines total %d, amount %d", ErrInvalidAmount, sum, in.Amount)
		}
	}
	if in.TransactionFee > math.MaxInt64-in.Amount {
		return fmt.Errorf("%w: total out of range", ErrInvalidAmount)
	}
	if in.Amount+in.TransactionFee == 0 {
		return fmt.Errorf("%w: nothing to pay", ErrInvalidAmount)
	}
	if in.Amount+in.TransactionFee < h.cfg.MinimumFee {
		return ErrBelowMinimumFee
	}
	if in.StatusParam == "" {
		in.StatusParam = DefaultStatusParam
	}
	return nil
}

// StartPayment registers a new transaction with the gateway and returns
// where to send the patron. Nothing is stored unless the gateway accepted
// the request; a failed start must be restarted from scratch.
func (h *Handler) StartPayment(ctx context.Context, in StartRequest) (*Redirect, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("source", h.source),
		zap.String("gateway", h.gateway.Name()),
	)

	if err := h.validate(&in); err != nil {
		log.Error("Payment start rejected", zap.Error(err),
			logger.Dump("user", in.User),
			logger.Dump("patron", in.Patron),
			logger.Dump("fines", in.Fines),
		)
		h.metrics.paymentFailed(h.source, h.gateway.Name(), "validation")
		return nil, err
	}

	transactionID := utils.GenerateTransactionID(in.Patron.CatUsername, h.now())
	ctx = logger.WithTransactionID(ctx, transactionID)
	log = log.With(zap.String("transaction_id", transactionID))

	returnURL, err := appendQueryParam(in.ReturnBaseURL, in.StatusParam, transactionID)
	if err != nil {
		h.metrics.paymentFailed(h.source, h.gateway.Name(), "validation")
		return nil, fmt.Errorf("return url: %w", err)
	}
	notifyURL, err := appendQueryParam(in.NotifyBaseURL, in.StatusParam, transactionID)
	if err != nil {
		h.metrics.paymentFailed(h.source, h.gateway.Name(), "validation")
		return nil, fmt.Errorf("notify url: %w", err)
	}

	req, lines := h.buildRequest(&in, transactionID, returnURL, notifyURL)

	start := time.Now()
	redirect, err := h.gateway.BuildRequest(ctx, req)
	h.metrics.observeGateway(h.gateway.Name(), time.Since(start))
	if err != nil {
		log.Error("Payment request failed", zap.Error(err),
			logger.Dump("user", in.User),
			logger.Dump("patron", in.Patron),
			logger.Dump("fines", in.Fines),
			logger.Dump("request", req),
		)
		h.metrics.paymentFailed(h.source, h.gateway.Name(), "gateway")
		return nil, err
	}

	t := &Transaction{
		TransactionID:  transactionID,
		SourceID:       h.source,
		Gateway:        h.gateway.Name(),
		UserID:         in.User.ID,
		CatUsername:    in.Patron.CatUsername,
		Amount:         in.Amount,
		TransactionFee: in.TransactionFee,
		Currency:       in.Currency,
		Status:         StatusPending,
	}
	if err := h.store.CreateTransaction(ctx, t, lines); err != nil {
		log.Error("Failed to save transaction", zap.Error(err), logger.Dump("transaction", t))
		h.metrics.paymentFailed(h.source, h.gateway.Name(), "store")
		return nil, fmt.Errorf("save transaction: %w", err)
	}

	h.addEvent(ctx, transactionID, "Transaction created", map[string]any{
		"amount":          in.Amount,
		"transaction_fee": in.TransactionFee,
		"currency":        in.Currency,
		"gateway":         h.gateway.Name(),
	})
	h.metrics.paymentStarted(h.source, h.gateway.Name())

	log.Info("Payment started", zap.Int64("amount", in.Amount), zap.Int64("transaction_fee", in.TransactionFee))
	return redirect, nil
}

func (h *Handler) buildRequest(in *StartRequest, transactionID, returnURL, notifyURL string) (*GatewayRequest, []FeeLine) {
	limits := h.gateway.Limits()
	lang := in.User.Language

	description := h.cfg.PaymentDescription
	if description == "" {
		description = defaultDescription
	}

	req := &GatewayRequest{
		TransactionID: transactionID,
		SourceID:      in.SourceID,
		Amount:        in.Amount + in.TransactionFee,
		Currency:      in.Currency,
		Language:      h.languages.code(lang),
		Description:   truncateRunes(description, limits.DescriptionMax),
		Customer:      customerFor(in.User, in.Patron),
		ReturnURL:     returnURL,
		NotifyURL:     notifyURL,
	}
	if req.SourceID == "" {
		req.SourceID = h.source
	}

	lines := make([]FeeLine, 0, len(in.Fines))
	for _, f := range in.Fines {
		desc := fineDescription(h.translator, lang, f, limits)
		req.Items = append(req.Items, LineItem{
			ProductCode: h.codes.forFine(f),
			Description: desc,
			Quantity:    1,
			UnitPrice:   f.Balance,
			Merchant:    h.merchants[f.Organization],
		})
		lines = append(lines, FeeLine{
			Type:         f.Type,
			Description:  desc,
			Title:        f.Title,
			Organization: f.Organization,
			Amount:       f.Balance,
		})
	}

	if len(in.Fines) == 0 && in.Amount > 0 {
		req.Items = append(req.Items, LineItem{
			ProductCode: h.codes.forFine(Fine{}),
			Description: req.Description,
			Quantity:    1,
			UnitPrice:   in.Amount,
		})
	}

	if in.TransactionFee > 0 {
		var merchant string
		if len(req.Items) > 0 {
			merchant = req.Items[0].Merchant
		}
		req.Items = append(req.Items, LineItem{
			ProductCode: h.codes.forTransactionFee(),
			Description: feeDescription(h.translator, lang, limits),
			Quantity:    1,
			UnitPrice:   in.TransactionFee,
			Merchant:    merchant,
		})
	}

	return req, lines
}

// ProcessPaymentResponse authenticates a gateway callback for t and applies
// the reported outcome. Rejected callbacks yield PaymentFailure with a nil
// error; only store failures are returned as errors.
func (h *Handler) ProcessPaymentResponse(ctx context.Context, t *Transaction, r *http.Request) (Result, error) {
	ctx = logger.WithTransactionID(ctx, t.TransactionID)
	log := logger.FromCtx(ctx).With(
		zap.String("source", h.source),
		zap.String("gateway", h.gateway.Name()),
	)

	res, err := h.processResponse(ctx, log, t, r)
	h.metrics.callbackResult(h.source, h.gateway.Name(), res.Code)
	return res, err
}

func (h *Handler) processResponse(ctx context.Context, log *zap.Logger, t *Transaction, r *http.Request) (Result, error) {
	failure := Result{Code: PaymentFailure}

	resp, err := h.gateway.ParseResponse(r)
	if err != nil {
		log.Error("Payment response rejected", zap.Error(err),
			logger.Dump("query", r.URL.Query()),
			zap.String("method", r.Method),
		)
		return failure, nil
	}

	if resp.TransactionID != t.TransactionID {
		log.Error("Payment response rejected", zap.Error(ErrTransactionIDMismatch),
			zap.String("callback_transaction_id", resp.TransactionID),
		)
		return failure, nil
	}

	switch resp.Status {
	case GatewayStatusPaid:
		paidAt := h.now()
		transitioned, err := h.store.MarkPaid(ctx, t.TransactionID, paidAt)
		if err != nil {
			log.Error("Failed to mark transaction paid", zap.Error(err))
			return failure, fmt.Errorf("mark paid: %w", err)
		}
		if !transitioned {
			log.Info("Transaction already marked paid")
			return Result{Code: PaymentSuccess}, nil
		}

		t.Status = StatusPaid
		t.PaidAt = &paidAt
		h.addEvent(ctx, t.TransactionID, "Payment successful", map[string]any{
			"reference":  resp.Reference,
			"payment_id": resp.PaymentID,
		})
		if h.notifier != nil {
			if err := h.notifier.TransactionPaid(ctx, t); err != nil {
				log.Error("Failed to publish paid transaction", zap.Error(err))
			}
		}
		log.Info("Transaction marked paid")
		return Result{Code: PaymentSuccess, Transitioned: true}, nil

	case GatewayStatusCanceled:
		transitioned, err := h.store.MarkCanceled(ctx, t.TransactionID)
		if err != nil {
			log.Error("Failed to mark transaction canceled", zap.Error(err))
			return failure, fmt.Errorf("mark canceled: %w", err)
		}
		if transitioned {
			t.Status = StatusCanceled
			h.addEvent(ctx, t.TransactionID, "Payment canceled", map[string]any{
				"status": resp.RawStatus,
			})
		}
		log.Info("Payment canceled", zap.Bool("transitioned", transitioned))
		return Result{Code: PaymentCancel, Transitioned: transitioned}, nil

	case GatewayStatusPending:
		log.Info("Payment pending", zap.String("status", resp.RawStatus))
		return Result{Code: PaymentPending}, nil

	default:
		log.Error("Payment response rejected", zap.Error(ErrUnrecognizedStatus),
			zap.String("status", resp.RawStatus),
		)
		return failure, nil
	}
}

func (h *Handler) addEvent(ctx context.Context, transactionID, message string, data map[string]any) {
	if h.events == nil {
		return
	}
	if err := h.events.AddEvent(ctx, transactionID, message, data); err != nil {
		logger.FromCtx(ctx).Warn("Failed to add transaction event",
			zap.String("event", message),
			zap.Error(err),
		)
	}
}

// appendQueryParam sets key=value on rawURL, keeping its other parameters.
func appendQueryParam(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		return "", errors.New("url must be absolute")
	}

	// Existing parameters stay byte for byte; only a previous key is replaced.
	parts := make([]string, 0, 4)
	if u.RawQuery != "" {
		for _, part := range strings.Split(u.RawQuery, "&") {
			name, _, _ := strings.Cut(part, "=")
			if unescaped, err := url.QueryUnescape(name); err == nil && unescaped == key {
				continue
			}
			parts = append(parts, part)
		}
	}
	parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
	u.RawQuery = strings.Join(parts, "&")
	return u.String(), nil
}
