package payment

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/url"
	"testing"
	"time"

	"finna-payment/internal/config"
	"finna-payment/internal/logger"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateTransaction(ctx context.Context, t *Transaction, lines []FeeLine) error {
	args := m.Called(ctx, t, lines)
	return args.Error(0)
}

func (m *MockStore) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	args := m.Called(ctx, transactionID)
	t, _ := args.Get(0).(*Transaction)
	return t, args.Error(1)
}

func (m *MockStore) MarkPaid(ctx context.Context, transactionID string, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, transactionID, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) MarkCanceled(ctx context.Context, transactionID string) (bool, error) {
	args := m.Called(ctx, transactionID)
	return args.Bool(0), args.Error(1)
}

type MockEventLog struct {
	mock.Mock
}

func (m *MockEventLog) AddEvent(ctx context.Context, transactionID, message string, data map[string]any) error {
	args := m.Called(ctx, transactionID, message, data)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) TransactionPaid(ctx context.Context, t *Transaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

// stubGateway records the request it was asked to register.
type stubGateway struct {
	limits   Limits
	redirect *Redirect
	err      error
	got      *GatewayRequest
}

func (s *stubGateway) Name() string   { return "stub" }
func (s *stubGateway) Limits() Limits { return s.limits }

func (s *stubGateway) BuildRequest(_ context.Context, req *GatewayRequest) (*Redirect, error) {
	s.got = req
	return s.redirect, s.err
}

func (s *stubGateway) ParseResponse(*http.Request) (*GatewayResponse, error) {
	return nil, errors.New("not implemented")
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type handlerFixture struct {
	handler  *Handler
	store    *MockStore
	events   *MockEventLog
	notifier *MockNotifier
}

func newFixture(t *testing.T, source string, cfg config.Gateway, gw Gateway) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		store:    new(MockStore),
		events:   new(MockEventLog),
		notifier: new(MockNotifier),
	}
	f.handler = NewHandler(source, cfg, gw, Dependencies{
		Store:    f.store,
		Events:   f.events,
		Notifier: f.notifier,
		Metrics:  NewMetrics(prometheus.NewRegistry()),
	})
	f.handler.now = func() time.Time { return fixedNow }
	return f
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zap.InfoLevel)
	prev := logger.L()
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(prev) })
	return logs
}

func startRequest() StartRequest {
	return StartRequest{
		ReturnBaseURL: "https://finna.example.com/payment/helmet/return",
		NotifyBaseURL: "https://finna.example.com/payment/helmet/notify",
		User: User{
			ID:        7,
			Firstname: gofakeit.FirstName(),
			Lastname:  gofakeit.LastName(),
			Email:     gofakeit.Email(),
			Language:  "fi",
		},
		Patron:         Patron{CatUsername: "helmet.1234"},
		SourceID:       "helmet",
		Amount:         1000,
		TransactionFee: 50,
		Fines: []Fine{
			{Type: "overdue", Organization: "helmet", Title: "Moby Dick", Balance: 1000},
		},
	}
}

func TestStartPayment_CPU(t *testing.T) {
	var sent cpuPayment
	gw := newTestGateway(t, HandlerCPU, MockRoundTripper(func(req *http.Request) (*http.Response, error) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&sent))
		return response(http.StatusOK, `{"Id":"x","Status":2,"Reference":"r-1","PaymentAddress":"https://cpu.example.com/pay/r-1"}`, nil), nil
	}))
	f := newFixture(t, "helmet", testGatewayConfig(HandlerCPU), gw)

	var stored *Transaction
	f.store.On("CreateTransaction", mock.Anything, mock.AnythingOfType("*payment.Transaction"), mock.AnythingOfType("[]payment.FeeLine")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*Transaction) }).
		Return(nil)
	f.events.On("AddEvent", mock.Anything, mock.Anything, "Transaction created", mock.Anything).Return(nil)

	redirect, err := f.handler.StartPayment(t.Context(), startRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://cpu.example.com/pay/r-1", redirect.URL)

	t.Run("fine and fee become two products", func(t *testing.T) {
		require.Len(t, sent.Products, 2)
		assert.Equal(t, int64(1000), sent.Products[0].Price)
		assert.Equal(t, int64(50), sent.Products[1].Price)
	})

	t.Run("transaction id threads through urls and storage", func(t *testing.T) {
		require.NotNil(t, stored)
		assert.Equal(t, sent.ID, stored.TransactionID)

		for _, raw := range []string{sent.ReturnAddress, sent.NotificationAddress} {
			u, err := url.Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, sent.ID, u.Query().Get(DefaultStatusParam))
		}
	})

	t.Run("stored transaction", func(t *testing.T) {
		assert.Equal(t, StatusPending, stored.Status)
		assert.Equal(t, int64(1000), stored.Amount)
		assert.Equal(t, int64(50), stored.TransactionFee)
		assert.Equal(t, "EUR", stored.Currency)
		assert.Equal(t, HandlerCPU, stored.Gateway)
		assert.Equal(t, "helmet.1234", stored.CatUsername)
		assert.Equal(t, int64(7), stored.UserID)
	})

	f.store.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestStartPayment_GatewayFailurePersistsNothing(t *testing.T) {
	logs := observeLogs(t)
	gw := newTestGateway(t, HandlerCPU, MockRoundTripper(func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, `{"Id":"x","Status":98}`, nil), nil
	}))
	f := newFixture(t, "helmet", testGatewayConfig(HandlerCPU), gw)

	redirect, err := f.handler.StartPayment(t.Context(), startRequest())

	assert.Nil(t, redirect)
	assert.ErrorIs(t, err, ErrGatewaySystemError)
	f.store.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything, mock.Anything)
	f.events.AssertNotCalled(t, "AddEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	entries := logs.FilterMessage("Payment request failed").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Contains(t, ctx, "patron")
	assert.Contains(t, ctx, "fines")
	assert.Contains(t, ctx, "request")
}

func TestStartPayment_Validation(t *testing.T) {
	cfg := testGatewayConfig(HandlerPaytrail)
	cfg.MinimumFee = 500

	tests := []struct {
		name   string
		mutate func(*StartRequest)
		want   error
	}{
		{"negative amount", func(r *StartRequest) { r.Amount = -1; r.Fines = nil }, ErrInvalidAmount},
		{"negative fee", func(r *StartRequest) { r.TransactionFee = -5 }, ErrInvalidAmount},
		{"missing cat username", func(r *StartRequest) { r.Patron.CatUsername = " " }, ErrMissingCatUsername},
		{"foreign currency", func(r *StartRequest) { r.Currency = "USD" }, ErrUnsupportedCurrency},
		{"fines do not add up", func(r *StartRequest) { r.Amount = 900 }, ErrInvalidAmount},
		{"below minimum", func(r *StartRequest) {
			r.Amount, r.TransactionFee = 100, 0
			r.Fines[0].Balance = 100
		}, ErrBelowMinimumFee},
		{"nothing to pay", func(r *StartRequest) { r.Amount, r.TransactionFee, r.Fines = 0, 0, nil }, ErrInvalidAmount},
		{"fines total wraps around", func(r *StartRequest) {
			const huge = 6148914691236517206
			r.Fines = []Fine{{Type: "overdue", Balance: huge}, {Type: "overdue", Balance: huge}, {Type: "overdue", Balance: huge}}
			r.Amount = 2
		}, ErrInvalidAmount},
		{"fee pushes total out of range", func(r *StartRequest) {
			r.Fines = []Fine{{Type: "overdue", Balance: math.MaxInt64}}
			r.Amount, r.TransactionFee = math.MaxInt64, 1
		}, ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &stubGateway{limits: Limits{DescriptionMax: 100, ProductCodeMax: 25}}
			f := newFixture(t, "helmet", cfg, gw)

			req := startRequest()
			tt.mutate(&req)

			_, err := f.handler.StartPayment(t.Context(), req)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, gw.got, "gateway must not be called")
			f.store.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("invalid return url", func(t *testing.T) {
		gw := &stubGateway{limits: Limits{DescriptionMax: 100, ProductCodeMax: 25}}
		f := newFixture(t, "helmet", cfg, gw)

		req := startRequest()
		req.ReturnBaseURL = "/relative/path"

		_, err := f.handler.StartPayment(t.Context(), req)
		assert.Error(t, err)
		assert.Nil(t, gw.got)
	})
}

func TestStartPayment_RequestBuilding(t *testing.T) {
	cfg := testGatewayConfig(HandlerPaytrail)
	cfg.ProductCode = "DEFAULT"
	cfg.TransactionFeeProductCode = "FEE"
	cfg.ProductCodeMappings = "overdue=OVD:lost=LOST"
	cfg.OrganizationProductCodeMappings = "helmet=HEL-"
	cfg.OrganizationMerchantIDMappings = "helmet=695861"
	cfg.SupportedLanguages = "fi=FI:sv=SV:en=EN"
	cfg.PaymentDescription = "Helmet fines"

	newStub := func() *stubGateway {
		return &stubGateway{
			limits:   Limits{DescriptionMax: 100, ProductCodeMax: 100},
			redirect: &Redirect{URL: "https://pay.example.com/pay/1"},
		}
	}

	t.Run("items, codes and urls", func(t *testing.T) {
		gw := newStub()
		f := newFixture(t, "helmet", cfg, gw)
		f.store.On("CreateTransaction", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.events.On("AddEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

		req := startRequest()
		req.ReturnBaseURL = "https://finna.example.com/Cart/Return?lng=sv"
		req.User.Language = "sv"
		req.Amount = 1500
		req.Fines = append(req.Fines, Fine{Type: "lost", Organization: "espoo", Balance: 500})

		_, err := f.handler.StartPayment(t.Context(), req)
		require.NoError(t, err)

		got := gw.got
		require.NotNil(t, got)
		require.Len(t, got.Items, 3)
		assert.Equal(t, "HEL-OVD", got.Items[0].ProductCode)
		assert.Equal(t, "695861", got.Items[0].Merchant)
		assert.Equal(t, "LOST", got.Items[1].ProductCode)
		assert.Empty(t, got.Items[1].Merchant)
		assert.Equal(t, "FEE", got.Items[2].ProductCode)
		assert.Equal(t, int64(50), got.Items[2].UnitPrice)

		assert.Equal(t, int64(1550), got.Amount)
		assert.Equal(t, got.Amount, got.Total())
		assert.Equal(t, "SV", got.Language)
		assert.Equal(t, "Helmet fines", got.Description)

		u, err := url.Parse(got.ReturnURL)
		require.NoError(t, err)
		assert.Equal(t, "sv", u.Query().Get("lng"))
		assert.Equal(t, got.TransactionID, u.Query().Get(DefaultStatusParam))
	})

	t.Run("custom status parameter", func(t *testing.T) {
		gw := newStub()
		f := newFixture(t, "helmet", cfg, gw)
		f.store.On("CreateTransaction", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.events.On("AddEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

		req := startRequest()
		req.StatusParam = "payment"

		_, err := f.handler.StartPayment(t.Context(), req)
		require.NoError(t, err)

		u, _ := url.Parse(gw.got.NotifyURL)
		assert.Equal(t, gw.got.TransactionID, u.Query().Get("payment"))
	})

	t.Run("no fee line without fee", func(t *testing.T) {
		gw := newStub()
		f := newFixture(t, "helmet", cfg, gw)
		f.store.On("CreateTransaction", mock.Anything, mock.Anything, mock.MatchedBy(func(lines []FeeLine) bool {
			return len(lines) == 1
		})).Return(nil)
		f.events.On("AddEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

		req := startRequest()
		req.TransactionFee = 0

		_, err := f.handler.StartPayment(t.Context(), req)
		require.NoError(t, err)
		require.Len(t, gw.got.Items, 1)
		f.store.AssertExpectations(t)
	})

	t.Run("amount without fines", func(t *testing.T) {
		gw := newStub()
		f := newFixture(t, "helmet", cfg, gw)
		f.store.On("CreateTransaction", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.events.On("AddEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

		req := startRequest()
		req.Fines = nil

		_, err := f.handler.StartPayment(t.Context(), req)
		require.NoError(t, err)
		require.Len(t, gw.got.Items, 2)
		assert.Equal(t, "DEFAULT", gw.got.Items[0].ProductCode)
		assert.Equal(t, int64(1000), gw.got.Items[0].UnitPrice)
	})

	t.Run("long multibyte title", func(t *testing.T) {
		gw := newStub()
		f := newFixture(t, "helmet", cfg, gw)
		f.store.On("CreateTransaction", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.events.On("AddEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

		req := startRequest()
		req.Fines[0].Title = gofakeit.Sentence(30) + " Ääkkösiä ja 東京"

		_, err := f.handler.StartPayment(t.Context(), req)
		require.NoError(t, err)
		assert.LessOrEqual(t, len([]rune(gw.got.Items[0].Description)), 100)
	})
}

func TestStartPayment_StoreFailure(t *testing.T) {
	gw := &stubGateway{
		limits:   Limits{DescriptionMax: 100, ProductCodeMax: 25},
		redirect: &Redirect{URL: "https://pay.example.com/pay/1"},
	}
	f := newFixture(t, "helmet", testGatewayConfig(HandlerPaytrail), gw)
	f.store.On("CreateTransaction", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db down"))

	redirect, err := f.handler.StartPayment(t.Context(), startRequest())

	assert.Nil(t, redirect)
	assert.ErrorContains(t, err, "db down")
	f.events.AssertNotCalled(t, "AddEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func pendingTransaction(id string) *Transaction {
	return &Transaction{
		ID:            1,
		TransactionID: id,
		SourceID:      "helmet",
		Gateway:       HandlerPaytrail,
		Amount:        1000,
		Currency:      "EUR",
		Status:        StatusPending,
	}
}

func TestProcessPaymentResponse_PaidIsIdempotent(t *testing.T) {
	gw := newTestGateway(t, HandlerPaytrail, failingTransport(t))
	f := newFixture(t, "helmet", testGatewayConfig(HandlerPaytrail), gw)

	f.store.On("MarkPaid", mock.Anything, testTxID, fixedNow).Return(true, nil).Once()
	f.store.On("MarkPaid", mock.Anything, testTxID, fixedNow).Return(false, nil).Once()
	f.events.On("AddEvent", mock.Anything, testTxID, "Payment successful", mock.Anything).Return(nil).Once()
	f.notifier.On("TransactionPaid", mock.Anything, mock.AnythingOfType("*payment.Transaction")).Return(nil).Once()

	query := signedPaytrailCallback(testTxID, "ok")

	first, err := f.handler.ProcessPaymentResponse(t.Context(), pendingTransaction(testTxID), callbackRequest(http.MethodGet, query))
	require.NoError(t, err)
	assert.Equal(t, Result{Code: PaymentSuccess, Transitioned: true}, first)

	second, err := f.handler.ProcessPaymentResponse(t.Context(), pendingTransaction(testTxID), callbackRequest(http.MethodGet, query))
	require.NoError(t, err)
	assert.Equal(t, Result{Code: PaymentSuccess, Transitioned: false}, second)

	f.store.AssertExpectations(t)
	f.events.AssertNumberOfCalls(t, "AddEvent", 1)
	f.notifier.AssertNumberOfCalls(t, "TransactionPaid", 1)
}

func TestProcessPaymentResponse_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
		log   string
	}{
		{
			name:  "callback for another transaction",
			query: signedPaytrailCallback("another-transaction", "ok"),
			log:   ErrTransactionIDMismatch.Error(),
		},
		{
			name: "tampered status",
			query: func() url.Values {
				q := signedPaytrailCallback(testTxID, "fail")
				q.Set("checkout-status", "ok")
				return q
			}(),
			log: ErrSignatureMismatch.Error(),
		},
		{
			name:  "unrecognized status",
			query: signedPaytrailCallback(testTxID, "chargeback"),
			log:   ErrUnrecognizedStatus.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := observeLogs(t)
			gw := newTestGateway(t, HandlerPaytrail, failingTransport(t))
			f := newFixture(t, "helmet", testGatewayConfig(HandlerPaytrail), gw)

			tr := pendingTransaction(testTxID)
			res, err := f.handler.ProcessPaymentResponse(t.Context(), tr, callbackRequest(http.MethodGet, tt.query))

			require.NoError(t, err)
			assert.Equal(t, PaymentFailure, res.Code)
			assert.Equal(t, StatusPending, tr.Status)
			f.store.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything)
			f.store.AssertNotCalled(t, "MarkCanceled", mock.Anything, mock.Anything)
			f.notifier.AssertNotCalled(t, "TransactionPaid", mock.Anything, mock.Anything)

			entries := logs.FilterMessage("Payment response rejected").All()
			require.Len(t, entries, 1)
			assert.Contains(t, entries[0].ContextMap()["error"], tt.log)
			assert.Equal(t, testTxID, entries[0].ContextMap()["transaction_id"])
		})
	}
}

func TestProcessPaymentResponse_Canceled(t *testing.T) {
	gw := newTestGateway(t, HandlerPaytrail, failingTransport(t))
	f := newFixture(t, "helmet", testGatewayConfig(HandlerPaytrail), gw)

	f.store.On("MarkCanceled", mock.Anything, testTxID).Return(true, nil)
	f.events.On("AddEvent", mock.Anything, testTxID, "Payment canceled", mock.Anything).Return(nil)

	tr := pendingTransaction(testTxID)
	res, err := f.handler.ProcessPaymentResponse(t.Context(), tr, callbackRequest(http.MethodGet, signedPaytrailCallback(testTxID, "fail")))

	require.NoError(t, err)
	assert.Equal(t, Result{Code: PaymentCancel, Transitioned: true}, res)
	assert.Equal(t, StatusCanceled, tr.Status)
	f.store.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestProcessPaymentResponse_CanceledAfterPaid(t *testing.T) {
	gw := newTestGateway(t, HandlerPaytrail, failingTransport(t))
	f := newFixture(t, "helmet", testGatewayConfig(HandlerPaytrail), gw)

	f.store.On("MarkCanceled", mock.Anything, testTxID).Return(false, nil)

	tr := pendingTransaction(testTxID)
	tr.Status = StatusPaid
	res, err := f.handler.ProcessPaymentResponse(t.Context(), tr, callbackRequest(http.MethodGet, signedPaytrailCallback(testTxID, "fail")))

	require.NoError(t, err)
	assert.Equal(t, Result{Code: PaymentCancel}, res)
	assert.Equal(t, StatusPaid, tr.Status)
	f.events.AssertNotCalled(t, "AddEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessPaymentResponse_Pending(t *testing.T) {
	gw := newTestGateway(t, HandlerPaytrail, failingTransport(t))
	f := newFixture(t, "helmet", testGatewayConfig(HandlerPaytrail), gw)

	res, err := f.handler.ProcessPaymentResponse(t.Context(), pendingTransaction(testTxID), callbackRequest(http.MethodGet, signedPaytrailCallback(testTxID, "delayed")))

	require.NoError(t, err)
	assert.Equal(t, PaymentPending, res.Code)
	f.store.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "MarkCanceled", mock.Anything, mock.Anything)
}

func TestProcessPaymentResponse_StoreError(t *testing.T) {
	gw := newTestGateway(t, HandlerPaytrail, failingTransport(t))
	f := newFixture(t, "helmet", testGatewayConfig(HandlerPaytrail), gw)

	f.store.On("MarkPaid", mock.Anything, testTxID, fixedNow).Return(false, errors.New("db down"))

	res, err := f.handler.ProcessPaymentResponse(t.Context(), pendingTransaction(testTxID), callbackRequest(http.MethodGet, signedPaytrailCallback(testTxID, "ok")))

	assert.Error(t, err)
	assert.Equal(t, PaymentFailure, res.Code)
	f.notifier.AssertNotCalled(t, "TransactionPaid", mock.Anything, mock.Anything)
}

func TestProcessPaymentResponse_NotifierFailureStillSucceeds(t *testing.T) {
	gw := newTestGateway(t, HandlerPaytrail, failingTransport(t))
	f := newFixture(t, "helmet", testGatewayConfig(HandlerPaytrail), gw)

	f.store.On("MarkPaid", mock.Anything, testTxID, fixedNow).Return(true, nil)
	f.events.On("AddEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("event table locked"))
	f.notifier.On("TransactionPaid", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	tr := pendingTransaction(testTxID)
	res, err := f.handler.ProcessPaymentResponse(t.Context(), tr, callbackRequest(http.MethodGet, signedPaytrailCallback(testTxID, "ok")))

	require.NoError(t, err)
	assert.Equal(t, Result{Code: PaymentSuccess, Transitioned: true}, res)
	assert.Equal(t, StatusPaid, tr.Status)
	require.NotNil(t, tr.PaidAt)
	assert.Equal(t, fixedNow, *tr.PaidAt)
}

func TestHandler_PaymentAllowed(t *testing.T) {
	cfg := testGatewayConfig(HandlerPaytrail)
	cfg.TransactionFee = 50
	cfg.MinimumFee = 300
	f := newFixture(t, "helmet", cfg, &stubGateway{})

	assert.False(t, f.handler.PaymentAllowed(0))
	assert.False(t, f.handler.PaymentAllowed(200))
	assert.True(t, f.handler.PaymentAllowed(250))
	assert.Equal(t, int64(50), f.handler.TransactionFee())
	assert.Equal(t, int64(300), f.handler.MinimumFee())
}

func TestHandler_Transaction(t *testing.T) {
	f := newFixture(t, "helmet", testGatewayConfig(HandlerPaytrail), &stubGateway{})

	f.store.On("GetTransaction", mock.Anything, "mine").Return(pendingTransaction("mine"), nil)
	other := pendingTransaction("theirs")
	other.SourceID = "espoo"
	f.store.On("GetTransaction", mock.Anything, "theirs").Return(other, nil)
	f.store.On("GetTransaction", mock.Anything, "none").Return(nil, ErrTransactionNotFound)

	tr, err := f.handler.Transaction(t.Context(), "mine")
	require.NoError(t, err)
	assert.Equal(t, "mine", tr.TransactionID)

	_, err = f.handler.Transaction(t.Context(), "theirs")
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	_, err = f.handler.Transaction(t.Context(), "none")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestAppendQueryParam(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no query", "https://finna.example.com/return", "https://finna.example.com/return?finna_payment_id=abc"},
		{"keeps order and encoding", "https://finna.example.com/return?z=1&lng=fi&q=a+b%2Fc", "https://finna.example.com/return?z=1&lng=fi&q=a+b%2Fc&finna_payment_id=abc"},
		{"keeps valueless flags", "https://finna.example.com/return?flag&x=", "https://finna.example.com/return?flag&x=&finna_payment_id=abc"},
		{"replaces a previous id", "https://finna.example.com/return?finna_payment_id=old&x=1", "https://finna.example.com/return?x=1&finna_payment_id=abc"},
		{"keeps fragment", "https://finna.example.com/return?x=1#fines", "https://finna.example.com/return?x=1&finna_payment_id=abc#fines"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := appendQueryParam(tt.in, "finna_payment_id", "abc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("relative url", func(t *testing.T) {
		_, err := appendQueryParam("/return", "k", "v")
		assert.Error(t, err)
	})

	t.Run("unparsable url", func(t *testing.T) {
		_, err := appendQueryParam("https://finna.example.com/%zz", "k", "v")
		assert.Error(t, err)
	})
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.paymentStarted("helmet", "cpu")
		m.paymentFailed("helmet", "cpu", "gateway")
		m.callbackResult("helmet", "cpu", PaymentSuccess)
		m.observeGateway("cpu", time.Second)
	})
}
