package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Repository is the PostgreSQL backed TransactionStore and EventLog.
type Repository interface {
	TransactionStore
	EventLog
}

type repository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

func NewRepository(db *sql.DB) Repository {
	return &repository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *repository) CreateTransaction(ctx context.Context, t *Transaction, lines []FeeLine) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const q = `
	INSERT INTO payment_transactions (
		transaction_id,
		source_id,
		gateway,
		user_id,
		cat_username,
		amount,
		transaction_fee,
		currency,
		status
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id, created_at;
	`

	err = tx.QueryRowContext(ctx, q,
		t.TransactionID,
		t.SourceID,
		t.Gateway,
		t.UserID,
		t.CatUsername,
		t.Amount,
		t.TransactionFee,
		t.Currency,
		t.Status,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	if len(lines) > 0 {
		insert := r.builder.
			Insert("payment_fee_lines").
			Columns("transaction_id", "type", "description", "title", "organization", "amount")
		for _, l := range lines {
			insert = insert.Values(t.TransactionID, l.Type, l.Description, l.Title, l.Organization, l.Amount)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build fee lines insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert fee lines: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *repository) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	const q = `
	SELECT id, transaction_id, source_id, gateway, user_id, cat_username,
		amount, transaction_fee, currency, status, created_at, paid_at
	FROM payment_transactions
	WHERE transaction_id = $1;
	`

	var (
		t      Transaction
		paidAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, transactionID).Scan(
		&t.ID, &t.TransactionID, &t.SourceID, &t.Gateway, &t.UserID, &t.CatUsername,
		&t.Amount, &t.TransactionFee, &t.Currency, &t.Status, &t.CreatedAt, &paidAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if paidAt.Valid {
		t.PaidAt = &paidAt.Time
	}
	return &t, nil
}

// MarkPaid moves the transaction to paid unless it already is. The status
// guard in the WHERE clause makes concurrent callbacks race safely: exactly
// one of them sees a changed row.
func (r *repository) MarkPaid(ctx context.Context, transactionID string, paidAt time.Time) (bool, error) {
	const q = `
	UPDATE payment_transactions
	SET status = 'paid', paid_at = $2
	WHERE transaction_id = $1 AND status <> 'paid';
	`

	res, err := r.db.ExecContext(ctx, q, transactionID, paidAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repository) MarkCanceled(ctx context.Context, transactionID string) (bool, error) {
	const q = `
	UPDATE payment_transactions
	SET status = 'canceled'
	WHERE transaction_id = $1 AND status = 'pending';
	`

	res, err := r.db.ExecContext(ctx, q, transactionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repository) AddEvent(ctx context.Context, transactionID, message string, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	const q = `
	INSERT INTO payment_events (transaction_id, message, data)
	VALUES ($1, $2, $3);
	`

	_, err = r.db.ExecContext(ctx, q, transactionID, message, payload)
	return err
}
