package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Ledger implements domain.Ledger on an accounts table. Transfers run in a
// single transaction with a balance check, so a debit never drives an account
// negative and a crash never leaves a half-applied transfer.
type Ledger struct {
	pool *pgxpool.Pool
}

var _ domain.Ledger = (*Ledger)(nil)

// NewLedger creates a Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Transfer moves amount from one account to the other. Accounts are created
// on first touch with a zero balance, so a debit from a fresh account fails
// with ErrInsufficientFunds rather than a missing-row error.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("postgres: transfer amount must be positive, got %d", amount)
	}
	if from == to {
		return fmt.Errorf("postgres: transfer from %q to itself", from)
	}

	err := pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO accounts (id) VALUES ($1), ($2) ON CONFLICT (id) DO NOTHING`,
			from, to)
		if err != nil {
			return fmt.Errorf("ensure accounts: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE accounts SET balance = balance - $2, updated_at = NOW()
			 WHERE id = $1 AND balance >= $2`,
			from, amount)
		if err != nil {
			return fmt.Errorf("debit %s: %w", from, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("debit %s amount %d: %w", from, amount, domain.ErrInsufficientFunds)
		}

		_, err = tx.Exec(ctx,
			`UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1`,
			to, amount)
		if err != nil {
			return fmt.Errorf("credit %s: %w", to, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return fmt.Errorf("postgres: transfer: %w", err)
		}
		return fmt.Errorf("postgres: transfer: %w: %w", domain.ErrStorage, err)
	}
	return nil
}

// Credit adds funds to an account, creating it if needed. Together with
// Balance it satisfies the account service's ledger interface; neither is
// part of domain.Ledger.
func (l *Ledger) Credit(ctx context.Context, account string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("postgres: credit amount must be positive, got %d", amount)
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO accounts (id, balance) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET balance = accounts.balance + $2, updated_at = NOW()`,
		account, amount)
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", account, err)
	}
	return nil
}

// Balance returns an account's current balance. Unknown accounts report zero.
func (l *Ledger) Balance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE id = $1`, account).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: balance %s: %w", account, err)
	}
	return balance, nil
}
