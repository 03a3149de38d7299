package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// AccountLedger extends domain.Ledger with the account-level operations the
// deposit path needs. The postgres ledger satisfies it.
type AccountLedger interface {
	domain.Ledger
	Credit(ctx context.Context, account string, amount int64) error
	Balance(ctx context.Context, account string) (int64, error)
}

// AccountService funds user accounts. Voting and dispute stakes debit
// accounts through the ledger, so an account must be credited here before its
// owner can stake. Deposits are admin-only; balance reads are open.
type AccountService struct {
	ledger AccountLedger
	audit  domain.AuditStore
	auth   domain.Authorizer
	logger *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(ledger AccountLedger, audit domain.AuditStore, auth domain.Authorizer, logger *slog.Logger) *AccountService {
	return &AccountService{
		ledger: ledger,
		audit:  audit,
		auth:   auth,
		logger: logger.With(slog.String("component", "account_service")),
	}
}

// Deposit credits amount to the account, creating it on first touch.
func (s *AccountService) Deposit(ctx context.Context, admin, account string, amount int64) error {
	if err := s.auth.RequireAdmin(ctx, admin); err != nil {
		return err
	}
	if account == "" {
		return fmt.Errorf("%w: account required", domain.ErrInvalidAmount)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: deposit must be positive, got %d", domain.ErrInvalidAmount, amount)
	}

	if err := s.ledger.Credit(ctx, account, amount); err != nil {
		return fmt.Errorf("account_service: deposit: %w", err)
	}

	if err := s.audit.Log(ctx, "account_deposited", map[string]any{
		"admin":   admin,
		"account": account,
		"amount":  amount,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", "account_deposited"),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(ctx, "account deposited",
		slog.String("account", account),
		slog.Int64("amount", amount),
	)
	return nil
}

// Balance reports the account's ledger balance. Unknown accounts read zero.
func (s *AccountService) Balance(ctx context.Context, account string) (int64, error) {
	balance, err := s.ledger.Balance(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("account_service: balance: %w", err)
	}
	return balance, nil
}
