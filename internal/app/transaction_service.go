/**
 * @description
 * This file implements the transaction aggregation engine. For a user it loads
 * every enrollment, lists the accounts behind each one, fetches each account's
 * transactions, tags them with institution and account metadata, and returns
 * one list sorted newest first.
 *
 * @notes
 * - Failures for a single enrollment or account are logged and skipped; the
 *   caller receives whatever could be fetched.
 * - Account listing and transaction fetching each run on a bounded pool. The
 *   final sort makes the output independent of completion order.
 */
package app

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/budgetlink/budgetlink-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

// Aggregator is the subset of the Teller client used by the engine.
type Aggregator interface {
	ListAccounts(ctx context.Context, accessToken string) ([]domain.Account, error)
	ListTransactions(ctx context.Context, accessToken, accountID string) ([]domain.Transaction, error)
}

// EnrollmentReader resolves a user to their enrollments.
type EnrollmentReader interface {
	GetEnrollments(ctx context.Context, userID string) ([]domain.Enrollment, error)
}

// TransactionService aggregates transactions across all of a user's enrollments.
type TransactionService struct {
	enrollments EnrollmentReader
	aggregator  Aggregator
	concurrency int
	logger      *slog.Logger
}

// NewTransactionService creates the engine. A nil aggregator means the Teller
// credentials could not be loaded; every request then fails with
// domain.ErrAggregatorOffline.
func NewTransactionService(enrollments EnrollmentReader, aggregator Aggregator, concurrency int, logger *slog.Logger) *TransactionService {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionService{
		enrollments: enrollments,
		aggregator:  aggregator,
		concurrency: concurrency,
		logger:      logger,
	}
}

type linkedAccount struct {
	accessToken string
	institution string
	account     domain.Account
}

// GetAllTransactions returns every reachable transaction for the user, newest first.
func (s *TransactionService) GetAllTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	if s.aggregator == nil {
		return nil, domain.ErrAggregatorOffline
	}

	enrollments, err := s.enrollments.GetEnrollments(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "aggregating transactions", "user_id", userID, "enrollments", len(enrollments))

	accounts := s.collectAccounts(ctx, enrollments)
	txns := s.collectTransactions(ctx, accounts)

	SortTransactions(txns)
	net, unparsed := NetAmount(txns)
	s.logger.InfoContext(ctx, "transactions aggregated",
		"user_id", userID,
		"accounts", len(accounts),
		"transactions", len(txns),
		"net_amount", net.StringFixed(2),
		"unparsed_amounts", unparsed,
	)
	return txns, nil
}

func (s *TransactionService) collectAccounts(ctx context.Context, enrollments []domain.Enrollment) []linkedAccount {
	p := pool.NewWithResults[[]linkedAccount]().WithMaxGoroutines(s.concurrency)
	for _, e := range enrollments {
		if !e.HasAccessToken() {
			s.logger.DebugContext(ctx, "skipping enrollment with no access token")
			continue
		}
		institution := e.InstitutionName()
		p.Go(func() []linkedAccount {
			accounts, err := s.aggregator.ListAccounts(ctx, e.AccessToken)
			if err != nil {
				s.logger.WarnContext(ctx, "failed to list accounts, skipping enrollment", "institution", institution, "error", err)
				return nil
			}
			out := make([]linkedAccount, 0, len(accounts))
			for _, a := range accounts {
				if strings.TrimSpace(a.ID) == "" {
					s.logger.WarnContext(ctx, "skipping account with no id", "institution", institution)
					continue
				}
				out = append(out, linkedAccount{accessToken: e.AccessToken, institution: institution, account: a})
			}
			return out
		})
	}
	return slices.Concat(p.Wait()...)
}

func (s *TransactionService) collectTransactions(ctx context.Context, accounts []linkedAccount) []domain.Transaction {
	p := pool.NewWithResults[[]domain.Transaction]().WithMaxGoroutines(s.concurrency)
	for _, la := range accounts {
		p.Go(func() []domain.Transaction {
			txns, err := s.aggregator.ListTransactions(ctx, la.accessToken, la.account.ID)
			if err != nil {
				s.logger.WarnContext(ctx, "failed to list transactions, skipping account", "account_id", la.account.ID, "institution", la.institution, "error", err)
				return nil
			}
			return enrich(txns, la)
		})
	}
	return slices.Concat(p.Wait()...)
}

func enrich(txns []domain.Transaction, la linkedAccount) []domain.Transaction {
	name := la.account.Name
	if name == "" {
		name = domain.UnknownAccountName
	}
	accountType := la.account.Type
	if accountType == "" {
		accountType = domain.UnknownAccountType
	}
	for i := range txns {
		txns[i].Institution = la.institution
		txns[i].AccountName = name
		txns[i].AccountType = accountType
	}
	return txns
}

// NetAmount sums the transaction amounts. Amounts that are not decimals are
// left out and counted in unparsed.
func NetAmount(txns []domain.Transaction) (net decimal.Decimal, unparsed int) {
	for _, t := range txns {
		amount, err := t.AmountValue()
		if err != nil {
			unparsed++
			continue
		}
		net = net.Add(amount)
	}
	return net, unparsed
}

// SortTransactions orders transactions by date, newest first. Unparseable
// dates sort after valid ones; equal dates fall back to the transaction id.
func SortTransactions(txns []domain.Transaction) {
	slices.SortFunc(txns, compareNewestFirst)
}

func compareNewestFirst(a, b domain.Transaction) int {
	ta, okA := a.ParsedDate()
	tb, okB := b.ParsedDate()
	switch {
	case okA && !okB:
		return -1
	case !okA && okB:
		return 1
	case okA && okB:
		if c := tb.Compare(ta); c != 0 {
			return c
		}
	default:
		if c := strings.Compare(b.Date, a.Date); c != 0 {
			return c
		}
	}
	return strings.Compare(a.ID, b.ID)
}
