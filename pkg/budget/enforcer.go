package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/i-dream-of-ai/sparkmango/pkg/errs"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
	"github.com/i-dream-of-ai/sparkmango/pkg/tracker"
)

// ErrBudgetExceeded is returned when a contract has spent its token budget.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Enforcer checks generation token usage against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
	tracker  tracker.Tracker
}

// New creates an Enforcer with the given policies and tracker.
func New(policies []models.BudgetPolicy, t tracker.Tracker) *Enforcer {
	return &Enforcer{policies: policies, tracker: t}
}

// Check returns a KindBudget error wrapping ErrBudgetExceeded if the contract
// has exhausted any applicable policy.
func (e *Enforcer) Check(ctx context.Context, contract, model string) error {
	for _, p := range e.applicablePolicies(contract, model) {
		used, err := e.used(ctx, p, contract)
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		if used >= p.MaxTokens {
			return errs.New(errs.KindBudget, "token budget spent", ErrBudgetExceeded).
				WithContext("contract", contract).
				WithContext("period", p.Period).
				WithContext("used", used)
		}
	}
	return nil
}

// Status returns the budget status for a contract across all applicable policies.
func (e *Enforcer) Status(ctx context.Context, contract string) ([]models.BudgetStatus, error) {
	policies := e.policiesForContract(contract)
	statuses := make([]models.BudgetStatus, 0, len(policies))

	for _, p := range policies {
		used, err := e.used(ctx, p, contract)
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		remaining := p.MaxTokens - used
		if remaining < 0 {
			remaining = 0
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Used:      used,
			Remaining: remaining,
		})
	}
	return statuses, nil
}

func (e *Enforcer) used(ctx context.Context, p models.BudgetPolicy, contract string) (int64, error) {
	since := periodStart(p.Period)
	if p.Model != "" {
		return e.tracker.TotalByContractAndModel(ctx, contract, p.Model, since)
	}
	return e.tracker.TotalByContract(ctx, contract, since)
}

// policiesForContract returns all policies matching a contract (ignoring model filter).
func (e *Enforcer) policiesForContract(contract string) []models.BudgetPolicy {
	var result []models.BudgetPolicy
	for _, p := range e.policies {
		if p.Contract == "*" || p.Contract == contract {
			result = append(result, p)
		}
	}
	return result
}

func (e *Enforcer) applicablePolicies(contract, model string) []models.BudgetPolicy {
	var result []models.BudgetPolicy
	for _, p := range e.policiesForContract(contract) {
		if p.Model == "" || p.Model == model {
			result = append(result, p)
		}
	}
	return result
}

func periodStart(period models.BudgetPeriod) time.Time {
	now := time.Now().UTC()
	switch period {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
