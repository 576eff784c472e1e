package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Records is what Service reads: employees and their balances.
type Records interface {
	leave.EmployeeStore
	ListBalances(ctx context.Context, employeeID generic.EmployeeID, year int) ([]generic.Balance, error)
}

// Service loads the inputs for Compute and audits the result. It never
// writes to the ledger: paying out leave is a payroll concern.
type Service struct {
	Records  Records
	Policies *leave.PolicyTable
	Rates    Rates
	Clock    generic.Clock
	Audit    generic.AuditLog // optional
	Logger   *slog.Logger
}

func NewService(records Records, policies *leave.PolicyTable) *Service {
	return &Service{
		Records:  records,
		Policies: policies,
		Rates:    DefaultRates(),
		Clock:    generic.SystemClock{},
	}
}

type Request struct {
	EmployeeID      generic.EmployeeID
	ExitType        ExitType
	ExitDate        generic.TimePoint
	OtherDeductions decimal.Decimal
	Actor           string
}

// Compute returns the unrounded settlement for one employee.
func (s *Service) Compute(ctx context.Context, req Request) (leave.Employee, Settlement, error) {
	emp, err := s.Records.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return leave.Employee{}, Settlement{}, err
	}
	balances, err := s.Records.ListBalances(ctx, emp.ID, req.ExitDate.Year())
	if err != nil {
		return leave.Employee{}, Settlement{}, fmt.Errorf("failed to load balances: %w", err)
	}

	out, err := Compute(s.Policies, s.Rates, Input{
		Employee:        emp,
		ExitType:        req.ExitType,
		ExitDate:        req.ExitDate,
		Balances:        balances,
		OtherDeductions: req.OtherDeductions,
		Today:           generic.Today(s.Clock),
	})
	if err != nil {
		return leave.Employee{}, Settlement{}, err
	}

	s.audit(ctx, req.Actor, out)
	return emp, out, nil
}

func (s *Service) audit(ctx context.Context, actor string, out Settlement) {
	if s.Audit == nil {
		return
	}
	rounded := out.Rounded()
	err := s.Audit.Append(ctx, generic.AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  s.Clock.Now(),
		ActorID:    actor,
		Action:     generic.AuditSettlementComputed,
		EmployeeID: out.EmployeeID,
		Details: map[string]any{
			"exit_type":     string(out.ExitType),
			"exit_date":     out.ExitDate.String(),
			"total_gross":   rounded.TotalGross.StringFixed(2),
			"net_payable":   rounded.NetPayable.StringFixed(2),
			"rates_version": out.RatesVersion,
		},
	})
	if err != nil {
		s.logger().ErrorContext(ctx, "audit append failed",
			"action", generic.AuditSettlementComputed, "employee_id", out.EmployeeID, "error", err)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
