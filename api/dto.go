/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validator/v10 struct tags. decodeAndValidate in
  handlers.go runs them before any domain call. Dates are YYYY-MM-DD and
  money/day amounts are decimal strings.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: RuleTableJSON, served by GET /api/policies
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	HireDate     string `json:"hire_date"`
	ContractType string `json:"contract_type"`
	BasicSalary  string `json:"basic_salary"`
}

type CreateEmployeeRequest struct {
	ID           string `json:"id" validate:"required,max=64"`
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	HireDate     string `json:"hire_date" validate:"required,datetime=2006-01-02"`
	ContractType string `json:"contract_type" validate:"required,oneof=permanent probation temporary contract"`
	BasicSalary  string `json:"basic_salary" validate:"required,numeric"`
}

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:           string(e.ID),
		Name:         e.Name,
		Email:        e.Email,
		HireDate:     e.HireDate.String(),
		ContractType: string(e.ContractType),
		BasicSalary:  e.BasicSalary.StringFixed(2),
	}
}

// =============================================================================
// BALANCES
// =============================================================================

type BalanceDTO struct {
	Category  string `json:"category"`
	Label     string `json:"label"`
	Year      int    `json:"year"`
	Total     string `json:"total_days"`
	Used      string `json:"used_days"`
	Remaining string `json:"remaining_days"`
	Granted   bool   `json:"granted"`
	Version   int64  `json:"version"`
}

// InitializeRequest creates a year's balances. Overrides replace the
// computed entitlement per category (decimal day strings).
type InitializeRequest struct {
	Year      int               `json:"year" validate:"required,gte=1900,lte=9999"`
	Overrides map[string]string `json:"overrides" validate:"omitempty,dive,keys,required,endkeys,numeric"`
	Actor     string            `json:"actor"`
}

// InitializeResponse lists the balances created by the call. Categories
// that already existed are named in AlreadyInitialized.
type InitializeResponse struct {
	Created            []BalanceDTO `json:"created"`
	AlreadyInitialized []string     `json:"already_initialized,omitempty"`
}

type EntryDTO struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Delta          string    `json:"delta_days"`
	ReferenceID    string    `json:"reference_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toBalanceDTO(b generic.Balance) BalanceDTO {
	c := leave.Category(b.Key.Resource.ResourceID())
	return BalanceDTO{
		Category:  string(c),
		Label:     c.Label(),
		Year:      b.Key.Year,
		Total:     b.Total.String(),
		Used:      b.Used.String(),
		Remaining: b.Remaining().String(),
		Granted:   b.Granted,
		Version:   b.Version,
	}
}

func toEntryDTO(e generic.Transaction) EntryDTO {
	return EntryDTO{
		ID:             string(e.ID),
		Type:           string(e.Type),
		Delta:          e.Delta.String(),
		ReferenceID:    e.ReferenceID,
		Reason:         e.Reason,
		IdempotencyKey: e.IdempotencyKey,
		CreatedBy:      e.CreatedBy,
		CreatedAt:      e.CreatedAt,
	}
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

type SubmitRequest struct {
	Category  string `json:"category" validate:"required"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason" validate:"max=500"`
	Actor     string `json:"actor"`
}

// ValidateRequest is a dry run of the request validator.
type ValidateRequest struct {
	EmployeeID       string `json:"employee_id" validate:"required"`
	Category         string `json:"category" validate:"required"`
	StartDate        string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate          string `json:"end_date" validate:"required,datetime=2006-01-02"`
	ExcludeRequestID string `json:"exclude_request_id"`
}

type DecisionRequest struct {
	Actor  string `json:"actor" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

type RequestDTO struct {
	ID              string    `json:"id"`
	EmployeeID      string    `json:"employee_id"`
	Category        string    `json:"category"`
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date"`
	RequestedDays   int       `json:"requested_days"`
	WorkingDays     int       `json:"working_days"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	SubmittedBy     string    `json:"submitted_by,omitempty"`
	DecidedBy       string    `json:"decided_by,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ViolationDTO struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

type ValidationDTO struct {
	IsValid       bool           `json:"is_valid"`
	Errors        []string       `json:"errors"`
	Violations    []ViolationDTO `json:"violations"`
	RequestedDays int            `json:"requested_days"`
	WorkingDays   int            `json:"working_days"`
}

func toRequestDTO(r leave.Request) RequestDTO {
	return RequestDTO{
		ID:              string(r.ID),
		EmployeeID:      string(r.EmployeeID),
		Category:        string(r.Category),
		StartDate:       r.Start.String(),
		EndDate:         r.End.String(),
		RequestedDays:   r.RequestedDays,
		WorkingDays:     r.WorkingDays,
		Status:          string(r.Status),
		Reason:          r.Reason,
		SubmittedBy:     r.SubmittedBy,
		DecidedBy:       r.DecidedBy,
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func toRequestDTOs(rs []leave.Request) []RequestDTO {
	out := make([]RequestDTO, len(rs))
	for i, r := range rs {
		out[i] = toRequestDTO(r)
	}
	return out
}

func toValidationDTO(res leave.ValidationResult) ValidationDTO {
	dto := ValidationDTO{
		IsValid:       res.IsValid,
		Errors:        res.Errors(),
		Violations:    make([]ViolationDTO, len(res.Violations)),
		RequestedDays: res.RequestedDays,
		WorkingDays:   res.WorkingDays,
	}
	for i, v := range res.Violations {
		dto.Violations[i] = ViolationDTO{Rule: string(v.Rule), Message: v.Message}
	}
	return dto
}

// =============================================================================
// SETTLEMENT
// =============================================================================

type SettlementRequest struct {
	ExitType        string `json:"exit_type" validate:"required,oneof=resignation retirement termination redundancy"`
	ExitDate        string `json:"exit_date" validate:"required,datetime=2006-01-02"`
	OtherDeductions string `json:"other_deductions" validate:"omitempty,numeric"`
	Actor           string `json:"actor"`
}

// =============================================================================
// AUDIT / ERRORS
// =============================================================================

type AuditEntryDTO struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	ActorID    string         `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	EmployeeID string         `json:"employee_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// ErrorResponse is returned for every non-2xx status.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details string   `json:"details,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}
