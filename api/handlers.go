/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave ledger, request lifecycle and exit settlement over REST.
  Handlers parse and validate input, delegate to the domain services and
  map domain errors to HTTP status codes.

ENDPOINTS:
  Employees:
    GET    /api/employees                                  List employees
    POST   /api/employees                                  Create or replace an employee
    GET    /api/employees/{id}                             Get employee

  Balances:
    GET    /api/employees/{id}/balances?year=              Balances for a year
    POST   /api/employees/{id}/balances/initialize         Grant a year's entitlements
    GET    /api/employees/{id}/balances/{category}/entries?year=  Ledger history

  Requests:
    GET    /api/employees/{id}/requests?status=            List an employee's requests
    POST   /api/employees/{id}/requests                    Submit a request
    GET    /api/employees/{id}/overlaps?start=&end=&exclude=  Approved overlaps
    POST   /api/requests/validate                          Dry-run validation
    GET    /api/requests/{id}                              Get request
    POST   /api/requests/{id}/approve                      Approve (debits ledger)
    POST   /api/requests/{id}/reject                       Reject (credits if approved)
    POST   /api/requests/{id}/cancel                       Cancel (credits if approved)

  Settlement:
    POST   /api/employees/{id}/settlement                  Compute (JSON)
    POST   /api/employees/{id}/settlement/statement        Compute (PDF)

  Reference:
    GET    /api/policies                                   Active rule table
    GET    /api/audit?employee_id=&action=&limit=          Audit log

ERROR HANDLING:
  - 400: Malformed input, unknown category or exit type
  - 404: Employee, request or balance not found
  - 409: Lost race, invalid status transition, already initialized
  - 422: Validation failed, insufficient balance
  - 500: Everything else (logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/settlement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the record store the API runs on.
type Store interface {
	leave.Store
	generic.AuditLog
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      Store
	Tables     factory.Tables
	Clock      generic.Clock
	Ledger     *leave.LeaveLedger
	Requests   *leave.RequestService
	Settlement *settlement.Service
	Logger     *slog.Logger

	validate *validator.Validate
}

// NewHandler wires the services onto one store. A nil clock means the
// system clock; a nil logger means slog.Default().
func NewHandler(store Store, tables factory.Tables, clock generic.Clock, logger *slog.Logger) *Handler {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	inner := generic.NewLedger(store)
	inner.Clock = clock

	requests := leave.NewRequestService(store, tables.Policies)
	requests.Clock = clock
	requests.Audit = store
	requests.Logger = logger

	settle := settlement.NewService(store, tables.Policies)
	settle.Rates = tables.Rates
	settle.Clock = clock
	settle.Audit = store
	settle.Logger = logger

	return &Handler{
		Store:      store,
		Tables:     tables,
		Clock:      clock,
		Ledger:     leave.NewLeaveLedgerFrom(inner, tables.Policies),
		Requests:   requests,
		Settlement: settle,
		Logger:     logger,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee stores an employee, replacing any record with the same ID.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	hire, err := generic.ParseDate(req.HireDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hire_date", err)
		return
	}
	salary, err := decimal.NewFromString(req.BasicSalary)
	if err != nil || salary.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid basic_salary", err)
		return
	}

	emp := leave.Employee{
		ID:           generic.EmployeeID(req.ID),
		Name:         req.Name,
		Email:        req.Email,
		HireDate:     hire,
		ContractType: leave.ContractType(req.ContractType),
		BasicSalary:  salary,
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.GetEmployee(r.Context(), employeeID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalances returns the stored balances for a year (default: this year).
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	id := employeeID(r)
	if _, err := h.Store.GetEmployee(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	balances, err := h.Ledger.List(r.Context(), id, year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toBalanceDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// InitializeBalances grants a year's entitlements. Re-running it for a year
// that is partly initialized creates the missing categories and reports the
// rest; it fails with 409 only when nothing was created.
func (h *Handler) InitializeBalances(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	overrides := make(map[leave.Category]generic.Amount, len(req.Overrides))
	for raw, days := range req.Overrides {
		c, err := leave.ParseCategory(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid override", err)
			return
		}
		d, err := decimal.NewFromString(days)
		if err != nil || d.IsNegative() {
			writeError(w, http.StatusBadRequest, "Invalid override", fmt.Errorf("%s: %q", raw, days))
			return
		}
		overrides[c] = generic.DaysFromDecimal(d)
	}

	ctx := r.Context()
	emp, err := h.Store.GetEmployee(ctx, employeeID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	created, err := h.Ledger.Initialize(ctx, emp, req.Year, overrides, req.Actor)
	var already *generic.AlreadyInitializedError
	if err != nil && !errors.As(err, &already) {
		h.writeDomainError(w, r, err)
		return
	}
	if len(created) == 0 && already != nil {
		h.writeDomainError(w, r, already)
		return
	}

	resp := InitializeResponse{Created: make([]BalanceDTO, len(created))}
	for i, b := range created {
		resp.Created[i] = toBalanceDTO(b)
	}
	if already != nil {
		for _, res := range already.Resources {
			resp.AlreadyInitialized = append(resp.AlreadyInitialized, res.ResourceID())
		}
	}
	h.audit(r, generic.AuditBalanceInitialized, req.Actor, emp.ID, map[string]any{
		"year":    req.Year,
		"created": len(created),
		"policy":  h.Tables.Policies.Version(),
	})
	writeJSON(w, http.StatusCreated, resp)
}

// GetEntries returns the ledger history of one balance.
func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	c, err := leave.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return
	}
	entries, err := h.Ledger.Entries(r.Context(), employeeID(r), c, year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// SubmitRequest validates and stores a pending request. An invalid request
// is answered with 422 and the full validation result.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	p, ok := parseProposal(w, string(employeeID(r)), req.Category, req.StartDate, req.EndDate)
	if !ok {
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = string(p.EmployeeID)
	}

	created, res, err := h.Requests.Submit(r.Context(), leave.SubmitInput{
		EmployeeID: p.EmployeeID,
		Category:   p.Category,
		Start:      p.Start,
		End:        p.End,
		Reason:     req.Reason,
		Actor:      actor,
	})
	if errors.Is(err, leave.ErrValidationFailed) {
		writeJSON(w, http.StatusUnprocessableEntity, toValidationDTO(res))
		return
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

// ListEmployeeRequests lists requests, optionally filtered by ?status=a,b.
func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	filter := leave.RequestFilter{EmployeeID: employeeID(r)}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := leave.Status(strings.TrimSpace(s))
			if !st.Valid() {
				writeError(w, http.StatusBadRequest, "Invalid status", fmt.Errorf("%q", s))
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	reqs, err := h.Store.ListRequests(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(reqs))
}

// GetOverlaps returns approved requests intersecting [start, end].
func (h *Handler) GetOverlaps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := generic.ParseDate(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start", err)
		return
	}
	end, err := generic.ParseDate(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end", err)
		return
	}
	queried, err := generic.NewPeriod(start, end)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range", err)
		return
	}
	overlaps, err := leave.ConflictDetector{Requests: h.Store}.
		FindOverlaps(r.Context(), employeeID(r), queried.Start, queried.End, leave.RequestID(q.Get("exclude")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(overlaps))
}

// ValidateRequest runs every validation rule without writing anything.
func (h *Handler) ValidateRequest(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	p, ok := parseProposal(w, req.EmployeeID, req.Category, req.StartDate, req.EndDate)
	if !ok {
		return
	}
	res, err := h.Requests.Check(r.Context(), p, leave.RequestID(req.ExcludeRequestID))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toValidationDTO(res))
}

// GetRequest returns a single request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Store.GetRequest(r.Context(), requestID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ApproveRequest approves a pending request and debits the ledger.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	out, err := h.Requests.Approve(r.Context(), requestID(r), req.Actor)
	h.writeRequestResult(w, r, out, err)
}

// RejectRequest rejects a pending or approved request.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	out, err := h.Requests.Reject(r.Context(), requestID(r), req.Actor, req.Reason)
	h.writeRequestResult(w, r, out, err)
}

// CancelRequest cancels a pending request or an approved one not yet started.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	out, err := h.Requests.Cancel(r.Context(), requestID(r), req.Actor)
	h.writeRequestResult(w, r, out, err)
}

func (h *Handler) writeRequestResult(w http.ResponseWriter, r *http.Request, req leave.Request, err error) {
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// ComputeSettlement returns the settlement rounded to cents.
func (h *Handler) ComputeSettlement(w http.ResponseWriter, r *http.Request) {
	_, out, ok := h.computeSettlement(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, out.Rounded())
}

// SettlementStatement returns the settlement as a PDF.
func (h *Handler) SettlementStatement(w http.ResponseWriter, r *http.Request) {
	emp, out, ok := h.computeSettlement(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := settlement.WriteStatement(&buf, emp, out); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="settlement-%s.pdf"`, emp.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *Handler) computeSettlement(w http.ResponseWriter, r *http.Request) (leave.Employee, settlement.Settlement, bool) {
	var req SettlementRequest
	if !h.decodeAndValidate(w, r, &req) {
		return leave.Employee{}, settlement.Settlement{}, false
	}
	exitType, err := settlement.ParseExitType(req.ExitType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid exit_type", err)
		return leave.Employee{}, settlement.Settlement{}, false
	}
	exitDate, err := generic.ParseDate(req.ExitDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid exit_date", err)
		return leave.Employee{}, settlement.Settlement{}, false
	}
	other := decimal.Zero
	if req.OtherDeductions != "" {
		if other, err = decimal.NewFromString(req.OtherDeductions); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid other_deductions", err)
			return leave.Employee{}, settlement.Settlement{}, false
		}
	}

	emp, out, err := h.Settlement.Compute(r.Context(), settlement.Request{
		EmployeeID:      employeeID(r),
		ExitType:        exitType,
		ExitDate:        exitDate,
		OtherDeductions: other,
		Actor:           req.Actor,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return leave.Employee{}, settlement.Settlement{}, false
	}
	return emp, out, true
}

// =============================================================================
// REFERENCE HANDLERS
// =============================================================================

// GetPolicies returns the active rule table in its file form.
func (h *Handler) GetPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.ToJSON(h.Tables))
}

// QueryAudit returns audit entries, newest last.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter generic.AuditFilter
	if v := q.Get("employee_id"); v != "" {
		id := generic.EmployeeID(v)
		filter.EmployeeID = &id
	}
	if v := q.Get("actor_id"); v != "" {
		filter.ActorID = &v
	}
	if v := q.Get("action"); v != "" {
		filter.Actions = []generic.AuditAction{generic.AuditAction(v)}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}

	entries, err := h.Store.Query(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:         e.ID,
			Timestamp:  e.Timestamp,
			ActorID:    e.ActorID,
			Action:     string(e.Action),
			EmployeeID: string(e.EmployeeID),
			Details:    e.Details,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func employeeID(r *http.Request) generic.EmployeeID {
	return generic.EmployeeID(chi.URLParam(r, "id"))
}

func requestID(r *http.Request) leave.RequestID {
	return leave.RequestID(chi.URLParam(r, "id"))
}

// yearParam reads ?year=, defaulting to the current year.
func (h *Handler) yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return generic.Today(h.Clock).Year(), true
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1900 || year > 9999 {
		writeError(w, http.StatusBadRequest, "Invalid year", fmt.Errorf("%q", raw))
		return 0, false
	}
	return year, true
}

func parseProposal(w http.ResponseWriter, emp, category, start, end string) (leave.Proposal, bool) {
	c, err := leave.ParseCategory(category)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return leave.Proposal{}, false
	}
	s, err := generic.ParseDate(start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return leave.Proposal{}, false
	}
	e, err := generic.ParseDate(end)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return leave.Proposal{}, false
	}
	return leave.Proposal{EmployeeID: generic.EmployeeID(emp), Category: c, Start: s, End: e}, true
}

// decodeAndValidate decodes the JSON body into dst and runs its validate
// tags. On failure it writes a 400 and returns false.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			reasons := make([]string, len(ve))
			for i, fe := range ve {
				reasons[i] = fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Reasons: reasons})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

// writeDomainError maps engine errors to status codes. Unknown errors are
// logged and answered with 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var vf *leave.ValidationFailed
	switch {
	case errors.As(err, &vf):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "Validation failed", Reasons: vf.Reasons})
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, generic.ErrInsufficientBalance):
		writeError(w, http.StatusUnprocessableEntity, "Insufficient balance", err)
	case generic.IsRetryable(err),
		errors.Is(err, leave.ErrInvalidTransition),
		errors.Is(err, generic.ErrAlreadyInitialized),
		errors.Is(err, generic.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, "Conflict", err)
	case leave.IsClientError(err), errors.Is(err, settlement.ErrUnknownExitType):
		writeError(w, http.StatusBadRequest, "Bad request", err)
	default:
		h.Logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

func (h *Handler) audit(r *http.Request, action generic.AuditAction, actor string, emp generic.EmployeeID, details map[string]any) {
	err := h.Store.Append(r.Context(), generic.AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  h.Clock.Now(),
		ActorID:    actor,
		Action:     action,
		EmployeeID: emp,
		Details:    details,
	})
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "audit append failed", "action", action, "employee_id", emp, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
