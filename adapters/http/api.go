package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/AndresRodriguez-98/BibliotecaApi/app"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/account"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// APIHandler serves the account-scoped management API.
type APIHandler struct {
	keys         *app.KeyService
	restrictions *app.RestrictionService
	accounts     *app.AccountService
	delinquency  *app.DelinquencyEvaluator
	validate     *validator.Validate
	logger       zerolog.Logger
}

// APIDeps contains dependencies for the management API.
type APIDeps struct {
	Keys         *app.KeyService
	Restrictions *app.RestrictionService
	Accounts     *app.AccountService
	Delinquency  *app.DelinquencyEvaluator
	Logger       zerolog.Logger
}

// NewAPIHandler creates the management API handler.
func NewAPIHandler(deps APIDeps) *APIHandler {
	return &APIHandler{
		keys:         deps.Keys,
		restrictions: deps.Restrictions,
		accounts:     deps.Accounts,
		delinquency:  deps.Delinquency,
		validate:     newValidator(),
		logger:       deps.Logger.With().Str("component", "api").Logger(),
	}
}

// Register adds the management routes to g.
func (h *APIHandler) Register(g *Registrar) {
	g.HandleFunc(http.MethodGet, "/keys", h.ListKeys)
	g.HandleFunc(http.MethodPost, "/keys", h.CreateKey)
	g.HandleFunc(http.MethodGet, "/keys/{id}", h.GetKey)
	g.HandleFunc(http.MethodPut, "/keys/{id}", h.UpdateKey)
	g.HandleFunc(http.MethodDelete, "/keys/{id}", h.DeleteKey)

	g.HandleFunc(http.MethodGet, "/keys/{id}/restrictions", h.ListRestrictions)
	g.HandleFunc(http.MethodPost, "/keys/{id}/restrictions/domains", h.AddDomain)
	g.HandleFunc(http.MethodPut, "/restrictions/domains/{id}", h.UpdateDomain)
	g.HandleFunc(http.MethodDelete, "/restrictions/domains/{id}", h.RemoveDomain)
	g.HandleFunc(http.MethodPost, "/keys/{id}/restrictions/ips", h.AddIP)
	g.HandleFunc(http.MethodDelete, "/restrictions/ips/{id}", h.RemoveIP)

	g.HandleFunc(http.MethodGet, "/invoices", h.ListInvoices)
	g.HandleFunc(http.MethodPost, "/invoices/{id}/pay", h.PayInvoice)
	g.HandleFunc(http.MethodGet, "/account", h.GetAccount)
}

// -----------------------------------------------------------------------------
// Keys
// -----------------------------------------------------------------------------

// KeyResponse represents a key in API responses.
type KeyResponse struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Token     string `json:"token"`
	Tier      string `json:"tier" example:"free"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

// CreateKeyRequest represents a request to create a key.
type CreateKeyRequest struct {
	Tier string `json:"tier" validate:"required,oneof=free paid"`
}

// UpdateKeyRequest rotates and/or (de)activates a key.
type UpdateKeyRequest struct {
	Rotate bool  `json:"rotate"`
	Active *bool `json:"active"`
}

// ListKeys returns the caller's keys.
//
//	@Summary	List keys
//	@Tags		Keys
//	@Produce	json
//	@Success	200	{object}	map[string]interface{}	"Keys list"
//	@Security	BearerAuth
//	@Router		/api/keys [get]
func (h *APIHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context(), AccountFromContext(r.Context()))
	if err != nil {
		h.serviceError(w, err)
		return
	}

	response := make([]KeyResponse, len(keys))
	for i, k := range keys {
		response[i] = keyToResponse(k)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys":  response,
		"total": len(response),
	})
}

// CreateKey issues a new key.
//
//	@Summary	Create key
//	@Tags		Keys
//	@Accept		json
//	@Produce	json
//	@Param		request	body		CreateKeyRequest	true	"Key tier"
//	@Success	201		{object}	KeyResponse
//	@Failure	400		{object}	ErrorResponse
//	@Failure	422		{object}	ErrorResponse	"Account already has an active free key"
//	@Security	BearerAuth
//	@Router		/api/keys [post]
func (h *APIHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if !h.decode(w, r, &req) {
		return
	}

	k, err := h.keys.Create(r.Context(), AccountFromContext(r.Context()), key.Tier(req.Tier))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, keyToResponse(k))
}

// GetKey returns one key.
//
//	@Summary	Get key
//	@Tags		Keys
//	@Produce	json
//	@Param		id	path		string	true	"Key ID"
//	@Success	200	{object}	KeyResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/api/keys/{id} [get]
func (h *APIHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	k, err := h.keys.Get(r.Context(), AccountFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keyToResponse(k))
}

// UpdateKey rotates the token and/or changes the active flag.
//
//	@Summary	Update key
//	@Tags		Keys
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string				true	"Key ID"
//	@Param		request	body		UpdateKeyRequest	true	"Changes"
//	@Success	200		{object}	KeyResponse
//	@Failure	422		{object}	ErrorResponse	"Account already has an active free key"
//	@Security	BearerAuth
//	@Router		/api/keys/{id} [put]
func (h *APIHandler) UpdateKey(w http.ResponseWriter, r *http.Request) {
	var req UpdateKeyRequest
	if !h.decode(w, r, &req) {
		return
	}

	k, err := h.keys.Update(r.Context(), AccountFromContext(r.Context()), chi.URLParam(r, "id"), app.KeyUpdate{
		Rotate: req.Rotate,
		Active: req.Active,
	})
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keyToResponse(k))
}

// DeleteKey deletes a paid key.
//
//	@Summary	Delete key
//	@Tags		Keys
//	@Param		id	path	string	true	"Key ID"
//	@Success	204
//	@Failure	422	{object}	ErrorResponse	"Free keys cannot be deleted"
//	@Security	BearerAuth
//	@Router		/api/keys/{id} [delete]
func (h *APIHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	if err := h.keys.Delete(r.Context(), AccountFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func keyToResponse(k key.Key) KeyResponse {
	return KeyResponse{
		ID:        k.ID,
		AccountID: k.AccountID,
		Token:     k.Token,
		Tier:      string(k.Tier),
		Active:    k.Active,
		CreatedAt: k.CreatedAt.Format(time.RFC3339),
	}
}

// -----------------------------------------------------------------------------
// Restrictions
// -----------------------------------------------------------------------------

// DomainRequest adds or changes a domain restriction.
type DomainRequest struct {
	Domain string `json:"domain" validate:"required,max=253"`
}

// IPRequest adds an IP restriction.
type IPRequest struct {
	IP string `json:"ip" validate:"required,ip"`
}

// DomainResponse represents a domain restriction.
type DomainResponse struct {
	ID     string `json:"id"`
	KeyID  string `json:"key_id"`
	Domain string `json:"domain"`
}

// IPResponse represents an IP restriction.
type IPResponse struct {
	ID    string `json:"id"`
	KeyID string `json:"key_id"`
	IP    string `json:"ip"`
}

// RestrictionsResponse lists a key's restrictions.
type RestrictionsResponse struct {
	Domains []DomainResponse `json:"domains"`
	IPs     []IPResponse     `json:"ips"`
}

// ListRestrictions returns a key's restrictions.
//
//	@Summary	List key restrictions
//	@Tags		Restrictions
//	@Produce	json
//	@Param		id	path		string	true	"Key ID"
//	@Success	200	{object}	RestrictionsResponse
//	@Security	BearerAuth
//	@Router		/api/keys/{id}/restrictions [get]
func (h *APIHandler) ListRestrictions(w http.ResponseWriter, r *http.Request) {
	rs, err := h.restrictions.List(r.Context(), AccountFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}

	resp := RestrictionsResponse{
		Domains: make([]DomainResponse, len(rs.Domains)),
		IPs:     make([]IPResponse, len(rs.IPs)),
	}
	for i, d := range rs.Domains {
		resp.Domains[i] = domainToResponse(d)
	}
	for i, ip := range rs.IPs {
		resp.IPs[i] = ipToResponse(ip)
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddDomain restricts a key to a domain.
//
//	@Summary	Add domain restriction
//	@Tags		Restrictions
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string			true	"Key ID"
//	@Param		request	body		DomainRequest	true	"Domain"
//	@Success	201		{object}	DomainResponse
//	@Security	BearerAuth
//	@Router		/api/keys/{id}/restrictions/domains [post]
func (h *APIHandler) AddDomain(w http.ResponseWriter, r *http.Request) {
	var req DomainRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := h.restrictions.AddDomain(r.Context(), AccountFromContext(r.Context()), chi.URLParam(r, "id"), req.Domain)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domainToResponse(d))
}

// UpdateDomain changes a domain restriction.
//
//	@Summary	Update domain restriction
//	@Tags		Restrictions
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string			true	"Restriction ID"
//	@Param		request	body		DomainRequest	true	"Domain"
//	@Success	200		{object}	DomainResponse
//	@Security	BearerAuth
//	@Router		/api/restrictions/domains/{id} [put]
func (h *APIHandler) UpdateDomain(w http.ResponseWriter, r *http.Request) {
	var req DomainRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := h.restrictions.UpdateDomain(r.Context(), AccountFromContext(r.Context()), chi.URLParam(r, "id"), req.Domain)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainToResponse(d))
}

// RemoveDomain deletes a domain restriction.
//
//	@Summary	Delete domain restriction
//	@Tags		Restrictions
//	@Param		id	path	string	true	"Restriction ID"
//	@Success	204
//	@Security	BearerAuth
//	@Router		/api/restrictions/domains/{id} [delete]
func (h *APIHandler) RemoveDomain(w http.ResponseWriter, r *http.Request) {
	if err := h.restrictions.RemoveDomain(r.Context(), AccountFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddIP restricts a key to a client IP.
//
//	@Summary	Add IP restriction
//	@Tags		Restrictions
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string		true	"Key ID"
//	@Param		request	body		IPRequest	true	"IP address"
//	@Success	201		{object}	IPResponse
//	@Security	BearerAuth
//	@Router		/api/keys/{id}/restrictions/ips [post]
func (h *APIHandler) AddIP(w http.ResponseWriter, r *http.Request) {
	var req IPRequest
	if !h.decode(w, r, &req) {
		return
	}

	ip, err := h.restrictions.AddIP(r.Context(), AccountFromContext(r.Context()), chi.URLParam(r, "id"), req.IP)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ipToResponse(ip))
}

// RemoveIP deletes an IP restriction.
//
//	@Summary	Delete IP restriction
//	@Tags		Restrictions
//	@Param		id	path	string	true	"Restriction ID"
//	@Success	204
//	@Security	BearerAuth
//	@Router		/api/restrictions/ips/{id} [delete]
func (h *APIHandler) RemoveIP(w http.ResponseWriter, r *http.Request) {
	if err := h.restrictions.RemoveIP(r.Context(), AccountFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func domainToResponse(d key.DomainRestriction) DomainResponse {
	return DomainResponse{ID: d.ID, KeyID: d.KeyID, Domain: d.Domain}
}

func ipToResponse(ip key.IPRestriction) IPResponse {
	return IPResponse{ID: ip.ID, KeyID: ip.KeyID, IP: ip.IP}
}

// -----------------------------------------------------------------------------
// Billing
// -----------------------------------------------------------------------------

// InvoiceResponse represents an invoice.
type InvoiceResponse struct {
	ID         string  `json:"id"`
	AccountID  string  `json:"account_id"`
	Period     string  `json:"period" example:"2024-03"`
	UsageCount int64   `json:"usage_count"`
	Amount     string  `json:"amount" example:"5.00"`
	IssuedAt   string  `json:"issued_at"`
	DueAt      string  `json:"due_at"`
	Paid       bool    `json:"paid"`
	PaidAt     *string `json:"paid_at,omitempty"`
}

// PaymentResponse is the outcome of paying an invoice.
type PaymentResponse struct {
	Invoice            InvoiceResponse `json:"invoice"`
	AlreadySettled     bool            `json:"already_settled"`
	DelinquencyCleared bool            `json:"delinquency_cleared"`
}

// AccountResponse is the caller's billing view.
type AccountResponse struct {
	ID         string `json:"id"`
	Delinquent bool   `json:"delinquent"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// ListInvoices returns the caller's invoices, newest period first.
//
//	@Summary	List invoices
//	@Tags		Billing
//	@Produce	json
//	@Success	200	{object}	map[string]interface{}	"Invoice list"
//	@Security	BearerAuth
//	@Router		/api/invoices [get]
func (h *APIHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.accounts.Invoices(r.Context(), AccountFromContext(r.Context()))
	if err != nil {
		h.serviceError(w, err)
		return
	}

	response := make([]InvoiceResponse, len(invoices))
	for i, inv := range invoices {
		response[i] = invoiceToResponse(inv)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"invoices": response,
		"total":    len(response),
	})
}

// PayInvoice marks one of the caller's invoices paid.
//
//	@Summary	Pay invoice
//	@Tags		Billing
//	@Produce	json
//	@Param		id	path		string	true	"Invoice ID"
//	@Success	200	{object}	PaymentResponse
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/api/invoices/{id}/pay [post]
func (h *APIHandler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if _, err := h.accounts.Invoice(ctx, AccountFromContext(ctx), id); err != nil {
		h.serviceError(w, err)
		return
	}

	result, err := h.delinquency.MarkPaid(ctx, id)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentResponse{
		Invoice:            invoiceToResponse(result.Invoice),
		AlreadySettled:     result.AlreadySettled,
		DelinquencyCleared: result.DelinquencyCleared,
	})
}

// GetAccount returns the caller's account view.
//
//	@Summary	Get account
//	@Tags		Billing
//	@Produce	json
//	@Success	200	{object}	AccountResponse
//	@Security	BearerAuth
//	@Router		/api/account [get]
func (h *APIHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.View(r.Context(), AccountFromContext(r.Context()))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountToResponse(acc))
}

func invoiceToResponse(inv billing.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:         inv.ID,
		AccountID:  inv.AccountID,
		Period:     inv.Period.String(),
		UsageCount: inv.Count,
		Amount:     inv.Amount.StringFixed(2),
		IssuedAt:   inv.IssuedAt.Format(time.RFC3339),
		DueAt:      inv.DueAt.Format(time.RFC3339),
		Paid:       inv.Paid,
	}
	if inv.PaidAt != nil {
		s := inv.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &s
	}
	return resp
}

func accountToResponse(acc account.Account) AccountResponse {
	resp := AccountResponse{ID: acc.ID, Delinquent: acc.Delinquent}
	if !acc.CreatedAt.IsZero() {
		resp.CreatedAt = acc.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error code and message.
type ErrorDetail struct {
	Code    string `json:"code" example:"not_found"`
	Message string `json:"message" example:"key not found"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Use JSON tag names for field names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. It writes the error
// response and returns false on failure.
func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, e.Field()+" is required")
		case "oneof":
			msgs = append(msgs, e.Field()+" must be one of: "+e.Param())
		case "ip":
			msgs = append(msgs, e.Field()+" must be an IP address")
		case "max":
			msgs = append(msgs, e.Field()+" must be at most "+e.Param()+" characters")
		default:
			msgs = append(msgs, e.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// serviceError maps application errors to HTTP responses.
func (h *APIHandler) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "resource belongs to another account")
	case errors.Is(err, key.ErrFreeKeyExists), errors.Is(err, key.ErrFreeKeyNotDeletable):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, app.ErrValidation), errors.Is(err, key.ErrInvalidTier), errors.Is(err, key.ErrInvalidRestriction):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ports.ErrDuplicate):
		writeError(w, http.StatusConflict, "conflict", "resource already exists")
	default:
		h.logger.Error().Err(err).Msg("management request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
