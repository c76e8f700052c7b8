package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ruralpay/remittance/internal/models"
	"github.com/ruralpay/remittance/internal/services"
)

const maxBodyBytes = 1_048_576 // 1 MB

// statusByKind maps core error kinds to HTTP status codes.
var statusByKind = map[models.ErrorKind]int{
	models.KindValidation:        http.StatusBadRequest,
	models.KindRateUnavailable:   http.StatusServiceUnavailable,
	models.KindAmountOutOfRange:  http.StatusUnprocessableEntity,
	models.KindInsufficientFunds: http.StatusUnprocessableEntity,
	models.KindAccountInactive:   http.StatusUnprocessableEntity,
	models.KindNotFound:          http.StatusNotFound,
	models.KindUnauthorized:      http.StatusForbidden,
	models.KindTenantMismatch:    http.StatusForbidden,
	models.KindInvalidStatus:     http.StatusConflict,
	models.KindWrongLevel:        http.StatusConflict,
	models.KindAlreadyApproved:   http.StatusConflict,
	models.KindAlreadyRedeemed:   http.StatusConflict,
	models.KindExpired:           http.StatusGone,
	models.KindTokenMalformed:    http.StatusBadRequest,
	models.KindTokenInvalid:      http.StatusBadRequest,
	models.KindTokenExpired:      http.StatusGone,
	models.KindNameMismatch:      http.StatusUnprocessableEntity,
	models.KindConflict:          http.StatusConflict,
	models.KindContention:        http.StatusConflict,
	models.KindLedgerError:       http.StatusBadGateway,
	models.KindStoreUnavailable:  http.StatusServiceUnavailable,
	models.KindInternal:          http.StatusInternalServerError,
}

type RemittanceHandler struct {
	service   *services.RemittanceService
	validator *services.ValidationHelper
	log       zerolog.Logger
}

func NewRemittanceHandler(service *services.RemittanceService, log zerolog.Logger) *RemittanceHandler {
	return &RemittanceHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		log:       log.With().Str("component", "remittance_handler").Logger(),
	}
}

// Routes mounts the remittance API. Callers must already be authenticated.
func (h *RemittanceHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/stats", h.Stats)
	r.Post("/redeem", h.Redeem)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Get("/qr", h.QR)
		r.Get("/settlement", h.Settlement)
		r.Get("/events", h.Events)
		r.Post("/approve", h.Approve)
		r.Post("/process", h.Process)
		r.Post("/confirm-receipt", h.ConfirmReceipt)
		r.Post("/complete", h.Complete)
		r.Post("/cancel", h.Cancel)
		r.Post("/fail", h.Fail)
	})
}

type approveRequest struct {
	Level int    `json:"level" validate:"required,gte=1,lte=10"`
	Notes string `json:"notes,omitempty" validate:"max=500"`
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// Create creates a remittance
// @Summary Create remittance
// @Description Freeze the sender's funds and issue a claim code and QR token
// @Tags remittances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateInput true "Remittance"
// @Success 201 {object} services.CreateResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /remittances [post]
func (h *RemittanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateInput
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.sendError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// List lists remittances of the caller's tenant
// @Summary List remittances
// @Tags remittances
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status"
// @Param type query string false "Type"
// @Param senderId query string false "Sender"
// @Param senderBranchId query string false "Sender branch"
// @Param receiverBranchId query string false "Receiver branch"
// @Param createdFrom query string false "RFC3339 lower bound"
// @Param createdTo query string false "RFC3339 upper bound"
// @Param page query int false "Page" default(1)
// @Param size query int false "Page size" default(20)
// @Success 200 {object} models.Page
// @Router /remittances [get]
func (h *RemittanceHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.sendError(w, err)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		h.sendError(w, err)
		return
	}
	size, err := queryInt(r, "size")
	if err != nil {
		h.sendError(w, err)
		return
	}

	res, err := h.service.List(r.Context(), filter, page, size)
	if err != nil {
		h.sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Stats aggregates remittances by status and currency
// @Summary Remittance statistics
// @Tags remittances
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Stats
// @Router /remittances/stats [get]
func (h *RemittanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.sendError(w, err)
		return
	}
	res, err := h.service.Stats(r.Context(), filter)
	if err != nil {
		h.sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Redeem pays out a remittance at the destination branch
// @Summary Redeem remittance
// @Description Consume a secret code or QR token once, debiting the sender
// @Tags remittances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.RedeemRequest true "Claim"
// @Success 200 {object} models.Remittance
// @Failure 409 {object} services.ErrorResponse
// @Failure 410 {object} services.ErrorResponse
// @Router /remittances/redeem [post]
func (h *RemittanceHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req services.RedeemRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.Redeem(r.Context(), req)
	if err != nil {
		h.sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Get returns one remittance
// @Summary Get remittance
// @Tags remittances
// @Produce json
// @Security BearerAuth
// @Param id path string true "Remittance ID"
// @Success 200 {object} models.Remittance
// @Failure 404 {object} services.ErrorResponse
// @Router /remittances/{id} [get]
func (h *RemittanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// QR renders the claim token as a PNG
// @Summary Claim QR code
// @Tags remittances
// @Produce png
// @Security BearerAuth
// @Param id path string true "Remittance ID"
// @Success 200 {file} binary
// @Router /remittances/{id}/qr [get]
func (h *RemittanceHandler) QR(w http.ResponseWriter, r *http.Request) {
	png, err := h.service.QR(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sendError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// Settlement returns the pacs.008 advice of a completed remittance
// @Summary Settlement advice
// @Tags remittances
// @Produce xml
// @Security BearerAuth
// @Param id path string true "Remittance ID"
// @Success 200 {string} string
// @Router /remittances/{id}/settlement [get]
func (h *RemittanceHandler) Settlement(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.SettlementAdvice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sendError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, doc)
}

// Events returns the audit trail
// @Summary Remittance audit trail
// @Tags remittances
// @Produce json
// @Security BearerAuth
// @Param id path string true "Remittance ID"
// @Success 200 {array} audit.Event
// @Router /remittances/{id}/events [get]
func (h *RemittanceHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// Approve signs the next approval level
// @Summary Approve remittance
// @Tags remittances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Remittance ID"
// @Param request body approveRequest true "Approval"
// @Success 200 {object} models.Remittance
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /remittances/{id}/approve [post]
func (h *RemittanceHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"), req.Level, req.Notes)
	if err != nil {
		h.sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Process starts processing
// @Summary Process remittance
// @Tags remittances
// @Produce json
// @Security BearerAuth
// @Param id path string true "Remittance ID"
// @Success 200 {object} models.Remittance
// @Router /remittances/{id}/process [post]
func (h *RemittanceHandler) Process(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Process)
}

// ConfirmReceipt records the destination handoff
// @Summary Confirm receipt
// @Tags remittances
// @Produce json
// @Security BearerAuth
// @Param id path string true "Remittance ID"
// @Success 200 {object} models.Remittance
// @Router /remittances/{id}/confirm-receipt [post]
func (h *RemittanceHandler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.ConfirmReceipt)
}

// Complete debits the sender and completes
// @Summary Complete remittance
// @Tags remittances
// @Produce json
// @Security BearerAuth
// @Param id path string true "Remittance ID"
// @Success 200 {object} models.Remittance
// @Router /remittances/{id}/complete [post]
func (h *RemittanceHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Complete)
}

// Cancel cancels and releases the sender's funds
// @Summary Cancel remittance
// @Tags remittances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Remittance ID"
// @Param request body reasonRequest false "Reason"
// @Success 200 {object} models.Remittance
// @Router /remittances/{id}/cancel [post]
func (h *RemittanceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	res, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Fail marks the remittance failed and releases the sender's funds
// @Summary Fail remittance
// @Tags remittances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Remittance ID"
// @Param request body reasonRequest false "Reason"
// @Success 200 {object} models.Remittance
// @Failure 403 {object} services.ErrorResponse
// @Router /remittances/{id}/fail [post]
func (h *RemittanceHandler) Fail(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	res, err := h.service.Fail(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *RemittanceHandler) respond(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) (*models.Remittance, error)) {
	res, err := op(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *RemittanceHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, models.ErrValidation)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, models.ErrValidation)
		return false
	}
	if err := h.validator.Validate(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func (h *RemittanceHandler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return h.decode(w, r, dst)
}

func (h *RemittanceHandler) sendError(w http.ResponseWriter, err error) {
	kind := models.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("kind", string(kind)).Msg("request failed")
	}

	message := err.Error()
	var de *models.DomainError
	switch {
	case kind == models.KindInternal:
		message = "internal error"
	case errors.As(err, &de) && de.Message != "":
		message = de.Message
	}

	services.SendErrorResponse(w, message, status, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseFilter(r *http.Request) (models.ListFilter, error) {
	q := r.URL.Query()
	f := models.ListFilter{
		Status:           models.Status(strings.ToUpper(q.Get("status"))),
		Type:             models.RemittanceType(strings.ToUpper(q.Get("type"))),
		SenderID:         q.Get("senderId"),
		SenderBranchID:   q.Get("senderBranchId"),
		ReceiverBranchID: q.Get("receiverBranchId"),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, models.NewError(models.KindValidation, "unknown status %q", f.Status)
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, models.NewError(models.KindValidation, "unknown type %q", f.Type)
	}

	for key, dst := range map[string]**time.Time{"createdFrom": &f.CreatedFrom, "createdTo": &f.CreatedTo} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, models.NewError(models.KindValidation, "%s must be RFC3339", key)
		}
		*dst = &t
	}
	return f, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, models.NewError(models.KindValidation, "%s must be a non-negative integer", key)
	}
	return n, nil
}
