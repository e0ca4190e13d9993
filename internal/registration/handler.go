package registration

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/transport"
	"github.com/digicoders/feeledger/pkg/logger"
)

type ServiceAPI interface {
	Enroll(ctx context.Context, dto EnrollDTO, actorID *int64) (*Registration, error)
	GetByID(ctx context.Context, id int64) (*Registration, error)
	CheckDues(ctx context.Context, registrationID int64) (*Dues, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	var dto EnrollDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Warn("Enroll: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reg, err := h.Service.Enroll(r.Context(), dto, internal.ActorIDFromContext(r.Context()))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusCreated, "Registration created successfully", reg)
}

func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseIDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	reg, err := h.Service.GetByID(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Registration fetched successfully", reg)
}

// CheckDues answers GET /payments/{id}/dues where id is the registration id.
func (h *Handler) CheckDues(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseIDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	dues, err := h.Service.CheckDues(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Dues fetched successfully", dues)
}
