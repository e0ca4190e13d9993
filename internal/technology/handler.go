package technology

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/digicoders/feeledger/internal/transport"
)

type ServiceAPI interface {
	ListTechnologies(ctx context.Context) ([]*Technology, error)
	GetTechnology(ctx context.Context, id int64) (*Technology, error)
	CreateTechnology(ctx context.Context, dto CreateTechnologyDTO) (*Technology, error)
	DeactivateTechnology(ctx context.Context, id int64) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) ListTechnologies(w http.ResponseWriter, r *http.Request) {
	techs, err := h.Service.ListTechnologies(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "Technologies fetched successfully", techs)
}

func (h *Handler) GetTechnology(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseIDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	tech, err := h.Service.GetTechnology(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "Technology fetched successfully", tech)
}

func (h *Handler) CreateTechnology(w http.ResponseWriter, r *http.Request) {
	var dto CreateTechnologyDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Warn("CreateTechnology: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tech, err := h.Service.CreateTechnology(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteSuccess(w, http.StatusCreated, "Technology created successfully", tech)
}

func (h *Handler) DeactivateTechnology(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseIDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.DeactivateTechnology(r.Context(), id); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "Technology deactivated successfully", nil)
}
