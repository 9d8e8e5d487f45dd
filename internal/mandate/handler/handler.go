// Package handler exposes the mandate command and query surface over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agora/internal/deadline"
	"agora/internal/mandate/models"
	mandateservice "agora/internal/mandate/service"
	id "agora/pkg/domain"
	"agora/pkg/platform/httputil"
	"agora/pkg/requestcontext"
)

// Service defines the mandate operations reachable over HTTP.
type Service interface {
	Create(ctx context.Context, proposal id.ProposalRef) (*models.Mandate, error)
	Assign(ctx context.Context, mandateID id.MandateID, assignee id.UserRef, cfg *deadline.Config) (*models.Mandate, error)
	SubmitDeliverable(ctx context.Context, cmd mandateservice.SubmitDeliverableCommand) (*models.Deliverable, error)
	Get(ctx context.Context, mandateID id.MandateID) (*models.Mandate, error)
	GetDeliverable(ctx context.Context, deliverableID id.DeliverableID) (*models.Deliverable, error)
	ListDeliverables(ctx context.Context, mandateID id.MandateID) ([]*models.Deliverable, error)
}

// Handler wires mandate endpoints to the mandate service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a mandate handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts mandate endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/mandates", h.HandleCreate)
	r.Get("/mandates/{mandateID}", h.HandleGet)
	r.Post("/mandates/{mandateID}/assign", h.HandleAssign)
	r.Post("/mandates/{mandateID}/deliverables", h.HandleSubmitDeliverable)
	r.Get("/mandates/{mandateID}/deliverables", h.HandleListDeliverables)
	r.Get("/deliverables/{deliverableID}", h.HandleGetDeliverable)
}

// HandleCreate handles POST /mandates.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateMandateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	m, err := h.service.Create(ctx, id.ProposalRef(req.Proposal))
	if err != nil {
		h.fail(ctx, w, "create mandate failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, m)
}

// HandleGet handles GET /mandates/{mandateID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	mandateID, err := id.ParseMandateID(chi.URLParam(r, "mandateID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	m, err := h.service.Get(r.Context(), mandateID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// HandleAssign handles POST /mandates/{mandateID}/assign.
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	mandateID, err := id.ParseMandateID(chi.URLParam(r, "mandateID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AssignRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	m, err := h.service.Assign(ctx, mandateID, id.UserRef(req.Assignee), req.ParsedConfig())
	if err != nil {
		h.fail(ctx, w, "assign mandate failed", err, "mandate_id", mandateID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// HandleSubmitDeliverable handles POST /mandates/{mandateID}/deliverables.
func (h *Handler) HandleSubmitDeliverable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	mandateID, err := id.ParseMandateID(chi.URLParam(r, "mandateID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitDeliverableRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	d, err := h.service.SubmitDeliverable(ctx, mandateservice.SubmitDeliverableCommand{
		MandateID: mandateID,
		Uploader:  req.uploader(),
		Label:     req.Label,
		Objective: id.ObjectiveRef(req.Objective),
	})
	if err != nil {
		h.fail(ctx, w, "submit deliverable failed", err, "mandate_id", mandateID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

// HandleListDeliverables handles GET /mandates/{mandateID}/deliverables.
func (h *Handler) HandleListDeliverables(w http.ResponseWriter, r *http.Request) {
	mandateID, err := id.ParseMandateID(chi.URLParam(r, "mandateID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.service.ListDeliverables(r.Context(), mandateID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"deliverables": list})
}

// HandleGetDeliverable handles GET /deliverables/{deliverableID}.
func (h *Handler) HandleGetDeliverable(w http.ResponseWriter, r *http.Request) {
	deliverableID, err := id.ParseDeliverableID(chi.URLParam(r, "deliverableID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.service.GetDeliverable(r.Context(), deliverableID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	h.logger.WarnContext(ctx, msg, attrs...)
	httputil.WriteError(w, err)
}
