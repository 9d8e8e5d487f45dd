// Package handler exposes evaluation recording over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"agora/internal/evaluation"
	"agora/internal/mandate/models"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/httputil"
	"agora/pkg/requestcontext"
)

// Service defines the evaluation operations reachable over HTTP.
type Service interface {
	RecordEvaluation(ctx context.Context, cmd evaluation.RecordCommand) (*evaluation.RecordResult, error)
	ListCurrent(ctx context.Context, deliverableID id.DeliverableID) ([]*models.Evaluation, error)
}

// RecordRequest is the body of POST /deliverables/{deliverableID}/evaluations.
type RecordRequest struct {
	Evaluator string `json:"evaluator"`
	Verdict   string `json:"verdict"`
	Comment   string `json:"comment"`
}

// Validate implements httputil.Validatable.
func (r *RecordRequest) Validate() error {
	r.Evaluator = strings.TrimSpace(r.Evaluator)
	r.Verdict = strings.ToLower(strings.TrimSpace(r.Verdict))
	if r.Evaluator == "" {
		return dErrors.New(dErrors.CodeValidation, "evaluator is required")
	}
	if !models.Verdict(r.Verdict).IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown verdict %q", r.Verdict)
	}
	return nil
}

// RecordResponse reports the evaluation and the state it produced.
type RecordResponse struct {
	Evaluation  *models.Evaluation  `json:"evaluation"`
	Deliverable *models.Deliverable `json:"deliverable"`
	Mandate     *models.Mandate     `json:"mandate,omitempty"`
}

// Handler wires evaluation endpoints to the aggregator service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an evaluation handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts evaluation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/deliverables/{deliverableID}/evaluations", h.HandleRecord)
	r.Get("/deliverables/{deliverableID}/evaluations", h.HandleList)
}

// HandleRecord handles POST /deliverables/{deliverableID}/evaluations.
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	deliverableID, err := id.ParseDeliverableID(chi.URLParam(r, "deliverableID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.RecordEvaluation(ctx, evaluation.RecordCommand{
		DeliverableID: deliverableID,
		Evaluator:     id.UserRef(req.Evaluator),
		Verdict:       models.Verdict(req.Verdict),
		Comment:       req.Comment,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "record evaluation failed",
			"request_id", requestID,
			"deliverable_id", deliverableID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RecordResponse{
		Evaluation:  res.Evaluation,
		Deliverable: res.Deliverable,
		Mandate:     res.Mandate,
	})
}

// HandleList handles GET /deliverables/{deliverableID}/evaluations.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	deliverableID, err := id.ParseDeliverableID(chi.URLParam(r, "deliverableID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.service.ListCurrent(r.Context(), deliverableID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"evaluations": list})
}
