// Package handler exposes revocation requests over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	mandatemodels "agora/internal/mandate/models"
	"agora/internal/revocation/models"
	revocationservice "agora/internal/revocation/service"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/httputil"
	"agora/pkg/requestcontext"
)

// Service defines the revocation operations reachable over HTTP.
type Service interface {
	Open(ctx context.Context, mandateID id.MandateID, initiator id.UserRef, reason string) (*models.Request, error)
	AttachVote(ctx context.Context, requestID id.RevocationID, voteID id.VoteID) (*models.Request, error)
	CloseVote(ctx context.Context, requestID id.RevocationID) (*revocationservice.ResolveResult, error)
	Withdraw(ctx context.Context, requestID id.RevocationID) (*models.Request, error)
	Get(ctx context.Context, requestID id.RevocationID) (*models.Request, error)
	ListByMandate(ctx context.Context, mandateID id.MandateID) ([]*models.Request, error)
}

// OpenRequest is the body of POST /mandates/{mandateID}/revocations.
type OpenRequest struct {
	Initiator string `json:"initiator"`
	Reason    string `json:"reason"`
}

// Validate implements httputil.Validatable.
func (r *OpenRequest) Validate() error {
	r.Initiator = strings.TrimSpace(r.Initiator)
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Initiator == "" {
		return dErrors.New(dErrors.CodeValidation, "initiator is required")
	}
	return nil
}

// AttachVoteRequest is the body of POST /revocations/{requestID}/vote.
type AttachVoteRequest struct {
	VoteID string `json:"vote_id"`

	parsedVoteID id.VoteID
}

// Validate implements httputil.Validatable.
func (r *AttachVoteRequest) Validate() error {
	voteID, err := id.ParseVoteID(r.VoteID)
	if err != nil {
		return err
	}
	r.parsedVoteID = voteID
	return nil
}

// ResolveResponse is returned once a request reached a terminal status.
type ResolveResponse struct {
	Request *models.Request        `json:"request"`
	Mandate *mandatemodels.Mandate `json:"mandate"`
}

// Handler wires revocation endpoints to the coordinator service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a revocation handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts revocation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/mandates/{mandateID}/revocations", h.HandleOpen)
	r.Get("/mandates/{mandateID}/revocations", h.HandleList)
	r.Get("/revocations/{requestID}", h.HandleGet)
	r.Post("/revocations/{requestID}/vote", h.HandleAttachVote)
	r.Post("/revocations/{requestID}/close-vote", h.HandleCloseVote)
	r.Post("/revocations/{requestID}/withdraw", h.HandleWithdraw)
}

// HandleOpen handles POST /mandates/{mandateID}/revocations.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	mandateID, err := id.ParseMandateID(chi.URLParam(r, "mandateID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[OpenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	opened, err := h.service.Open(ctx, mandateID, id.UserRef(req.Initiator), req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "open revocation failed",
			"request_id", requestID,
			"mandate_id", mandateID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, opened)
}

// HandleList handles GET /mandates/{mandateID}/revocations.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	mandateID, err := id.ParseMandateID(chi.URLParam(r, "mandateID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.service.ListByMandate(r.Context(), mandateID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"revocations": list})
}

// HandleGet handles GET /revocations/{requestID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	revocationID, ok := parseRequestID(w, r)
	if !ok {
		return
	}
	req, err := h.service.Get(r.Context(), revocationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

// HandleAttachVote handles POST /revocations/{requestID}/vote.
func (h *Handler) HandleAttachVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	revocationID, ok := parseRequestID(w, r)
	if !ok {
		return
	}
	body, ok := httputil.DecodeAndPrepare[AttachVoteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	updated, err := h.service.AttachVote(ctx, revocationID, body.parsedVoteID)
	if err != nil {
		h.logger.WarnContext(ctx, "attach vote failed",
			"request_id", requestID,
			"revocation_id", revocationID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

// HandleCloseVote handles POST /revocations/{requestID}/close-vote.
func (h *Handler) HandleCloseVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	revocationID, ok := parseRequestID(w, r)
	if !ok {
		return
	}
	res, err := h.service.CloseVote(ctx, revocationID)
	if err != nil {
		h.logger.WarnContext(ctx, "close revocation vote failed",
			"request_id", requestcontext.RequestID(ctx),
			"revocation_id", revocationID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ResolveResponse{Request: res.Request, Mandate: res.Mandate})
}

// HandleWithdraw handles POST /revocations/{requestID}/withdraw.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	revocationID, ok := parseRequestID(w, r)
	if !ok {
		return
	}
	withdrawn, err := h.service.Withdraw(r.Context(), revocationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, withdrawn)
}

func parseRequestID(w http.ResponseWriter, r *http.Request) (id.RevocationID, bool) {
	revocationID, err := id.ParseRevocationID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.RevocationID{}, false
	}
	return revocationID, true
}
