// Package handler exposes votes and ballot casting over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"agora/internal/vote/models"
	voteservice "agora/internal/vote/service"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/platform/httputil"
	"agora/pkg/requestcontext"
)

// Service defines the vote operations reachable over HTTP.
type Service interface {
	CreateVote(ctx context.Context, cmd voteservice.CreateVoteCommand) (*models.Vote, error)
	CastBallot(ctx context.Context, voteID id.VoteID, voter id.UserRef, payload models.Payload) (*models.Ballot, error)
	Close(ctx context.Context, voteID id.VoteID) (*models.Vote, error)
	Get(ctx context.Context, voteID id.VoteID) (*models.Vote, error)
	ListBallots(ctx context.Context, voteID id.VoteID) ([]*models.Ballot, error)
}

// CreateVoteRequest is the body of POST /votes.
type CreateVoteRequest struct {
	Type         string     `json:"type"`
	Subject      string     `json:"subject"`
	Options      []string   `json:"options"`
	RevokeOption string     `json:"revoke_option"`
	TiePolicy    string     `json:"tie_policy"`
	ClosesAt     *time.Time `json:"closes_at"`
}

// Validate implements httputil.Validatable. Option rules live on the model.
func (r *CreateVoteRequest) Validate() error {
	r.Type = strings.TrimSpace(r.Type)
	r.TiePolicy = strings.ToLower(strings.TrimSpace(r.TiePolicy))
	if !models.Type(r.Type).IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown vote type %q", r.Type)
	}
	if r.TiePolicy != "" && !models.TiePolicy(r.TiePolicy).IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown tie policy %q", r.TiePolicy)
	}
	return nil
}

// CastBallotRequest is the body of POST /votes/{voteID}/ballots. Payload is
// decoded against the vote type once the vote is loaded.
type CastBallotRequest struct {
	Voter   string          `json:"voter"`
	Payload json.RawMessage `json:"payload"`
}

// Validate implements httputil.Validatable.
func (r *CastBallotRequest) Validate() error {
	r.Voter = strings.TrimSpace(r.Voter)
	if r.Voter == "" {
		return dErrors.New(dErrors.CodeValidation, "voter is required")
	}
	if len(r.Payload) == 0 {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	return nil
}

// Handler wires vote endpoints to the vote service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a vote handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts vote endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/votes", h.HandleCreate)
	r.Get("/votes/{voteID}", h.HandleGet)
	r.Post("/votes/{voteID}/ballots", h.HandleCastBallot)
	r.Get("/votes/{voteID}/ballots", h.HandleListBallots)
	r.Post("/votes/{voteID}/close", h.HandleClose)
}

// HandleCreate handles POST /votes.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateVoteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	v, err := h.service.CreateVote(ctx, voteservice.CreateVoteCommand{
		Type:         models.Type(req.Type),
		Subject:      req.Subject,
		Options:      req.Options,
		RevokeOption: req.RevokeOption,
		TiePolicy:    models.TiePolicy(req.TiePolicy),
		ClosesAt:     req.ClosesAt,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "create vote failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, v)
}

// HandleGet handles GET /votes/{voteID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	voteID, err := id.ParseVoteID(chi.URLParam(r, "voteID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.Get(r.Context(), voteID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

// HandleCastBallot handles POST /votes/{voteID}/ballots.
func (h *Handler) HandleCastBallot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	voteID, err := id.ParseVoteID(chi.URLParam(r, "voteID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CastBallotRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	v, err := h.service.Get(ctx, voteID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	payload, err := models.DecodePayload(v.Type, req.Payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ballot, err := h.service.CastBallot(ctx, voteID, id.UserRef(req.Voter), payload)
	if err != nil {
		h.logger.WarnContext(ctx, "cast ballot failed",
			"request_id", requestID,
			"vote_id", voteID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ballot)
}

// HandleListBallots handles GET /votes/{voteID}/ballots.
func (h *Handler) HandleListBallots(w http.ResponseWriter, r *http.Request) {
	voteID, err := id.ParseVoteID(chi.URLParam(r, "voteID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ballots, err := h.service.ListBallots(r.Context(), voteID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"ballots": ballots})
}

// HandleClose handles POST /votes/{voteID}/close. Closing a closed vote
// returns the frozen result.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	voteID, err := id.ParseVoteID(chi.URLParam(r, "voteID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.Close(ctx, voteID)
	if err != nil {
		h.logger.ErrorContext(ctx, "close vote failed",
			"request_id", requestcontext.RequestID(ctx),
			"vote_id", voteID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}
