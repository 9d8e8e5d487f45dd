package handler

import (
	"strings"
	"time"

	"agora/internal/deadline"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

// CreateMandateRequest is the body of POST /mandates.
type CreateMandateRequest struct {
	Proposal string `json:"proposal"`
}

// Validate implements httputil.Validatable.
func (r *CreateMandateRequest) Validate() error {
	r.Proposal = strings.TrimSpace(r.Proposal)
	if r.Proposal == "" {
		return dErrors.New(dErrors.CodeValidation, "proposal is required")
	}
	return nil
}

// ConfigRequest overrides the engine defaults for one mandate. Durations use
// Go duration syntax ("720h").
type ConfigRequest struct {
	Term                  string         `json:"term"`
	EvaluationWindow      string         `json:"evaluation_window"`
	CureWindow            string         `json:"cure_window"`
	Quorum                int            `json:"quorum"`
	ObjectiveQuorums      map[string]int `json:"objective_quorums"`
	RequiredDeliverables  int            `json:"required_deliverables"`
	ExpireOnNonConformity bool           `json:"expire_on_non_conformity"`
}

// AssignRequest is the body of POST /mandates/{mandateID}/assign.
type AssignRequest struct {
	Assignee string         `json:"assignee"`
	Config   *ConfigRequest `json:"config,omitempty"`

	parsedConfig *deadline.Config
}

// Validate implements httputil.Validatable.
func (r *AssignRequest) Validate() error {
	r.Assignee = strings.TrimSpace(r.Assignee)
	if r.Assignee == "" {
		return dErrors.New(dErrors.CodeValidation, "assignee is required")
	}
	if r.Config == nil {
		return nil
	}
	cfg := deadline.Config{
		Quorum:                r.Config.Quorum,
		ObjectiveQuorums:      r.Config.ObjectiveQuorums,
		RequiredDeliverables:  r.Config.RequiredDeliverables,
		ExpireOnNonConformity: r.Config.ExpireOnNonConformity,
	}
	var err error
	if cfg.Term, err = parseDuration("term", r.Config.Term); err != nil {
		return err
	}
	if cfg.EvaluationWindow, err = parseDuration("evaluation_window", r.Config.EvaluationWindow); err != nil {
		return err
	}
	if cfg.CureWindow, err = parseDuration("cure_window", r.Config.CureWindow); err != nil {
		return err
	}
	cfg = cfg.Normalize()
	r.parsedConfig = &cfg
	return nil
}

// ParsedConfig returns the override, or nil for engine defaults.
func (r *AssignRequest) ParsedConfig() *deadline.Config {
	return r.parsedConfig
}

func parseDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, dErrors.Newf(dErrors.CodeValidation, "%s must be a non-negative duration", field)
	}
	return d, nil
}

// SubmitDeliverableRequest is the body of POST /mandates/{mandateID}/deliverables.
type SubmitDeliverableRequest struct {
	Uploader  string `json:"uploader"`
	Label     string `json:"label"`
	Objective string `json:"objective"`
}

// Validate implements httputil.Validatable.
func (r *SubmitDeliverableRequest) Validate() error {
	r.Uploader = strings.TrimSpace(r.Uploader)
	r.Label = strings.TrimSpace(r.Label)
	r.Objective = strings.TrimSpace(r.Objective)
	if r.Uploader == "" {
		return dErrors.New(dErrors.CodeValidation, "uploader is required")
	}
	if r.Label == "" {
		return dErrors.New(dErrors.CodeValidation, "label is required")
	}
	return nil
}

func (r *SubmitDeliverableRequest) uploader() id.UserRef {
	return id.UserRef(r.Uploader)
}
