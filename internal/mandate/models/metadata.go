package models

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"agora/internal/deadline"
	id "agora/pkg/domain"
	dErrors "agora/pkg/domain-errors"
)

// Metadata is the engine-private key/value blob carried on mandates and
// deliverables. Keys written by the engine:
//
//	config_version            snapshot schema version
//	term                      Go duration
//	evaluation_window         Go duration
//	cure_window               Go duration
//	quorum                    default evaluator quorum
//	quorum.<objective>        per-objective quorum override
//	required_deliverables     approvals needed to complete
//	expire_on_non_conformity  "true" or "false"
//	outcome.<deliverable_id>  resolved deliverable status already applied
type Metadata map[string]string

const (
	// ConfigVersion is the snapshot schema written by PutConfig.
	ConfigVersion = "1"

	keyConfigVersion         = "config_version"
	keyTerm                  = "term"
	keyEvaluationWindow      = "evaluation_window"
	keyCureWindow            = "cure_window"
	keyQuorum                = "quorum"
	keyQuorumPrefix          = "quorum."
	keyRequiredDeliverables  = "required_deliverables"
	keyExpireOnNonConformity = "expire_on_non_conformity"
	keyOutcomePrefix         = "outcome."
)

func (md Metadata) Clone() Metadata {
	if md == nil {
		return Metadata{}
	}
	return maps.Clone(md)
}

// HasConfig reports whether a snapshot has been written.
func (md Metadata) HasConfig() bool {
	_, ok := md[keyConfigVersion]
	return ok
}

// PutConfig writes cfg as the configuration snapshot.
func (md Metadata) PutConfig(cfg deadline.Config) {
	cfg = cfg.Normalize()
	md[keyConfigVersion] = ConfigVersion
	md[keyTerm] = cfg.Term.String()
	md[keyEvaluationWindow] = cfg.EvaluationWindow.String()
	md[keyCureWindow] = cfg.CureWindow.String()
	md[keyQuorum] = strconv.Itoa(cfg.Quorum)
	md[keyRequiredDeliverables] = strconv.Itoa(cfg.RequiredDeliverables)
	md[keyExpireOnNonConformity] = strconv.FormatBool(cfg.ExpireOnNonConformity)
	for objective, q := range cfg.ObjectiveQuorums {
		objective = strings.TrimSpace(objective)
		if objective == "" || q < 1 {
			continue
		}
		md[keyQuorumPrefix+objective] = strconv.Itoa(q)
	}
}

// Config decodes the snapshot. A missing snapshot is a validation error: the
// mandate has not been assigned yet.
func (md Metadata) Config() (deadline.Config, error) {
	version, ok := md[keyConfigVersion]
	if !ok {
		return deadline.Config{}, dErrors.New(dErrors.CodeValidation, "mandate has no configuration snapshot")
	}
	if version != ConfigVersion {
		return deadline.Config{}, dErrors.Newf(dErrors.CodeInternal, "unsupported configuration snapshot version %q", version)
	}

	var (
		cfg deadline.Config
		err error
	)
	if cfg.Term, err = md.duration(keyTerm); err != nil {
		return deadline.Config{}, err
	}
	if cfg.EvaluationWindow, err = md.duration(keyEvaluationWindow); err != nil {
		return deadline.Config{}, err
	}
	if cfg.CureWindow, err = md.duration(keyCureWindow); err != nil {
		return deadline.Config{}, err
	}
	if cfg.Quorum, err = md.integer(keyQuorum); err != nil {
		return deadline.Config{}, err
	}
	if cfg.RequiredDeliverables, err = md.integer(keyRequiredDeliverables); err != nil {
		return deadline.Config{}, err
	}
	if raw, ok := md[keyExpireOnNonConformity]; ok {
		if cfg.ExpireOnNonConformity, err = strconv.ParseBool(raw); err != nil {
			return deadline.Config{}, snapshotError(keyExpireOnNonConformity, err)
		}
	}
	for key, raw := range md {
		objective, found := strings.CutPrefix(key, keyQuorumPrefix)
		if !found {
			continue
		}
		q, err := strconv.Atoi(raw)
		if err != nil {
			return deadline.Config{}, snapshotError(key, err)
		}
		if cfg.ObjectiveQuorums == nil {
			cfg.ObjectiveQuorums = map[string]int{}
		}
		cfg.ObjectiveQuorums[objective] = q
	}
	return cfg.Normalize(), nil
}

// Outcome returns the deliverable outcome already applied to the mandate.
func (md Metadata) Outcome(deliverableID id.DeliverableID) (DeliverableStatus, bool) {
	raw, ok := md[keyOutcomePrefix+deliverableID.String()]
	return DeliverableStatus(raw), ok
}

// PutOutcome records that a deliverable outcome was applied.
func (md Metadata) PutOutcome(deliverableID id.DeliverableID, outcome DeliverableStatus) {
	md[keyOutcomePrefix+deliverableID.String()] = string(outcome)
}

// CountOutcomes counts applied outcomes with the given status.
func (md Metadata) CountOutcomes(outcome DeliverableStatus) int {
	n := 0
	for key, raw := range md {
		if strings.HasPrefix(key, keyOutcomePrefix) && DeliverableStatus(raw) == outcome {
			n++
		}
	}
	return n
}

func (md Metadata) duration(key string) (time.Duration, error) {
	raw, ok := md[key]
	if !ok {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, snapshotError(key, err)
	}
	return d, nil
}

func (md Metadata) integer(key string) (int, error) {
	raw, ok := md[key]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, snapshotError(key, err)
	}
	return n, nil
}

func snapshotError(key string, err error) error {
	return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("corrupt configuration snapshot key %s", key))
}
