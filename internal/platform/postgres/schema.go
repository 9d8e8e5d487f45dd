package postgres

// Schema is the full engine schema.
const Schema = `
CREATE TABLE IF NOT EXISTS mandates (
    id UUID PRIMARY KEY,
    proposal TEXT NOT NULL,
    assignee TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}',
    assigned_at TIMESTAMPTZ,
    last_automation_run_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mandates_sweep
    ON mandates (last_automation_run_at NULLS FIRST, id)
    WHERE status IN ('assigned', 'in_progress');

CREATE TABLE IF NOT EXISTS deliverables (
    id UUID PRIMARY KEY,
    mandate_id UUID NOT NULL REFERENCES mandates(id),
    uploader TEXT NOT NULL,
    label TEXT NOT NULL,
    objective TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    uploaded_at TIMESTAMPTZ NOT NULL,
    evaluation_deadline TIMESTAMPTZ NOT NULL,
    non_conformity_flagged_at TIMESTAMPTZ,
    resolved_at TIMESTAMPTZ,
    metadata JSONB NOT NULL DEFAULT '{}',
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deliverables_mandate ON deliverables (mandate_id, uploaded_at);

CREATE TABLE IF NOT EXISTS evaluations (
    id UUID PRIMARY KEY,
    deliverable_id UUID NOT NULL REFERENCES deliverables(id),
    evaluator TEXT NOT NULL,
    verdict TEXT NOT NULL,
    comment TEXT NOT NULL DEFAULT '',
    recorded_at TIMESTAMPTZ NOT NULL,
    UNIQUE (deliverable_id, evaluator)
);

CREATE TABLE IF NOT EXISTS votes (
    id UUID PRIMARY KEY,
    vote_type TEXT NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    options TEXT[] NOT NULL,
    revoke_option TEXT NOT NULL,
    tie_policy TEXT NOT NULL,
    status TEXT NOT NULL,
    closes_at TIMESTAMPTZ,
    result JSONB,
    created_at TIMESTAMPTZ NOT NULL,
    closed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS ballots (
    vote_id UUID NOT NULL REFERENCES votes(id),
    voter TEXT NOT NULL,
    payload JSONB NOT NULL,
    cast_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (vote_id, voter)
);

CREATE TABLE IF NOT EXISTS revocation_requests (
    id UUID PRIMARY KEY,
    mandate_id UUID NOT NULL REFERENCES mandates(id),
    initiator TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    vote_id UUID REFERENCES votes(id),
    created_at TIMESTAMPTZ NOT NULL,
    resolved_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_revocation_one_active
    ON revocation_requests (mandate_id)
    WHERE status IN ('open', 'vote_in_progress');

CREATE UNIQUE INDEX IF NOT EXISTS idx_revocation_vote
    ON revocation_requests (vote_id)
    WHERE vote_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS outbox (
    id UUID PRIMARY KEY,
    aggregate_type TEXT NOT NULL,
    aggregate_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    payload JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL,
    published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (created_at, id) WHERE published_at IS NULL;
`
