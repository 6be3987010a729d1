// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package database

// schemaSQL is the idempotent schema for the tables this layer owns.
// Out-of-scope CRUD tables (users, categories, surveys) are managed
// elsewhere; only the sync/training/conversation surface lives here.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS positions (
	id              UUID PRIMARY KEY,
	statement       TEXT NOT NULL,
	category_id     UUID,
	location_id     UUID NOT NULL,
	creator_user_id UUID NOT NULL,
	created_time    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS votes (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	position_id   UUID NOT NULL REFERENCES positions(id),
	user_id       UUID NOT NULL,
	response_type TEXT NOT NULL,
	weight        DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	created_time  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (position_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_votes_position ON votes (position_id);
CREATE INDEX IF NOT EXISTS idx_votes_created ON votes (created_time);

CREATE TABLE IF NOT EXISTS polis_conversations (
	id                       UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	location_id              UUID NOT NULL,
	category_id              UUID,
	external_conversation_id TEXT NOT NULL,
	conversation_type        TEXT NOT NULL,
	active_from              TIMESTAMPTZ NOT NULL,
	active_until             TIMESTAMPTZ NOT NULL,
	status                   TEXT NOT NULL DEFAULT 'active',
	created_time             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_polis_conversations_status
	ON polis_conversations (status, active_until);
CREATE INDEX IF NOT EXISTS idx_polis_conversations_target
	ON polis_conversations (location_id, category_id, active_from);

-- Local cache of which position maps to which external comment, per
-- conversation. These rows are pruned after conversation expiry; the
-- conversation row itself is kept.
CREATE TABLE IF NOT EXISTS conversation_positions (
	conversation_id     UUID NOT NULL REFERENCES polis_conversations(id),
	position_id         UUID NOT NULL REFERENCES positions(id),
	external_comment_id TEXT NOT NULL,
	created_time        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (conversation_id, position_id)
);

CREATE TABLE IF NOT EXISTS sync_queue (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	operation_type  TEXT NOT NULL,
	payload         JSONB NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	retry_count     INT NOT NULL DEFAULT 0,
	next_retry_time TIMESTAMPTZ NOT NULL DEFAULT now(),
	error_message   TEXT,
	created_time    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_time    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sync_queue_claim
	ON sync_queue (status, next_retry_time, created_time);

CREATE TABLE IF NOT EXISTS mf_training_log (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	conversation_id UUID NOT NULL,
	location_id     UUID NOT NULL,
	category_id     UUID,
	n_users         INT NOT NULL DEFAULT 0,
	n_comments      INT NOT NULL DEFAULT 0,
	n_votes         INT NOT NULL DEFAULT 0,
	error_message   TEXT,
	created_time    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_mf_training_log_conversation
	ON mf_training_log (conversation_id, created_time DESC);

-- Coordinates fitted by the local factorization, one row per
-- (conversation, user), overwritten on each successful training run.
CREATE TABLE IF NOT EXISTS user_coordinates (
	conversation_id UUID NOT NULL,
	user_id         UUID NOT NULL,
	x               DOUBLE PRECISION NOT NULL,
	y               DOUBLE PRECISION NOT NULL,
	updated_time    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (conversation_id, user_id)
);

-- Coordinates reported by the external clustering, used as the pull
-- target during training. Refreshed by the sync worker.
CREATE TABLE IF NOT EXISTS polis_user_coordinates (
	conversation_id UUID NOT NULL,
	user_id         UUID NOT NULL,
	x               DOUBLE PRECISION NOT NULL,
	y               DOUBLE PRECISION NOT NULL,
	updated_time    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (conversation_id, user_id)
);

-- Second tier of the external-service token cache. Survives restarts so
-- tokens are not re-issued for every process lifetime.
CREATE TABLE IF NOT EXISTS polis_tokens (
	user_id      UUID PRIMARY KEY,
	token        TEXT NOT NULL,
	expires_time TIMESTAMPTZ NOT NULL,
	updated_time TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	room_id      UUID NOT NULL,
	user_id      UUID NOT NULL,
	connected    BOOLEAN NOT NULL DEFAULT true,
	created_time TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_time TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_sessions_room ON chat_sessions (room_id, connected);
`
