package postgres

// Embedded schema migrations. Each migration runs once, in order, inside its
// own transaction.

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_arena_members",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_performance_snapshots",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_league_assignments",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

const migration001Up = `
CREATE TABLE IF NOT EXISTS arena_members (
    arena_id     TEXT NOT NULL,
    member_id    TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    active       BOOLEAN NOT NULL DEFAULT TRUE,
    joined_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (arena_id, member_id)
);

CREATE INDEX IF NOT EXISTS idx_arena_members_active
    ON arena_members (arena_id) WHERE active;
`

const migration001Down = `
DROP TABLE IF EXISTS arena_members;
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS performance_snapshots (
    id              UUID NOT NULL DEFAULT gen_random_uuid(),
    arena_id        TEXT NOT NULL,
    member_id       TEXT NOT NULL,
    snapshot_date   DATE NOT NULL,
    assigned_units  INTEGER NOT NULL DEFAULT 0,
    completed_units INTEGER NOT NULL DEFAULT 0,
    achievement_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
    active_minutes  INTEGER NOT NULL DEFAULT 0,
    avg_focus_ratio DOUBLE PRECISION,
    score           DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (arena_id, member_id, snapshot_date),

    CONSTRAINT chk_snapshot_score CHECK (score >= 0 AND score <= 100),
    CONSTRAINT chk_snapshot_units CHECK (assigned_units >= 0 AND completed_units >= 0),
    CONSTRAINT chk_snapshot_minutes CHECK (active_minutes >= 0)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_arena_date
    ON performance_snapshots (arena_id, snapshot_date);

CREATE INDEX IF NOT EXISTS idx_snapshots_member
    ON performance_snapshots (arena_id, member_id, snapshot_date);
`

const migration002Down = `
DROP TABLE IF EXISTS performance_snapshots;
`

const migration003Up = `
CREATE TABLE IF NOT EXISTS league_assignments (
    id              UUID NOT NULL,
    arena_id        TEXT NOT NULL,
    member_id       TEXT NOT NULL,
    period_start    DATE NOT NULL,
    tier_id         TEXT NOT NULL,
    tier_rank_order INTEGER NOT NULL,
    percentile      DOUBLE PRECISION NOT NULL,
    avg_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
    promoted        BOOLEAN NOT NULL DEFAULT FALSE,
    demoted         BOOLEAN NOT NULL DEFAULT FALSE,
    assigned_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (arena_id, member_id, period_start),

    CONSTRAINT chk_assignment_percentile CHECK (percentile > 0 AND percentile <= 100),
    CONSTRAINT chk_assignment_movement CHECK (NOT (promoted AND demoted))
);

CREATE INDEX IF NOT EXISTS idx_assignments_arena_period
    ON league_assignments (arena_id, period_start);

CREATE INDEX IF NOT EXISTS idx_assignments_member_history
    ON league_assignments (arena_id, member_id, period_start DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS league_assignments;
`
