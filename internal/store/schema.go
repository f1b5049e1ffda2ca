package store

const schema = `
-- One row per card: the latest scheduling snapshot for a line.
CREATE TABLE IF NOT EXISTS cards (
    learner        TEXT NOT NULL,
    item           TEXT NOT NULL,
    section        TEXT NOT NULL,
    line           INTEGER NOT NULL,
    due            DATETIME NOT NULL,
    stability      REAL NOT NULL,
    difficulty     REAL NOT NULL,
    elapsed_days   INTEGER NOT NULL DEFAULT 0,
    scheduled_days INTEGER NOT NULL DEFAULT 0,
    reps           INTEGER NOT NULL DEFAULT 0,
    lapses         INTEGER NOT NULL DEFAULT 0,
    state          INTEGER NOT NULL DEFAULT 0, -- 0: New, 1: Learning, 2: Review, 3: Relearning
    last_review    DATETIME NOT NULL,

    PRIMARY KEY (learner, item, section, line)
);

-- Append-only trail: one row per applied review update.
CREATE TABLE IF NOT EXISTS review_audit (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    learner    TEXT NOT NULL,
    item       TEXT NOT NULL,
    section    TEXT NOT NULL,
    line       INTEGER NOT NULL,
    rating     INTEGER NOT NULL,
    score      INTEGER NOT NULL,
    due        DATETIME NOT NULL,
    state      INTEGER NOT NULL,
    applied_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_audit_section
    ON review_audit (learner, item, section);
`
