package storage

// Timestamps are stored as Unix milliseconds. The status column holds the
// numeric domain.Status (0: new, 1: learning, 2: mastered).
const schema = `
-- The 'groups' table holds named card collections. The reserved "Unsorted"
-- group always occupies group_id 1.
CREATE TABLE IF NOT EXISTS groups (
    group_id   INTEGER PRIMARY KEY AUTOINCREMENT,
    title      TEXT    NOT NULL UNIQUE,
    subtitle   TEXT    NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- The 'cards' table holds each flashcard together with its SM-2 state.
CREATE TABLE IF NOT EXISTS cards (
    card_id          INTEGER PRIMARY KEY AUTOINCREMENT,
    group_id         INTEGER NOT NULL,
    question         TEXT    NOT NULL,
    answer           TEXT    NOT NULL,
    content_hash     TEXT    NOT NULL UNIQUE,
    easiness         REAL    NOT NULL DEFAULT 2.5,
    repetitions      INTEGER NOT NULL DEFAULT 0,
    interval_days    INTEGER NOT NULL DEFAULT 0,
    status           INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    last_reviewed_at INTEGER,
    next_review_at   INTEGER NOT NULL,

    FOREIGN KEY(group_id) REFERENCES groups(group_id)
);

CREATE INDEX IF NOT EXISTS idx_cards_group_id ON cards(group_id);
CREATE INDEX IF NOT EXISTS idx_cards_next_review ON cards(status, next_review_at);

-- The 'review_stats' table appends one row per review with the rolling
-- average score for the card. Rows have no uniqueness constraint.
CREATE TABLE IF NOT EXISTS review_stats (
    card_id     INTEGER NOT NULL,
    score       INTEGER NOT NULL,
    avg_score   REAL    NOT NULL,
    reviewed_at INTEGER NOT NULL
);
`
