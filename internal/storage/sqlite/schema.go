package sqlite

const schema = `
-- Work items table. Each row is a node of a work tree: roots have neither
-- parent_id nor depth, children carry both. Deleting a parent cascades to
-- its whole subtree.
CREATE TABLE IF NOT EXISTS work_items (
    id TEXT PRIMARY KEY,
    parent_id TEXT,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '' CHECK(length(summary) <= 2000),
    role TEXT NOT NULL DEFAULT 'queue' CHECK(role IN ('queue', 'work', 'review', 'terminal', 'blocked')),
    previous_role TEXT CHECK(previous_role IN ('queue', 'work', 'review', 'terminal')),
    status_label TEXT NOT NULL DEFAULT '',
    priority TEXT NOT NULL DEFAULT 'medium' CHECK(priority IN ('high', 'medium', 'low')),
    complexity INTEGER CHECK(complexity IS NULL OR (complexity >= 1 AND complexity <= 10)),
    requires_verification INTEGER NOT NULL DEFAULT 0,
    depth INTEGER NOT NULL DEFAULT 0 CHECK(depth >= 0),
    metadata TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    modified_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    role_changed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    version INTEGER NOT NULL DEFAULT 1 CHECK(version >= 1),
    CHECK((parent_id IS NULL) = (depth = 0)),
    FOREIGN KEY (parent_id) REFERENCES work_items(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_work_items_parent ON work_items(parent_id);
CREATE INDEX IF NOT EXISTS idx_work_items_role ON work_items(role);
CREATE INDEX IF NOT EXISTS idx_work_items_depth ON work_items(depth);
CREATE INDEX IF NOT EXISTS idx_work_items_priority ON work_items(priority);
CREATE INDEX IF NOT EXISTS idx_work_items_created_at ON work_items(created_at);
CREATE INDEX IF NOT EXISTS idx_work_items_modified_at ON work_items(modified_at);
CREATE INDEX IF NOT EXISTS idx_work_items_role_changed_at ON work_items(role_changed_at);

-- Dependencies table. Directed typed edges; BLOCKS and IS_BLOCKED_BY gate
-- workflow transitions, RELATES_TO is informational. unblock_at is the
-- role threshold that releases a gating edge (NULL means terminal).
CREATE TABLE IF NOT EXISTS dependencies (
    id TEXT PRIMARY KEY,
    from_item_id TEXT NOT NULL,
    to_item_id TEXT NOT NULL,
    type TEXT NOT NULL CHECK(type IN ('BLOCKS', 'IS_BLOCKED_BY', 'RELATES_TO')),
    unblock_at TEXT CHECK(unblock_at IS NULL OR unblock_at IN ('queue', 'work', 'review', 'terminal')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(from_item_id, to_item_id, type),
    CHECK(from_item_id <> to_item_id),
    FOREIGN KEY (from_item_id) REFERENCES work_items(id) ON DELETE CASCADE,
    FOREIGN KEY (to_item_id) REFERENCES work_items(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_dependencies_from ON dependencies(from_item_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_to ON dependencies(to_item_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_type ON dependencies(type);

-- Notes table. Structured annotations, at most one per (item, key).
CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    item_id TEXT NOT NULL,
    key TEXT NOT NULL CHECK(length(key) <= 200),
    role TEXT NOT NULL CHECK(role IN ('queue', 'work', 'review')),
    body TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    modified_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(item_id, key),
    FOREIGN KEY (item_id) REFERENCES work_items(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_notes_item ON notes(item_id);

-- Role transitions table (audit trail). Append-only; written in the same
-- transaction as the role change it records. "trigger" is quoted because
-- it is a reserved word in SQLite.
CREATE TABLE IF NOT EXISTS role_transitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id TEXT NOT NULL,
    from_role TEXT NOT NULL,
    to_role TEXT NOT NULL,
    "trigger" TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    status_label TEXT NOT NULL DEFAULT '',
    occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (item_id) REFERENCES work_items(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_role_transitions_item ON role_transitions(item_id, occurred_at);

-- Metadata table (for storing internal state like the schema version).
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
`
