package db

// SchemaSQL defines the snapshot table. Exports are stored as JSON text
// keyed by snapshot name.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS snapshot SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON snapshot TYPE string;
    DEFINE FIELD IF NOT EXISTS version ON snapshot TYPE string;
    DEFINE FIELD IF NOT EXISTS data ON snapshot TYPE string;
    DEFINE FIELD IF NOT EXISTS pages ON snapshot TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS conversations ON snapshot TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created ON snapshot TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON snapshot TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS snapshot_updated ON snapshot FIELDS updated;
`
