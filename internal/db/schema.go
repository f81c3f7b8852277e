package db

// SchemaSQL defines the conversation and message tables.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON conversation TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS conversation_created ON conversation FIELDS created_at;

    -- Messages go away with their conversation.
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation ON message TYPE record<conversation> REFERENCE ON DELETE CASCADE;
    DEFINE FIELD IF NOT EXISTS seq ON message TYPE int;
    DEFINE FIELD IF NOT EXISTS message_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string ASSERT $value IN ["user", "assistant"];
    DEFINE FIELD IF NOT EXISTS parent_id ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS citations ON message TYPE option<array<object>> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime;

    DEFINE INDEX IF NOT EXISTS message_order ON message FIELDS conversation, seq UNIQUE;
    DEFINE INDEX IF NOT EXISTS message_id_idx ON message FIELDS message_id UNIQUE;
`
