package db

// SchemaSQL contains the database schema initialization SQL.
//
// listing.image_data and listing.attributes stay typed as plain strings on
// purpose: the upstream ingestion wrote several incompatible textual
// encodings over the years, and normalization happens on read (see
// internal/normalize) rather than by rewriting stored values.
const SchemaSQL = `
    -- ==========================================================================
    -- LISTING TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS listing SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON listing TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS sku ON listing TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS description ON listing TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS image_data ON listing TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS attributes ON listing TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS price ON listing TYPE float DEFAULT 0.0;
    DEFINE FIELD IF NOT EXISTS created ON listing TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated ON listing TYPE datetime DEFAULT time::now();

    -- Gap scans and repair snapshots order by most-recently-updated first
    DEFINE INDEX IF NOT EXISTS listing_updated ON listing FIELDS updated;
    DEFINE INDEX IF NOT EXISTS listing_sku ON listing FIELDS sku;

    -- ==========================================================================
    -- REPAIR_JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS repair_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS status ON repair_job TYPE string;
    DEFINE FIELD IF NOT EXISTS total_items ON repair_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS processed_items ON repair_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS failed_items ON repair_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS current_phase ON repair_job TYPE string DEFAULT "initializing";
    DEFINE FIELD IF NOT EXISTS item_ids ON repair_job TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS error_message ON repair_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS started_at ON repair_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON repair_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS repair_job_status ON repair_job FIELDS status;
    DEFINE INDEX IF NOT EXISTS repair_job_started ON repair_job FIELDS started_at;
`
