package journal

// Schema defines the SQLite schema for the scan history journal. Every
// scan invocation leaves one row, successful or not.
const Schema = `
CREATE TABLE IF NOT EXISTS scans (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device TEXT NOT NULL,
    source TEXT NOT NULL,
    color_mode TEXT NOT NULL,
    resolution INTEGER NOT NULL,
    duplex INTEGER NOT NULL DEFAULT 0,
    format TEXT NOT NULL,
    pages INTEGER NOT NULL DEFAULT 0,
    output_path TEXT,
    status TEXT NOT NULL CHECK(status IN ('completed', 'failed', 'canceled')),
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_scans_status ON scans(status);
CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans(created_at);
`

// Status constants
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Scan represents one recorded scan invocation
type Scan struct {
	ID           int64
	Device       string
	Source       string
	ColorMode    string
	Resolution   int
	Duplex       bool
	Format       string
	Pages        int
	OutputPath   string
	Status       string
	ErrorMessage string
	CreatedAt    string
}
