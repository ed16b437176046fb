package constants

// IngestStatus is the canonical lifecycle status for ingest records.
type IngestStatus string

// Stable values (store these exact strings in DB).
const (
	IngestStatusPending    IngestStatus = "pending"
	IngestStatusProcessing IngestStatus = "processing"
	IngestStatusCompleted  IngestStatus = "completed"
	IngestStatusFailed     IngestStatus = "failed"
)

// WebhookStatus tracks a queued webhook through its delivery attempts.
type WebhookStatus string

const (
	WebhookStatusPending    WebhookStatus = "pending"
	WebhookStatusProcessing WebhookStatus = "processing"
	WebhookStatusCompleted  WebhookStatus = "completed"
	WebhookStatusFailed     WebhookStatus = "failed"
)

// EventType names the webhook events emitted to the downstream system.
type EventType string

const (
	EventFileIngested    EventType = "file.ingested"
	EventFileProcessed   EventType = "file.processed"
	EventFileFailed      EventType = "file.failed"
	EventFileReExtracted EventType = "file.re_extracted"
	EventFileDeleted     EventType = "file.deleted"
)

// MetadataSource records which stage wrote a metadata entry.
const (
	SourceFilename  = "filename"
	SourceContent   = "content"
	SourceHeuristic = "heuristic"
	SourceOverride  = "override"
)

// ValueKind tags the native type of a stringified metadata value.
const (
	ValueKindString     = "string"
	ValueKindNumber     = "number"
	ValueKindBoolean    = "boolean"
	ValueKindStructured = "structured"
)
