package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ExtractionRecord is one parser run over an ingested file. A file keeps
// every run; the newest completed one is authoritative.
type ExtractionRecord struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	IngestID uuid.UUID     `gorm:"type:uuid;not null;index" json:"ingest_id"`
	Ingest   *IngestRecord `gorm:"constraint:OnDelete:CASCADE;foreignKey:IngestID;references:ID" json:"ingest,omitempty"`

	Parser     string         `gorm:"column:parser;not null" json:"parser"`
	Confidence float64        `gorm:"column:confidence;not null" json:"confidence"`
	RawPayload datatypes.JSON `gorm:"column:raw_payload" json:"raw_payload,omitempty"`
	DurationMS int64          `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	Error      string         `gorm:"column:error" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (ExtractionRecord) TableName() string { return "extraction_record" }
