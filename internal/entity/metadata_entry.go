package entity

import (
	"time"

	"github.com/google/uuid"
)

// MetadataEntry is one flattened field value with its provenance. A field
// may carry entries from several sources; readers resolve the winner by
// source precedence and recency.
type MetadataEntry struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	IngestID uuid.UUID     `gorm:"type:uuid;not null;index:idx_metadata_ingest_field,priority:1" json:"ingest_id"`
	Ingest   *IngestRecord `gorm:"constraint:OnDelete:CASCADE;foreignKey:IngestID;references:ID" json:"ingest,omitempty"`

	Field  string `gorm:"column:field;not null;index:idx_metadata_ingest_field,priority:2" json:"field"`
	Value  string `gorm:"column:value;not null" json:"value"`
	Kind   string `gorm:"column:kind;not null" json:"kind"`
	Source string `gorm:"column:source;not null" json:"source"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (MetadataEntry) TableName() string { return "metadata_entry" }
