// Package entity holds the persistence models. IDs are generated
// app-side so the schema works on both Postgres and SQLite.
package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beerberidie/cutflow/constants"
)

type IngestRecord struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	OriginalFilename string             `gorm:"column:original_filename;not null" json:"original_filename"`
	StoredFilename   string             `gorm:"column:stored_filename;not null;index" json:"stored_filename"`
	StoredPath       string             `gorm:"column:stored_path;not null" json:"stored_path"`
	FileType         constants.FileType `gorm:"column:file_type;not null;index" json:"file_type"`
	FileSize         int64              `gorm:"column:file_size;not null" json:"file_size"`
	Checksum         string             `gorm:"column:checksum;not null;index" json:"checksum"`

	ClientCode  string `gorm:"column:client_code;index" json:"client_code"`
	ProjectCode string `gorm:"column:project_code;index" json:"project_code"`
	PartName    string `gorm:"column:part_name" json:"part_name"`
	Material    string `gorm:"column:material" json:"material"`
	ThicknessMM float64 `gorm:"column:thickness_mm" json:"thickness_mm"`
	Quantity    int     `gorm:"column:quantity;not null;default:1" json:"quantity"`
	Version     int     `gorm:"column:version;not null;default:1" json:"version"`

	ProcessingMode  string  `gorm:"column:processing_mode;not null;default:AUTO" json:"processing_mode"`
	ConfidenceScore float64 `gorm:"column:confidence_score;not null;default:0" json:"confidence_score"`

	Status        constants.IngestStatus `gorm:"column:status;not null;index" json:"status"`
	FailureReason string                 `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	RetryCount    int                    `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	ProcessedAt   *time.Time             `gorm:"column:processed_at" json:"processed_at,omitempty"`

	Extractions []ExtractionRecord `gorm:"constraint:OnDelete:CASCADE;foreignKey:IngestID;references:ID" json:"extractions,omitempty"`
	Metadata    []MetadataEntry    `gorm:"constraint:OnDelete:CASCADE;foreignKey:IngestID;references:ID" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (IngestRecord) TableName() string { return "ingest_record" }
