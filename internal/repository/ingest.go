package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/common"
	"github.com/beerberidie/cutflow/internal/entity"
)

// ListFilter narrows and pages a record listing. Zero values mean "any".
type ListFilter struct {
	ClientCode     string
	ProjectCode    string
	FileType       constants.FileType
	Status         constants.IngestStatus
	Material       string
	ThicknessMM    float64 // 0 means no thickness filter
	IncludeDeleted bool
	Limit          int
	Offset         int
}

type IngestRepository interface {
	Create(ctx context.Context, rec *entity.IngestRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.IngestRecord, error)
	GetWithChildren(ctx context.Context, id uuid.UUID) (*entity.IngestRecord, error)
	FindByChecksum(ctx context.Context, checksum string) (*entity.IngestRecord, error)
	List(ctx context.Context, f ListFilter) ([]entity.IngestRecord, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.IngestStatus, failureReason string) error
	ResetForReExtract(ctx context.Context, id uuid.UUID) error
	ApplyExtraction(ctx context.Context, id uuid.UUID, run *entity.ExtractionRecord, entries []entity.MetadataEntry, fields map[string]any) error
	EffectiveMetadata(ctx context.Context, id uuid.UUID) (map[string]entity.MetadataEntry, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	HardDelete(ctx context.Context, id uuid.UUID) (*entity.IngestRecord, error)
}

type ingestRepo struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewIngestRepository(db *gorm.DB, logger *slog.Logger) IngestRepository {
	return &ingestRepo{db: db, logger: logger}
}

func (r *ingestRepo) Create(ctx context.Context, rec *entity.IngestRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = constants.IngestStatusPending
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		r.logger.Error("failed to create ingest record", "original_filename", rec.OriginalFilename, "error", err)
		return common.NewAppError("DB_WRITE", "creating ingest record", err)
	}
	return nil
}

func (r *ingestRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.IngestRecord, error) {
	var rec entity.IngestRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, r.notFoundOr(err, "fetching ingest record", id)
	}
	return &rec, nil
}

func (r *ingestRepo) GetWithChildren(ctx context.Context, id uuid.UUID) (*entity.IngestRecord, error) {
	var rec entity.IngestRecord
	err := r.db.WithContext(ctx).
		Preload("Extractions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Preload("Metadata", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, r.notFoundOr(err, "fetching ingest record with children", id)
	}
	return &rec, nil
}

func (r *ingestRepo) FindByChecksum(ctx context.Context, checksum string) (*entity.IngestRecord, error) {
	var rec entity.IngestRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		First(&rec, "checksum = ?", checksum).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		r.logger.Error("failed to look up checksum", "error", err)
		return nil, common.NewAppError("DB_READ", "looking up checksum", err)
	}
	return &rec, nil
}

func (r *ingestRepo) List(ctx context.Context, f ListFilter) ([]entity.IngestRecord, int64, error) {
	q := r.db.WithContext(ctx).Model(&entity.IngestRecord{})
	if f.IncludeDeleted {
		q = q.Unscoped()
	}
	if f.ClientCode != "" {
		q = q.Where("client_code = ?", f.ClientCode)
	}
	if f.ProjectCode != "" {
		q = q.Where("project_code = ?", f.ProjectCode)
	}
	if f.FileType != "" {
		q = q.Where("file_type = ?", f.FileType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Material != "" {
		q = q.Where("material = ?", f.Material)
	}
	if f.ThicknessMM > 0 {
		q = q.Where("thickness_mm = ?", f.ThicknessMM)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		r.logger.Error("failed to count ingest records", "error", err)
		return nil, 0, common.NewAppError("DB_READ", "counting ingest records", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var recs []entity.IngestRecord
	err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&recs).Error
	if err != nil {
		r.logger.Error("failed to list ingest records", "error", err)
		return nil, 0, common.NewAppError("DB_READ", "listing ingest records", err)
	}
	return recs, total, nil
}

func (r *ingestRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.IngestStatus, failureReason string) error {
	res := r.db.WithContext(ctx).Model(&entity.IngestRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "failure_reason": failureReason, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		r.logger.Error("failed to update ingest status", "ingest_id", id, "status", status, "error", res.Error)
		return common.NewAppError("DB_WRITE", "updating ingest status", res.Error)
	}
	if res.RowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ResetForReExtract puts a record back to pending with the retry
// counter bumped and the previous failure cleared. It requests a re-run
// of the pipeline; it does not invoke a parser itself.
func (r *ingestRepo) ResetForReExtract(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&entity.IngestRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         constants.IngestStatusPending,
			"retry_count":    gorm.Expr("retry_count + 1"),
			"failure_reason": "",
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		r.logger.Error("failed to reset ingest for re-extraction", "ingest_id", id, "error", res.Error)
		return common.NewAppError("DB_WRITE", "resetting ingest for re-extraction", res.Error)
	}
	if res.RowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ApplyExtraction records one parser run and its flattened metadata, and
// folds the resolved fields back onto the ingest row, atomically.
func (r *ingestRepo) ApplyExtraction(ctx context.Context, id uuid.UUID, run *entity.ExtractionRecord, entries []entity.MetadataEntry, fields map[string]any) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec entity.IngestRecord
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			return err
		}
		if run.ID == uuid.Nil {
			run.ID = uuid.New()
		}
		run.IngestID = id
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		for i := range entries {
			if entries[i].ID == uuid.Nil {
				entries[i].ID = uuid.New()
			}
			entries[i].IngestID = id
		}
		if len(entries) > 0 {
			if err := tx.Create(&entries).Error; err != nil {
				return err
			}
		}
		if len(fields) > 0 {
			fields["updated_at"] = time.Now().UTC()
			if err := tx.Model(&entity.IngestRecord{}).Where("id = ?", id).Updates(fields).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.ErrNotFound
		}
		r.logger.Error("failed to apply extraction", "ingest_id", id, "parser", run.Parser, "error", err)
		return common.NewAppError("DB_WRITE", "applying extraction", err)
	}
	return nil
}

// sourceRank orders provenance for winner resolution; higher wins.
var sourceRank = map[string]int{
	constants.SourceHeuristic: 1,
	constants.SourceFilename:  2,
	constants.SourceContent:   3,
	constants.SourceOverride:  4,
}

// EffectiveMetadata resolves the winning entry per field: highest source
// precedence first, newest entry within the same source.
func (r *ingestRepo) EffectiveMetadata(ctx context.Context, id uuid.UUID) (map[string]entity.MetadataEntry, error) {
	var entries []entity.MetadataEntry
	err := r.db.WithContext(ctx).
		Where("ingest_id = ?", id).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		r.logger.Error("failed to load metadata entries", "ingest_id", id, "error", err)
		return nil, common.NewAppError("DB_READ", "loading metadata entries", err)
	}

	winners := make(map[string]entity.MetadataEntry, len(entries))
	for _, e := range entries {
		cur, ok := winners[e.Field]
		if !ok || sourceRank[e.Source] >= sourceRank[cur.Source] {
			winners[e.Field] = e
		}
	}
	return winners, nil
}

func (r *ingestRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&entity.IngestRecord{}, "id = ?", id)
	if res.Error != nil {
		r.logger.Error("failed to soft-delete ingest record", "ingest_id", id, "error", res.Error)
		return common.NewAppError("DB_WRITE", "soft-deleting ingest record", res.Error)
	}
	if res.RowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// HardDelete removes the record and its children permanently and returns
// the deleted row so the caller can remove the stored file.
func (r *ingestRepo) HardDelete(ctx context.Context, id uuid.UUID) (*entity.IngestRecord, error) {
	var rec entity.IngestRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().First(&rec, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Where("ingest_id = ?", id).Delete(&entity.ExtractionRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("ingest_id = ?", id).Delete(&entity.MetadataEntry{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&entity.IngestRecord{}, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		r.logger.Error("failed to hard-delete ingest record", "ingest_id", id, "error", err)
		return nil, common.NewAppError("DB_WRITE", "hard-deleting ingest record", err)
	}
	return &rec, nil
}

func (r *ingestRepo) notFoundOr(err error, msg string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.ErrNotFound
	}
	r.logger.Error("failed while "+msg, "ingest_id", id, "error", err)
	return common.NewAppError("DB_READ", msg, err)
}
