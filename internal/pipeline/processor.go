package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/common"
	"github.com/beerberidie/cutflow/internal/entity"
	"github.com/beerberidie/cutflow/internal/extract"
	"github.com/beerberidie/cutflow/internal/naming"
	"github.com/beerberidie/cutflow/internal/repository"
	"github.com/beerberidie/cutflow/internal/storage"
	"github.com/beerberidie/cutflow/internal/webhook"
)

// UploadRequest is one file to ingest.
type UploadRequest struct {
	Filename    string
	Data        []byte
	ClientCode  string
	ProjectCode string
	Mode        string // constants.ModeAuto or an explicit type tag
	Overrides   json.RawMessage
}

// UploadResult reports one file's outcome. Results are per-file; a batch
// never aborts on a single failure.
type UploadResult struct {
	Success          bool              `json:"success"`
	IngestID         uuid.UUID         `json:"ingest_id,omitempty"`
	OriginalFilename string            `json:"original_filename"`
	StoredFilename   string            `json:"stored_filename,omitempty"`
	Status           string            `json:"status,omitempty"`
	Metadata         *extract.Metadata `json:"metadata,omitempty"`
	DuplicateOf      uuid.UUID         `json:"duplicate_of,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// Processor coordinates detection, extraction, naming, storage,
// persistence, and notification for uploaded files.
type Processor struct {
	logger       *slog.Logger
	registry     *extract.Registry
	store        *storage.Manager
	repo         repository.IngestRepository
	notifier     *webhook.Notifier
	maxFileBytes int64
	batchToken   int
}

func NewProcessor(
	logger *slog.Logger,
	registry *extract.Registry,
	store *storage.Manager,
	repo repository.IngestRepository,
	notifier *webhook.Notifier,
	maxFileMB int64,
	batchConcurrency int,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFileMB <= 0 {
		maxFileMB = 100
	}
	if batchConcurrency <= 0 {
		batchConcurrency = 4
	}
	return &Processor{
		logger:       logger,
		registry:     registry,
		store:        store,
		repo:         repo,
		notifier:     notifier,
		maxFileBytes: maxFileMB << 20,
		batchToken:   batchConcurrency,
	}
}

// log returns the processor logger tagged with the caller's request id
// when one travelled down the context.
func (p *Processor) log(ctx context.Context) *slog.Logger {
	if rid := common.RequestIDFromContext(ctx); rid != "" {
		return p.logger.With("request_id", rid)
	}
	return p.logger
}

// ProcessUpload runs one file through the full pipeline. Validation and
// parse failures come back in the result; notification failures never
// fail the ingest.
func (p *Processor) ProcessUpload(ctx context.Context, req UploadRequest) UploadResult {
	res := UploadResult{OriginalFilename: req.Filename}

	mode := req.Mode
	if mode == "" {
		mode = constants.ModeAuto
	}
	fileType := constants.DetectFileType(req.Filename, mode)
	if fileType == constants.UNKNOWN {
		res.Error = "unrecognized file type"
		return res
	}

	if err := ValidateUpload(req.Filename, req.Data, p.maxFileBytes, fileType); err != nil {
		res.Error = err.Error()
		return res
	}

	overrides, err := ParseOverrides(req.Overrides)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	checksum := sha256.Sum256(req.Data)
	checksumHex := hex.EncodeToString(checksum[:])
	if dup, err := p.repo.FindByChecksum(ctx, checksumHex); err == nil {
		p.log(ctx).Info("duplicate content detected", "filename", req.Filename, "duplicate_of", dup.ID)
		res.DuplicateOf = dup.ID
	}

	rec := &entity.IngestRecord{
		OriginalFilename: req.Filename,
		StoredFilename:   req.Filename,
		FileType:         fileType,
		FileSize:         int64(len(req.Data)),
		Checksum:         checksumHex,
		ClientCode:       req.ClientCode,
		ProjectCode:      req.ProjectCode,
		Quantity:         1,
		Version:          1,
		ProcessingMode:   mode,
		Status:           constants.IngestStatusProcessing,
	}
	if err := p.repo.Create(ctx, rec); err != nil {
		res.Error = err.Error()
		return res
	}
	res.IngestID = rec.ID

	if err := p.notifier.Send(ctx, constants.EventFileIngested, rec, nil); err != nil {
		p.log(ctx).Warn("ingested event delivery failed", "ingest_id", rec.ID, "error", err)
	}

	md, err := p.runExtraction(ctx, rec, req.Data, extract.Hints{ClientCode: req.ClientCode, ProjectCode: req.ProjectCode}, overrides)
	if err != nil {
		p.markFailed(ctx, rec, err)
		res.Status = string(constants.IngestStatusFailed)
		res.Error = err.Error()
		return res
	}

	res.Success = true
	res.Status = string(constants.IngestStatusCompleted)
	res.StoredFilename = rec.StoredFilename
	res.Metadata = md
	return res
}

// runExtraction is the extract → name → store → persist core shared by
// uploads and re-extraction.
func (p *Processor) runExtraction(ctx context.Context, rec *entity.IngestRecord, data []byte, hints extract.Hints, overrides *Overrides) (*extract.Metadata, error) {
	extractor, err := p.registry.For(rec.FileType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	md, err := extractor.Parse(ctx, data, rec.OriginalFilename, hints)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	overridden := overrides.Apply(md)

	canonical := naming.Generate(md.NamingFields())
	storedName, relPath, err := p.store.Save(ctx, data, canonical, md.ClientCode, md.ProjectCode, true)
	if err != nil {
		return nil, err
	}
	md.Version = storedVersion(storedName, md.Version)

	rawPayload, err := json.Marshal(md.Raw)
	if err != nil {
		return nil, common.NewAppError("ENCODE", "encoding raw extraction payload", err)
	}
	run := &entity.ExtractionRecord{
		Parser:     extractor.Name(),
		Confidence: md.Confidence,
		RawPayload: datatypes.JSON(rawPayload),
		DurationMS: elapsed.Milliseconds(),
	}

	entries := metadataEntries(md, overridden)
	processedAt := time.Now().UTC()
	fields := map[string]any{
		"stored_filename":  storedName,
		"stored_path":      relPath,
		"client_code":      md.ClientCode,
		"project_code":     md.ProjectCode,
		"part_name":        md.PartName,
		"material":         md.Material,
		"thickness_mm":     md.ThicknessMM,
		"quantity":         md.Quantity,
		"version":          md.Version,
		"confidence_score": md.Confidence,
		"processed_at":     processedAt,
		"status":           constants.IngestStatusCompleted,
		"failure_reason":   "",
	}
	if err := p.repo.ApplyExtraction(ctx, rec.ID, run, entries, fields); err != nil {
		// The stored file must not outlive a failed persistence.
		if delErr := p.store.Delete(relPath); delErr != nil {
			p.log(ctx).Error("failed to remove stored file after persistence error", "path", relPath, "error", delErr)
		}
		return nil, err
	}

	rec.StoredFilename = storedName
	rec.StoredPath = relPath
	rec.ClientCode = md.ClientCode
	rec.ProjectCode = md.ProjectCode
	rec.PartName = md.PartName
	rec.Material = md.Material
	rec.ThicknessMM = md.ThicknessMM
	rec.Quantity = md.Quantity
	rec.Version = md.Version
	rec.ConfidenceScore = md.Confidence
	rec.ProcessedAt = &processedAt
	rec.Status = constants.IngestStatusCompleted

	if err := p.notifier.Send(ctx, constants.EventFileProcessed, rec, map[string]any{"confidence_score": md.Confidence}); err != nil {
		p.log(ctx).Warn("processed event delivery failed", "ingest_id", rec.ID, "error", err)
	}

	p.log(ctx).Info("file processed",
		"ingest_id", rec.ID,
		"stored_filename", storedName,
		"file_type", rec.FileType,
		"confidence", md.Confidence,
		"duration_ms", elapsed.Milliseconds(),
	)
	return md, nil
}

func (p *Processor) markFailed(ctx context.Context, rec *entity.IngestRecord, cause error) {
	p.log(ctx).Error("file processing failed", "ingest_id", rec.ID, "filename", rec.OriginalFilename, "error", cause)
	if err := p.repo.UpdateStatus(ctx, rec.ID, constants.IngestStatusFailed, cause.Error()); err != nil {
		p.log(ctx).Error("failed to mark ingest failed", "ingest_id", rec.ID, "error", err)
	}
	rec.Status = constants.IngestStatusFailed
	rec.FailureReason = cause.Error()
	if err := p.notifier.Send(ctx, constants.EventFileFailed, rec, map[string]any{"error": cause.Error()}); err != nil {
		p.log(ctx).Warn("failed event delivery failed", "ingest_id", rec.ID, "error", err)
	}
}

// ProcessBatch ingests files independently with bounded concurrency.
// The slice order of results matches the requests.
func (p *Processor) ProcessBatch(ctx context.Context, reqs []UploadRequest) []UploadResult {
	results := make([]UploadResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.batchToken)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = p.ProcessUpload(gctx, req)
			return nil
		})
	}
	g.Wait()
	return results
}

// ReExtract re-runs extraction for an existing record from its stored
// file.
func (p *Processor) ReExtract(ctx context.Context, id uuid.UUID) (UploadResult, error) {
	rec, err := p.repo.GetByID(ctx, id)
	if err != nil {
		return UploadResult{}, err
	}
	res := UploadResult{IngestID: rec.ID, OriginalFilename: rec.OriginalFilename}

	data, err := p.store.Read(rec.StoredPath)
	if err != nil {
		return res, err
	}

	if err := p.repo.ResetForReExtract(ctx, rec.ID); err != nil {
		return res, err
	}
	if err := p.repo.UpdateStatus(ctx, rec.ID, constants.IngestStatusProcessing, ""); err != nil {
		return res, err
	}

	md, err := p.runExtraction(ctx, rec, data, extract.Hints{ClientCode: rec.ClientCode, ProjectCode: rec.ProjectCode}, nil)
	if err != nil {
		p.markFailed(ctx, rec, err)
		res.Status = string(constants.IngestStatusFailed)
		res.Error = err.Error()
		return res, err
	}

	if err := p.notifier.Send(ctx, constants.EventFileReExtracted, rec, map[string]any{"confidence_score": md.Confidence}); err != nil {
		p.log(ctx).Warn("re-extracted event delivery failed", "ingest_id", rec.ID, "error", err)
	}

	res.Success = true
	res.Status = string(constants.IngestStatusCompleted)
	res.StoredFilename = rec.StoredFilename
	res.Metadata = md
	return res, nil
}

// SoftDelete hides a record from default listings; the stored file and
// child rows stay intact.
func (p *Processor) SoftDelete(ctx context.Context, id uuid.UUID) error {
	rec, err := p.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := p.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	if err := p.notifier.Send(ctx, constants.EventFileDeleted, rec, map[string]any{"hard": false}); err != nil {
		p.log(ctx).Warn("deleted event delivery failed", "ingest_id", id, "error", err)
	}
	return nil
}

// HardDelete removes the record with its children and the stored file.
func (p *Processor) HardDelete(ctx context.Context, id uuid.UUID) error {
	rec, err := p.repo.HardDelete(ctx, id)
	if err != nil {
		return err
	}
	if rec.StoredPath != "" {
		if err := p.store.Delete(rec.StoredPath); err != nil && !errors.Is(err, common.ErrNotFound) {
			p.log(ctx).Error("failed to remove stored file", "ingest_id", id, "path", rec.StoredPath, "error", err)
		}
	}
	if err := p.notifier.Send(ctx, constants.EventFileDeleted, rec, map[string]any{"hard": true}); err != nil {
		p.log(ctx).Warn("deleted event delivery failed", "ingest_id", id, "error", err)
	}
	return nil
}

// metadataEntries flattens extracted fields into provenance-tagged rows.
func metadataEntries(md *extract.Metadata, overridden []string) []entity.MetadataEntry {
	over := make(map[string]bool, len(overridden))
	for _, f := range overridden {
		over[f] = true
	}
	source := func(field string) string {
		if over[field] {
			return constants.SourceOverride
		}
		return constants.SourceContent
	}

	var entries []entity.MetadataEntry
	add := func(field, value, kind string) {
		if value == "" {
			return
		}
		entries = append(entries, entity.MetadataEntry{
			Field:  field,
			Value:  value,
			Kind:   kind,
			Source: source(field),
		})
	}

	add("client_code", md.ClientCode, constants.ValueKindString)
	add("project_code", md.ProjectCode, constants.ValueKindString)
	add("part_name", md.PartName, constants.ValueKindString)
	add("material", md.Material, constants.ValueKindString)
	if md.ThicknessMM > 0 {
		add("thickness_mm", strconv.FormatFloat(md.ThicknessMM, 'f', -1, 64), constants.ValueKindNumber)
	}
	add("quantity", strconv.Itoa(md.Quantity), constants.ValueKindNumber)
	add("version", strconv.Itoa(md.Version), constants.ValueKindNumber)
	add("confidence_score", strconv.FormatFloat(md.Confidence, 'f', -1, 64), constants.ValueKindNumber)
	if md.Raw != nil {
		if b, err := json.Marshal(md.Raw); err == nil {
			add("raw_"+md.Raw.Kind(), string(b), constants.ValueKindStructured)
		}
	}
	return entries
}

// storedVersion recovers the version suffix the storage manager chose.
func storedVersion(storedName string, fallback int) int {
	if f, ok := naming.Parse(storedName); ok && f.Version > 0 {
		return f.Version
	}
	base := strings.TrimSuffix(storedName, filepath.Ext(storedName))
	if i := strings.LastIndex(base, "-v"); i >= 0 {
		if v, err := strconv.Atoi(base[i+2:]); err == nil && v >= 1 {
			return v
		}
	}
	return fallback
}
