package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/async"
	"github.com/beerberidie/cutflow/internal/repository"
)

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.ListFilter{
		ClientCode:  q.Get("client_code"),
		ProjectCode: q.Get("project_code"),
		Material:    q.Get("material"),
	}
	if ft := q.Get("file_type"); ft != "" {
		if !constants.ValidFileType(ft) {
			writeErrorMsg(w, http.StatusBadRequest, "unknown file_type "+ft)
			return
		}
		f.FileType = constants.FileType(ft)
	}
	if st := q.Get("status"); st != "" {
		f.Status = constants.IngestStatus(st)
	}
	if th := q.Get("thickness_mm"); th != "" {
		v, err := strconv.ParseFloat(th, 64)
		if err != nil || v <= 0 {
			writeErrorMsg(w, http.StatusBadRequest, "invalid thickness_mm")
			return
		}
		f.ThicknessMM = v
	}
	f.IncludeDeleted = q.Get("include_deleted") == "true"
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil {
		f.Offset = n
	}

	records, total, err := s.repo.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"records": records,
	})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rec, err := s.repo.GetWithChildren(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	effective, err := s.repo.EffectiveMetadata(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record":             rec,
		"effective_metadata": effective,
	})
}

func (s *Server) handleReExtract(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	// The record must exist before committing to anything.
	if _, err := s.repo.GetByID(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("sync") == "true" || s.queue == nil {
		res, err := s.proc.ReExtract(r.Context(), id)
		if err != nil {
			writeJSON(w, errStatus(err), res)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	if err := s.queue.Enqueue(r.Context(), async.Job{IngestID: id}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ingest_id": id,
		"status":    "queued",
	})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var err error
	if r.URL.Query().Get("hard") == "true" {
		err = s.proc.HardDelete(r.Context(), id)
	} else {
		err = s.proc.SoftDelete(r.Context(), id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid record id")
		return uuid.Nil, false
	}
	return id, true
}
