package server

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/beerberidie/cutflow/internal/pipeline"
)

const multipartMemory = 32 << 20

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid multipart request: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	req, err := uploadRequest(r, file, header)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, err.Error())
		return
	}

	res := s.proc.ProcessUpload(r.Context(), req)
	code := http.StatusCreated
	if !res.Success {
		code = resultStatus(res)
	}
	writeJSON(w, code, res)
}

func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid multipart request: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeErrorMsg(w, http.StatusBadRequest, "no files in batch")
		return
	}

	reqs := make([]pipeline.UploadRequest, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "opening "+h.Filename+": "+err.Error())
			return
		}
		req, err := uploadRequest(r, f, h)
		f.Close()
		if err != nil {
			writeErrorMsg(w, http.StatusBadRequest, err.Error())
			return
		}
		reqs = append(reqs, req)
	}

	results := s.proc.ProcessBatch(r.Context(), reqs)

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
		"results":   results,
	})
}

// uploadRequest builds a pipeline request from form fields shared by
// the single and batch endpoints.
func uploadRequest(r *http.Request, file multipart.File, header *multipart.FileHeader) (pipeline.UploadRequest, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return pipeline.UploadRequest{}, err
	}
	req := pipeline.UploadRequest{
		Filename:    header.Filename,
		Data:        data,
		ClientCode:  r.FormValue("client_code"),
		ProjectCode: r.FormValue("project_code"),
		Mode:        r.FormValue("mode"),
	}
	if ov := r.FormValue("overrides"); ov != "" {
		req.Overrides = json.RawMessage(ov)
	}
	return req, nil
}

// resultStatus picks the status code for a failed upload result. The
// pipeline folds validation and parse failures into the result rather
// than returning an error, so classification happens on the fields.
func resultStatus(res pipeline.UploadResult) int {
	if res.Status == "failed" {
		// The record exists; extraction failed.
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}
