package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/falvarez/receipt-manager/internal/export"
	"github.com/falvarez/receipt-manager/internal/extraction"
	"github.com/falvarez/receipt-manager/internal/imaging"
)

// maxUploadSize bounds multipart parsing; high-resolution phone photos can be
// large before normalization.
const maxUploadSize = int64(50 << 20) // 50MB

// setCORSHeaders sets CORS headers on a response.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError surfaces a pipeline failure as the single user-visible message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// pipelineStatus maps the error taxonomy onto HTTP statuses so the UI can
// show an actionable message per failure class.
func pipelineStatus(err error) int {
	switch {
	case errors.Is(err, imaging.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, ErrUploadInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrUploadSuperseded):
		return http.StatusConflict
	case errors.Is(err, extraction.ErrMissingAPIKey):
		return http.StatusInternalServerError
	case errors.Is(err, extraction.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, extraction.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, extraction.ErrEmptyResponse),
		errors.Is(err, extraction.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

// handleIndex serves the embedded single-page UI.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleUpload accepts a receipt image and runs the extraction pipeline. The
// response is the staged draft for review, not a committed record.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		message := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			message = "File is too large. Maximum size is 50MB."
		}
		writeError(w, http.StatusBadRequest, message)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose an image to upload.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading upload", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFromName(header.Filename)
	}

	draft, err := s.service.Upload(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing upload", "filename", header.Filename, "error", err)
		writeError(w, pipelineStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, draft)
}

// handleGetReview returns the draft awaiting confirmation.
func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	draft, err := s.service.Review()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// handleConfirmReview commits the reviewed receipt.
func (s *Server) handleConfirmReview(w http.ResponseWriter, r *http.Request) {
	var edits ReviewEdits
	if err := json.NewDecoder(r.Body).Decode(&edits); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, err := s.service.ConfirmReview(edits)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrNothingStaged) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// handleCancelReview discards the staged candidate.
func (s *Server) handleCancelReview(w http.ResponseWriter, r *http.Request) {
	s.service.CancelReview()
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleListReceipts returns committed records, optionally filtered by ?q=.
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.Search(r.URL.Query().Get("q"))
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleDeleteReceipt deletes a record. The UI confirms the destructive
// action before calling this; unknown IDs are a no-op.
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Receipt ID required")
		return
	}
	if err := s.service.Delete(id); err != nil {
		slog.Error("Error deleting receipt", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Error deleting receipt")
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleSummary returns the dashboard tiles.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summarize()
	if err != nil {
		slog.Error("Error computing summary", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleExport streams an XLSX workbook of the (optionally filtered) records.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.Search(r.URL.Query().Get("q"))
	if err != nil {
		slog.Error("Error listing receipts for export", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	workbook, err := export.Workbook(exportRows(records))
	if err != nil {
		slog.Error("Error building workbook", "error", err)
		writeError(w, http.StatusInternalServerError, "Error building export")
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	w.Write(workbook)
}

// exportRows flattens records into the export package's row shape.
func exportRows(records []*Record) []export.Row {
	rows := make([]export.Row, len(records))
	for i, r := range records {
		items := make([]export.Item, len(r.Items))
		for j, item := range r.Items {
			items[j] = export.Item{Description: item.Description, Price: item.Price}
		}
		rows[i] = export.Row{
			Date:             r.Date,
			CustomerDocument: r.CustomerDocument,
			Merchant:         r.MerchantName,
			Category:         string(r.Category),
			Total:            r.TotalAmount,
			Currency:         r.Currency,
			Status:           string(r.Status),
			Items:            items,
		}
	}
	return rows
}

// contentTypeFromName guesses a MIME type from the filename extension when
// the client did not supply one.
func contentTypeFromName(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
