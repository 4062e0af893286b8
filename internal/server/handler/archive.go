package handler

import (
	"net/http"

	"github.com/openmarket/trademanager/internal/domain"
)

// ArchiveHandler serves read-only access to the cold-storage archive
// produced by the periodic archive-then-trim pass.
type ArchiveHandler struct {
	reader domain.BlobReader
}

// NewArchiveHandler creates an ArchiveHandler backed by the given BlobReader.
func NewArchiveHandler(reader domain.BlobReader) *ArchiveHandler {
	return &ArchiveHandler{reader: reader}
}

// ListArchive responds with metadata for archived objects under the given
// prefix (default "archive/").
// GET /api/archive?prefix=archive/trades/
func (h *ArchiveHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "archive/"
	}
	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}
	writeJSON(w, http.StatusOK, infos)
}
