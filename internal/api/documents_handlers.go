package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xenovalaw/xenova/internal/blob"
	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
)

var errNoBlobStore = errors.New("document storage is not configured")

func (rt *Router) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	docs, err := rt.store.ListDocuments(r.Context(), scope.TenantID, store.DocumentFilter{
		CaseID: r.URL.Query().Get("case_id"),
		Page:   page,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, emptyIfNil(docs))
}

// handleUploadDocument accepts multipart/form-data with a "file" part and a
// "case_id" field. The upload counts against the tenant's storage allowance.
func (rt *Router) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	if rt.blobs == nil {
		writeError(w, r, errNoBlobStore)
		return
	}

	// Leave room for the multipart envelope around the file.
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUpload+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apperrors.Invalid("upload_document", "upload exceeds %d bytes", rt.maxUpload))
			return
		}
		writeError(w, r, apperrors.Invalid("upload_document", "malformed multipart body"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	caseID := strings.TrimSpace(r.FormValue("case_id"))
	if caseID == "" {
		writeError(w, r, apperrors.Invalid("upload_document", "case_id is required"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperrors.Invalid("upload_document", "file is required"))
		return
	}
	defer file.Close()

	if header.Size > rt.maxUpload {
		writeError(w, r, apperrors.Invalid("upload_document", "upload exceeds %d bytes", rt.maxUpload))
		return
	}
	if _, err := foundOr404(rt.store.GetCase(r.Context(), scope.TenantID, caseID)); err != nil {
		writeError(w, r, err)
		return
	}

	used, err := rt.store.DocumentBytes(r.Context(), scope.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Early rejection before the content is stored; CreateDocument re-checks
	// under the transaction.
	if store.StorageExceeded(scope.Tenant, used, header.Size) {
		writeError(w, r, store.StorageLimitError("upload_document", scope.Tenant, used))
		return
	}

	contentType, err := sniffContentType(file, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc := &models.Document{
		ID:          models.NewID(),
		CaseID:      caseID,
		Filename:    cleanFilename(header.Filename),
		ContentType: contentType,
		SizeBytes:   header.Size,
		UploadedBy:  scope.UserID,
	}
	doc.StorageKey = blob.DocumentKey(scope.TenantID, doc.ID)

	if err := rt.blobs.Put(r.Context(), doc.StorageKey, file, header.Size, contentType); err != nil {
		writeError(w, r, fmt.Errorf("store document content: %w", err))
		return
	}
	if err := rt.store.CreateDocument(r.Context(), scope.TenantID, doc); err != nil {
		rt.discardBlob(r.Context(), doc.StorageKey)
		writeError(w, r, err)
		return
	}

	logging.Audit(r.Context(), "document_upload", "success").
		Str("tenant_id", scope.TenantID).
		Str("user_id", scope.UserID).
		Str("document_id", doc.ID).
		Int64("size_bytes", doc.SizeBytes).
		Msg("Document uploaded")
	writeJSON(w, r, http.StatusCreated, doc)
}

func (rt *Router) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	doc, err := foundOr404(rt.store.GetDocument(r.Context(), scope.TenantID, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, doc)
}

func (rt *Router) handleDocumentContent(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	if rt.blobs == nil {
		writeError(w, r, errNoBlobStore)
		return
	}
	doc, err := foundOr404(rt.store.GetDocument(r.Context(), scope.TenantID, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := rt.blobs.Get(r.Context(), doc.StorageKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		logger := logging.FromContext(r.Context())
		logger.Debug().Err(err).Str("document_id", doc.ID).Msg("Document download interrupted")
	}
}

func (rt *Router) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	doc, err := foundOr404(rt.store.GetDocument(r.Context(), scope.TenantID, r.PathValue("id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := rt.store.DeleteDocument(r.Context(), scope.TenantID, doc.ID); err != nil {
		writeError(w, r, err)
		return
	}
	rt.discardBlob(r.Context(), doc.StorageKey)
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleSignDocument(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	id := r.PathValue("id")
	if err := rt.store.SignDocument(r.Context(), scope.TenantID, id, scope.UserID, rt.now().UTC()); err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := foundOr404(rt.store.GetDocument(r.Context(), scope.TenantID, id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.Audit(r.Context(), "document_sign", "success").
		Str("tenant_id", scope.TenantID).
		Str("user_id", scope.UserID).
		Str("document_id", doc.ID).
		Msg("Document signed")
	writeJSON(w, r, http.StatusOK, doc)
}

// discardBlob removes content whose metadata is gone or was never written.
// Failures leave an orphaned object and are only logged.
func (rt *Router) discardBlob(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := rt.blobs.Delete(ctx, key); err != nil {
		logger := logging.FromContext(ctx)
		logger.Warn().Err(err).Str("storage_key", key).Msg("Failed to remove document content")
	}
}

// sniffContentType prefers the declared type and falls back to detection.
// The reader is rewound afterwards.
func sniffContentType(f io.ReadSeeker, declared string) (string, error) {
	if declared != "" && declared != "application/octet-stream" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			return mediaType, nil
		}
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	return http.DetectContentType(head[:n]), nil
}

func cleanFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	return name
}
