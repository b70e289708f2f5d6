package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

func (e *testEnv) upload(t *testing.T, token, caseID, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if caseID != "" {
		require.NoError(t, mw.WriteField("case_id", caseID))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	f := env.firm(t, licensing.TierPro, false, 0)
	kase := env.seedCase(t, f.tenant.ID)
	content := []byte("%PDF-1.7 demand letter")

	rec := env.upload(t, f.owner.token, kase.ID, "../../demand.pdf", content)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[models.Document](t, rec)
	assert.Equal(t, "demand.pdf", doc.Filename)
	assert.Equal(t, int64(len(content)), doc.SizeBytes)
	assert.Equal(t, f.owner.user.ID, doc.UploadedBy)

	rec = env.do(t, http.MethodGet, "/api/documents/"+doc.ID+"/content", f.owner.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename=demand.pdf`)

	rec = env.do(t, http.MethodPost, "/api/documents/"+doc.ID+"/sign", f.owner.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	signed := decode[models.Document](t, rec)
	assert.NotNil(t, signed.SignedAt)
	assert.Equal(t, f.owner.user.ID, signed.SignedBy)

	rec = env.do(t, http.MethodPost, "/api/documents/"+doc.ID+"/sign", f.owner.token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/documents/"+doc.ID, f.owner.token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/documents/"+doc.ID, f.owner.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentUploadRejections(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.MaxUploadBytes = 64 })
	f := env.firm(t, licensing.TierBase, false, 0)
	kase := env.seedCase(t, f.tenant.ID)
	other := env.firm(t, licensing.TierBase, false, 0)
	foreign := env.seedCase(t, other.tenant.ID)

	rec := env.upload(t, f.owner.token, "", "a.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.upload(t, f.owner.token, kase.ID, "big.bin", bytes.Repeat([]byte("x"), 65))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.upload(t, f.owner.token, foreign.ID, "a.txt", []byte("hello"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/documents", f.owner.token, nil)
	assert.Empty(t, decode[[]models.Document](t, rec))
}

func TestDocumentStorageLimit(t *testing.T) {
	env := newTestEnv(t)
	f := env.firm(t, licensing.TierBase, false, 0)
	kase := env.seedCase(t, f.tenant.ID)

	// Fill the allowance with metadata alone.
	full := &models.Document{
		CaseID:     kase.ID,
		Filename:   "archive.zip",
		SizeBytes:  f.tenant.StorageLimitBytes(),
		StorageKey: "tenants/" + f.tenant.ID + "/documents/archive",
		UploadedBy: f.owner.user.ID,
	}
	require.NoError(t, env.store.CreateDocument(context.Background(), f.tenant.ID, full))

	rec := env.upload(t, f.owner.token, kase.ID, "one-more.txt", []byte("x"))
	require.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())
	apiErr := decodeError(t, rec)
	assert.Equal(t, "limit_reached", apiErr.Code)
	assert.EqualValues(t, f.tenant.StorageLimitBytes(), apiErr.Details["limit_bytes"])
}

func TestSignRequiresProAndRole(t *testing.T) {
	env := newTestEnv(t)
	base := env.firm(t, licensing.TierBase, false, 0)
	rec := env.do(t, http.MethodPost, "/api/documents/any/sign", base.owner.token, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	pro := env.firm(t, licensing.TierPro, false, 0)
	assistantUser := env.addMember(t, pro.tenant.ID, auth.RoleAssistant)
	rec = env.do(t, http.MethodPost, "/api/documents/any/sign", assistantUser.token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
