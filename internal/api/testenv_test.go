package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenovalaw/xenova/internal/ai/assistant"
	"github.com/xenovalaw/xenova/internal/ai/providers"
	"github.com/xenovalaw/xenova/internal/ai/usage"
	"github.com/xenovalaw/xenova/internal/blob"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

const (
	testAdminKey = "admin-key-for-tests"
	testPassword = "correct-horse-battery"
)

func TestMain(m *testing.M) {
	auth.BcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type fakeProvider struct {
	calls atomic.Int32
	chat  func(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error)
}

func (p *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.calls.Add(1)
	if p.chat != nil {
		return p.chat(ctx, req)
	}
	return &providers.ChatResponse{
		Content:      "The limitation period for contractual claims is five years.",
		Model:        "claude-sonnet-4-20250514",
		InputTokens:  120,
		OutputTokens: 80,
	}, nil
}

func (p *fakeProvider) Name() string  { return "anthropic" }
func (p *fakeProvider) Model() string { return "claude-sonnet-4" }

type testEnv struct {
	store    *store.SQLiteStore
	sessions *auth.SessionManager
	provider *fakeProvider
	handler  http.Handler
}

// member is a signed-in user of a seeded tenant.
type member struct {
	user  *models.User
	token string
}

type firm struct {
	tenant *models.Tenant
	owner  member
}

func newTestEnv(t *testing.T, configure ...func(*Deps)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	s, err := store.OpenSQLite(filepath.Join(dir, "xenova.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	blobs, err := blob.NewLocalStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	sessions, err := auth.NewSessionManager(strings.Repeat("s", 32), time.Hour)
	require.NoError(t, err)

	p := &fakeProvider{}
	acct := usage.NewAccountant(s, nil)
	d := Deps{
		Store:          s,
		Sessions:       sessions,
		Assistant:      assistant.NewService(s, acct, p, assistant.Config{Timeout: 2 * time.Second}),
		Accountant:     acct,
		Blobs:          blobs,
		AdminKey:       testAdminKey,
		MaxUploadBytes: 1 << 20,
	}
	for _, fn := range configure {
		fn(&d)
	}
	return &testEnv{store: s, sessions: sessions, provider: p, handler: NewRouter(d)}
}

func (e *testEnv) firm(t *testing.T, tier licensing.Tier, aiActive bool, quotaMax int64) firm {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	caps, ok := licensing.Default().CapabilitiesOf(tier)
	require.True(t, ok)

	tenant := &models.Tenant{
		Name:          "Estudio " + string(tier),
		Tier:          tier,
		MaxUsers:      caps.MaxUsers,
		StorageGB:     caps.StorageGB,
		AIActive:      aiActive,
		AIBillingMode: licensing.BillingFixed,
		AIQuotaMax:    quotaMax,
		Active:        true,
	}
	owner := &models.User{
		Email:        strings.ToLower(models.NewID()) + "@example.com",
		Name:         "Owner",
		PasswordHash: hash,
		Role:         auth.RoleOwner,
		Active:       true,
	}
	require.NoError(t, e.store.ProvisionTenant(context.Background(), tenant, owner))
	return firm{tenant: tenant, owner: e.signIn(t, owner)}
}

func (e *testEnv) addMember(t *testing.T, tenantID string, role auth.Role) member {
	t.Helper()
	u := &models.User{
		TenantID: tenantID,
		Email:    strings.ToLower(models.NewID()) + "@example.com",
		Name:     string(role),
		Role:     role,
		Active:   true,
	}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return e.signIn(t, u)
}

func (e *testEnv) signIn(t *testing.T, u *models.User) member {
	t.Helper()
	token, _, err := e.sessions.Issue(u.ID)
	require.NoError(t, err)
	return member{user: u, token: token}
}

// do sends a JSON request with the member's bearer token. An empty token
// sends the request anonymously.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) admin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Admin-Key", testAdminKey)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	return decode[APIError](t, rec)
}

// seedCase creates a client and a case directly in the store.
func (e *testEnv) seedCase(t *testing.T, tenantID string) *models.Case {
	t.Helper()
	ctx := context.Background()
	c := &models.Client{Name: "Acme SA"}
	require.NoError(t, e.store.CreateClient(ctx, tenantID, c))
	kase := &models.Case{ClientID: c.ID, Number: "EXP-" + models.NewID()[:8], Title: "Acme v. Beta"}
	require.NoError(t, e.store.CreateCase(ctx, tenantID, kase))
	return kase
}
