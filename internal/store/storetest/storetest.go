// Package storetest is a conformance suite run against every store.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"TenantLifecycle", testTenantLifecycle},
		{"ProvisionTenant", testProvisionTenant},
		{"SeatLimit", testSeatLimit},
		{"UserEmailUnique", testUserEmailUnique},
		{"UpdateUserScoped", testUpdateUserScoped},
		{"ClientCRUD", testClientCRUD},
		{"CrossTenantReadsAreEmpty", testCrossTenantReads},
		{"CrossTenantWritesAreNotFound", testCrossTenantWrites},
		{"ForeignKeysVerifiedAgainstTenant", testForeignKeysVerified},
		{"CaseNumberUniquePerTenant", testCaseNumberUnique},
		{"TasksAndEvents", testTasksAndEvents},
		{"Documents", testDocuments},
		{"StorageAllowance", testStorageAllowance},
		{"StorageAllowanceConcurrent", testStorageAllowanceConcurrent},
		{"Invoices", testInvoices},
		{"QuotaFixedCeiling", testQuotaFixedCeiling},
		{"QuotaPayPerUse", testQuotaPayPerUse},
		{"QuotaConcurrentConsume", testQuotaConcurrent},
		{"QuotaReset", testQuotaReset},
		{"AIUsageLog", testAIUsageLog},
		{"PracticeSummary", testPracticeSummary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func newTenant(t *testing.T, s store.Store, tier licensing.Tier) *models.Tenant {
	t.Helper()
	spec, ok := licensing.CapabilitiesOf(tier)
	require.True(t, ok, "tier %s", tier)
	tn := &models.Tenant{
		Name:          "Estudio " + string(tier),
		Tier:          tier,
		MaxUsers:      spec.MaxUsers,
		StorageGB:     spec.StorageGB,
		AIBillingMode: licensing.BillingFixed,
		AIQuotaMax:    spec.DefaultAIQuota,
		Active:        true,
	}
	require.NoError(t, s.CreateTenant(context.Background(), tn))
	return tn
}

func newUser(t *testing.T, s store.Store, tenantID, email string, role auth.Role) *models.User {
	t.Helper()
	u := &models.User{TenantID: tenantID, Email: email, Name: email, Role: role, Active: true, PasswordHash: "x"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func newClient(t *testing.T, s store.Store, tenantID, name string) *models.Client {
	t.Helper()
	c := &models.Client{Name: name, Email: name + "@example.com"}
	require.NoError(t, s.CreateClient(context.Background(), tenantID, c))
	return c
}

func newCase(t *testing.T, s store.Store, tenantID, clientID, number string) *models.Case {
	t.Helper()
	c := &models.Case{ClientID: clientID, Number: number, Title: "Case " + number}
	require.NoError(t, s.CreateCase(context.Background(), tenantID, c))
	return c
}

func testTenantLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	tn := newTenant(t, s, licensing.TierPro)
	assert.NotEmpty(t, tn.ID)
	assert.False(t, tn.AIPeriodStart.IsZero())

	got, err := s.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, licensing.TierPro, got.Tier)
	assert.Equal(t, int64(500), got.AIQuotaMax)
	assert.True(t, got.Active)
	assert.True(t, got.CreatedAt.Equal(tn.CreatedAt))

	missing, err := s.GetTenant(ctx, "t-MISSING000")
	require.NoError(t, err)
	assert.Nil(t, missing)

	activated := time.Now().UTC().Truncate(time.Millisecond)
	got.Tier = licensing.TierEnterprise
	got.AIActive = true
	got.AIActivatedAt = &activated
	got.AIQuotaUsed = 999 // ignored by UpdateTenant
	require.NoError(t, s.UpdateTenant(ctx, got))

	again, err := s.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, licensing.TierEnterprise, again.Tier)
	assert.True(t, again.AIActive)
	require.NotNil(t, again.AIActivatedAt)
	assert.True(t, again.AIActivatedAt.Equal(activated))
	assert.Equal(t, int64(0), again.AIQuotaUsed)

	err = s.UpdateTenant(ctx, &models.Tenant{ID: "t-MISSING000", Tier: licensing.TierBase})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	newTenant(t, s, licensing.TierBase)
	all, err := s.ListTenants(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testProvisionTenant(t *testing.T, s store.Store) {
	ctx := context.Background()
	tn := &models.Tenant{Name: "Estudio Uno", Tier: licensing.TierBase, MaxUsers: 3, Active: true}
	owner := &models.User{Email: "Owner@Example.com", Role: auth.RoleOwner, Active: true}
	require.NoError(t, s.ProvisionTenant(ctx, tn, owner))

	assert.Equal(t, tn.ID, owner.TenantID)
	got, err := s.GetUserByEmail(ctx, "owner@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tn.ID, got.TenantID)
	assert.Equal(t, auth.RoleOwner, got.Role)
	assert.Equal(t, models.ThemeSystem, got.Theme)

	// A duplicate owner e-mail rolls the whole provisioning back.
	tn2 := &models.Tenant{Name: "Estudio Dos", Tier: licensing.TierBase, Active: true}
	dup := &models.User{Email: "owner@example.com", Role: auth.RoleOwner, Active: true}
	err = s.ProvisionTenant(ctx, tn2, dup)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	all, err := s.ListTenants(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testSeatLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	tn := newTenant(t, s, licensing.TierBase) // 3 seats
	newUser(t, s, tn.ID, "a@example.com", auth.RoleOwner)
	newUser(t, s, tn.ID, "b@example.com", auth.RoleLawyer)
	c := newUser(t, s, tn.ID, "c@example.com", auth.RoleAssistant)

	err := s.CreateUser(ctx, &models.User{TenantID: tn.ID, Email: "d@example.com", Role: auth.RoleLawyer, Active: true})
	assert.ErrorIs(t, err, apperrors.ErrLimitReached)

	// Deactivated users free their seat; reactivating needs one again.
	c.Active = false
	require.NoError(t, s.UpdateUser(ctx, tn.ID, c))
	n, err := s.CountActiveUsers(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	d := newUser(t, s, tn.ID, "d@example.com", auth.RoleLawyer)
	assert.NotEmpty(t, d.ID)

	c.Active = true
	err = s.UpdateUser(ctx, tn.ID, c)
	assert.ErrorIs(t, err, apperrors.ErrLimitReached)

	// Unlimited seats.
	ent := newTenant(t, s, licensing.TierEnterprise)
	for _, email := range []string{"e1@example.com", "e2@example.com", "e3@example.com", "e4@example.com"} {
		newUser(t, s, ent.ID, email, auth.RoleLawyer)
	}

	err = s.CreateUser(ctx, &models.User{TenantID: "t-MISSING000", Email: "x@example.com", Role: auth.RoleLawyer, Active: true})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testUserEmailUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	tn := newTenant(t, s, licensing.TierPro)
	newUser(t, s, tn.ID, "ana@example.com", auth.RoleOwner)

	other := newTenant(t, s, licensing.TierPro)
	err := s.CreateUser(ctx, &models.User{TenantID: other.ID, Email: " ANA@example.com ", Role: auth.RoleOwner, Active: true})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// Identity without a tenant.
	loose := &models.User{Email: "loose@example.com", Role: auth.RoleLawyer, Active: true}
	require.NoError(t, s.CreateUser(ctx, loose))
	got, err := s.GetUser(ctx, loose.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.TenantID)
}

func testUpdateUserScoped(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := newTenant(t, s, licensing.TierPro)
	b := newTenant(t, s, licensing.TierPro)
	ua := newUser(t, s, a.ID, "ua@example.com", auth.RoleLawyer)

	ua.Role = auth.RoleAdmin
	err := s.UpdateUser(ctx, b.ID, ua)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := s.GetTenantUser(ctx, b.ID, ua.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.UpdateUser(ctx, a.ID, ua))
	got, err = s.GetTenantUser(ctx, a.ID, ua.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, auth.RoleAdmin, got.Role)
	assert.Equal(t, "x", got.PasswordHash, "empty hash keeps the stored one")

	require.NoError(t, s.UpdatePreferences(ctx, ua.ID, models.ThemeDark))
	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.RecordLogin(ctx, ua.ID, at))
	got, err = s.GetUser(ctx, ua.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThemeDark, got.Theme)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, got.LastLoginAt.Equal(at))

	assert.ErrorIs(t, s.UpdatePreferences(ctx, "missing", models.ThemeDark), apperrors.ErrNotFound)

	users, err := s.ListUsers(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func testClientCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	tn := newTenant(t, s, licensing.TierBase)
	acme := newClient(t, s, tn.ID, "acme")
	newClient(t, s, tn.ID, "globex")

	// Supplied tenant ids are overwritten.
	forged := &models.Client{TenantID: "t-OTHER00000", Name: "initech"}
	require.NoError(t, s.CreateClient(ctx, tn.ID, forged))
	assert.Equal(t, tn.ID, forged.TenantID)

	list, err := s.ListClients(ctx, tn.ID, store.ClientFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "acme", list[0].Name)

	list, err = s.ListClients(ctx, tn.ID, store.ClientFilter{Query: "glob"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "globex", list[0].Name)

	list, err = s.ListClients(ctx, tn.ID, store.ClientFilter{Page: store.Page{Limit: 1, Offset: 1}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "globex", list[0].Name)

	acme.Phone = "+54 11 5555"
	require.NoError(t, s.UpdateClient(ctx, tn.ID, acme))
	require.NoError(t, s.ArchiveClient(ctx, tn.ID, acme.ID))

	got, err := s.GetClient(ctx, tn.ID, acme.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Archived)
	assert.Equal(t, "+54 11 5555", got.Phone)

	list, err = s.ListClients(ctx, tn.ID, store.ClientFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	list, err = s.ListClients(ctx, tn.ID, store.ClientFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func testCrossTenantReads(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := newTenant(t, s, licensing.TierEnterprise)
	b := newTenant(t, s, licensing.TierEnterprise)
	client := newClient(t, s, a.ID, "acme")
	kase := newCase(t, s, a.ID, client.ID, "A-1")
	task := &models.Task{CaseID: kase.ID, Title: "file brief"}
	require.NoError(t, s.CreateTask(ctx, a.ID, task))
	doc := &models.Document{CaseID: kase.ID, Filename: "brief.pdf", StorageKey: "k", SizeBytes: 10}
	require.NoError(t, s.CreateDocument(ctx, a.ID, doc))
	inv := &models.Invoice{ClientID: client.ID, Number: "F-1", AmountCents: 100, Currency: "ars"}
	require.NoError(t, s.CreateInvoice(ctx, a.ID, inv))
	ev := &models.CalendarEvent{Title: "hearing", Kind: models.EventHearing, StartsAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.CreateEvent(ctx, a.ID, ev))

	gotClient, err := s.GetClient(ctx, b.ID, client.ID)
	require.NoError(t, err)
	assert.Nil(t, gotClient)
	gotCase, err := s.GetCase(ctx, b.ID, kase.ID)
	require.NoError(t, err)
	assert.Nil(t, gotCase)
	gotTask, err := s.GetTask(ctx, b.ID, task.ID)
	require.NoError(t, err)
	assert.Nil(t, gotTask)
	gotDoc, err := s.GetDocument(ctx, b.ID, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, gotDoc)
	gotInv, err := s.GetInvoice(ctx, b.ID, inv.ID)
	require.NoError(t, err)
	assert.Nil(t, gotInv)
	gotEv, err := s.GetEvent(ctx, b.ID, ev.ID)
	require.NoError(t, err)
	assert.Nil(t, gotEv)

	clients, err := s.ListClients(ctx, b.ID, store.ClientFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Empty(t, clients)
	cases, err := s.ListCases(ctx, b.ID, store.CaseFilter{})
	require.NoError(t, err)
	assert.Empty(t, cases)
	tasks, err := s.ListTasks(ctx, b.ID, store.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	docs, err := s.ListDocuments(ctx, b.ID, store.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
	invs, err := s.ListInvoices(ctx, b.ID, store.InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, invs)
	evs, err := s.ListEvents(ctx, b.ID, store.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, evs)
	bytes, err := s.DocumentBytes(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, bytes)
}

func testCrossTenantWrites(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := newTenant(t, s, licensing.TierEnterprise)
	b := newTenant(t, s, licensing.TierEnterprise)
	client := newClient(t, s, a.ID, "acme")
	kase := newCase(t, s, a.ID, client.ID, "A-1")
	task := &models.Task{Title: "call client"}
	require.NoError(t, s.CreateTask(ctx, a.ID, task))
	doc := &models.Document{CaseID: kase.ID, Filename: "brief.pdf", StorageKey: "k"}
	require.NoError(t, s.CreateDocument(ctx, a.ID, doc))
	ev := &models.CalendarEvent{Title: "meeting", Kind: models.EventMeeting, StartsAt: time.Now()}
	require.NoError(t, s.CreateEvent(ctx, a.ID, ev))
	ub := newUser(t, s, b.ID, "signer@b.example.com", auth.RoleOwner)

	clientCopy := *client
	clientCopy.Name = "hijacked"
	assert.ErrorIs(t, s.UpdateClient(ctx, b.ID, &clientCopy), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.ArchiveClient(ctx, b.ID, client.ID), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTask(ctx, b.ID, task.ID), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.DeleteDocument(ctx, b.ID, doc.ID), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.SignDocument(ctx, b.ID, doc.ID, ub.ID, time.Now()), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.DeleteEvent(ctx, b.ID, ev.ID), apperrors.ErrNotFound)

	// Tenant A's rows are untouched.
	got, err := s.GetClient(ctx, a.ID, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Name)
	assert.False(t, got.Archived)
	gotTask, err := s.GetTask(ctx, a.ID, task.ID)
	require.NoError(t, err)
	assert.NotNil(t, gotTask)
	gotDoc, err := s.GetDocument(ctx, a.ID, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, gotDoc)
	assert.Nil(t, gotDoc.SignedAt)
}

func testForeignKeysVerified(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := newTenant(t, s, licensing.TierEnterprise)
	b := newTenant(t, s, licensing.TierEnterprise)
	clientA := newClient(t, s, a.ID, "acme")
	caseA := newCase(t, s, a.ID, clientA.ID, "A-1")
	userA := newUser(t, s, a.ID, "lawyer@a.example.com", auth.RoleLawyer)
	clientB := newClient(t, s, b.ID, "globex")
	caseB := newCase(t, s, b.ID, clientB.ID, "B-1")

	err := s.CreateCase(ctx, b.ID, &models.Case{ClientID: clientA.ID, Number: "B-2", Title: "x"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	err = s.CreateCase(ctx, b.ID, &models.Case{ClientID: clientB.ID, Number: "B-3", Title: "x", AssignedUserID: userA.ID})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	err = s.CreateTask(ctx, b.ID, &models.Task{CaseID: caseA.ID, Title: "x"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	err = s.CreateDocument(ctx, b.ID, &models.Document{CaseID: caseA.ID, Filename: "x", StorageKey: "k"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	err = s.CreateInvoice(ctx, b.ID, &models.Invoice{ClientID: clientA.ID, Number: "F-1", Currency: "ARS"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	err = s.CreateInvoice(ctx, b.ID, &models.Invoice{ClientID: clientB.ID, CaseID: caseA.ID, Number: "F-2", Currency: "ARS"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	err = s.CreateEvent(ctx, b.ID, &models.CalendarEvent{CaseID: caseA.ID, Title: "x", Kind: models.EventDeadline, StartsAt: time.Now()})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Moving an existing case to another tenant's client is refused too.
	caseB.ClientID = clientA.ID
	assert.ErrorIs(t, s.UpdateCase(ctx, b.ID, caseB), apperrors.ErrNotFound)

	cases, err := s.ListCases(ctx, b.ID, store.CaseFilter{})
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, clientB.ID, cases[0].ClientID)
}

func testCaseNumberUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := newTenant(t, s, licensing.TierBase)
	b := newTenant(t, s, licensing.TierBase)
	ca := newClient(t, s, a.ID, "acme")
	cb := newClient(t, s, b.ID, "acme")
	newCase(t, s, a.ID, ca.ID, "123/2024")

	err := s.CreateCase(ctx, a.ID, &models.Case{ClientID: ca.ID, Number: "123/2024", Title: "dup"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// Same number in another firm is fine.
	newCase(t, s, b.ID, cb.ID, "123/2024")

	list, err := s.ListCases(ctx, a.ID, store.CaseFilter{Query: "123", Status: models.CaseOpen})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testTasksAndEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	tn := newTenant(t, s, licensing.TierBase)
	cl := newClient(t, s, tn.ID, "acme")
	kase := newCase(t, s, tn.ID, cl.ID, "1")
	lawyer := newUser(t, s, tn.ID, "l@example.com", auth.RoleLawyer)

	due := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Millisecond)
	t1 := &models.Task{CaseID: kase.ID, Title: "later", AssigneeID: lawyer.ID}
	t2 := &models.Task{CaseID: kase.ID, Title: "soon", DueAt: &due}
	require.NoError(t, s.CreateTask(ctx, tn.ID, t1))
	require.NoError(t, s.CreateTask(ctx, tn.ID, t2))
	assert.Equal(t, models.TaskPending, t1.Status)

	tasks, err := s.ListTasks(ctx, tn.ID, store.TaskFilter{CaseID: kase.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "soon", tasks[0].Title, "dated tasks sort first")

	t1.Status = models.TaskDone
	require.NoError(t, s.UpdateTask(ctx, tn.ID, t1))
	tasks, err = s.ListTasks(ctx, tn.ID, store.TaskFilter{Status: models.TaskDone})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, t1.ID, tasks[0].ID)

	require.NoError(t, s.DeleteTask(ctx, tn.ID, t1.ID))
	assert.ErrorIs(t, s.DeleteTask(ctx, tn.ID, t1.ID), apperrors.ErrNotFound)

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, title := range []string{"first", "second", "third"} {
		ev := &models.CalendarEvent{Title: title, Kind: models.EventMeeting, StartsAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, s.CreateEvent(ctx, tn.ID, ev))
	}
	from := base.Add(30 * time.Minute)
	evs, err := s.ListEvents(ctx, tn.ID, store.EventFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "second", evs[0].Title)

	evs[0].Location = "Tribunal 3"
	require.NoError(t, s.UpdateEvent(ctx, tn.ID, evs[0]))
	got, err := s.GetEvent(ctx, tn.ID, evs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Tribunal 3", got.Location)
	assert.True(t, got.StartsAt.Equal(base.Add(time.Hour)))
}

func testDocuments(t *testing.T, s store.Store) {
	ctx := context.Background()
	tn := newTenant(t, s, licensing.TierPro)
	cl := newClient(t, s, tn.ID, "acme")
	kase := newCase(t, s, tn.ID, cl.ID, "1")
	owner := newUser(t, s, tn.ID, "o@example.com", auth.RoleOwner)

	d1 := &models.Document{CaseID: kase.ID, Filename: "a.pdf", SizeBytes: 1000, StorageKey: "k1", UploadedBy: owner.ID}
	d2 := &models.Document{CaseID: kase.ID, Filename: "b.pdf", SizeBytes: 500, StorageKey: "k2", UploadedBy: owner.ID}
	require.NoError(t, s.CreateDocument(ctx, tn.ID, d1))
	require.NoError(t, s.CreateDocument(ctx, tn.ID, d2))

	total, err := s.DocumentBytes(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), total)

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.SignDocument(ctx, tn.ID, d1.ID, owner.ID, at))
	assert.ErrorIs(t, s.SignDocument(ctx, tn.ID, d1.ID, owner.ID, at), apperrors.ErrConflict)
	assert.ErrorIs(t, s.SignDocument(ctx, tn.ID, "missing", owner.ID, at), apperrors.ErrNotFound)

	got, err := s.GetDocument(ctx, tn.ID, d1.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SignedAt)
	assert.True(t, got.SignedAt.Equal(at))
	assert.Equal(t, owner.ID, got.SignedBy)
	assert.Equal(t, "k1", got.StorageKey)

	docs, err := s.ListDocuments(ctx, tn.ID, store.DocumentFilter{CaseID: kase.ID})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	require.NoError(t, s.DeleteDocument(ctx, tn.ID, d2.ID))
	total, err = s.DocumentBytes(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total)
}

func newStorageTenant(t *testing.T, s store.Store, storageGB int) (*models.Tenant, *models.Case) {
	t.Helper()
	tn := &models.Tenant{
		Name:          "Estudio storage",
		Tier:          licensing.TierBase,
		MaxUsers:      3,
		StorageGB:     storageGB,
		AIBillingMode: licensing.BillingFixed,
		Active:        true,
	}
	require.NoError(t, s.CreateTenant(context.Background(), tn))
	cl := newClient(t, s, tn.ID, "acme")
	return tn, newCase(t, s, tn.ID, cl.ID, "1")
}

func testStorageAllowance(t *testing.T, s store.Store) {
	ctx := context.Background()
	const gb = int64(1) << 30
	tn, kase := newStorageTenant(t, s, 1)

	require.NoError(t, s.CreateDocument(ctx, tn.ID, &models.Document{CaseID: kase.ID, Filename: "a.pdf", SizeBytes: gb - 10, StorageKey: "k1"}))

	err := s.CreateDocument(ctx, tn.ID, &models.Document{CaseID: kase.ID, Filename: "b.pdf", SizeBytes: 11, StorageKey: "k2"})
	require.ErrorIs(t, err, apperrors.ErrLimitReached)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.EqualValues(t, gb-10, appErr.Details["used_bytes"])
	assert.EqualValues(t, gb, appErr.Details["limit_bytes"])

	// Exactly filling the allowance is allowed.
	require.NoError(t, s.CreateDocument(ctx, tn.ID, &models.Document{CaseID: kase.ID, Filename: "c.pdf", SizeBytes: 10, StorageKey: "k3"}))

	// A zero allowance is unlimited.
	open, openCase := newStorageTenant(t, s, 0)
	require.NoError(t, s.CreateDocument(ctx, open.ID, &models.Document{CaseID: openCase.ID, Filename: "big.pdf", SizeBytes: 5 * gb, StorageKey: "k4"}))
}

func testStorageAllowanceConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	const (
		gb      = int64(1) << 30
		size    = gb / 4
		writers = 10
	)
	tn, kase := newStorageTenant(t, s, 1)

	var (
		wg      sync.WaitGroup
		created atomic.Int32
		limited atomic.Int32
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateDocument(ctx, tn.ID, &models.Document{CaseID: kase.ID, Filename: "doc.pdf", SizeBytes: size, StorageKey: models.NewID()})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, apperrors.ErrLimitReached):
				limited.Add(1)
			default:
				t.Errorf("create document: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(4), created.Load())
	assert.Equal(t, int32(writers-4), limited.Load())
	total, err := s.DocumentBytes(ctx, tn.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, total, gb)
}

func testInvoices(t *testing.T, s store.Store) {
	ctx := context.Background()
	tn := newTenant(t, s, licensing.TierPro)
	cl := newClient(t, s, tn.ID, "acme")
	kase := newCase(t, s, tn.ID, cl.ID, "1")

	inv := &models.Invoice{ClientID: cl.ID, CaseID: kase.ID, Number: "F-0001", AmountCents: 150000, Currency: "ars"}
	require.NoError(t, s.CreateInvoice(ctx, tn.ID, inv))
	assert.Equal(t, models.InvoiceDraft, inv.Status)
	assert.Equal(t, "ARS", inv.Currency)

	err := s.CreateInvoice(ctx, tn.ID, &models.Invoice{ClientID: cl.ID, Number: "F-0001", Currency: "ARS"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	issued := time.Now().UTC().Truncate(time.Millisecond)
	inv.Status = models.InvoiceIssued
	inv.IssuedAt = &issued
	inv.Electronic = true
	require.NoError(t, s.UpdateInvoice(ctx, tn.ID, inv))

	list, err := s.ListInvoices(ctx, tn.ID, store.InvoiceFilter{Status: models.InvoiceIssued})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Electronic)
	require.NotNil(t, list[0].IssuedAt)
	assert.True(t, list[0].IssuedAt.Equal(issued))

	list, err = s.ListInvoices(ctx, tn.ID, store.InvoiceFilter{ClientID: "other"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testQuotaFixedCeiling(t *testing.T, s store.Store) {
	ctx := context.Background()
	tn := newTenant(t, s, licensing.TierPro)
	tn.AIQuotaMax = 2
	require.NoError(t, s.UpdateTenant(ctx, tn))

	used, err := s.ConsumeAIQuotaUnit(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), used)
	used, err = s.ConsumeAIQuotaUnit(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), used)

	_, err = s.ConsumeAIQuotaUnit(ctx, tn.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrQuotaExhausted)
	details := apperrors.DetailsOf(err)
	assert.EqualValues(t, 2, details["used"])
	assert.EqualValues(t, 2, details["max"])

	got, err := s.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AIQuotaUsed)

	_, err = s.ConsumeAIQuotaUnit(ctx, "t-MISSING000")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testQuotaPayPerUse(t *testing.T, s store.Store) {
	ctx := context.Background()
	tn := newTenant(t, s, licensing.TierPro)
	tn.AIBillingMode = licensing.BillingPayPerUse
	tn.AIQuotaMax = 1
	require.NoError(t, s.UpdateTenant(ctx, tn))

	for i := 1; i <= 5; i++ {
		used, err := s.ConsumeAIQuotaUnit(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(i), used)
	}
}

func testQuotaConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	tn := newTenant(t, s, licensing.TierPro)
	tn.AIQuotaMax = 5
	require.NoError(t, s.UpdateTenant(ctx, tn))

	const workers = 20
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		exhausted atomic.Int64
		other     atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumeAIQuotaUnit(ctx, tn.ID)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, apperrors.ErrQuotaExhausted):
				exhausted.Add(1)
			default:
				other.Add(1)
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), succeeded.Load())
	assert.Equal(t, int64(workers-5), exhausted.Load())
	assert.Zero(t, other.Load())

	got, err := s.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.AIQuotaUsed)
}

func testQuotaReset(t *testing.T, s store.Store) {
	ctx := context.Background()
	tn := newTenant(t, s, licensing.TierPro)
	for i := 0; i < 3; i++ {
		_, err := s.ConsumeAIQuotaUnit(ctx, tn.ID)
		require.NoError(t, err)
	}

	start := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.ResetAIQuota(ctx, tn.ID, start))
	got, err := s.GetTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Zero(t, got.AIQuotaUsed)
	assert.True(t, got.AIPeriodStart.Equal(start))

	assert.ErrorIs(t, s.ResetAIQuota(ctx, "t-MISSING000", start), apperrors.ErrNotFound)
}

func testAIUsageLog(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := newTenant(t, s, licensing.TierPro)
	b := newTenant(t, s, licensing.TierPro)
	since := time.Now().Add(-time.Minute)

	records := []*models.AIUsageRecord{
		{TenantID: a.ID, UserID: "u1", Action: "research", Model: "m", Tokens: 100, CostUSD: 0.01, Success: true,
			Metadata: map[string]string{"case_id": "c1"}},
		{TenantID: a.ID, UserID: "u1", Action: "research", Model: "m", Success: false, ErrorMessage: "upstream 500"},
		{TenantID: a.ID, UserID: "u2", Action: "draft", Model: "m", Tokens: 300, CostUSD: 0.03, Success: true},
		{TenantID: b.ID, UserID: "u3", Action: "draft", Model: "m", Tokens: 50, Success: true},
	}
	for _, rec := range records {
		require.NoError(t, s.AppendAIUsage(ctx, rec))
		assert.NotEmpty(t, rec.ID)
	}

	n, err := s.CountSuccessfulAIUsage(ctx, a.ID, since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	list, err := s.ListAIUsage(ctx, a.ID, since, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	var withMeta *models.AIUsageRecord
	for _, rec := range list {
		assert.Equal(t, a.ID, rec.TenantID)
		if rec.Metadata != nil {
			withMeta = rec
		}
	}
	require.NotNil(t, withMeta)
	assert.Equal(t, "c1", withMeta.Metadata["case_id"])

	summary, err := s.SummarizeAIUsage(ctx, a.ID, since)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "draft", summary[0].Action)
	assert.Equal(t, "research", summary[1].Action)
	assert.Equal(t, int64(2), summary[1].Attempts)
	assert.Equal(t, int64(1), summary[1].Successes)
	assert.Equal(t, int64(100), summary[1].Tokens)

	n, err = s.CountSuccessfulAIUsage(ctx, a.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testPracticeSummary(t *testing.T, s store.Store) {
	ctx := context.Background()
	tn := newTenant(t, s, licensing.TierEnterprise)
	other := newTenant(t, s, licensing.TierEnterprise)
	cl := newClient(t, s, tn.ID, "acme")
	k1 := newCase(t, s, tn.ID, cl.ID, "1")
	k2 := newCase(t, s, tn.ID, cl.ID, "2")
	k2.Status = models.CaseClosed
	require.NoError(t, s.UpdateCase(ctx, tn.ID, k2))
	newClient(t, s, other.ID, "noise")

	require.NoError(t, s.CreateInvoice(ctx, tn.ID, &models.Invoice{ClientID: cl.ID, Number: "1", AmountCents: 1000, Currency: "ARS", Status: models.InvoicePaid}))
	require.NoError(t, s.CreateInvoice(ctx, tn.ID, &models.Invoice{ClientID: cl.ID, Number: "2", AmountCents: 500, Currency: "ARS", Status: models.InvoiceIssued}))
	require.NoError(t, s.CreateInvoice(ctx, tn.ID, &models.Invoice{ClientID: cl.ID, Number: "3", AmountCents: 700, Currency: "ARS"}))
	require.NoError(t, s.CreateTask(ctx, tn.ID, &models.Task{CaseID: k1.ID, Title: "open"}))
	require.NoError(t, s.CreateTask(ctx, tn.ID, &models.Task{CaseID: k1.ID, Title: "done", Status: models.TaskDone}))
	require.NoError(t, s.CreateDocument(ctx, tn.ID, &models.Document{CaseID: k1.ID, Filename: "a", StorageKey: "k", SizeBytes: 42}))

	now := time.Now().UTC()
	require.NoError(t, s.CreateEvent(ctx, tn.ID, &models.CalendarEvent{Title: "h1", Kind: models.EventHearing, StartsAt: now.Add(24 * time.Hour)}))
	require.NoError(t, s.CreateEvent(ctx, tn.ID, &models.CalendarEvent{Title: "h2", Kind: models.EventHearing, StartsAt: now.Add(-24 * time.Hour)}))
	require.NoError(t, s.CreateEvent(ctx, tn.ID, &models.CalendarEvent{Title: "m", Kind: models.EventMeeting, StartsAt: now.Add(time.Hour)}))

	sum, err := s.PracticeSummary(ctx, tn.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.CasesByStatus[models.CaseOpen])
	assert.Equal(t, 1, sum.CasesByStatus[models.CaseClosed])
	assert.Equal(t, int64(1500), sum.BilledCents)
	assert.Equal(t, int64(1000), sum.PaidCents)
	assert.Equal(t, 1, sum.InvoicesByStatus[models.InvoiceDraft])
	assert.Equal(t, 1, sum.OpenTasks)
	assert.Equal(t, 1, sum.ActiveClients)
	assert.Equal(t, int64(42), sum.DocumentBytes)
	assert.Equal(t, 1, sum.UpcomingHearings)
}
