// Package api is the HTTP surface of XenovaLaw: tenant-scoped practice
// endpoints, AI actions, sessions and the platform admin API.
package api

import (
	"net/http"
	"time"

	"github.com/xenovalaw/xenova/internal/ai/assistant"
	"github.com/xenovalaw/xenova/internal/ai/usage"
	"github.com/xenovalaw/xenova/internal/blob"
	"github.com/xenovalaw/xenova/internal/provisioning"
	"github.com/xenovalaw/xenova/internal/ratelimit"
	"github.com/xenovalaw/xenova/internal/store"
	"github.com/xenovalaw/xenova/internal/tenancy"
	"github.com/xenovalaw/xenova/pkg/auth"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Store        store.Store
	Catalog      *licensing.Catalog
	Sessions     *auth.SessionManager
	Assistant    *assistant.Service
	Accountant   *usage.Accountant
	Provisioning *provisioning.Service
	Blobs        blob.Store

	// LoginLimiter throttles sign-in attempts per client IP. APILimiter
	// throttles tenant API calls per user. Either may be nil.
	LoginLimiter ratelimit.Limiter
	APILimiter   ratelimit.Limiter

	// AdminKey guards /admin. An empty key disables the admin API.
	AdminKey       string
	MaxUploadBytes int64
	SecureCookies  bool
}

// Router holds the wired handlers.
type Router struct {
	store        store.Store
	catalog      *licensing.Catalog
	sessions     *auth.SessionManager
	guard        *tenancy.Guard
	assistant    *assistant.Service
	accountant   *usage.Accountant
	provisioning *provisioning.Service
	blobs        blob.Store
	loginLimiter ratelimit.Limiter
	apiLimiter   ratelimit.Limiter
	adminKey     string
	maxUpload    int64
	secure       bool
	now          func() time.Time
}

// NewRouter builds the handler tree.
func NewRouter(d Deps) http.Handler {
	rt := newRouter(d)
	mux := http.NewServeMux()
	rt.RegisterRoutes(mux)
	return chain(mux, ErrorHandler, SecurityHeaders)
}

func newRouter(d Deps) *Router {
	catalog := d.Catalog
	if catalog == nil {
		catalog = licensing.Default()
	}
	accountant := d.Accountant
	if accountant == nil {
		accountant = usage.NewAccountant(d.Store, nil)
	}
	prov := d.Provisioning
	if prov == nil {
		prov = provisioning.NewService(d.Store, catalog)
	}
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	return &Router{
		store:        d.Store,
		catalog:      catalog,
		sessions:     d.Sessions,
		guard:        tenancy.NewGuard(d.Store),
		assistant:    d.Assistant,
		accountant:   accountant,
		provisioning: prov,
		blobs:        d.Blobs,
		loginLimiter: d.LoginLimiter,
		apiLimiter:   d.APILimiter,
		adminKey:     d.AdminKey,
		maxUpload:    maxUpload,
		secure:       d.SecureCookies,
		now:          time.Now,
	}
}

// RegisterRoutes mounts every endpoint on mux.
func (rt *Router) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", rt.handleHealthz)
	mux.HandleFunc("GET /readyz", rt.handleReadyz)

	// Session
	login := http.Handler(http.HandlerFunc(rt.handleLogin))
	if rt.loginLimiter != nil {
		login = ratelimit.Middleware(rt.loginLimiter, "login", ratelimit.ClientIP, writeError)(login)
	}
	mux.Handle("POST /api/auth/login", login)
	mux.HandleFunc("POST /api/auth/logout", rt.handleLogout)
	rt.tenant(mux, "GET /api/me", rt.handleMe)
	rt.tenant(mux, "PATCH /api/me/preferences", rt.handleUpdatePreferences)
	rt.tenant(mux, "GET /api/tenant", rt.handleGetTenant)

	// Entitlements
	rt.tenant(mux, "GET /api/modules", rt.handleListModules)
	rt.tenant(mux, "GET /api/modules/{module_id}", rt.handleGetModule)

	// AI
	rt.tenant(mux, "GET /api/ai/quota", rt.handleAIQuota)
	rt.tenant(mux, "GET /api/ai/usage", rt.handleAIUsage,
		rt.requireModule(licensing.ModuleAIResearch), requireRoles(auth.RoleOwner, auth.RoleAdmin))
	rt.tenant(mux, "POST /api/ai/research", rt.handleAIAction(assistant.ActionResearch), rt.requireModule(licensing.ModuleAIResearch))
	rt.tenant(mux, "POST /api/ai/summarize", rt.handleAIAction(assistant.ActionSummarizeCase), rt.requireModule(licensing.ModuleAIResearch))
	rt.tenant(mux, "POST /api/ai/draft", rt.handleAIAction(assistant.ActionDraft), rt.requireModule(licensing.ModuleAIDrafting))

	// Clients
	clients := rt.requireModule(licensing.ModuleClients)
	rt.tenant(mux, "GET /api/clients", rt.handleListClients, clients)
	rt.tenant(mux, "POST /api/clients", rt.handleCreateClient, clients)
	rt.tenant(mux, "GET /api/clients/{id}", rt.handleGetClient, clients)
	rt.tenant(mux, "PUT /api/clients/{id}", rt.handleUpdateClient, clients)
	rt.tenant(mux, "DELETE /api/clients/{id}", rt.handleArchiveClient, clients)

	// Cases
	cases := rt.requireModule(licensing.ModuleCases)
	rt.tenant(mux, "GET /api/cases", rt.handleListCases, cases)
	rt.tenant(mux, "POST /api/cases", rt.handleCreateCase, cases)
	rt.tenant(mux, "GET /api/cases/{id}", rt.handleGetCase, cases)
	rt.tenant(mux, "PUT /api/cases/{id}", rt.handleUpdateCase, cases)

	// Tasks
	tasks := rt.requireModule(licensing.ModuleTasks)
	rt.tenant(mux, "GET /api/tasks", rt.handleListTasks, tasks)
	rt.tenant(mux, "POST /api/tasks", rt.handleCreateTask, tasks)
	rt.tenant(mux, "GET /api/tasks/{id}", rt.handleGetTask, tasks)
	rt.tenant(mux, "PUT /api/tasks/{id}", rt.handleUpdateTask, tasks)
	rt.tenant(mux, "DELETE /api/tasks/{id}", rt.handleDeleteTask, tasks)

	// Documents
	docs := rt.requireModule(licensing.ModuleDocuments)
	rt.tenant(mux, "GET /api/documents", rt.handleListDocuments, docs)
	rt.tenant(mux, "POST /api/documents", rt.handleUploadDocument, docs)
	rt.tenant(mux, "GET /api/documents/{id}", rt.handleGetDocument, docs)
	rt.tenant(mux, "GET /api/documents/{id}/content", rt.handleDocumentContent, docs)
	rt.tenant(mux, "DELETE /api/documents/{id}", rt.handleDeleteDocument, docs)
	rt.tenant(mux, "POST /api/documents/{id}/sign", rt.handleSignDocument,
		rt.requireModule(licensing.ModuleESignature), requireRoles(auth.RoleOwner, auth.RoleAdmin, auth.RoleLawyer))

	// Billing
	billing := rt.requireModule(licensing.ModuleBilling)
	rt.tenant(mux, "GET /api/invoices", rt.handleListInvoices, billing)
	rt.tenant(mux, "POST /api/invoices", rt.handleCreateInvoice, billing)
	rt.tenant(mux, "GET /api/invoices/{id}", rt.handleGetInvoice, billing)
	rt.tenant(mux, "PUT /api/invoices/{id}", rt.handleUpdateInvoice, billing)
	rt.tenant(mux, "POST /api/invoices/{id}/issue-electronic", rt.handleIssueElectronic,
		rt.requireModule(licensing.ModuleEInvoicing))

	// Calendar
	calendar := rt.requireModule(licensing.ModuleCalendar)
	rt.tenant(mux, "GET /api/calendar", rt.handleListEvents, calendar)
	rt.tenant(mux, "POST /api/calendar", rt.handleCreateEvent, calendar)
	rt.tenant(mux, "GET /api/calendar/{id}", rt.handleGetEvent, calendar)
	rt.tenant(mux, "PUT /api/calendar/{id}", rt.handleUpdateEvent, calendar)
	rt.tenant(mux, "DELETE /api/calendar/{id}", rt.handleDeleteEvent, calendar)

	// Reports
	rt.tenant(mux, "GET /api/reports/summary", rt.handleReportSummary, rt.requireModule(licensing.ModuleReports))

	// Team
	team := rt.requireModule(licensing.ModuleTeam)
	rt.tenant(mux, "GET /api/team", rt.handleListTeam, team)
	rt.tenant(mux, "POST /api/team", rt.handleAddTeamMember, team)
	rt.tenant(mux, "PATCH /api/team/{id}", rt.handleUpdateTeamMember, team)

	// Platform admin
	rt.admin(mux, "GET /admin/tenants", rt.handleAdminListTenants)
	rt.admin(mux, "POST /admin/tenants", rt.handleAdminCreateTenant)
	rt.admin(mux, "GET /admin/tenants/{id}", rt.handleAdminGetTenant)
	rt.admin(mux, "PATCH /admin/tenants/{id}", rt.handleAdminUpdateTenant)
	rt.admin(mux, "PUT /admin/tenants/{id}/ai", rt.handleAdminSetAI)
	rt.admin(mux, "POST /admin/tenants/{id}/ai/reset", rt.handleAdminResetQuota)
	rt.admin(mux, "GET /admin/tenants/{id}/ai/reconcile", rt.handleAdminReconcile)
}

// tenant mounts a handler behind the session, tenant guard and API limiter,
// followed by guards in order.
func (rt *Router) tenant(mux *http.ServeMux, pattern string, h http.HandlerFunc, guards ...middleware) {
	mws := []middleware{rt.sessionMiddleware, tenancy.RequireTenant(rt.guard, writeError)}
	if rt.apiLimiter != nil {
		mws = append(mws, ratelimit.Middleware(rt.apiLimiter, "api", scopeUserKey, writeError))
	}
	mws = append(mws, guards...)
	mux.Handle(pattern, chain(h, mws...))
}

func (rt *Router) admin(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, AdminKeyMiddleware(rt.adminKey, h))
}

func scopeUserKey(r *http.Request) string {
	scope, ok := tenancy.FromContext(r.Context())
	if !ok {
		return ""
	}
	return scope.TenantID + ":" + scope.UserID
}
