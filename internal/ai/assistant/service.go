// Package assistant runs AI actions for a tenant: entitlement check, quota
// sub-check, provider call and usage accounting, in that order.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xenovalaw/xenova/internal/ai/cost"
	"github.com/xenovalaw/xenova/internal/ai/providers"
	"github.com/xenovalaw/xenova/internal/ai/usage"
	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/logging"
	"github.com/xenovalaw/xenova/internal/metrics"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/internal/store"
	"github.com/xenovalaw/xenova/internal/tenancy"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

// Action is an AI operation offered to tenants.
type Action string

const (
	ActionResearch      Action = "research"
	ActionDraft         Action = "draft"
	ActionSummarizeCase Action = "summarize_case"
)

var actionModules = map[Action]string{
	ActionResearch:      licensing.ModuleAIResearch,
	ActionDraft:         licensing.ModuleAIDrafting,
	ActionSummarizeCase: licensing.ModuleAIResearch,
}

// ModuleFor returns the module that gates action.
func ModuleFor(action Action) (string, bool) {
	m, ok := actionModules[action]
	return m, ok
}

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxTokens  = 2048
	maxPromptLen      = 20000
	caseEventWindow   = 60 * 24 * time.Hour
	accountingTimeout = 10 * time.Second
)

// Store is the tenant-scoped persistence the assistant reads.
type Store interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetCase(ctx context.Context, tenantID, id string) (*models.Case, error)
	ListTasks(ctx context.Context, tenantID string, f store.TaskFilter) ([]*models.Task, error)
	ListEvents(ctx context.Context, tenantID string, f store.EventFilter) ([]*models.CalendarEvent, error)
}

// Request is one AI action invocation.
type Request struct {
	Action Action
	Prompt string
	CaseID string
}

// Result is a completed AI action.
type Result struct {
	Action     Action                `json:"action"`
	Content    string                `json:"content"`
	Model      string                `json:"model"`
	Tokens     int64                 `json:"tokens"`
	CostUSD    float64               `json:"cost_usd"`
	DurationMs int64                 `json:"duration_ms"`
	UsageID    string                `json:"usage_id"`
	Quota      licensing.QuotaStatus `json:"quota"`
}

// Config tunes the service.
type Config struct {
	Catalog   *licensing.Catalog
	Timeout   time.Duration
	MaxTokens int
}

// Service orchestrates AI actions.
type Service struct {
	store      Store
	accountant *usage.Accountant
	provider   providers.Provider
	catalog    *licensing.Catalog
	timeout    time.Duration
	maxTokens  int
	now        func() time.Time
}

// NewService creates the assistant. A nil provider makes every action fail
// with ErrAIUnavailable after the entitlement and quota checks.
func NewService(s Store, accountant *usage.Accountant, provider providers.Provider, cfg Config) *Service {
	if cfg.Catalog == nil {
		cfg.Catalog = licensing.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Service{
		store:      s,
		accountant: accountant,
		provider:   provider,
		catalog:    cfg.Catalog,
		timeout:    cfg.Timeout,
		maxTokens:  cfg.MaxTokens,
		now:        time.Now,
	}
}

// Run executes req for the scoped tenant.
func (s *Service) Run(ctx context.Context, scope tenancy.Scope, req Request) (*Result, error) {
	moduleID, ok := actionModules[req.Action]
	if !ok {
		return nil, apperrors.Invalid("ai_run", "unknown action %q", req.Action)
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if err := validate(req); err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx).With().
		Str("tenant_id", scope.TenantID).
		Str("user_id", scope.UserID).
		Str("action", string(req.Action)).
		Logger()

	// The tenant is reloaded so tier, add-on and counter changes apply now.
	tenant, err := s.store.GetTenant(ctx, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("ai_run: %w", err)
	}
	if tenant == nil {
		return nil, apperrors.NotFound("ai_run", errors.New("tenant not found"))
	}

	decision, err := s.catalog.IsModuleUnlocked(moduleID, tenant.EntitlementState())
	if err != nil {
		logger.Error().Err(err).Str("module", moduleID).Str("tier", string(tenant.Tier)).
			Msg("Entitlement check failed on tenant state")
		return nil, apperrors.New(apperrors.ErrorTypeInternal, "ai_run", err)
	}
	if decision.Locked {
		metrics.RecordAIAttempt(string(req.Action), "locked", 0, 0)
		logger.Debug().Str("module", moduleID).Str("reason_code", string(decision.ReasonCode)).Msg("AI action locked")
		return nil, &LockedError{Decision: decision}
	}

	if q := licensing.CheckQuota(tenant.QuotaState()); q.Exhausted {
		metrics.RecordAIAttempt(string(req.Action), "quota_exhausted", 0, 0)
		return nil, &QuotaExhaustedError{Used: q.Used, Max: *q.Max}
	}

	prompt, err := s.buildPrompt(ctx, scope.TenantID, req)
	if err != nil {
		return nil, err
	}

	if s.provider == nil {
		return nil, ErrAIUnavailable
	}

	meta := map[string]string{"module": moduleID}
	if req.CaseID != "" {
		meta["case_id"] = req.CaseID
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	started := s.now()
	resp, callErr := s.provider.Chat(callCtx, providers.ChatRequest{
		System:    systemPrompt(req.Action),
		Messages:  []providers.Message{{Role: "user", Content: prompt}},
		MaxTokens: s.maxTokens,
	})
	elapsed := s.now().Sub(started)

	if callErr == nil && strings.TrimSpace(resp.Content) == "" {
		callErr = errors.New("provider returned an empty response")
	}
	// Accounting outlives the request: the provider has already been paid.
	acctCtx, acctCancel := context.WithTimeout(context.WithoutCancel(ctx), accountingTimeout)
	defer acctCancel()

	if callErr != nil {
		metrics.RecordAIAttempt(string(req.Action), "failure", 0, elapsed)
		if _, recErr := s.accountant.RecordAttempt(acctCtx, scope.TenantID, scope.UserID, string(req.Action), usage.Outcome{
			Model:        s.provider.Model(),
			Duration:     elapsed,
			Success:      false,
			ErrorMessage: callErr.Error(),
			Metadata:     meta,
		}); recErr != nil {
			logger.Error().Err(recErr).Msg("Failed to record failed AI attempt")
		}
		logger.Warn().Err(callErr).Dur("duration", elapsed).Msg("AI provider call failed")
		return nil, ErrProcessingFailed
	}

	tokens := resp.TotalTokens()
	usd, model := cost.Estimate(s.provider.Name(), s.provider.Model(), resp.Model,
		int64(resp.InputTokens), int64(resp.OutputTokens))
	metrics.RecordAIAttempt(string(req.Action), "success", tokens, elapsed)

	result := &Result{
		Action:     req.Action,
		Content:    resp.Content,
		Model:      model,
		Tokens:     tokens,
		CostUSD:    usd,
		DurationMs: elapsed.Milliseconds(),
	}

	// The unit is consumed even when the log write fails; Reconcile reports
	// the resulting drift.
	rec, err := s.accountant.RecordAttempt(acctCtx, scope.TenantID, scope.UserID, string(req.Action), usage.Outcome{
		Model:    model,
		Tokens:   tokens,
		CostUSD:  usd,
		Duration: elapsed,
		Success:  true,
		Metadata: meta,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to record successful AI attempt")
	} else {
		result.DurationMs = rec.DurationMs
		result.UsageID = rec.ID
	}

	state := tenant.QuotaState()
	used, err := s.accountant.ConsumeQuotaUnit(acctCtx, scope.TenantID)
	switch {
	case err == nil:
		state.Used = used
	case errors.Is(err, apperrors.ErrQuotaExhausted):
		// A concurrent request took the last unit. The work is done and
		// logged; the counter stays at its ceiling.
		metrics.AIQuotaConsumeRaces.Inc()
		logger.Warn().Str("usage_id", result.UsageID).Msg("AI quota exhausted by a concurrent request after a successful attempt")
		state.Used = state.Max
	default:
		logger.Error().Err(err).Str("usage_id", result.UsageID).Msg("Failed to consume AI quota unit")
	}
	result.Quota = licensing.CheckQuota(state)

	logger.Info().
		Int64("tokens", tokens).
		Float64("cost_usd", usd).
		Dur("duration", elapsed).
		Msg("AI action completed")
	return result, nil
}

func validate(req Request) error {
	switch req.Action {
	case ActionSummarizeCase:
		if req.CaseID == "" {
			return apperrors.Invalid("ai_run", "case_id is required for %s", req.Action)
		}
	default:
		if req.Prompt == "" {
			return apperrors.Invalid("ai_run", "prompt is required")
		}
	}
	if len(req.Prompt) > maxPromptLen {
		return apperrors.Invalid("ai_run", "prompt exceeds %d characters", maxPromptLen)
	}
	return nil
}

// buildPrompt resolves the optional case reference inside the caller's tenant.
func (s *Service) buildPrompt(ctx context.Context, tenantID string, req Request) (string, error) {
	if req.CaseID == "" {
		return req.Prompt, nil
	}
	c, err := s.store.GetCase(ctx, tenantID, req.CaseID)
	if err != nil {
		return "", fmt.Errorf("ai_run: %w", err)
	}
	if c == nil {
		return "", apperrors.NotFound("ai_run", fmt.Errorf("case %q not found", req.CaseID))
	}

	var (
		tasks  []*models.Task
		events []*models.CalendarEvent
	)
	if req.Action == ActionSummarizeCase {
		if tasks, err = s.store.ListTasks(ctx, tenantID, store.TaskFilter{CaseID: c.ID}); err != nil {
			return "", fmt.Errorf("ai_run: %w", err)
		}
		from := s.now().Add(-caseEventWindow)
		to := s.now().Add(caseEventWindow)
		if events, err = s.store.ListEvents(ctx, tenantID, store.EventFilter{CaseID: c.ID, From: &from, To: &to}); err != nil {
			return "", fmt.Errorf("ai_run: %w", err)
		}
	}

	var b strings.Builder
	b.WriteString(caseContext(c, tasks, events))
	if req.Prompt != "" {
		b.WriteString("\n")
		b.WriteString(req.Prompt)
	} else {
		b.WriteString("\nSummarize this case.")
	}
	return b.String(), nil
}
