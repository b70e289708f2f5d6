package api

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenovalaw/xenova/internal/ai/assistant"
	"github.com/xenovalaw/xenova/internal/ai/providers"
	"github.com/xenovalaw/xenova/pkg/licensing"
)

func TestAIResearch(t *testing.T) {
	env := newTestEnv(t)
	f := env.firm(t, licensing.TierPro, true, 5)

	rec := env.do(t, http.MethodPost, "/api/ai/research", f.owner.token, map[string]any{"prompt": "Limitation period for contracts"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[assistant.Result](t, rec)
	assert.Contains(t, res.Content, "five years")
	assert.Equal(t, int64(200), res.Tokens)
	assert.Equal(t, int64(1), res.Quota.Used)

	rec = env.do(t, http.MethodGet, "/api/ai/quota", f.owner.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	quota := decode[licensing.QuotaStatus](t, rec)
	assert.Equal(t, int64(1), quota.Used)
	require.NotNil(t, quota.Remaining)
	assert.Equal(t, int64(4), *quota.Remaining)

	rec = env.do(t, http.MethodGet, "/api/ai/usage", f.owner.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	usage := decode[aiUsageResponse](t, rec)
	require.Len(t, usage.Records, 1)
	assert.True(t, usage.Records[0].Success)
	assert.Equal(t, string(assistant.ActionResearch), usage.Records[0].Action)
	require.Len(t, usage.Summary, 1)
	assert.Equal(t, int64(1), usage.Summary[0].Successes)
}

func TestAIQuotaExhausted(t *testing.T) {
	env := newTestEnv(t)
	f := env.firm(t, licensing.TierPro, true, 1)

	rec := env.do(t, http.MethodPost, "/api/ai/research", f.owner.token, map[string]any{"prompt": "first"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/ai/research", f.owner.token, map[string]any{"prompt": "second"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, "quota_exhausted", apiErr.Code)
	assert.EqualValues(t, 1, apiErr.Details["used"])
	assert.EqualValues(t, 1, apiErr.Details["max"])
	assert.Equal(t, int32(1), env.provider.calls.Load())
}

func TestAIProviderFailureIsNotEchoed(t *testing.T) {
	env := newTestEnv(t)
	f := env.firm(t, licensing.TierPro, true, 5)
	env.provider.chat = func(context.Context, providers.ChatRequest) (*providers.ChatResponse, error) {
		return nil, &providers.StatusError{StatusCode: 529, Message: "overloaded: internal shard 7"}
	}

	rec := env.do(t, http.MethodPost, "/api/ai/draft", f.owner.token, map[string]any{"prompt": "Draft a demand letter"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "ai_processing_failed", decodeError(t, rec).Code)
	assert.NotContains(t, rec.Body.String(), "shard")

	rec = env.do(t, http.MethodGet, "/api/ai/quota", f.owner.token, nil)
	assert.Equal(t, int64(0), decode[licensing.QuotaStatus](t, rec).Used)
}

func TestAISummarizeForeignCase(t *testing.T) {
	env := newTestEnv(t)
	a := env.firm(t, licensing.TierPro, true, 5)
	b := env.firm(t, licensing.TierPro, true, 5)
	foreign := env.seedCase(t, b.tenant.ID)

	rec := env.do(t, http.MethodPost, "/api/ai/summarize", a.owner.token, map[string]any{"case_id": foreign.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, env.provider.calls.Load())
}

func TestAIWithoutAssistant(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Assistant = nil })
	f := env.firm(t, licensing.TierPro, true, 5)

	rec := env.do(t, http.MethodPost, "/api/ai/research", f.owner.token, map[string]any{"prompt": "x"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAIConcurrentRequestsRespectQuota(t *testing.T) {
	env := newTestEnv(t)
	f := env.firm(t, licensing.TierPro, true, 3)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[int]int{}
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := env.do(t, http.MethodPost, "/api/ai/research", f.owner.token, map[string]any{"prompt": "x"})
			mu.Lock()
			codes[rec.Code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, codes[http.StatusOK], 3)
	assert.Equal(t, 10, codes[http.StatusOK]+codes[http.StatusTooManyRequests])

	tenant, err := env.store.GetTenant(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, tenant.AIQuotaUsed, int64(3))
	assert.Equal(t, int64(codes[http.StatusOK]), tenant.AIQuotaUsed)
}
