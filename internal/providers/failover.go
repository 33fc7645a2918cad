package providers

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Failover walks the manager's preferred provider order, skipping
// providers that recently failed on quota or rate limits. Cooldown state
// is per-process; a worker restart clears it.
type Failover struct {
	manager  *Manager
	cooldown time.Duration

	mu       sync.Mutex
	benchedL map[int]time.Time
	benchedE map[int]time.Time
	now      func() time.Time
}

func NewFailover(m *Manager, cooldown time.Duration) *Failover {
	return &Failover{
		manager:  m,
		cooldown: cooldown,
		benchedL: map[int]time.Time{},
		benchedE: map[int]time.Time{},
		now:      time.Now,
	}
}

func (f *Failover) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	var lastErr error
	for _, idx := range f.manager.PreferredLLMOrder() {
		if f.benched(f.benchedL, idx) {
			continue
		}
		p, ref := f.manager.LLMProviderByIndex(idx)
		resp, info, err := p.Generate(ctx, req)
		if err == nil {
			return resp, info, nil
		}
		lastErr = fmt.Errorf("generate via %s: %w", ref.Raw, err)
		t := ClassifyError(err)
		if t == ErrorQuota || t == ErrorRate {
			f.bench(f.benchedL, idx)
		}
		if !Retryable(t) {
			return GenerateResponse{}, info, lastErr
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all llm providers on cooldown")
	}
	return GenerateResponse{}, ProviderInfo{}, lastErr
}

func (f *Failover) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	var lastErr error
	for _, idx := range f.manager.PreferredEmbedOrder() {
		if f.benched(f.benchedE, idx) {
			continue
		}
		p, ref := f.manager.EmbedProviderByIndex(idx)
		vectors, info, err := p.Embed(ctx, req)
		if err == nil {
			return vectors, info, nil
		}
		lastErr = fmt.Errorf("embed via %s: %w", ref.Raw, err)
		t := ClassifyError(err)
		if t == ErrorQuota || t == ErrorRate {
			f.bench(f.benchedE, idx)
		}
		if !Retryable(t) {
			return nil, info, lastErr
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all embedding providers on cooldown")
	}
	return nil, ProviderInfo{}, lastErr
}

func (f *Failover) bench(m map[int]time.Time, idx int) {
	f.mu.Lock()
	m[idx] = f.now().Add(f.cooldown)
	f.mu.Unlock()
}

func (f *Failover) benched(m map[int]time.Time, idx int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	until, ok := m[idx]
	if !ok {
		return false
	}
	if f.now().After(until) {
		delete(m, idx)
		return false
	}
	return true
}
