package categorize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
)

// remoteFallbackMode is reported by the external service when it answered
// from its own keyword fallback.
const remoteFallbackMode = "fallback"

// Request is one transaction to categorize.
type Request struct {
	Date        time.Time
	ID          string
	Merchant    string
	Description string
	AmountCents int64
}

// Result is the category assigned to a request.
type Result struct {
	ID         string
	Category   string
	Source     model.CategorySource
	Reason     string
	Confidence float64
}

// StatusStore persists categorizer health snapshots.
type StatusStore interface {
	SaveCategorizerStatus(ctx context.Context, status model.CategorizerStatus) error
	LatestCategorizerStatus(ctx context.Context) (model.CategorizerStatus, error)
}

// Config wires a Gateway. Client and Store are optional.
type Config struct {
	Client  Client
	Matcher *LocalMatcher
	Store   StatusStore
	Logger  *slog.Logger
}

// Gateway categorizes transactions and owns the categorizer mode.
type Gateway struct {
	client  Client
	matcher *LocalMatcher
	store   StatusStore
	logger  *slog.Logger
	now     func() time.Time
	status  model.CategorizerStatus
	mu      sync.RWMutex
}

// NewGateway creates a gateway in the unknown mode.
func NewGateway(cfg Config) *Gateway {
	matcher := cfg.Matcher
	if matcher == nil {
		matcher = MustDefaultMatcher()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client:  cfg.Client,
		matcher: matcher,
		store:   cfg.Store,
		logger:  logger,
		now:     time.Now,
		status:  model.CategorizerStatus{Mode: model.ModeUnknown},
	}
}

// Restore loads the last persisted status so timestamps survive restarts.
// The mode itself stays unknown until the next batch.
func (g *Gateway) Restore(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	saved, err := g.store.LatestCategorizerStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to load categorizer status: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.status.LastSuccess = saved.LastSuccess
	g.status.LastFailure = saved.LastFailure
	g.status.LastError = saved.LastError
	return nil
}

// Status returns a snapshot of the current mode and health.
func (g *Gateway) Status() model.CategorizerStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// Categorize assigns a category to a single transaction.
func (g *Gateway) Categorize(ctx context.Context, req Request) Result {
	return g.CategorizeBatch(ctx, []Request{req})[0]
}

// CategorizeBatch assigns a category to every request, in input order.
// It never fails: external errors switch the gateway to failsafe and the
// local matcher answers instead.
func (g *Gateway) CategorizeBatch(ctx context.Context, reqs []Request) []Result {
	if len(reqs) == 0 {
		return nil
	}

	if g.client == nil {
		g.transition(ctx, func(s *model.CategorizerStatus) {
			s.Mode = model.ModeDegradedFallback
			s.Reachable = false
		})
		return g.local(reqs, model.SourceFallback, KeywordConfidence, "")
	}

	resp, err := g.client.Categorize(ctx, reqs)
	if err != nil {
		level := slog.LevelError
		if IsUnavailable(err) {
			level = slog.LevelWarn
		}
		g.logger.Log(ctx, level, "Categorizer call failed, using failsafe matcher",
			"batch_size", len(reqs),
			"retryable", common.IsRetryable(err),
			"error", err)
		g.transition(ctx, func(s *model.CategorizerStatus) {
			failed := g.now().UTC()
			s.Mode = model.ModeFailsafe
			s.Reachable = false
			s.LastFailure = &failed
			s.LastError = err.Error()
		})
		return g.local(reqs, model.SourceFailsafe, FailsafeConfidence,
			fmt.Sprintf("categorizer unavailable: %v", err))
	}

	g.transition(ctx, func(s *model.CategorizerStatus) {
		ok := g.now().UTC()
		s.Mode = model.ModePrimary
		if strings.EqualFold(resp.Mode, remoteFallbackMode) {
			s.Mode = model.ModeDegradedFallback
		}
		s.RemoteMode = resp.Mode
		s.Reachable = true
		s.LastSuccess = &ok
	})

	byID := make(map[string]RemoteResult, len(resp.Categories))
	for _, c := range resp.Categories {
		if strings.TrimSpace(c.Category) != "" {
			byID[c.ID] = c
		}
	}

	results := make([]Result, len(reqs))
	var filled int
	for i, req := range reqs {
		remote, found := byID[req.ID]
		if !found {
			results[i] = g.localOne(req, model.SourceFallback, KeywordConfidence, "")
			filled++
			continue
		}
		results[i] = Result{
			ID:         req.ID,
			Category:   strings.TrimSpace(remote.Category),
			Confidence: clampConfidence(remote.Confidence),
			Source:     model.SourceExternal,
			Reason:     remote.Reason,
		}
	}
	if filled > 0 {
		g.logger.Debug("Filled items missing from categorizer response",
			"missing", filled,
			"batch_size", len(reqs))
	}
	return results
}

func (g *Gateway) local(reqs []Request, source model.CategorySource, confidence float64, reason string) []Result {
	results := make([]Result, len(reqs))
	for i, req := range reqs {
		results[i] = g.localOne(req, source, confidence, reason)
	}
	return results
}

// localOne answers from the keyword matcher. Matched keywords get the given
// confidence; unmatched merchants get the lowest tier.
func (g *Gateway) localOne(req Request, source model.CategorySource, confidence float64, reason string) Result {
	m := g.matcher.Match(req.Merchant, req.Description)
	res := Result{ID: req.ID, Category: m.Category, Source: source}

	switch {
	case !m.Matched():
		res.Source = source + "_default"
		res.Confidence = min(DefaultConfidence, confidence)
	default:
		res.Confidence = min(m.Confidence, confidence)
		res.Reason = "Matched keyword: " + m.Keyword
	}
	if reason != "" {
		res.Reason = reason
	}
	return res
}

func (g *Gateway) transition(ctx context.Context, update func(*model.CategorizerStatus)) {
	g.mu.Lock()
	previous := g.status.Mode
	update(&g.status)
	g.status.CheckedAt = g.now().UTC()
	snapshot := g.status
	g.mu.Unlock()

	if previous != snapshot.Mode {
		g.logger.Info("Categorizer mode changed",
			"from", previous,
			"mode", snapshot.Mode)
	}

	if g.store == nil {
		return
	}
	if err := g.store.SaveCategorizerStatus(context.WithoutCancel(ctx), snapshot); err != nil {
		g.logger.Warn("Failed to persist categorizer status", "error", err)
	}
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
