package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/meggy-ai/meggy/internal/observability"
)

// DefaultRelevantLimit bounds retrieval when the caller does not care.
const DefaultRelevantLimit = 10

// Retriever fetches the memories most worth injecting into a conversation.
// Retrieval is deliberately not read-only: every returned memory has its
// access count bumped so frequently surfaced facts rank higher over time.
type Retriever struct {
	store   Store
	users   UserDirectory
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewRetriever(store Store, users UserDirectory, logger *slog.Logger, metrics *observability.Metrics) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, users: users, logger: logger, metrics: metrics}
}

// GetRelevant returns up to limit memories ordered by importance descending,
// then last accessed descending. A user with no memories gets an empty
// slice; an unknown user gets ErrUserNotFound. The touch side effect is
// best-effort: a failed counter update is logged and the retrieval proceeds.
func (r *Retriever) GetRelevant(ctx context.Context, userID string, types []Type, limit int) ([]Memory, error) {
	if err := checkUser(ctx, r.users, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRelevantLimit
	}

	memories, err := r.store.Query(ctx, Query{UserID: userID, Types: types, Limit: limit})
	if err != nil {
		return nil, unavailable("list memories", err)
	}
	if r.metrics != nil {
		r.metrics.MemoryRetrievals.Inc()
	}

	now := time.Now().UTC()
	for i := range memories {
		if err := r.store.Touch(ctx, memories[i].ID, now); err != nil {
			r.logger.Warn("memory touch failed", "memory_id", memories[i].ID, "error", err)
			if r.metrics != nil {
				r.metrics.MemoryTouchFailures.Inc()
			}
			continue
		}
		memories[i].AccessCount++
		memories[i].LastAccessed = now
	}
	return memories, nil
}
