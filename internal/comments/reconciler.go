package comments

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"

	"portfolio-backend/internal/events"
)

// Lister supplies the initial bulk fetch for a post's comments.
type Lister interface {
	ListByPost(ctx context.Context, postID string) ([]Comment, error)
}

// Feed supplies scoped change subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, table, postID string) (<-chan events.ChangeEvent, func())
}

// Reconciler maintains a local newest-first view of one post's comments,
// merging server-pushed change events into the bulk-fetched baseline. The
// local state is a best-effort cache; the store stays authoritative.
type Reconciler struct {
	mu     sync.RWMutex
	postID string
	rows   []Comment
	cancel func()
	done   chan struct{}
	logger *zap.Logger
}

// StartReconciler bulk-fetches the post's comments and begins consuming the
// change feed. A failed initial fetch soft-fails into an empty list, logged
// but not surfaced. Cancelling ctx releases the subscription.
func StartReconciler(ctx context.Context, lister Lister, feed Feed, postID string, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)

	r := &Reconciler{
		postID: postID,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger,
	}

	rows, err := lister.ListByPost(ctx, postID)
	if err != nil {
		logger.Warn("initial comment fetch failed", zap.String("post_id", postID), zap.Error(err))
		rows = nil
	}
	r.mu.Lock()
	r.rows = rows
	r.resortLocked()
	r.mu.Unlock()

	stream, _ := feed.Subscribe(ctx, Table, postID)

	go func() {
		defer close(r.done)
		for {
			select {
			case event, ok := <-stream:
				if !ok {
					return
				}
				r.Apply(event)
			case <-ctx.Done():
				return
			}
		}
	}()

	return r
}

// Apply merges a single change event: inserts prepend, deletes filter by id.
// The merged list is re-sorted by server timestamp so correctness does not
// hinge on feed arrival order.
func (r *Reconciler) Apply(event events.ChangeEvent) {
	if event.Table != Table || (event.PostID != "" && event.PostID != r.postID) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Type {
	case events.EventInsert:
		var incoming Comment
		if err := json.Unmarshal(event.Row, &incoming); err != nil {
			r.logger.Warn("comment event decode failed", zap.String("row_id", event.RowID), zap.Error(err))
			return
		}
		for _, existing := range r.rows {
			if existing.ID == incoming.ID {
				return
			}
		}
		r.rows = append([]Comment{incoming}, r.rows...)
		r.resortLocked()
	case events.EventDelete:
		kept := r.rows[:0]
		for _, existing := range r.rows {
			if existing.ID != event.RowID {
				kept = append(kept, existing)
			}
		}
		r.rows = kept
	}
}

// Snapshot returns a copy of the current merged comment list, newest first.
func (r *Reconciler) Snapshot() []Comment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Comment, len(r.rows))
	copy(out, r.rows)
	return out
}

// Close releases the change subscription and waits for the consumer to stop.
func (r *Reconciler) Close() {
	r.cancel()
	<-r.done
}

// Done reports when the feed consumer has exited.
func (r *Reconciler) Done() <-chan struct{} {
	return r.done
}

func (r *Reconciler) resortLocked() {
	sort.SliceStable(r.rows, func(i, j int) bool {
		if r.rows[i].CreatedAt.Equal(r.rows[j].CreatedAt) {
			return r.rows[i].ID > r.rows[j].ID
		}
		return r.rows[i].CreatedAt.After(r.rows[j].CreatedAt)
	})
}
