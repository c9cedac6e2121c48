package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/odyssey-erp/branchdesk/internal/branches"
	"github.com/odyssey-erp/branchdesk/jobs"
)

// BranchReader loads branches straight from the store, bypassing the cache.
type BranchReader interface {
	Get(ctx context.Context, id primitive.ObjectID) (branches.Branch, error)
}

// IndexEnsurer creates the collection indexes.
type IndexEnsurer interface {
	EnsureIndexes(ctx context.Context) error
}

// OpsCLI bundles manual maintenance helpers for branches and their jobs.
type OpsCLI struct {
	branches  BranchReader
	indexes   IndexEnsurer
	notifier  branches.Notifier
	inspector jobs.QueueInspector
}

// NewOpsCLI wires the helpers. Any collaborator may be nil; the commands
// needing it then fail.
func NewOpsCLI(reader BranchReader, indexes IndexEnsurer, notifier branches.Notifier, inspector jobs.QueueInspector) *OpsCLI {
	return &OpsCLI{branches: reader, indexes: indexes, notifier: notifier, inspector: inspector}
}

// EnsureIndexes applies the branch indexes.
func (c *OpsCLI) EnsureIndexes(ctx context.Context) error {
	if c == nil || c.indexes == nil {
		return errors.New("ops cli: index store not configured")
	}
	return c.indexes.EnsureIndexes(ctx)
}

// Renotify queues the deactivation notification of an inactive branch again,
// for instance after the original task exhausted its retries.
func (c *OpsCLI) Renotify(ctx context.Context, rawID string) (branches.Branch, error) {
	if c == nil || c.branches == nil || c.notifier == nil {
		return branches.Branch{}, errors.New("ops cli: branch store or queue not configured")
	}
	id, err := branches.ParseID(rawID)
	if err != nil {
		return branches.Branch{}, fmt.Errorf("branch id %q: %w", rawID, err)
	}
	branch, err := c.branches.Get(ctx, id)
	if err != nil {
		return branches.Branch{}, err
	}
	if branch.IsActive {
		return branch, fmt.Errorf("branch %s is active; nothing to notify", rawID)
	}
	return branch, c.notifier.BranchDeactivated(ctx, branch)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the metrics of the default queue. A queue that has
// never seen a task reports zeros.
func (c *OpsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("ops cli: inspector not configured")
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return stats, nil
		}
		return QueueStats{}, err
	}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// WriteQueueStats prints stats as JSON or as aligned text.
func WriteQueueStats(w io.Writer, stats QueueStats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	_, err := fmt.Fprintf(w, "queue:     %s\npending:   %d\nactive:    %d\nscheduled: %d\nretry:     %d\narchived:  %d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	return err
}
