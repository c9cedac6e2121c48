package branches

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/branchdesk/internal/shared"
)

// ManagerDirectory answers whether a user id exists.
type ManagerDirectory interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier is told about branches that just became inactive.
type Notifier interface {
	BranchDeactivated(ctx context.Context, branch Branch) error
}

// ServiceConfig carries the optional collaborators of Service.
type ServiceConfig struct {
	Cache         *Cache
	Managers      ManagerDirectory
	VerifyManager bool
	Audit         AuditRecorder
	Notifier      Notifier
	Logger        *slog.Logger
	Now           func() time.Time
}

// Service implements the branch use cases.
type Service struct {
	repo          Repository
	schema        *Schema
	cache         *Cache
	managers      ManagerDirectory
	verifyManager bool
	audit         AuditRecorder
	notifier      Notifier
	logger        *slog.Logger
	now           func() time.Time

	loads singleflight.Group
}

// NewService wires the service.
func NewService(repo Repository, schema *Schema, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:          repo,
		schema:        schema,
		cache:         cfg.Cache,
		managers:      cfg.Managers,
		verifyManager: cfg.VerifyManager && cfg.Managers != nil,
		audit:         cfg.Audit,
		notifier:      cfg.Notifier,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
}

// ParseID decodes a branch id from its hex form.
func ParseID(raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, shared.ErrInvalidID
	}
	return id, nil
}

// Create validates in and stores it as a new branch.
func (s *Service) Create(ctx context.Context, actorID int64, in BranchInput) (Branch, error) {
	branch, err := s.schema.Normalize(in)
	if err != nil {
		return Branch{}, err
	}
	if err := s.checkManager(ctx, branch.Manager); err != nil {
		return Branch{}, err
	}
	now := s.timestamp()
	branch.CreatedAt = now
	branch.UpdatedAt = now

	created, err := s.repo.Insert(ctx, branch)
	if err != nil {
		return Branch{}, err
	}
	s.record(ctx, actorID, "branch.create", created, map[string]any{"name": created.Name})
	return created, nil
}

// Get returns one branch, preferring the cache. Concurrent misses for the
// same id share a single repository read.
func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (Branch, error) {
	if branch, ok, err := s.cache.Get(ctx, id); err != nil {
		s.logger.Warn("branch cache read failed", slog.String("branch_id", id.Hex()), slog.Any("error", err))
	} else if ok {
		return branch, nil
	}

	ch := s.loads.DoChan(id.Hex(), func() (any, error) {
		loadCtx := context.WithoutCancel(ctx)
		branch, err := s.repo.Get(loadCtx, id)
		if err != nil {
			return Branch{}, err
		}
		if err := s.cache.Set(loadCtx, branch); err != nil {
			s.logger.Warn("branch cache fill failed", slog.String("branch_id", id.Hex()), slog.Any("error", err))
		}
		return branch, nil
	})

	select {
	case <-ctx.Done():
		return Branch{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Branch{}, res.Err
		}
		return res.Val.(Branch), nil
	}
}

// List returns one page of branches.
func (s *Service) List(ctx context.Context, filter ListFilter) (Page, error) {
	filter = filter.normalized()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []Branch{}
	}
	return Page{Items: items, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// Update applies patch to the stored branch. The merged record is validated
// again as a whole; only the fields present in patch are written and
// createdAt never changes.
func (s *Service) Update(ctx context.Context, actorID int64, id primitive.ObjectID, patch BranchPatch) (Branch, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Branch{}, err
	}
	next, err := s.schema.Normalize(patch.Apply(current.Input()))
	if err != nil {
		return Branch{}, err
	}
	if !sameManager(current.Manager, next.Manager) {
		if err := s.checkManager(ctx, next.Manager); err != nil {
			return Branch{}, err
		}
	}
	return s.save(ctx, actorID, "branch.update", current, next, patch.Fields())
}

// SetActive deactivates or reactivates a branch. Branches are never removed.
func (s *Service) SetActive(ctx context.Context, actorID int64, id primitive.ObjectID, active bool) (Branch, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Branch{}, err
	}
	if current.IsActive == active {
		return current, nil
	}
	next := current
	next.IsActive = active

	action := "branch.activate"
	if !active {
		action = "branch.deactivate"
	}
	return s.save(ctx, actorID, action, current, next, []string{FieldIsActive})
}

func (s *Service) save(ctx context.Context, actorID int64, action string, current, next Branch, fields []string) (Branch, error) {
	next.ID = current.ID
	next.UpdatedAt = s.timestamp()

	stored, err := s.repo.Update(ctx, next, fields)
	if err != nil {
		return Branch{}, err
	}
	s.refreshCache(ctx, stored)
	s.record(ctx, actorID, action, stored, map[string]any{"changed": changedFields(current, next)})

	if current.IsActive && !stored.IsActive && s.notifier != nil {
		if err := s.notifier.BranchDeactivated(ctx, stored); err != nil {
			s.logger.Warn("branch deactivation notify failed", slog.String("branch_id", stored.ID.Hex()), slog.Any("error", err))
		}
	}
	return stored, nil
}

// refreshCache writes the stored copy through. A fill that read the record
// before this write is older and is rejected by Cache.Set.
func (s *Service) refreshCache(ctx context.Context, branch Branch) {
	s.loads.Forget(branch.ID.Hex())
	err := s.cache.Set(ctx, branch)
	if err == nil {
		return
	}
	s.logger.Warn("branch cache refresh failed", slog.String("branch_id", branch.ID.Hex()), slog.Any("error", err))
	if err := s.cache.Invalidate(ctx, branch.ID); err != nil {
		s.logger.Warn("branch cache invalidate failed", slog.String("branch_id", branch.ID.Hex()), slog.Any("error", err))
	}
}

func (s *Service) checkManager(ctx context.Context, manager *int64) error {
	if !s.verifyManager || manager == nil {
		return nil
	}
	ok, err := s.managers.Exists(ctx, *manager)
	if err != nil {
		return fmt.Errorf("branches: verify manager: %w", err)
	}
	if !ok {
		return shared.NewValidationError("manager", "manager does not reference an existing user")
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, branch Branch, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "branch",
		EntityID: branch.ID.Hex(),
		Meta:     meta,
		At:       branch.UpdatedAt,
	})
	if err != nil {
		s.logger.Warn("branch audit failed", slog.String("action", action), slog.String("branch_id", branch.ID.Hex()), slog.Any("error", err))
	}
}

// timestamp is truncated to the millisecond precision MongoDB stores.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func changedFields(before, after Branch) []string {
	var fields []string
	if before.Name != after.Name {
		fields = append(fields, FieldName)
	}
	if before.Address != after.Address {
		fields = append(fields, FieldAddress)
	}
	if before.Phone != after.Phone {
		fields = append(fields, FieldPhone)
	}
	if before.Email != after.Email {
		fields = append(fields, FieldEmail)
	}
	if !sameManager(before.Manager, after.Manager) {
		fields = append(fields, FieldManager)
	}
	if before.IsActive != after.IsActive {
		fields = append(fields, FieldIsActive)
	}
	return fields
}
