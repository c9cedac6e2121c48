package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/branchdesk/internal/jobs"
	"github.com/odyssey-erp/branchdesk/internal/shared"
	"github.com/odyssey-erp/branchdesk/internal/users"
)

// ManagerLookup resolves branch managers.
type ManagerLookup interface {
	Get(ctx context.Context, id int64) (users.User, error)
}

// MailEnqueuer queues outgoing mail.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// BranchDeactivatedHandler mails the manager of a deactivated branch.
type BranchDeactivatedHandler struct {
	managers ManagerLookup
	mail     MailEnqueuer
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewBranchDeactivatedHandler wires the handler.
func NewBranchDeactivatedHandler(managers ManagerLookup, mail MailEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *BranchDeactivatedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BranchDeactivatedHandler{managers: managers, mail: mail, logger: logger, metrics: metrics}
}

// ProcessTask implements asynq.Handler.
func (h *BranchDeactivatedHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(TaskTypeBranchDeactivated)
	return tracker.End(h.process(ctx, t))
}

func (h *BranchDeactivatedHandler) process(ctx context.Context, t *asynq.Task) error {
	var payload BranchDeactivatedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.BranchID == "" {
		h.logger.Warn("branch deactivated: bad payload", slog.Any("error", err))
		return fmt.Errorf("branch deactivated payload: %w", asynq.SkipRetry)
	}
	log := h.logger.With(slog.String("branch_id", payload.BranchID))
	if payload.ManagerID == nil {
		log.Info("branch deactivated without manager; nothing to notify")
		return nil
	}
	log = log.With(slog.Int64("manager_id", *payload.ManagerID))

	manager, err := h.managers.Get(ctx, *payload.ManagerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			log.Warn("branch manager no longer exists")
			return nil
		}
		return fmt.Errorf("lookup manager: %w", err)
	}
	if !manager.IsActive || manager.Email == "" {
		log.Info("branch manager inactive or without email; skipping")
		return nil
	}

	_, err = h.mail.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      manager.Email,
		Subject: fmt.Sprintf("Branch %q has been deactivated", payload.Name),
		Body: fmt.Sprintf("Hello %s,\n\nThe branch %q you manage was deactivated and no longer appears in active listings.\n",
			manager.Name, payload.Name),
	})
	if err != nil {
		return fmt.Errorf("enqueue manager mail: %w", err)
	}
	h.metrics.AddNotification(TaskTypeSendEmail)
	log.Info("branch manager notified")
	return nil
}

// MailHandler delivers queued mail. Delivery is logged only; there is no
// SMTP transport.
type MailHandler struct {
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewMailHandler wires the handler.
func NewMailHandler(logger *slog.Logger, metrics *jobmetrics.Metrics) *MailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailHandler{logger: logger, metrics: metrics}
}

// ProcessTask implements asynq.Handler.
func (h *MailHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(TaskTypeSendEmail)
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.To == "" {
		return tracker.End(fmt.Errorf("send email payload: %w", asynq.SkipRetry))
	}
	h.logger.Info("send email", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return tracker.End(nil)
}
