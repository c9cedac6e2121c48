package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/branchdesk/internal/jobs"
	"github.com/odyssey-erp/branchdesk/internal/shared"
	"github.com/odyssey-erp/branchdesk/internal/users"
)

type managerStub struct {
	users map[int64]users.User
	err   error
}

func (m managerStub) Get(_ context.Context, id int64) (users.User, error) {
	if m.err != nil {
		return users.User{}, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

type mailSpy struct {
	sent []SendEmailPayload
	err  error
}

func (m *mailSpy) EnqueueSendEmail(_ context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, payload)
	return &asynq.TaskInfo{Type: TaskTypeSendEmail}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func deactivatedTask(t *testing.T, payload BranchDeactivatedPayload) *asynq.Task {
	t.Helper()
	task, err := NewBranchDeactivatedTask(payload)
	require.NoError(t, err)
	return task
}

func TestBranchDeactivatedMailsActiveManager(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	mail := &mailSpy{}
	managers := managerStub{users: map[int64]users.User{
		7: {ID: 7, Email: "lee@example.com", Name: "Lee", IsActive: true},
	}}
	h := NewBranchDeactivatedHandler(managers, mail, quietLogger(), metrics)

	manager := int64(7)
	err := h.ProcessTask(context.Background(), deactivatedTask(t, BranchDeactivatedPayload{BranchID: "abc", Name: "Harbor", ManagerID: &manager}))
	require.NoError(t, err)

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "lee@example.com", mail.sent[0].To)
	assert.Contains(t, mail.sent[0].Subject, "Harbor")
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "branchdesk_notifications_total"))
}

func TestBranchDeactivatedSkipsWithoutRecipient(t *testing.T) {
	inactive := int64(2)
	missing := int64(3)
	managers := managerStub{users: map[int64]users.User{
		inactive: {ID: inactive, Email: "old@example.com", IsActive: false},
	}}

	cases := map[string]BranchDeactivatedPayload{
		"no manager":       {BranchID: "a", Name: "A"},
		"inactive manager": {BranchID: "b", Name: "B", ManagerID: &inactive},
		"missing manager":  {BranchID: "c", Name: "C", ManagerID: &missing},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			mail := &mailSpy{}
			h := NewBranchDeactivatedHandler(managers, mail, quietLogger(), nil)
			require.NoError(t, h.ProcessTask(context.Background(), deactivatedTask(t, payload)))
			assert.Empty(t, mail.sent)
		})
	}
}

func TestBranchDeactivatedBadPayloadSkipsRetry(t *testing.T) {
	h := NewBranchDeactivatedHandler(managerStub{}, &mailSpy{}, quietLogger(), nil)
	err := h.ProcessTask(context.Background(), asynq.NewTask(TaskTypeBranchDeactivated, []byte("{")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestBranchDeactivatedRetriesTransientFailures(t *testing.T) {
	manager := int64(9)

	h := NewBranchDeactivatedHandler(managerStub{err: errors.New("db down")}, &mailSpy{}, quietLogger(), nil)
	err := h.ProcessTask(context.Background(), deactivatedTask(t, BranchDeactivatedPayload{BranchID: "x", ManagerID: &manager}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	managers := managerStub{users: map[int64]users.User{manager: {ID: manager, Email: "m@example.com", IsActive: true}}}
	h = NewBranchDeactivatedHandler(managers, &mailSpy{err: errors.New("redis down")}, quietLogger(), nil)
	err = h.ProcessTask(context.Background(), deactivatedTask(t, BranchDeactivatedPayload{BranchID: "x", ManagerID: &manager}))
	require.Error(t, err)
}

func TestMailHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewMailHandler(quietLogger(), jobmetrics.NewMetrics(reg))

	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com", Subject: "hi"})
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))

	data, _ := json.Marshal(SendEmailPayload{Subject: "no recipient"})
	err = h.ProcessTask(context.Background(), asynq.NewTask(TaskTypeSendEmail, data))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	assert.Equal(t, 1, testutil.CollectAndCount(reg, "branchdesk_jobs_failures_total"))
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "branchdesk_jobs_total"))
}
