package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeBranchDeactivated announces that a branch was switched off.
	TaskTypeBranchDeactivated = "branch:deactivated"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// BranchDeactivatedPayload identifies the branch and the manager to notify.
type BranchDeactivatedPayload struct {
	BranchID  string `json:"branch_id"`
	Name      string `json:"name"`
	ManagerID *int64 `json:"manager_id,omitempty"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueDefault)), nil
}

// NewBranchDeactivatedTask constructs the deactivation task. Retries are
// bounded because a stale notification is worth little.
func NewBranchDeactivatedTask(payload BranchDeactivatedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeBranchDeactivated, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}
