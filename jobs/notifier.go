package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/locallibrary/locallibrary/internal/authz"
)

// Registered enqueues the welcome email for a new account.
func (c *Client) Registered(ctx context.Context, p authz.Principal) error {
	_, err := c.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      p.Email,
		Subject: "Welcome to LocalLibrary",
		Body: fmt.Sprintf("Hello %s,\n\nyour account %q has been created. You can log in now.\n",
			p.FullName, p.Username),
	})
	return err
}

// PasswordChanged enqueues the notice sent after a password reset.
func (c *Client) PasswordChanged(ctx context.Context, p authz.Principal) error {
	_, err := c.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      p.Email,
		Subject: "Your LocalLibrary password was changed",
		Body: fmt.Sprintf("Hello %s,\n\nthe password of account %q was just changed. "+
			"If this was not you, reset it again and contact an administrator.\n", p.FullName, p.Username),
	})
	return err
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}
