package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

// EnqueueExpireArtifact schedules removal of an artifact after delay. The
// task id is derived from the artifact name so a repeated enqueue is rejected
// by asynq instead of scheduling a second removal.
func (c *Client) EnqueueExpireArtifact(ctx context.Context, payload ExpireArtifactPayload, delay time.Duration) (*asynq.TaskInfo, error) {
	task, err := NewExpireArtifactTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID("expire:"+payload.ArtifactName),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
	)
}

func (c *Client) EnqueueNotifyConversion(ctx context.Context, payload NotifyConversionPayload) (*asynq.TaskInfo, error) {
	task, err := NewNotifyConversionTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(5),
		asynq.Timeout(2*time.Minute),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
