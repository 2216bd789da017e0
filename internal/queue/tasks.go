package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/webpress/internal/domain"
	"github.com/hibiken/asynq"
)

const (
	TypeExpireArtifact   = "artifact:expire"
	TypeNotifyConversion = "conversion:notify"

	EventConversionCompleted = "conversion.completed"
)

type ExpireArtifactPayload struct {
	ArtifactName string    `json:"artifact_name"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type NotifyConversionPayload struct {
	Event       string                  `json:"event"`
	WebhookURL  string                  `json:"webhook_url"`
	Conversion  domain.ConversionRecord `json:"conversion"`
	RequestedAt time.Time               `json:"requested_at"`
}

func NewExpireArtifactTask(payload ExpireArtifactPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal expire payload: %w", err)
	}
	return asynq.NewTask(TypeExpireArtifact, body), nil
}

func ParseExpireArtifactPayload(task *asynq.Task) (ExpireArtifactPayload, error) {
	var payload ExpireArtifactPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ExpireArtifactPayload{}, fmt.Errorf("unmarshal expire payload: %w", err)
	}
	if payload.ArtifactName == "" {
		return ExpireArtifactPayload{}, fmt.Errorf("expire payload is missing artifact_name")
	}
	return payload, nil
}

func NewNotifyConversionTask(payload NotifyConversionPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal notify payload: %w", err)
	}
	return asynq.NewTask(TypeNotifyConversion, body), nil
}

func ParseNotifyConversionPayload(task *asynq.Task) (NotifyConversionPayload, error) {
	var payload NotifyConversionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotifyConversionPayload{}, fmt.Errorf("unmarshal notify payload: %w", err)
	}
	return payload, nil
}
