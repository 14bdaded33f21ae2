// Package queue hands accepted submissions to background batch workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"image_batch/internal/models"
)

var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)

type Job struct {
	RequestID string              `json:"request_id"`
	Rows      []models.ProductRow `json:"rows"`
}

type Handler func(ctx context.Context, job Job) error

type Dispatcher interface {
	Enqueue(ctx context.Context, job Job) error
	// Start launches the consumers. It returns immediately.
	Start(ctx context.Context, handler Handler)
	Close() error
}

func New(cfg models.QueueConfig, log *zap.Logger) (Dispatcher, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryDispatcher(cfg.Workers, cfg.Buffer, log), nil
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("kafka driver needs at least one broker")
		}
		return NewKafkaDispatcher(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

func encodeJob(job Job) ([]byte, error) {
	return json.Marshal(job)
}

func decodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, err
	}
	if job.RequestID == "" {
		return Job{}, errors.New("job without request_id")
	}
	return job, nil
}
