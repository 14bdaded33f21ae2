package queue

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"image_batch/internal/models"
)

// KafkaDispatcher publishes jobs to a topic and consumes them through a
// consumer group. Offsets are committed after the handler returns, so a
// crash mid-run redelivers the job.
type KafkaDispatcher struct {
	producer *kafka.Writer
	cfg      models.QueueConfig
	log      *zap.Logger

	wg      sync.WaitGroup
	readers []*kafka.Reader
	mu      sync.Mutex
}

func NewKafkaDispatcher(cfg models.QueueConfig, log *zap.Logger) *KafkaDispatcher {
	producer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	})
	return &KafkaDispatcher{producer: producer, cfg: cfg, log: log}
}

func (d *KafkaDispatcher) Enqueue(ctx context.Context, job Job) error {
	value, err := encodeJob(job)
	if err != nil {
		return err
	}
	return d.producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.RequestID),
		Value: value,
	})
}

func (d *KafkaDispatcher) Start(ctx context.Context, handler Handler) {
	for i := 0; i < d.cfg.Workers; i++ {
		consumer := kafka.NewReader(kafka.ReaderConfig{
			Brokers: d.cfg.KafkaBrokers,
			Topic:   d.cfg.KafkaTopic,
			GroupID: d.cfg.KafkaGroup,
		})
		d.mu.Lock()
		d.readers = append(d.readers, consumer)
		d.mu.Unlock()

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.consume(ctx, consumer, handler)
		}()
	}
}

func (d *KafkaDispatcher) consume(ctx context.Context, consumer *kafka.Reader, handler Handler) {
	for {
		msg, err := consumer.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, kafka.ErrGroupClosed) || errors.Is(err, io.EOF) {
				return
			}
			d.log.Error("Error reading message", zap.Error(err))
			continue
		}

		job, err := decodeJob(msg.Value)
		if err != nil {
			d.log.Error("Dropping malformed job",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		} else if err := handler(ctx, job); err != nil {
			d.log.Error("Batch run failed",
				zap.String("request_id", job.RequestID),
				zap.Error(err))
		}

		if err := consumer.CommitMessages(ctx, msg); err != nil {
			d.log.Error("Failed to commit offset", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// Close flushes the producer and stops the consumers. Cancel the context
// given to Start first so in-flight fetches return.
func (d *KafkaDispatcher) Close() error {
	err := d.producer.Close()

	d.mu.Lock()
	for _, r := range d.readers {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	d.mu.Unlock()

	d.wg.Wait()
	return err
}
