package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"image_batch/internal/csvio"
	"image_batch/internal/metrics"
	"image_batch/internal/models"
	"image_batch/internal/notifier"
	"image_batch/internal/queue"
	"image_batch/internal/transcoder"
)

//go:generate mockgen -destination=mocks/mock_pipeline.go -package=mock_pipeline . RecordStore,BlobStore,Transcoder,Notifier

type RecordStore interface {
	Get(ctx context.Context, requestID string) (*models.ProcessingRequest, error)
	Finish(ctx context.Context, requestID string, status models.Status, resultLocation, errMsg string) (bool, error)
}

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type Transcoder interface {
	Transcode(ctx context.Context, url string, quality int) ([]byte, error)
}

type Notifier interface {
	Notify(ctx context.Context, url string, payload notifier.Payload) error
}

const (
	imageKeyPrefix   = "images/"
	imageContentType = "image/jpeg"
	csvContentType   = "text/csv"
)

type Config struct {
	Quality      int
	ImageWorkers int
}

// Processor runs one batch: compress every image, publish the result table,
// record the terminal status and call the webhook.
type Processor struct {
	store      RecordStore
	blobs      BlobStore
	transcoder Transcoder
	notifier   Notifier
	cfg        Config
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func NewProcessor(store RecordStore, blobs BlobStore, tr Transcoder, n Notifier, cfg Config, m *metrics.Metrics, log *zap.Logger) *Processor {
	if cfg.ImageWorkers <= 0 {
		cfg.ImageWorkers = 1
	}
	return &Processor{
		store:      store,
		blobs:      blobs,
		transcoder: tr,
		notifier:   n,
		cfg:        cfg,
		metrics:    m,
		log:        log,
	}
}

func (p *Processor) Handle(ctx context.Context, job queue.Job) error {
	return p.Run(ctx, job.RequestID, job.Rows)
}

// Run processes rows for requestID. Per-image failures only shorten the
// output URL list; a failed result upload marks the request failed. The
// returned error reports record store failures.
func (p *Processor) Run(ctx context.Context, requestID string, rows []models.ProductRow) error {
	const op = "pipeline.Run"
	start := time.Now()
	log := p.log.With(zap.String("request_id", requestID))

	req, err := p.store.Get(ctx, requestID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if req.Status != models.StatusPending {
		log.Info("Request already finished, skipping run", zap.String("status", string(req.Status)))
		return nil
	}

	log.Info("Batch started", zap.Int("rows", len(rows)))

	outputURLs := p.processImages(ctx, log, rows)
	outRows := make([]models.OutputRow, len(rows))
	for i, row := range rows {
		outRows[i] = models.OutputRow{
			SerialNumber:    row.SerialNumber,
			ProductName:     row.ProductName,
			InputImageURLs:  csvio.JoinURLs(row.InputImageURLs),
			OutputImageURLs: csvio.JoinURLs(outputURLs[i]),
		}
	}

	var buf bytes.Buffer
	if err := csvio.WriteResult(&buf, outRows); err != nil {
		return p.fail(ctx, log, requestID, start, fmt.Sprintf("CSV write error: %v", err))
	}

	csvURL, err := p.blobs.Put(ctx, resultKey(requestID), buf.Bytes(), csvContentType)
	if err != nil {
		return p.fail(ctx, log, requestID, start, fmt.Sprintf("S3 CSV upload error: %v", err))
	}

	transitioned, err := p.store.Finish(ctx, requestID, models.StatusComplete, csvURL, "")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !transitioned {
		log.Info("Request was completed by another run")
		return nil
	}
	p.metrics.BatchFinished(string(models.StatusComplete), time.Since(start))
	log.Info("Batch complete", zap.String("output_csv", csvURL), zap.Duration("took", time.Since(start)))

	p.notifyCompletion(ctx, log, requestID, csvURL)
	return nil
}

func (p *Processor) fail(ctx context.Context, log *zap.Logger, requestID string, start time.Time, msg string) error {
	const op = "pipeline.fail"

	log.Error("Batch failed", zap.String("error", msg))
	transitioned, err := p.store.Finish(ctx, requestID, models.StatusFailed, "", msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if transitioned {
		p.metrics.BatchFinished(string(models.StatusFailed), time.Since(start))
	}
	return nil
}

// processImages returns, per row, the public URLs of the images that made it
// through, in input order.
func (p *Processor) processImages(ctx context.Context, log *zap.Logger, rows []models.ProductRow) [][]string {
	slots := make([][]string, len(rows))
	for i, row := range rows {
		slots[i] = make([]string, len(row.InputImageURLs))
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.ImageWorkers)
	for i, row := range rows {
		for j, src := range row.InputImageURLs {
			i, j, src := i, j, src
			g.Go(func() error {
				slots[i][j] = p.processImage(ctx, log, src)
				return nil
			})
		}
	}
	g.Wait()

	out := make([][]string, len(rows))
	for i, row := range slots {
		for _, u := range row {
			if u != "" {
				out[i] = append(out[i], u)
			}
		}
	}
	return out
}

func (p *Processor) processImage(ctx context.Context, log *zap.Logger, src string) string {
	data, err := p.transcoder.Transcode(ctx, src, p.cfg.Quality)
	if err != nil {
		log.Warn("Failed to process image", zap.String("url", src), zap.Error(err))
		p.metrics.ImageProcessed(transcodeOutcome(err))
		return ""
	}

	key := imageKeyPrefix + uuid.NewString() + ".jpg"
	publicURL, err := p.blobs.Put(ctx, key, data, imageContentType)
	if err != nil {
		log.Warn("Failed to upload image",
			zap.String("url", src),
			zap.String("key", key),
			zap.Error(err))
		p.metrics.ImageProcessed(metrics.ImageUploadError)
		return ""
	}

	p.metrics.ImageProcessed(metrics.ImageOK)
	return publicURL
}

func (p *Processor) notifyCompletion(ctx context.Context, log *zap.Logger, requestID, csvURL string) {
	req, err := p.store.Get(ctx, requestID)
	if err != nil {
		log.Warn("Failed to read webhook url", zap.Error(err))
		return
	}
	if req.WebhookURL == "" {
		return
	}

	err = p.notifier.Notify(ctx, req.WebhookURL, notifier.Payload{
		RequestID: requestID,
		Status:    string(models.StatusComplete),
		OutputCSV: csvURL,
		Message:   notifier.CompletedMessage,
	})
	p.metrics.Notified(err == nil)
	if err != nil {
		log.Warn("Webhook delivery failed", zap.String("webhook_url", req.WebhookURL), zap.Error(err))
	}
}

func resultKey(requestID string) string {
	return "csvfile/" + requestID + "_output.csv"
}

func transcodeOutcome(err error) string {
	switch {
	case errors.Is(err, transcoder.ErrFetch):
		return metrics.ImageFetchFailed
	case errors.Is(err, transcoder.ErrDecode):
		return metrics.ImageDecodeError
	default:
		return metrics.ImageOtherError
	}
}
