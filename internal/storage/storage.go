// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"image_batch/internal/models"
)

var (
	ErrNotFound         = errors.New("processing request not found")
	ErrAlreadyFinalized = errors.New("processing request already finalized")
)

// dbPool is the subset of *pgxpool.Pool the storage uses.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Storage struct {
	pool  dbPool
	close func()
}

func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	const op = "storage.NewStorage"

	if err := runMigrations(dsn); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{pool: pool, close: pool.Close}, nil
}

func newWithPool(pool dbPool) *Storage {
	return &Storage{pool: pool, close: func() {}}
}

func (s *Storage) Close() {
	s.close()
}

func (s *Storage) Create(ctx context.Context, req *models.ProcessingRequest) error {
	const op = "storage.Create"

	_, err := s.pool.Exec(ctx,
		`INSERT INTO processing_requests (request_id, status, webhook_url)
		VALUES ($1, $2, NULLIF($3, ''))`,
		req.RequestID, string(req.Status), req.WebhookURL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, requestID string) (*models.ProcessingRequest, error) {
	const op = "storage.Get"

	var (
		req    models.ProcessingRequest
		status string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT request_id, status,
		 COALESCE(processed_images, '') AS processed_images,
		 COALESCE(error, '') AS error,
		 COALESCE(webhook_url, '') AS webhook_url,
		 created_at, updated_at
		 FROM processing_requests WHERE request_id = $1`,
		requestID).Scan(&req.RequestID, &status, &req.ResultLocation, &req.Error, &req.WebhookURL,
		&req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Status = models.Status(status)
	return &req, nil
}

// Finish moves a pending request to a terminal status. transitioned is true
// only for the call that performed the move; repeating the same terminal
// status is accepted without effect, any other change is ErrAlreadyFinalized.
func (s *Storage) Finish(ctx context.Context, requestID string, status models.Status, resultLocation, errMsg string) (transitioned bool, err error) {
	const op = "storage.Finish"

	if !status.Terminal() {
		return false, fmt.Errorf("%s: status %q is not terminal", op, status)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE processing_requests
		 SET status = $2, processed_images = NULLIF($3, ''), error = NULLIF($4, ''), updated_at = NOW()
		 WHERE request_id = $1 AND status = 'pending'`,
		requestID, string(status), resultLocation, errMsg)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var current string
	err = s.pool.QueryRow(ctx,
		`SELECT status FROM processing_requests WHERE request_id = $1`, requestID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if models.Status(current) == status {
		return false, nil
	}
	return false, fmt.Errorf("%s: %w: is %s", op, ErrAlreadyFinalized, current)
}
