package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"image_batch/internal/models"
)

// MemoryStorage keeps processing requests in process memory. It follows the
// same transition rules as the Postgres storage and is safe for concurrent use.
type MemoryStorage struct {
	mu       sync.Mutex
	requests map[string]models.ProcessingRequest
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{requests: make(map[string]models.ProcessingRequest)}
}

func (s *MemoryStorage) Close() {}

func (s *MemoryStorage) Create(_ context.Context, req *models.ProcessingRequest) error {
	const op = "storage.Create"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.RequestID]; ok {
		return fmt.Errorf("%s: duplicate request id %s", op, req.RequestID)
	}
	now := time.Now()
	stored := *req
	stored.CreatedAt, stored.UpdatedAt = now, now
	s.requests[req.RequestID] = stored
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, requestID string) (*models.ProcessingRequest, error) {
	const op = "storage.Get"

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return &req, nil
}

func (s *MemoryStorage) Finish(_ context.Context, requestID string, status models.Status, resultLocation, errMsg string) (bool, error) {
	const op = "storage.Finish"

	if !status.Terminal() {
		return false, fmt.Errorf("%s: status %q is not terminal", op, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return false, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	switch {
	case req.Status == status:
		return false, nil
	case req.Status.Terminal():
		return false, fmt.Errorf("%s: %w: is %s", op, ErrAlreadyFinalized, req.Status)
	}

	req.Status = status
	req.ResultLocation = resultLocation
	req.Error = errMsg
	req.UpdatedAt = time.Now()
	s.requests[requestID] = req
	return true, nil
}
