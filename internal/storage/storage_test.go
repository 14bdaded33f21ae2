package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image_batch/internal/models"
)

func setupMockPool(t *testing.T) (*Storage, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newWithPool(mock), mock
}

func TestCreate_InsertsPendingRow(t *testing.T) {
	s, mock := setupMockPool(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO processing_requests`)).
		WithArgs("req-1", "pending", "https://hook.example/x").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Create(context.Background(), &models.ProcessingRequest{
		RequestID:  "req-1",
		Status:     models.StatusPending,
		WebhookURL: "https://hook.example/x",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_ReturnsRequest(t *testing.T) {
	s, mock := setupMockPool(t)
	now := time.Now()

	rows := pgxmock.NewRows([]string{"request_id", "status", "processed_images", "error", "webhook_url", "created_at", "updated_at"}).
		AddRow("req-1", "complete", "https://bucket/csvfile/req-1_output.csv", "", "", now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM processing_requests WHERE request_id = $1`)).
		WithArgs("req-1").
		WillReturnRows(rows)

	req, err := s.Get(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, req.Status)
	assert.Equal(t, "https://bucket/csvfile/req-1_output.csv", req.ResultLocation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	s, mock := setupMockPool(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM processing_requests WHERE request_id = $1`)).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	req, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, req)
}

func TestFinish_TransitionsPendingRequest(t *testing.T) {
	s, mock := setupMockPool(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE processing_requests`)).
		WithArgs("req-1", "complete", "https://bucket/out.csv", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	transitioned, err := s.Finish(context.Background(), "req-1", models.StatusComplete, "https://bucket/out.csv", "")
	assert.NoError(t, err)
	assert.True(t, transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinish_SameTerminalStatusIsNoop(t *testing.T) {
	s, mock := setupMockPool(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE processing_requests`)).
		WithArgs("req-1", "complete", "https://bucket/out.csv", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM processing_requests`)).
		WithArgs("req-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("complete"))

	transitioned, err := s.Finish(context.Background(), "req-1", models.StatusComplete, "https://bucket/out.csv", "")
	assert.NoError(t, err)
	assert.False(t, transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinish_RefusesToFlipTerminalStatus(t *testing.T) {
	s, mock := setupMockPool(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE processing_requests`)).
		WithArgs("req-1", "failed", "", "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM processing_requests`)).
		WithArgs("req-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("complete"))

	transitioned, err := s.Finish(context.Background(), "req-1", models.StatusFailed, "", "boom")
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	assert.False(t, transitioned)
}

func TestFinish_UnknownRequest(t *testing.T) {
	s, mock := setupMockPool(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE processing_requests`)).
		WithArgs("nope", "failed", "", "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM processing_requests`)).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Finish(context.Background(), "nope", models.StatusFailed, "", "boom")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinish_RejectsNonTerminalStatus(t *testing.T) {
	s, mock := setupMockPool(t)

	_, err := s.Finish(context.Background(), "req-1", models.StatusPending, "", "")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
