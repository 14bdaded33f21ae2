package blob

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"image_batch/internal/models"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_PutReturnsBucketURL(t *testing.T) {
	client := &fakeS3{}
	store := newS3Store(client, models.BlobConfig{Bucket: "compressimageurls"}, zap.NewNop())

	url, err := store.Put(context.Background(), "images/abc.jpg", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "https://compressimageurls.s3.amazonaws.com/images/abc.jpg", url)
	assert.Equal(t, "compressimageurls", aws.ToString(client.input.Bucket))
	assert.Equal(t, "images/abc.jpg", aws.ToString(client.input.Key))
	assert.Equal(t, "image/jpeg", aws.ToString(client.input.ContentType))
	assert.Equal(t, int64(4), aws.ToInt64(client.input.ContentLength))
	assert.Equal(t, []byte("jpeg"), client.body)
}

func TestS3Store_PutUsesPublicBaseURL(t *testing.T) {
	store := newS3Store(&fakeS3{}, models.BlobConfig{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"}, zap.NewNop())

	url, err := store.Put(context.Background(), "csvfile/r_output.csv", []byte("a,b"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/csvfile/r_output.csv", url)
}

func TestS3Store_PutPropagatesError(t *testing.T) {
	store := newS3Store(&fakeS3{err: errors.New("access denied")}, models.BlobConfig{Bucket: "b"}, zap.NewNop())

	url, err := store.Put(context.Background(), "images/x.jpg", []byte("x"), "image/jpeg")
	assert.Error(t, err)
	assert.Empty(t, url)
}

func TestMinioBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000/images", minioBaseURL(models.BlobConfig{Endpoint: "localhost:9000", Bucket: "images"}))
	assert.Equal(t, "https://minio.internal/images", minioBaseURL(models.BlobConfig{Endpoint: "minio.internal", Bucket: "images", UseSSL: true}))
	assert.Equal(t, "https://cdn.example.com", minioBaseURL(models.BlobConfig{Endpoint: "minio.internal", Bucket: "images", PublicBaseURL: "https://cdn.example.com/"}))
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), models.BlobConfig{Driver: "ftp"}, zap.NewNop())
	assert.Error(t, err)
}
