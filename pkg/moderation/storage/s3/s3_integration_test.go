//go:build integration

package s3

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-moderation/pkg/moderation"
)

// Runs against an S3-compatible service such as MinIO:
//
//	S3_ENDPOINT=http://localhost:9000 AWS_ACCESS_KEY_ID=minioadmin AWS_SECRET_ACCESS_KEY=minioadmin \
//	  go test -tags=integration ./pkg/moderation/storage/s3/...
func TestBackend_Integration(t *testing.T) {
	endpoint := os.Getenv("S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("S3_ENDPOINT not set")
	}
	ctx := context.Background()

	backend, err := New(ctx, Config{
		Region:                 "us-east-1",
		Bucket:                 "moderation-test",
		AccessKeyID:            os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey:        os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Endpoint:               endpoint,
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)

	name := uuid.NewString() + ".png"
	staged, public := "staged/"+name, "public/"+name

	require.NoError(t, backend.Upload(ctx, staged, strings.NewReader("image"), "image/png"))
	require.NoError(t, backend.Copy(ctx, staged, public))
	require.NoError(t, backend.Delete(ctx, staged))

	_, err = backend.Download(ctx, staged)
	assert.ErrorIs(t, err, moderation.ErrNotFound)

	rc, err := backend.Download(ctx, public)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "image", string(data))

	require.NoError(t, backend.Delete(ctx, public))
}
