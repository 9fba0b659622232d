package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"anniversary_server/apperrors"
	"anniversary_server/clock"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMediaService() *MediaService {
	client := s3.New(s3.Options{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
	})
	return NewMediaService(client, "anniversary-media", clock.NewFake(time.Date(2024, 2, 1, 8, 30, 0, 0, time.UTC)))
}

func TestGenerateUploadURL(t *testing.T) {
	media := newTestMediaService()

	url, key, err := media.GenerateUploadURL(context.Background(), "r1", "../our photo.jpg", "image/jpeg")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "relationships/r1/media/20240201083000-"), key)
	assert.True(t, strings.HasSuffix(key, "-our_photo.jpg"), key)
	assert.NotContains(t, key, "..")
	assert.Contains(t, url, "anniversary-media")
	assert.Contains(t, url, "X-Amz-Signature")
}

func TestGenerateUploadURLValidation(t *testing.T) {
	media := newTestMediaService()
	ctx := context.Background()

	_, _, err := media.GenerateUploadURL(ctx, "r1", "notes.txt", "text/plain")
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)

	_, _, err = media.GenerateUploadURL(ctx, "", "a.jpg", "image/jpeg")
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
}

func TestGenerateReadURLScopedToRelationship(t *testing.T) {
	media := newTestMediaService()
	ctx := context.Background()

	url, err := media.GenerateReadURL(ctx, "r1", "relationships/r1/media/a.m4a")
	require.NoError(t, err)
	assert.Contains(t, url, "relationships/r1/media/a.m4a")

	_, err = media.GenerateReadURL(ctx, "r1", "relationships/r2/media/a.m4a")
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)

	_, err = media.GenerateReadURL(ctx, "r1", "relationships/r1/media/../../r2/media/a.m4a")
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
}
