package services

import (
	"context"
	"path"
	"regexp"
	"strings"
	"time"

	"anniversary_server/apperrors"
	"anniversary_server/clock"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const defaultPresignExpiry = 5 * time.Minute

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// MediaService issues presigned S3 URLs for message images and audio.
// Objects live under relationships/{id}/media/.
type MediaService struct {
	Presigner *s3.PresignClient
	Bucket    string
	Expiry    time.Duration
	Clock     clock.Clock
}

func NewMediaService(client *s3.Client, bucket string, clk clock.Clock) *MediaService {
	if clk == nil {
		clk = clock.System()
	}
	return &MediaService{
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
		Expiry:    defaultPresignExpiry,
		Clock:     clk,
	}
}

// MediaPrefix is the key prefix holding a relationship's media.
func MediaPrefix(relationshipID string) string {
	return "relationships/" + relationshipID + "/media/"
}

// GenerateUploadURL returns a presigned PUT URL and the object key to store
// on the message.
func (m *MediaService) GenerateUploadURL(ctx context.Context, relationshipID, fileName, fileType string) (string, string, error) {
	if relationshipID == "" || fileName == "" || fileType == "" {
		return "", "", apperrors.Validation("upload url", "relationshipId, fileName and fileType are required")
	}
	if !strings.HasPrefix(fileType, "image/") && !strings.HasPrefix(fileType, "audio/") {
		return "", "", apperrors.Validation("upload url", "unsupported media type %q", fileType)
	}

	name := unsafeFileChars.ReplaceAllString(path.Base(fileName), "_")
	key := MediaPrefix(relationshipID) + m.Clock.Now().Format("20060102150405") + "-" + uuid.NewString()[:8] + "-" + name
	req, err := m.Presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(fileType),
	}, s3.WithPresignExpires(m.expiry()))
	if err != nil {
		return "", "", apperrors.Unavailable("upload url", err)
	}
	return req.URL, key, nil
}

// GenerateReadURL returns a presigned GET URL for a key belonging to the
// relationship.
func (m *MediaService) GenerateReadURL(ctx context.Context, relationshipID, key string) (string, error) {
	if relationshipID == "" || key == "" {
		return "", apperrors.Validation("read url", "relationshipId and key are required")
	}
	if !strings.HasPrefix(key, MediaPrefix(relationshipID)) || strings.Contains(key, "..") {
		return "", apperrors.Validation("read url", "key %q is outside the relationship's media", key)
	}
	req, err := m.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(m.expiry()))
	if err != nil {
		return "", apperrors.Unavailable("read url", err)
	}
	return req.URL, nil
}

func (m *MediaService) expiry() time.Duration {
	if m.Expiry <= 0 {
		return defaultPresignExpiry
	}
	return m.Expiry
}
