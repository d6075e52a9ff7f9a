package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/go-kit/log/level"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/types"
)

// S3Service wraps the optional raw-message archive.
type S3Service struct {
	env *types.Environment
}

func NewS3Service(env *types.Environment) *S3Service {
	return &S3Service{
		env: env,
	}
}

// UploadRaw archives one raw message under its deterministic key.
func (s3s *S3Service) UploadRaw(key string, content []byte) error {
	if len(content) == 0 {
		return types.ErrBadRequest
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, uErr := s3s.env.S3Uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(global.Conf.Storage.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("message/rfc822"),
	})
	if uErr != nil {
		level.Error(global.Logger).Log("msg", "failed to upload raw message", "key", key, "error", uErr.Error())
		return uErr
	}
	return nil
}

// DownloadRaw fetches one archived raw message.
func (s3s *S3Service) DownloadRaw(key string) ([]byte, error) {
	if key == "" {
		return nil, types.ErrBadRequest
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, gErr := s3s.env.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(global.Conf.Storage.Bucket),
		Key:    aws.String(key),
	})
	if gErr != nil {
		var noKey *s3Types.NoSuchKey
		if errors.As(gErr, &noKey) {
			return nil, types.ErrNotFound
		}
		return nil, gErr
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// DeleteBlob removes a single archived message. A missing key is fine.
func (s3s *S3Service) DeleteBlob(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s3s.env.S3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(global.Conf.Storage.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3Types.NoSuchKey
		var apiErr *smithy.GenericAPIError
		if errors.As(err, &noKey) {
			return nil
		}
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDenied" {
			level.Error(global.Logger).Log("msg", "access denied deleting blob", "key", key)
			return types.ErrNotAuthorized
		}
		return err
	}
	return nil
}

// DeleteBlobs batch-deletes archived messages. Callers chunk to at
// most 1000 keys, the S3 bulk-delete ceiling.
func (s3s *S3Service) DeleteBlobs(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	objects := make([]s3Types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		objects = append(objects, s3Types.ObjectIdentifier{Key: aws.String(key)})
	}
	out, err := s3s.env.S3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(global.Conf.Storage.Bucket),
		Delete: &s3Types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return err
	}
	for _, delErr := range out.Errors {
		level.Error(global.Logger).Log("msg", "failed to delete blob", "key", aws.ToString(delErr.Key), "error", aws.ToString(delErr.Message))
	}
	return nil
}
