package network

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

const numMirrorRetries = 3

// S3MirrorParams ...
type S3MirrorParams struct {
	// LocalPath is the file to mirror.
	LocalPath string
	// ObjectKey is the destination key in the bucket, typically matching the
	// file path returned by the ingest service.
	ObjectKey string
	// Checksum is the SHA-256 of the file in hex, used to skip re-uploading
	// an object the bucket already holds.
	Checksum    string
	Size        int64
	ContentType string

	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

type s3MirrorService struct {
	client      *s3.Client
	bucket      string
	localPath   string
	checksum    string
	size        int64
	contentType string
}

// MirrorToS3 copies an uploaded media file into an S3 bucket for serving or
// backup. A matching object (same key, same checksum) is not re-uploaded;
// its retention is extended instead.
func MirrorToS3(ctx context.Context, params S3MirrorParams, logger log.Logger) error {
	if params.Bucket == "" {
		return fmt.Errorf("Bucket must not be empty")
	}
	if params.ObjectKey == "" {
		return fmt.Errorf("ObjectKey must not be empty")
	}
	if params.LocalPath == "" {
		return fmt.Errorf("LocalPath must not be empty")
	}
	if params.Size == 0 {
		return fmt.Errorf("Size must not be empty")
	}

	cfg, err := loadAWSCredentials(
		ctx,
		params.Region,
		params.AccessKeyID,
		params.SecretAccessKey,
		logger,
	)
	if err != nil {
		return fmt.Errorf("load aws credentials: %w", err)
	}

	client := s3.NewFromConfig(*cfg)
	service := &s3MirrorService{
		client:      client,
		bucket:      params.Bucket,
		localPath:   params.LocalPath,
		checksum:    params.Checksum,
		size:        params.Size,
		contentType: params.ContentType,
	}

	return service.mirror(ctx, params.ObjectKey, logger)
}

// If the object exists with the same checksum -> extend retention.
// Otherwise -> upload, overwriting any stale object under the key.
func (service *s3MirrorService) mirror(ctx context.Context, objectKey string, logger log.Logger) error {
	checksum, err := service.findChecksumWithRetry(ctx, objectKey)
	if err != nil {
		return fmt.Errorf("validate object: %w", err)
	}

	if checksum != "" && checksum == service.checksum {
		logger.Debugf("Found object with the same checksum. Extending retention...")
		if err := service.copyObjectWithRetry(ctx, objectKey, logger); err != nil {
			return fmt.Errorf("copy object: %w", err)
		}
		return nil
	}

	logger.Debugf("Mirroring media file...")
	if err := service.putObjectWithRetry(ctx, objectKey); err != nil {
		return fmt.Errorf("upload media file: %w", err)
	}

	return nil
}

// findChecksumWithRetry tries to find the object in the bucket.
// If the object is present, it returns its SHA-256 checksum.
// If the object isn't present, it returns an empty string.
func (service *s3MirrorService) findChecksumWithRetry(ctx context.Context, objectKey string) (string, error) {
	var checksum string
	err := retry.Times(numMirrorRetries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := service.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(service.bucket),
			Key:    aws.String(objectKey),
		})
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) {
				switch apiError.(type) {
				case *types.NotFound:
					// continue with upload
					return nil, true
				default:
					return fmt.Errorf("validating object: %w", err), false
				}
			}
		}

		attributes, err := service.client.GetObjectAttributes(ctx, &s3.GetObjectAttributesInput{
			Bucket: aws.String(service.bucket),
			Key:    aws.String(objectKey),
			ObjectAttributes: []types.ObjectAttributes{
				"Checksum",
			},
		})
		if err != nil {
			return fmt.Errorf("get object attributes: %w", err), false
		}

		if attributes != nil && attributes.Checksum != nil && attributes.Checksum.ChecksumSHA256 != nil {
			decodedChecksum, err := base64.StdEncoding.DecodeString(*attributes.Checksum.ChecksumSHA256)
			if err != nil {
				return fmt.Errorf("base64 decode checksum: %w", err), true
			}

			checksum = hex.EncodeToString(decodedChecksum)
		}

		return nil, true
	})

	return checksum, err
}

// Copying an S3 object onto itself with the same storage class resets the
// object's age, which extends lifecycle-based retention.
func (service *s3MirrorService) copyObjectWithRetry(ctx context.Context, objectKey string, logger log.Logger) error {
	return retry.Times(numMirrorRetries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		resp, err := service.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:       aws.String(service.bucket),
			Key:          aws.String(objectKey),
			StorageClass: types.StorageClassStandard,
			CopySource:   aws.String(fmt.Sprintf("%s/%s", service.bucket, objectKey)),
		})
		if err != nil {
			return fmt.Errorf("extend retention: %w", err), false
		}
		if resp != nil && resp.Expiration != nil {
			logger.Debugf("New expiration date is %s", *resp.Expiration)
		}
		return nil, true
	})
}

func (service *s3MirrorService) putObjectWithRetry(ctx context.Context, objectKey string) error {
	return retry.Times(numMirrorRetries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		file, err := os.Open(service.localPath)
		if err != nil {
			return fmt.Errorf("open local path: %w", err), true
		}
		defer file.Close() //nolint:errcheck

		contentType := service.contentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		var partMB int64 = 10
		uploader := manager.NewUploader(service.client, func(u *manager.Uploader) {
			u.PartSize = partMB * 1024 * 1024
		})

		_, err = uploader.Upload(ctx, &s3.PutObjectInput{
			Body:              file,
			Bucket:            aws.String(service.bucket),
			Key:               aws.String(objectKey),
			ContentType:       aws.String(contentType),
			ContentLength:     aws.Int64(service.size),
			ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		})
		if err != nil {
			return fmt.Errorf("upload media file: %w", err), false
		}

		return nil, true
	})
}

func loadAWSCredentials(ctx context.Context, region string, accessKeyID string, secretKey string, logger log.Logger) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("AWS region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKeyID != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, ""),
		))
	} else {
		logger.Debugf("AWS credentials not provided, using the default credential chain")
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &cfg, nil
}
