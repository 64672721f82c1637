package upload

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"

	"github.com/polarbaker/codapt-QAlliance-v5-sub003/upload/network"
)

const (
	envMirrorBucket          = "QALLIANCE_MIRROR_BUCKET"
	envMirrorRegion          = "QALLIANCE_MIRROR_REGION"
	envMirrorAccessKeyID     = "QALLIANCE_MIRROR_ACCESS_KEY_ID"
	envMirrorSecretAccessKey = "QALLIANCE_MIRROR_SECRET_ACCESS_KEY"
)

// MirrorInput describes a local file to copy into an S3 bucket, for
// deployments that keep media in their own storage next to the upload
// service.
type MirrorInput struct {
	// LocalPath is the file to mirror.
	LocalPath string
	// ObjectKey is the destination key. Default: the file's base name.
	ObjectKey string
	// ContentType of the object. Default: detected from the extension.
	ContentType string
	// Bucket, Region and the credentials fall back to the
	// QALLIANCE_MIRROR_* env vars. Empty credentials use the default AWS
	// credential chain.
	Bucket          string
	Region          string
	AccessKeyID     Secret
	SecretAccessKey Secret
}

// Mirrorer copies files into an S3 bucket. A file already present with the
// same checksum is not transferred again.
type Mirrorer interface {
	Mirror(ctx context.Context, input MirrorInput) error
}

type mirrorConfig struct {
	localPath       string
	objectKey       string
	contentType     string
	bucket          string
	region          string
	accessKeyID     Secret
	secretAccessKey Secret
}

type mirrorer struct {
	envRepo env.Repository
	logger  log.Logger
}

// NewMirrorer ...
func NewMirrorer(envRepo env.Repository, logger log.Logger) *mirrorer {
	return &mirrorer{envRepo: envRepo, logger: logger}
}

// Mirror ...
func (m *mirrorer) Mirror(ctx context.Context, input MirrorInput) error {
	config, err := m.createConfig(input)
	if err != nil {
		return fmt.Errorf("failed to parse inputs: %w", err)
	}

	fileInfo, err := os.Stat(config.localPath)
	if err != nil {
		return err
	}

	checksum, err := checksumOfFile(config.localPath)
	if err != nil {
		m.logger.Warnf(err.Error())
		// fail silently and continue
	}

	m.logger.Infof("Mirroring %s (%s) to s3://%s/%s",
		config.localPath,
		units.HumanSizeWithPrecision(float64(fileInfo.Size()), 3),
		config.bucket,
		config.objectKey)
	uploadStartTime := time.Now()

	params := network.S3MirrorParams{
		LocalPath:       config.localPath,
		ObjectKey:       config.objectKey,
		Checksum:        checksum,
		Size:            fileInfo.Size(),
		ContentType:     config.contentType,
		Region:          config.region,
		Bucket:          config.bucket,
		AccessKeyID:     string(config.accessKeyID),
		SecretAccessKey: string(config.secretAccessKey),
	}
	if err := network.MirrorToS3(ctx, params, m.logger); err != nil {
		return fmt.Errorf("mirror failed: %w", err)
	}

	m.logger.Donef("Mirrored in %s", time.Since(uploadStartTime).Round(time.Millisecond))
	return nil
}

func (m *mirrorer) createConfig(input MirrorInput) (mirrorConfig, error) {
	if input.LocalPath == "" {
		return mirrorConfig{}, fmt.Errorf("local path is empty")
	}

	bucket := input.Bucket
	if bucket == "" {
		bucket = m.envRepo.Get(envMirrorBucket)
	}
	if bucket == "" {
		return mirrorConfig{}, fmt.Errorf("S3 bucket is empty: set MirrorInput.Bucket or the %s env var", envMirrorBucket)
	}

	region := input.Region
	if region == "" {
		region = m.envRepo.Get(envMirrorRegion)
	}
	if region == "" {
		return mirrorConfig{}, fmt.Errorf("S3 region is empty: set MirrorInput.Region or the %s env var", envMirrorRegion)
	}

	accessKeyID := input.AccessKeyID
	if accessKeyID == "" {
		accessKeyID = Secret(m.envRepo.Get(envMirrorAccessKeyID))
	}
	secretAccessKey := input.SecretAccessKey
	if secretAccessKey == "" {
		secretAccessKey = Secret(m.envRepo.Get(envMirrorSecretAccessKey))
	}

	objectKey := input.ObjectKey
	if objectKey == "" {
		objectKey = filepath.Base(input.LocalPath)
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(input.LocalPath))
	}

	return mirrorConfig{
		localPath:       input.LocalPath,
		objectKey:       objectKey,
		contentType:     contentType,
		bucket:          bucket,
		region:          region,
		accessKeyID:     accessKeyID,
		secretAccessKey: secretAccessKey,
	}, nil
}
