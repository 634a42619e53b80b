package destination

import (
	"context"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/kamazee/vcutil/pkg/config"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// S3Uploader copies closed destinations to s3://Bucket/Prefix/<name>.
type S3Uploader struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
	log      *zap.Logger
}

// NewS3Uploader builds an uploader from the default AWS credential chain.
func NewS3Uploader(ctx context.Context, cfg config.UploadConfig, log *zap.Logger) (*S3Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, vcerrors.Wrap(err, vcerrors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewS3UploaderFromClient(client, cfg.Bucket, cfg.Prefix, log), nil
}

// NewS3UploaderFromClient wraps an existing client.
func NewS3UploaderFromClient(client manager.UploadAPIClient, bucket, prefix string, log *zap.Logger) *S3Uploader {
	if log == nil {
		log = zap.NewNop()
	}
	return &S3Uploader{
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		uploader: manager.NewUploader(client),
		log:      log,
	}
}

// Key returns the object key for a destination name.
func (u *S3Uploader) Key(name string) string {
	name = strings.TrimLeft(path.Clean("/"+strings.ReplaceAll(name, "\\", "/")), "/")
	if u.prefix == "" {
		return name
	}
	return u.prefix + "/" + name
}

// Upload implements Uploader.
func (u *S3Uploader) Upload(ctx context.Context, name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fileErr(err, "failed to open destination for upload", name)
	}
	defer f.Close()

	key := u.Key(name)
	out, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return vcerrors.Wrap(err, vcerrors.ErrorTypeUpload, "failed to upload destination").
			WithDetail("destination", name).
			WithDetail("bucket", u.bucket).
			WithDetail("key", key)
	}
	u.log.Info("Uploaded destination",
		zap.String("destination", name),
		zap.String("location", out.Location))
	return nil
}
