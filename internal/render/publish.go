package render

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"liquefier/internal/config"
	"liquefier/internal/utils"
)

// Publisher copies a written artifact somewhere a display surface can read it.
type Publisher interface {
	Publish(ctx context.Context, localPath string) error
}

type S3Publisher struct {
	client *minio.Client
	bucket string
	object string
}

func NewS3Publisher(conf config.S3Config) (*S3Publisher, error) {
	region := conf.Region
	if region == "" {
		region = "us-east-1"
	}
	minioCli, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKeyID, conf.SecretAccessKey, ""),
		Secure: conf.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client failed: %w", err)
	}
	return &S3Publisher{client: minioCli, bucket: conf.Bucket, object: conf.ObjectPath}, nil
}

func (p *S3Publisher) Publish(ctx context.Context, localPath string) error {
	if err := utils.UploadFileToMinio(ctx, p.client, p.bucket, localPath, p.object); err != nil {
		return fmt.Errorf("publish %s to %s/%s: %w", localPath, p.bucket, p.object, err)
	}
	return nil
}
