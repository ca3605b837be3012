package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver copies completed result artifacts into an S3 bucket so they
// survive local retention sweeps. Uploads are best-effort; the executor
// never fails a query over a missed archive.
type Archiver struct {
	client client
	bucket string
	prefix string
}

type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type client interface {
	Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error
}

func New(cfg Config) (*Archiver, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	mc, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Archiver{
		client: mc,
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: cleanPrefix(cfg.Prefix),
	}, nil
}

func NewWithClient(bucket, prefix string, c client) (*Archiver, error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &Archiver{client: c, bucket: strings.TrimSpace(bucket), prefix: cleanPrefix(prefix)}, nil
}

// Archive uploads one local artifact under datasource/<basename>.
func (a *Archiver) Archive(ctx context.Context, datasource, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open artifact for archive: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact for archive: %w", err)
	}

	key, err := a.objectKey(datasource, path.Base(localPath))
	if err != nil {
		return err
	}
	if err := a.client.Put(ctx, a.bucket, key, file, info.Size(), "application/x-ndjson"); err != nil {
		return fmt.Errorf("archive artifact %q: %w", key, err)
	}
	return nil
}

func (a *Archiver) objectKey(datasource, name string) (string, error) {
	datasource = strings.TrimSpace(datasource)
	name = strings.TrimSpace(name)
	if datasource == "" || name == "" {
		return "", fmt.Errorf("datasource and artifact name are required")
	}
	key := path.Join(datasource, name)
	if a.prefix == "" {
		return key, nil
	}
	return path.Join(a.prefix, key), nil
}

func cleanPrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.TrimPrefix(prefix, "/"))
	if prefix == "" {
		return ""
	}
	prefix = path.Clean(prefix)
	if prefix == "." {
		return ""
	}
	return prefix
}

func newMinioClient(cfg Config) (*minioClient, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	clientImpl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioClient{client: clientImpl}, nil
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("endpoint is required")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint URL: %w", err)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("endpoint host is required")
		}
		if parsed.Scheme == "https" {
			return parsed.Host, true, nil
		}
		return parsed.Host, useSSL, nil
	}
	return raw, useSSL, nil
}

type minioClient struct {
	client *minio.Client
}

func (m *minioClient) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}
