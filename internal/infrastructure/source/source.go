// Package source opens import inputs from the local filesystem or S3-compatible
// object storage, decompressing .gz and .zst files transparently.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"crudkit/internal/core/apperror"
)

// S3Config holds MinIO/S3 connection settings. An empty Endpoint disables s3:// URIs.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ErrS3Disabled is returned for s3:// URIs when no endpoint is configured.
var ErrS3Disabled = errors.New("s3 source not configured")

// Opener resolves URIs to readers.
type Opener struct {
	mc *minio.Client
}

// NewOpener creates an opener. The MinIO client is only built when cfg has an endpoint.
func NewOpener(cfg S3Config) (*Opener, error) {
	if cfg.Endpoint == "" {
		return &Opener{}, nil
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Opener{mc: mc}, nil
}

// Open returns the decompressed content behind uri: a local path, file:// URL or s3://bucket/key.
func (o *Opener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters
		return openFile(uri)
	}

	switch u.Scheme {
	case "file":
		return openFile(u.Path)
	case "s3":
		return o.openS3(ctx, u)
	default:
		return nil, apperror.NewInvalidInput("unsupported source scheme").WithDetail("scheme", u.Scheme)
	}
}

func openFile(name string) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperror.NewNotFound("file", name)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return Decompress(name, f)
}

func (o *Opener) openS3(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	if o.mc == nil {
		return nil, ErrS3Disabled
	}
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, apperror.NewInvalidInput("s3 URI must be s3://bucket/key").WithDetail("uri", u.String())
	}

	obj, err := o.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, apperror.NewNotFound("object", u.String())
		}
		return nil, fmt.Errorf("stat s3://%s/%s: %w", bucket, key, err)
	}
	return Decompress(key, obj)
}

// Decompress wraps rc according to name's extension. Closing the result closes rc.
func Decompress(name string, rc io.ReadCloser) (io.ReadCloser, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".gz", ".gzip":
		zr, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, apperror.NewInvalidInput("corrupt gzip input").WithCause(err)
		}
		return &stacked{Reader: zr, closers: []func() error{zr.Close, rc.Close}}, nil
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return &stacked{Reader: zr, closers: []func() error{
			func() error { zr.Close(); return nil },
			rc.Close,
		}}, nil
	}
	return rc, nil
}

// stacked closes every layer, innermost decoder first.
type stacked struct {
	io.Reader
	closers []func() error
}

func (s *stacked) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
