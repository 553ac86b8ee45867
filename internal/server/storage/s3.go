// Package storage stores attachment blobs in S3-compatible object storage.
package storage

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sc "github.com/dmitrijs2005/gophchat/internal/server/config"
)

const presignTTL = 7 * 24 * time.Hour

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	uploadObject = func(u *manager.Uploader, ctx context.Context, in *s3.PutObjectInput) error {
		_, err := u.Upload(ctx, in)
		return err
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// S3Storage uploads objects with the S3 upload manager and hands out either
// public or presigned URLs for them.
type S3Storage struct {
	uploader      *manager.Uploader
	presign       *s3.PresignClient
	bucket        string
	publicBaseURL string
}

// NewS3Storage builds a client for the bucket configured in cfg.
func NewS3Storage(ctx context.Context, cfg *sc.Config) (*S3Storage, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Storage{
		uploader:      manager.NewUploader(client),
		presign:       s3.NewPresignClient(client),
		bucket:        cfg.S3Bucket,
		publicBaseURL: strings.TrimRight(cfg.S3PublicBaseURL, "/"),
	}, nil
}

// Put streams r to key. progress, when not nil, is called with the
// cumulative number of bytes consumed from r.
func (s *S3Storage) Put(ctx context.Context, key, contentType string, r io.Reader, progress func(int64)) error {
	body := r
	if progress != nil {
		body = &progressReader{r: r, fn: progress}
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	return uploadObject(s.uploader, ctx, in)
}

// URL returns a download URL for key: the public URL when a public base is
// configured, a presigned GET otherwise. Presigned URLs expire, so callers
// resolve them when the file is served instead of storing them.
func (s *S3Storage) URL(ctx context.Context, key string) (string, error) {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + escapeKey(key), nil
	}

	req, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// escapeKey escapes every segment of an object key for use in a URL path.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

type progressReader struct {
	r     io.Reader
	fn    func(int64)
	total atomic.Int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.fn(p.total.Add(int64(n)))
	}
	return n, err
}
