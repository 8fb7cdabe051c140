package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/ruteri/content-publisher/interfaces"
	"github.com/ruteri/content-publisher/mimeutils"
)

// S3Options configures an S3Publisher.
type S3Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string

	// AccessKey and SecretKey select static credentials. When empty the
	// default AWS credential chain is used.
	AccessKey string
	SecretKey string

	// ACL is applied to every uploaded object, e.g. "public-read".
	ACL string
}

// S3Publisher publishes objects to Amazon S3 or a compatible service.
// Object keys are the published paths under an optional prefix. S3 has no
// transactions: Commit and Rollback are no-ops.
type S3Publisher struct {
	client      s3iface.S3API
	bucketName  string
	prefix      string
	acl         string
	log         *slog.Logger
	locationURI string
}

// NewS3Publisher creates a new S3 publisher.
func NewS3Publisher(opts S3Options, log *slog.Logger) (*S3Publisher, error) {
	if log == nil {
		log = slog.Default()
	}

	// Format the URI for tracking, never exposing the secret
	uri := fmt.Sprintf("s3://%s/%s?region=%s", opts.Bucket, opts.Prefix, opts.Region)
	if opts.AccessKey != "" {
		uri = fmt.Sprintf("s3://%s:***@%s/%s?region=%s", opts.AccessKey, opts.Bucket, opts.Prefix, opts.Region)
	}
	if opts.Endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", opts.Endpoint)
	}

	cfg := aws.Config{
		Region: aws.String(opts.Region),
	}
	if opts.Endpoint != "" {
		// S3-compatible services rarely support virtual-hosted buckets
		cfg.Endpoint = aws.String(opts.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")
	} else {
		log.Warn("No S3 credentials provided, falling back to the default credential chain")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	p := newS3PublisherWithClient(s3.New(sess), opts.Bucket, opts.Prefix, log)
	p.acl = opts.ACL
	p.locationURI = uri
	return p, nil
}

func newS3PublisherWithClient(client s3iface.S3API, bucket, prefix string, log *slog.Logger) *S3Publisher {
	return &S3Publisher{
		client:      client,
		bucketName:  bucket,
		prefix:      strings.Trim(prefix, "/"),
		log:         log,
		locationURI: fmt.Sprintf("s3://%s/%s", bucket, prefix),
	}
}

// Put uploads body under the object key for path. HTML content is stored
// under a .html suffixed key.
func (b *S3Publisher) Put(ctx context.Context, p string, body io.Reader, contentType string) error {
	clean, err := interfaces.CleanPath(p)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = mimeutils.InferType(clean)
	}

	// PutObject needs a seekable body to sign and retry the request
	rs, ok := body.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	key := b.objectKey(mimeutils.HTMLPath(clean, contentType))
	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucketName),
		Key:         aws.String(key),
		Body:        rs,
		ContentType: aws.String(contentType),
	}
	if b.acl != "" {
		input.ACL = aws.String(b.acl)
	}

	if _, err := b.client.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}

	b.log.Debug("Stored object in S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		slog.String("content_type", contentType))

	return nil
}

// Delete removes the object stored for path and contentType.
func (b *S3Publisher) Delete(ctx context.Context, p string, contentType string) error {
	clean, err := interfaces.CleanPath(p)
	if err != nil {
		return err
	}

	key := b.objectKey(mimeutils.HTMLPath(clean, contentType))

	// DeleteObject succeeds for missing keys, check first
	found, err := b.head(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", clean, interfaces.ErrNotFound)
	}

	if _, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}

	b.log.Debug("Deleted object from S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key))

	return nil
}

// Get retrieves the object for path, falling back to the .html key.
func (b *S3Publisher) Get(ctx context.Context, p string) (*interfaces.Object, error) {
	start := time.Now()
	clean, err := interfaces.CleanPath(p)
	if err != nil {
		return nil, err
	}

	for _, suffix := range aliasSuffixes {
		key := b.objectKey(clean + suffix)
		result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucketName),
			Key:    aws.String(key),
		})
		if err != nil {
			if isS3NotFound(err) {
				continue
			}
			b.log.Error("Failed to get object from S3",
				slog.String("bucket", b.bucketName),
				slog.String("key", key),
				"err", err,
				slog.Duration("duration", time.Since(start)))
			return nil, fmt.Errorf("failed to get object from S3: %w", err)
		}

		data, err := io.ReadAll(result.Body)
		result.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read object body: %w", err)
		}

		contentType := aws.StringValue(result.ContentType)
		if contentType == "" {
			contentType = mimeutils.InferType(clean + suffix)
		}

		b.log.Debug("Fetched object from S3",
			slog.String("bucket", b.bucketName),
			slog.String("key", key),
			slog.Int("size", len(data)),
			slog.Duration("duration", time.Since(start)))

		return &interfaces.Object{Body: data, ContentType: contentType}, nil
	}

	b.log.Debug("Object not found in S3",
		slog.String("bucket", b.bucketName),
		slog.String("path", clean),
		slog.Duration("duration", time.Since(start)))
	return nil, fmt.Errorf("%s: %w", clean, interfaces.ErrNotFound)
}

// Exists reports whether path or path.html is present in the bucket.
func (b *S3Publisher) Exists(ctx context.Context, p string) bool {
	clean, err := interfaces.CleanPath(p)
	if err != nil {
		return false
	}

	for _, suffix := range aliasSuffixes {
		found, err := b.head(ctx, b.objectKey(clean+suffix))
		if err != nil {
			b.log.Warn("Failed to head object in S3", slog.String("path", clean+suffix), "err", err)
			return false
		}
		if found {
			return true
		}
	}
	return false
}

// List returns every key under the prefix, relative to the prefix.
func (b *S3Publisher) List(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucketName),
	}
	if b.prefix != "" {
		input.Prefix = aws.String(b.prefix + "/")
	}

	var files []string
	err := b.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			rel := strings.TrimPrefix(key, aws.StringValue(input.Prefix))
			// zero-byte directory markers
			if rel == "" || strings.HasSuffix(rel, "/") {
				continue
			}
			files = append(files, rel)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in S3: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

// Rollback is a no-op: uploads are visible immediately.
func (b *S3Publisher) Rollback(ctx context.Context) error {
	return nil
}

// Commit is a no-op: uploads are visible immediately.
func (b *S3Publisher) Commit(ctx context.Context, message string) error {
	b.log.Debug("Commit on S3 publisher",
		slog.String("bucket", b.bucketName),
		slog.String("message", message))
	return nil
}

// Available checks if the bucket is accessible.
func (b *S3Publisher) Available(ctx context.Context) bool {
	start := time.Now()

	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Warn("S3 backend unavailable",
			slog.String("bucket", b.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}

	return true
}

// Name returns a unique identifier for this publisher.
func (b *S3Publisher) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this publisher.
func (b *S3Publisher) LocationURI() string {
	return b.locationURI
}

func (b *S3Publisher) head(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to head object in S3: %w", err)
}

// objectKey maps a clean object path to its key in the bucket.
func (b *S3Publisher) objectKey(clean string) string {
	if b.prefix == "" {
		return clean
	}
	return path.Join(b.prefix, clean)
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
