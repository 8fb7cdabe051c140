package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/ruteri/content-publisher/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3Object struct {
	body        []byte
	contentType string
	acl         string
}

// fakeS3 is an in-memory bucket implementing the calls S3Publisher makes.
type fakeS3 struct {
	s3iface.S3API

	mu       sync.Mutex
	objects  map[string]fakeS3Object
	pageSize int
	err      error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeS3Object), pageSize: 2}
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.StringValue(in.Key)] = fakeS3Object{
		body:        data,
		contentType: aws.StringValue(in.ContentType),
		acl:         aws.StringValue(in.ACL),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	out := &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.body))}
	if obj.contentType != "" {
		out.ContentType = aws.String(obj.contentType)
	}
	return out, nil
}

func (f *fakeS3) HeadObjectWithContext(ctx aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.StringValue(in.Key)]; !ok {
		return nil, awserr.New("NotFound", "Not Found", nil)
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(ctx aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.StringValue(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()
	sort.Strings(keys)

	for start := 0; start < len(keys) || start == 0; start += f.pageSize {
		end := min(start+f.pageSize, len(keys))
		page := &s3.ListObjectsV2Output{}
		for _, k := range keys[start:end] {
			page.Contents = append(page.Contents, &s3.Object{Key: aws.String(k)})
		}
		if !fn(page, end == len(keys)) || end == len(keys) {
			break
		}
	}
	return nil
}

func (f *fakeS3) HeadBucketWithContext(ctx aws.Context, in *s3.HeadBucketInput, _ ...request.Option) (*s3.HeadBucketOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestS3Publisher_Scenario(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	p := newS3PublisherWithClient(fake, "my-site", "www/", testLogger())

	require.NoError(t, interfaces.PutBytes(ctx, p, "hello.txt", []byte("Hello world"), "text/plain"))
	require.NoError(t, interfaces.PutBytes(ctx, p, "post", []byte("<html></html>"), "text/html"))
	require.NoError(t, interfaces.PutBytes(ctx, p, "css/site.css", []byte("body{}"), ""))

	assert.Contains(t, fake.objects, "www/post.html")
	assert.Equal(t, "text/css", fake.objects["www/css/site.css"].contentType)

	files, err := p.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"css/site.css", "hello.txt", "post.html"}, files)

	obj, err := p.Get(ctx, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, &interfaces.Object{Body: []byte("Hello world"), ContentType: "text/plain"}, obj)

	for _, name := range []string{"post", "post.html"} {
		obj, err := p.Get(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, "text/html", obj.ContentType)
		assert.True(t, p.Exists(ctx, name))
	}

	require.NoError(t, p.Commit(ctx, "publish"))
	require.NoError(t, p.Rollback(ctx))
	assert.True(t, p.Exists(ctx, "hello.txt"))
}

func TestS3Publisher_Delete(t *testing.T) {
	ctx := context.Background()
	p := newS3PublisherWithClient(newFakeS3(), "my-site", "", testLogger())

	require.NoError(t, interfaces.PutBytes(ctx, p, "post", []byte("<p>x</p>"), "text/html"))

	assert.ErrorIs(t, p.Delete(ctx, "post", "text/plain"), interfaces.ErrNotFound)
	require.NoError(t, p.Delete(ctx, "post", "text/html"))

	assert.False(t, p.Exists(ctx, "post"))
	_, err := p.Get(ctx, "post")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.ErrorIs(t, p.Delete(ctx, "post", "text/html"), interfaces.ErrNotFound)
}

func TestS3Publisher_Errors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	p := newS3PublisherWithClient(fake, "my-site", "", testLogger())

	assert.ErrorIs(t, interfaces.PutBytes(ctx, p, "../x", []byte("x"), ""), interfaces.ErrInvalidPath)
	assert.True(t, p.Available(ctx))

	fake.err = errors.New("connection refused")

	_, err := p.Get(ctx, "hello.txt")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, interfaces.ErrNotFound)
	assert.False(t, p.Exists(ctx, "hello.txt"))
	_, err = p.List(ctx)
	assert.Error(t, err)
	assert.False(t, p.Available(ctx))
}

func TestS3Publisher_StreamAndACL(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	p := newS3PublisherWithClient(fake, "my-site", "", testLogger())
	p.acl = "public-read"

	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte("streamed"))
		pw.Close()
	}()
	require.NoError(t, p.Put(ctx, "feed.xml", pr, ""))

	assert.Equal(t, fakeS3Object{body: []byte("streamed"), contentType: "application/xml", acl: "public-read"}, fake.objects["feed.xml"])
}

func TestNewS3Publisher_LocationURI(t *testing.T) {
	p, err := NewS3Publisher(S3Options{
		Bucket:    "my-site",
		Prefix:    "www",
		Region:    "eu-west-1",
		Endpoint:  "http://minio.local:9000",
		AccessKey: "AKID",
		SecretKey: "SECRET",
	}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "s3-my-site", p.Name())
	assert.Equal(t, "s3://AKID:***@my-site/www?region=eu-west-1&endpoint=http://minio.local:9000", p.LocationURI())
	assert.NotContains(t, p.LocationURI(), "SECRET")
}
