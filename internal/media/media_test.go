package media

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Store = (*DirStore)(nil)
	_ Store = (*S3Store)(nil)
	_ S3API = (*s3.Client)(nil)
)

// PNG signature followed by an IHDR chunk header
var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "video/mp4", DetectContentType([]byte("whatever"), "video/mp4"))
	assert.Equal(t, "image/png", DetectContentType(pngBytes, ""))
	assert.Equal(t, "image/png", DetectContentType(pngBytes, "application/octet-stream"))
}

func TestNewObject(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	obj, err := NewObject(pngBytes, "dot.png", "", now)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(obj.Key, ".png"), obj.Key)
	assert.True(t, ValidKey(obj.Key))
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, int64(len(pngBytes)), obj.Size)
	assert.Equal(t, now, obj.CreatedAt)

	_, err = NewObject(nil, "empty", "image/png", now)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestKeyFromURL(t *testing.T) {
	obj, err := NewObject(pngBytes, "", "", time.Now())
	require.NoError(t, err)

	key, ok := KeyFromURL(obj.URL())
	require.True(t, ok)
	assert.Equal(t, obj.Key, key)

	_, ok = KeyFromURL("/media/../../etc/passwd")
	assert.False(t, ok)
	_, ok = KeyFromURL("https://example.com/x.png")
	assert.False(t, ok)
}

func TestDirStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	obj, err := s.Put(ctx, []byte("fake video"), "clip.mp4", "video/mp4")
	require.NoError(t, err)

	data, got, err := s.Get(ctx, obj.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("fake video"), data)
	assert.Equal(t, "video/mp4", got.ContentType)
	assert.Equal(t, "clip.mp4", got.Filename)

	require.NoError(t, s.Delete(ctx, obj.Key))
	require.NoError(t, s.Delete(ctx, obj.Key))

	_, _, err = s.Get(ctx, obj.Key)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.Get(ctx, "../secret")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewDirStore_RequiresDir(t *testing.T) {
	_, err := NewDirStore("")
	require.Error(t, err)
}

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]*s3.PutObjectInput
	data    map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]*s3.PutObjectInput{}, data: map[string][]byte{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = in
	f.data[key] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	put, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(f.data[key])),
		ContentType: put.ContentType,
		Metadata:    put.Metadata,
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	delete(f.objects, key)
	delete(f.data, key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s, err := NewS3Store(fake, S3Config{Bucket: "annotations"})
	require.NoError(t, err)

	obj, err := s.Put(ctx, pngBytes, "dot.png", "image/png")
	require.NoError(t, err)

	_, ok := fake.objects["annotations/media/"+obj.Key]
	require.True(t, ok, "object stored under prefix")

	data, got, err := s.Get(ctx, obj.Key)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", got.ContentType)
	assert.Equal(t, "dot.png", got.Filename)

	require.NoError(t, s.Delete(ctx, obj.Key))
	_, _, err = s.Get(ctx, obj.Key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(newFakeS3(), S3Config{})
	require.Error(t, err)
}
