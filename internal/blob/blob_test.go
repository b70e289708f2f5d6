package blob

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
)

func TestDocumentKey(t *testing.T) {
	assert.Equal(t, "tenants/t-1/documents/d-9", DocumentKey("t-1", "d-9"))
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"", "/abs", "tenants/../etc", "tenants//x", "a/./b"} {
		assert.Error(t, validateKey(key), key)
	}
	assert.NoError(t, validateKey("tenants/t-1/documents/d-1"))
}

// fakeS3 keeps objects in memory. Unimplemented methods panic through the
// embedded nil interface.
type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.StringValue(in.Bucket) + "/" + aws.StringValue(in.Key)
	f.objects[key] = b
	f.types[key] = aws.StringValue(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func runStoreTests(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	key := DocumentKey("t-1", "d-1")

	require.NoError(t, s.Put(ctx, key, strings.NewReader("demanda inicial"), 15, "application/pdf"))

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "demanda inicial", string(body))

	// Overwrite replaces the content.
	require.NoError(t, s.Put(ctx, key, strings.NewReader("v2"), 2, "application/pdf"))
	rc, err = s.Get(ctx, key)
	require.NoError(t, err)
	body, _ = io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "v2", string(body))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, s.Delete(ctx, key), "deleting a missing key")

	assert.ErrorIs(t, s.Put(ctx, "../escape", strings.NewReader("x"), 1, ""), apperrors.ErrInvalidInput)
}

func TestLocalStore(t *testing.T) {
	root := filepath.Join(t.TempDir(), "documents")
	s, err := NewLocalStore(root)
	require.NoError(t, err)
	runStoreTests(t, s)

	require.NoError(t, s.Put(context.Background(), DocumentKey("t-2", "d-2"), strings.NewReader("x"), 1, ""))
	_, err = os.Stat(filepath.Join(root, "tenants", "t-2", "documents", "d-2"))
	assert.NoError(t, err)

	leftovers, err := filepath.Glob(filepath.Join(root, "tenants", "t-2", "documents", ".upload-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestS3Store(t *testing.T) {
	fake := newFakeS3()
	s := NewS3StoreWithClient(fake, "xenova-docs")
	runStoreTests(t, s)

	require.NoError(t, s.Put(context.Background(), "tenants/t-1/documents/d-3", strings.NewReader("x"), 1, "text/plain"))
	assert.Equal(t, "text/plain", fake.types["xenova-docs/tenants/t-1/documents/d-3"])
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
