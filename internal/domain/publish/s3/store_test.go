package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.HeadObjectOutput)
	return out, args.Error(1)
}

func (m *mockAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func TestStore_ConditionalPut(t *testing.T) {
	api := &mockAPI{}
	store := NewWithAPI(api, "assets")

	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return in.IfNoneMatch != nil && *in.IfNoneMatch == "*" && in.IfMatch == nil && aws.ToString(in.Key) == "models/latest.glb"
	})).Return(&s3.PutObjectOutput{ETag: aws.String(`"v1"`)}, nil).Once()

	version, err := store.Put(context.Background(), "/models/latest.glb", []byte("glTF"), "")
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, version)

	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return in.IfMatch != nil && *in.IfMatch == `"v1"` && in.IfNoneMatch == nil
	})).Return(&s3.PutObjectOutput{ETag: aws.String(`"v2"`)}, nil).Once()

	version, err = store.Put(context.Background(), "models/latest.glb", []byte("glTF2"), `"v1"`)
	require.NoError(t, err)
	assert.Equal(t, `"v2"`, version)
	api.AssertExpectations(t)
}

func TestStore_LookupNotFound(t *testing.T) {
	api := &mockAPI{}
	store := NewWithAPI(api, "assets")
	api.On("HeadObject", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}).Once()

	version, found, err := store.Lookup(context.Background(), "models/latest.glb")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, version)
}

func TestStore_LookupFailure(t *testing.T) {
	api := &mockAPI{}
	store := NewWithAPI(api, "assets")
	api.On("HeadObject", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}).Once()

	_, _, err := store.Lookup(context.Background(), "models/latest.glb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied: Access Denied")
}

// fakeBucket speaks just enough of the S3 REST API for HEAD and PUT.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	etags   map[string]string
	headers []http.Header
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		etag, ok := b.etags[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		b.headers = append(b.headers, r.Header.Clone())
		body, _ := io.ReadAll(r.Body)
		etag := `"etag-` + string(rune('0'+len(b.headers))) + `"`
		b.objects[r.URL.Path] = body
		b.etags[r.URL.Path] = etag
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestStore_AgainstHTTPBucket(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{}, etags: map[string]string{}}
	srv := httptest.NewServer(bucket)
	defer srv.Close()

	store, err := New(Config{
		Bucket:       "assets",
		Region:       "us-east-1",
		AccessKey:    "AKIDEXAMPLE",
		SecretKey:    "secret",
		Endpoint:     srv.URL,
		UsePathStyle: true,
	})
	require.NoError(t, err)

	_, found, err := store.Lookup(context.Background(), "models/latest.glb")
	require.NoError(t, err)
	assert.False(t, found)

	version, err := store.Put(context.Background(), "models/latest.glb", []byte("glTF-one"), "")
	require.NoError(t, err)
	assert.Equal(t, `"etag-1"`, version)

	prior, found, err := store.Lookup(context.Background(), "models/latest.glb")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `"etag-1"`, prior)

	_, err = store.Put(context.Background(), "models/latest.glb", []byte("glTF-two"), prior)
	require.NoError(t, err)

	require.Len(t, bucket.headers, 2)
	assert.Equal(t, "*", bucket.headers[0].Get("If-None-Match"))
	assert.Equal(t, `"etag-1"`, bucket.headers[1].Get("If-Match"))
	assert.Equal(t, "model/gltf-binary", bucket.headers[1].Get("Content-Type"))
	assert.Contains(t, bucket.headers[1].Get("Authorization"), "AWS4-HMAC-SHA256")
	assert.Equal(t, []byte("glTF-two"), bucket.objects["/assets/models/latest.glb"])
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
