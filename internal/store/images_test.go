package store

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropdoc/internal/config"
)

// bucketServer answers just enough of the S3 API for BucketExists and a
// single-part PutObject.
type bucketServer struct {
	mu    sync.Mutex
	heads int
	puts  []string
}

func (b *bucketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch r.Method {
	case http.MethodHead:
		b.heads++
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		_, _ = io.Copy(io.Discard, r.Body)
		b.puts = append(b.puts, r.URL.Path)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestImageStore(t *testing.T, endpoint string) *ImageStore {
	t.Helper()
	s, err := NewImageStore(config.ArtifactConfig{
		Endpoint: endpoint, AccessKey: "k", SecretKey: "s", Bucket: "photos-test",
	})
	require.NoError(t, err)
	return s
}

func TestImageStore_CancelledFirstUploadDoesNotBreakBucketSetup(t *testing.T) {
	fake := &bucketServer{}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	s := newTestImageStore(t, strings.TrimPrefix(srv.URL, "http://"))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.PutImage(cancelled, "r1", []byte("jpeg"), "image/jpeg")
	require.Error(t, err)

	key, err := s.PutImage(context.Background(), "r2", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "photos/r2.jpg", key)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.heads)
	assert.Equal(t, []string{"/photos-test/photos/r2.jpg"}, fake.puts)
}

func TestImageStore_ImageURLPresigns(t *testing.T) {
	s := newTestImageStore(t, "localhost:9000")
	u, err := s.ImageURL(context.Background(), "photos/r1.jpg")
	require.NoError(t, err)
	assert.Contains(t, u, "/photos-test/photos/r1.jpg")
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Contains(t, u, "X-Amz-Expires=3600")
}
