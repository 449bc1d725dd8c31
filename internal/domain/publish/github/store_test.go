package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeContents keeps one file per path like the contents API.
type fakeContents struct {
	mu    sync.Mutex
	files map[string]string
	puts  []map[string]any
}

func (f *fakeContents) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ghp-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")

		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "main", r.URL.Query().Get("ref"))
			sha, ok := f.files[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"message":"Not Found"}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"sha": sha})
		case http.MethodPut:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.puts = append(f.puts, body)

			current, exists := f.files[r.URL.Path]
			sha, _ := body["sha"].(string)
			if exists && sha != current {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"message":"is at ` + current + ` but expected ` + sha + `"}`))
				return
			}
			next := "sha-" + string(rune('a'+len(f.puts)))
			f.files[r.URL.Path] = next
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"content": map[string]string{"sha": next}})
		}
	}
}

func newStore(t *testing.T, fake *fakeContents) *Store {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	store, err := New(Config{Token: "ghp-test", Owner: "octo", Repo: "models", BaseURL: srv.URL})
	require.NoError(t, err)
	return store
}

func TestStore_CreateOmitsSHA(t *testing.T) {
	fake := &fakeContents{files: map[string]string{}}
	store := newStore(t, fake)

	prior, found, err := store.Lookup(context.Background(), "models/latest.glb")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, prior)

	version, err := store.Put(context.Background(), "models/latest.glb", []byte("glTF-model"), prior)
	require.NoError(t, err)
	assert.Equal(t, "sha-b", version)

	require.Len(t, fake.puts, 1)
	_, hasSHA := fake.puts[0]["sha"]
	assert.False(t, hasSHA)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("glTF-model")), fake.puts[0]["content"])
	assert.Equal(t, "main", fake.puts[0]["branch"])
	assert.Equal(t, "Update generated model", fake.puts[0]["message"])
}

func TestStore_UpdateIncludesSHA(t *testing.T) {
	fake := &fakeContents{files: map[string]string{"/repos/octo/models/contents/models/latest.glb": "old-sha"}}
	store := newStore(t, fake)

	prior, found, err := store.Lookup(context.Background(), "models/latest.glb")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "old-sha", prior)

	version, err := store.Put(context.Background(), "models/latest.glb", []byte("glTF-v2"), prior)
	require.NoError(t, err)
	assert.NotEqual(t, "old-sha", version)
	assert.Equal(t, "old-sha", fake.puts[0]["sha"])
}

func TestStore_PutConflict(t *testing.T) {
	fake := &fakeContents{files: map[string]string{"/repos/octo/models/contents/models/latest.glb": "current"}}
	store := newStore(t, fake)

	_, err := store.Put(context.Background(), "models/latest.glb", []byte("x"), "stale")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 409")
	assert.Contains(t, err.Error(), "is at current")
}

func TestStore_LookupError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Bad credentials"}`))
	}))
	defer srv.Close()

	store, err := New(Config{Token: "bad", Owner: "o", Repo: "r", BaseURL: srv.URL})
	require.NoError(t, err)
	_, _, err = store.Lookup(context.Background(), "a.glb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad credentials")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Owner: "o", Repo: "r"})
	assert.Error(t, err)
	_, err = New(Config{Token: "t"})
	assert.Error(t, err)
}
