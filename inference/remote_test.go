package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// newEchoServer answers with the input values plus one, reshaped to [len].
func newEchoServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		var req TensorPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for i := range req.Data {
			req.Data[i]++
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TensorPayload{Shape: []int{len(req.Data)}, Data: req.Data})
	}))
}

func TestRemoteBackendPredict(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	b, err := NewRemoteBackend(RemoteConfig{
		URL:         srv.URL,
		Headers:     map[string]string{"Authorization": "Bearer token"},
		OutputShape: []int{2, 3},
	})
	require.NoError(t, err)
	defer b.Close()

	input := tensor.New(tensor.WithShape(1, 1, 2, 3), tensor.WithBacking([]float32{0, 1, 2, 3, 4, 5}))
	out, err := b.Predict(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, out.Data())
}

func TestRemoteBackendErrors(t *testing.T) {
	_, err := NewRemoteBackend(RemoteConfig{OutputShape: []int{1}})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewRemoteBackend(RemoteConfig{URL: "http://localhost"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewRemoteBackend(RemoteConfig{URL: "http://localhost", OutputShape: []int{0}})
	assert.ErrorIs(t, err, ErrNotConfigured)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	input := tensor.New(tensor.WithShape(1, 1, 1, 3), tensor.Of(tensor.Float32))

	b, err := NewRemoteBackend(RemoteConfig{URL: failing.URL, OutputShape: []int{3}})
	require.NoError(t, err)
	_, err = b.Predict(context.Background(), input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	srv := newEchoServer(t)
	defer srv.Close()
	b, err = NewRemoteBackend(RemoteConfig{
		URL:         srv.URL,
		Headers:     map[string]string{"Authorization": "Bearer token"},
		OutputShape: []int{4},
	})
	require.NoError(t, err)
	_, err = b.Predict(context.Background(), input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 3 values, want 4")
}

func TestRemoteBackendTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	b, err := NewRemoteBackend(RemoteConfig{URL: slow.URL, Timeout: 20 * time.Millisecond, OutputShape: []int{3}})
	require.NoError(t, err)

	input := tensor.New(tensor.WithShape(1, 1, 1, 3), tensor.Of(tensor.Float32))
	_, err = b.Predict(context.Background(), input)
	assert.Error(t, err)
}
