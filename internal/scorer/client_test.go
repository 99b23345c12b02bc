package scorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monasterywatch/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.ScorerConfig{
		BaseURL:        srv.URL,
		RequestTimeout: 2 * time.Second,
		HealthTimeout:  time.Second,
	})
}

func TestCompareDecodesResult(t *testing.T) {
	var gotLocation, gotComponent string
	var gotBaseline, gotCurrent []byte

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/compare", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotLocation = r.FormValue("location")
		gotComponent = r.FormValue("structure_component")

		for field, dst := range map[string]*[]byte{"baseline_image": &gotBaseline, "current_image": &gotCurrent} {
			file, _, err := r.FormFile(field)
			require.NoError(t, err)
			buf := make([]byte, 16)
			n, _ := file.Read(buf)
			*dst = buf[:n]
			file.Close()
		}

		detected := true
		json.NewEncoder(w).Encode(Result{
			SSIMScore:      0.42,
			Severity:       "CRITICAL",
			ChangeDetected: &detected,
			Message:        "major deterioration",
		})
	})

	result, err := client.Compare(context.Background(), []byte("base"), []byte("curr"), "Main Hall", "North Wall")
	require.NoError(t, err)

	assert.Equal(t, 0.42, result.SSIMScore)
	assert.Equal(t, "CRITICAL", result.Severity)
	require.NotNil(t, result.ChangeDetected)
	assert.True(t, *result.ChangeDetected)
	assert.Equal(t, "Main Hall", gotLocation)
	assert.Equal(t, "North Wall", gotComponent)
	assert.Equal(t, []byte("base"), gotBaseline)
	assert.Equal(t, []byte("curr"), gotCurrent)
}

func TestCompareNonSuccessStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"images could not be decoded"}`, http.StatusUnprocessableEntity)
	})

	_, err := client.Compare(context.Background(), []byte("a"), []byte("b"), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
}

func TestCompareTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	})
	client.httpClient.Timeout = 50 * time.Millisecond

	_, err := client.Compare(context.Background(), []byte("a"), []byte("b"), "", "")
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	healthy := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, healthy.Health(context.Background()))

	unhealthy := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	require.Error(t, unhealthy.Health(context.Background()))
}
