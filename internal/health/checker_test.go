package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ollamaServer(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			var body struct {
				Models []map[string]string `json:"models"`
			}
			for _, m := range models {
				body.Models = append(body.Models, map[string]string{"name": m})
			}
			_ = json.NewEncoder(w).Encode(body)
		case "/api/generate":
			var req map[string]any
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if req["prompt"] != "Hello" || req["stream"] != false {
				http.Error(w, "unexpected body", http.StatusBadRequest)
				return
			}
			if req["model"] != models[0] {
				http.Error(w, "model not found", http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"response":"Hi"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestChecker_Check(t *testing.T) {
	up := ollamaServer(t, "gemma3:27b", "gemma3:12b")

	tests := []struct {
		name       string
		manager    string
		specialist string
		want       string
	}{
		{"both up", up.URL, up.URL, StatusOK},
		{"one down", up.URL, deadURL(t), StatusDegraded},
		{"both down", deadURL(t), deadURL(t), StatusUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(Config{
				ManagerBaseURL:    tt.manager,
				SpecialistBaseURL: tt.specialist,
				ProbeTimeout:      time.Second,
			})
			r := c.Check(context.Background())
			assert.Equal(t, tt.want, r.Status)
			assert.False(t, r.MockMode)
			assert.NotNil(t, r.Orchestrator.Models)
		})
	}

	t.Run("models listed", func(t *testing.T) {
		c := NewChecker(Config{ManagerBaseURL: up.URL + "/", SpecialistBaseURL: up.URL})
		r := c.Check(context.Background())
		assert.True(t, r.Orchestrator.Ollama)
		assert.Equal(t, []string{"gemma3:27b", "gemma3:12b"}, r.Orchestrator.Models)
	})
}

func TestChecker_CheckMock(t *testing.T) {
	c := NewChecker(Config{MockMode: true, ManagerModel: "ollama/gemma3:27b", SpecialistModel: "ollama/gemma3:12b"})
	r := c.Check(context.Background())

	assert.Equal(t, StatusOK, r.Status)
	assert.True(t, r.MockMode)
	assert.Equal(t, Side{Ollama: true, Model: "ollama/gemma3:27b"}, r.Orchestrator)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"status": "ok",
		"mock_mode": true,
		"orchestrator": {"ollama": true, "model": "ollama/gemma3:27b"},
		"specialist": {"ollama": true, "model": "ollama/gemma3:12b"}
	}`, string(data))
}

func TestChecker_Warmup(t *testing.T) {
	srv := ollamaServer(t, "gemma3:27b")

	c := NewChecker(Config{
		ManagerModel:      "ollama/gemma3:27b",
		ManagerBaseURL:    srv.URL,
		SpecialistModel:   "ollama/missing:1b",
		SpecialistBaseURL: srv.URL,
	})
	r := c.Warmup(context.Background())

	assert.GreaterOrEqual(t, r.OrchestratorMS, int64(0))
	assert.Equal(t, int64(-1), r.SpecialistMS)
	assert.False(t, r.MockMode)
}

func TestChecker_WarmupMock(t *testing.T) {
	r := NewChecker(Config{MockMode: true}).Warmup(context.Background())
	assert.Equal(t, WarmupResult{MockMode: true}, r)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"orchestrator_ms":0,"specialist_ms":0,"mock_mode":true}`, string(data))
}
