package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/lorawiz/app/dataset"
	"github.com/umputun/lorawiz/app/preset"
	"github.com/umputun/lorawiz/app/service"
	"github.com/umputun/lorawiz/app/service/request"
	"github.com/umputun/lorawiz/app/web/enums"
	"github.com/umputun/lorawiz/app/web/mocks"
)

func TestServer_handleAPIPresets(t *testing.T) {
	srv := newTestServer(t, &mocks.RunnerMock{})
	w := httptest.NewRecorder()
	srv.handleAPIPresets(w, httptest.NewRequest(http.MethodGet, "/api/v1/presets", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var resp APIPresetsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SD1.5", resp.Default)
	require.Len(t, resp.Presets, 3)
	assert.Equal(t, []string{"SD1.5", "SDXL", "PonyXL"}, []string{resp.Presets[0].Name, resp.Presets[1].Name, resp.Presets[2].Name})
	assert.Equal(t, preset.Entry{Name: "SDXL", BaseModel: "stabilityai/stable-diffusion-xl-base-1.0", LearningRate: "3e-5",
		BatchSize: "1", Rank: "64"}, resp.Presets[1])
}

func TestServer_handleAPIPreset(t *testing.T) {
	srv := newTestServer(t, &mocks.RunnerMock{})

	get := func(name string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/presets/"+name, http.NoBody)
		req.SetPathValue("name", name)
		w := httptest.NewRecorder()
		srv.handleAPIPreset(w, req)
		return w
	}

	w := get("PonyXL")
	require.Equal(t, http.StatusOK, w.Code)
	var entry preset.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, "civitai/pony-diffusion-v6-xl", entry.BaseModel)
	assert.Equal(t, "1.0", entry.LearningRate)

	w = get("Unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"preset not found"}`, w.Body.String())
}

func TestServer_handleAPIVram(t *testing.T) {
	srv := newTestServer(t, &mocks.RunnerMock{})

	w := httptest.NewRecorder()
	srv.handleAPIVram(w, httptest.NewRequest(http.MethodGet, "/api/v1/vram?batch_size=1&rank=64", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"batch_size":"1","rank":"64","estimate":"Estimated VRAM: 3.7 GB"}`, w.Body.String())

	w = httptest.NewRecorder()
	srv.handleAPIVram(w, httptest.NewRequest(http.MethodGet, "/api/v1/vram?batch_size=x", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"batch_size":"x","rank":"","estimate":"Estimated VRAM: N/A"}`, w.Body.String())
}

func TestServer_handleAPIRuns(t *testing.T) {
	srv := newTestServer(t, &mocks.RunnerMock{})
	recordFinished(t, srv, "r1", time.Now().Add(-time.Minute))
	recordFinished(t, srv, "r2", time.Now())

	w := httptest.NewRecorder()
	srv.handleAPIRuns(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	var resp APIRunsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 2)
	assert.Equal(t, "r2", resp.Runs[0].ID)
	assert.Equal(t, "r1", resp.Runs[1].ID)
	assert.Equal(t, enums.RunStatusSuccess, resp.Runs[0].Status)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestServer_handleAPIRun(t *testing.T) {
	runner := &mocks.RunnerMock{
		StreamFunc: func(context.Context, request.Training) <-chan service.Update {
			return streamOf(
				service.Update{Progress: &service.Progress{Epoch: 1, TotalEpochs: 1, Step: 1, TotalSteps: 1}},
				service.Update{Result: &service.Result{DatasetPath: "datasets/cats", Summary: "all good"}},
			)
		},
	}
	srv := newTestServer(t, runner)
	srv.startRun("live", "cats.zip", request.Training{DestDir: "datasets"})
	run, _ := srv.getRun("live")
	waitDone(t, run)
	recordFinished(t, srv, "stored", time.Now())

	get := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id, http.NoBody)
		req.SetPathValue("id", id)
		w := httptest.NewRecorder()
		srv.handleAPIRun(w, req)
		return w
	}

	w := get("live")
	require.Equal(t, http.StatusOK, w.Code)
	var resp APIRunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "live", resp.ID)
	assert.Equal(t, enums.RunStatusSuccess, resp.Status)
	assert.Equal(t, "all good", resp.Summary)
	assert.Equal(t, []RunEvent{{Type: enums.EventTypeProgress, Data: "Epoch 1/1 Step 1/1"},
		{Type: enums.EventTypeDone, Data: "all good"}}, resp.Events)

	w = get("stored")
	require.Equal(t, http.StatusOK, w.Code)
	resp = APIRunResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "stored.zip", resp.Archive)
	assert.Empty(t, resp.Events)

	assert.Equal(t, http.StatusNotFound, get("missing").Code)
}

func TestServer_handleAPIStartRun(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := newTestServer(t, realRunner())
		destDir := filepath.Join(t.TempDir(), "out")
		req := multipartRequest(t, "/api/v1/runs", "catset.zip", map[string]string{"a.png": "img"},
			map[string]string{"dest_dir": destDir, "model": "m", "learning_rate": "1e-4", "batch_size": "2", "rank": "8"})
		w := httptest.NewRecorder()
		srv.handleAPIStartRun(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp APIRunResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, enums.RunStatusSuccess, resp.Status)
		assert.Equal(t, filepath.Join(destDir, "catset"), resp.DatasetPath)
		assert.Equal(t, fmt.Sprintf("Training with dataset: %s, model: m, lr: 1e-4, batch: 2, rank: 8.",
			filepath.Join(destDir, "catset")), resp.Summary)
		require.Len(t, resp.Events, 16)
		assert.Equal(t, enums.EventTypeDone, resp.Events[15].Type)

		stored := storedRun(t, srv, resp.ID)
		assert.Equal(t, enums.RunStatusSuccess, stored.Status)
		assert.Equal(t, "catset.zip", stored.Archive)
	})

	tests := []struct {
		name   string
		err    error
		code   int
		status enums.RunStatus
	}{
		{"bad archive", fmt.Errorf("%w: zip: not a valid zip file", dataset.ErrArchiveFormat), http.StatusUnprocessableEntity,
			enums.RunStatusFailed},
		{"conflict", fmt.Errorf("%w: datasets/cats has unexpected entries", dataset.ErrConflict), http.StatusConflict,
			enums.RunStatusFailed},
		{"duplicate", fmt.Errorf("%w: datasets/cats", service.ErrDuplicateRun), http.StatusConflict, enums.RunStatusFailed},
		{"canceled", fmt.Errorf("%w at Epoch 1/3 Step 2/5: %w", service.ErrCanceled, context.Canceled),
			http.StatusServiceUnavailable, enums.RunStatusCanceled},
		{"filesystem", fmt.Errorf("%w: not enough space", dataset.ErrFilesystem), http.StatusInternalServerError,
			enums.RunStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mocks.RunnerMock{
				RunFunc: func(context.Context, request.Training, func(service.Progress)) (service.Result, error) {
					return service.Result{}, tt.err
				},
			}
			srv := newTestServer(t, runner)
			req := multipartRequest(t, "/api/v1/runs", "cats.zip", map[string]string{"a.png": "img"}, nil)
			w := httptest.NewRecorder()
			srv.handleAPIStartRun(w, req)

			assert.Equal(t, tt.code, w.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.err.Error(), resp["error"])

			require.Len(t, runner.RunCalls(), 1)
			runs, err := srv.store.ListRuns(0)
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, tt.status, runs[0].Status)
			assert.Equal(t, tt.err.Error(), runs[0].Error)
		})
	}

	t.Run("bad form", func(t *testing.T) {
		runner := &mocks.RunnerMock{}
		srv := newTestServer(t, runner)
		req := multipartRequest(t, "/api/v1/runs", "", nil, nil)
		w := httptest.NewRecorder()
		srv.handleAPIStartRun(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "dataset archive is required")
		assert.Empty(t, runner.RunCalls())
	})
}
