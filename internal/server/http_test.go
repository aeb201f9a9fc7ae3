package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetrace/constants"
	"casetrace/internal/async"
	"casetrace/internal/common"
	"casetrace/internal/entity"
	"casetrace/internal/fetch"
	"casetrace/internal/server"
	"casetrace/internal/task"
)

type stubProc struct {
	rec *entity.ExtractionRecord
	err error
}

func (s *stubProc) Process(_ context.Context, caseID string, _ fetch.Source) (*entity.ExtractionRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.rec != nil {
		return s.rec, nil
	}
	return &entity.ExtractionRecord{CaseID: caseID, Summary: "done", PersistedAt: time.Now().UTC()}, nil
}

type stubReader struct {
	rec *entity.ExtractionRecord
	err error
}

func (s *stubReader) GetByCaseID(context.Context, string) (*entity.ExtractionRecord, error) {
	return s.rec, s.err
}

type stubExporter struct {
	data []byte
	err  error
}

func (s *stubExporter) ExportCaseXLSX(context.Context, string) ([]byte, error) {
	return s.data, s.err
}

type stubHealth struct {
	err error
}

func (s *stubHealth) HealthCheck(context.Context, time.Duration) error { return s.err }

type harness struct {
	srv     *httptest.Server
	tracker *task.Tracker
	queue   *async.Queue
}

func newHarness(t *testing.T, proc *stubProc, reader *stubReader, exporter *stubExporter, health *stubHealth) *harness {
	t.Helper()
	tracker := task.NewTracker(time.Hour, nil)
	queue := async.NewQueue(proc, tracker, nil, async.WithWorkers(1))
	t.Cleanup(func() { queue.Shutdown(context.Background()) })

	s := server.NewServer(proc, reader, exporter, health, queue, tracker, server.ServerConfig{
		TmpDir:    t.TempDir(),
		MaxSizeMB: 1,
	}, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &harness{srv: ts, tracker: tracker, queue: queue}
}

func defaultHarness(t *testing.T) *harness {
	return newHarness(t, &stubProc{}, &stubReader{}, &stubExporter{}, &stubHealth{})
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestExtractSync(t *testing.T) {
	h := defaultHarness(t)
	resp := postJSON(t, h.srv.URL+"/extract", `{"case_id": "CASE-1", "url": "http://docs/case1.pdf"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec entity.ExtractionRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, "CASE-1", rec.CaseID)
	assert.Equal(t, "done", rec.Summary)
}

func TestExtractRejectsBadBody(t *testing.T) {
	h := defaultHarness(t)
	for _, body := range []string{"not json", `{"case_id": "CASE-1"}`} {
		resp := postJSON(t, h.srv.URL+"/extract", body)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "body %q", body)
	}
}

func TestErrorKindMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", common.NewValidationError("case_id contains disallowed character", nil), http.StatusUnprocessableEntity},
		{"acquisition", common.NewAcquisitionError("document download returned status 404", nil), http.StatusBadRequest},
		{"extraction", common.NewExtractionError("structured extraction failed", nil), http.StatusBadGateway},
		{"persistence", common.NewPersistenceError("case insert failed", nil), http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, &stubProc{err: tc.err}, &stubReader{}, &stubExporter{}, &stubHealth{})
			resp := postJSON(t, h.srv.URL+"/extract", `{"case_id": "CASE-1", "url": "http://docs/x.pdf"}`)
			defer resp.Body.Close()
			assert.Equal(t, tc.want, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestExtractAsyncAccepted(t *testing.T) {
	h := defaultHarness(t)
	resp := postJSON(t, h.srv.URL+"/extract/async", `{"case_id": "CASE-1", "url": "http://docs/case1.pdf"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted struct {
		TaskID string               `json:"task_id"`
		CaseID string               `json:"case_id"`
		Status constants.TaskStatus `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	assert.NotEmpty(t, accepted.TaskID)
	assert.Equal(t, "CASE-1", accepted.CaseID)
	assert.Equal(t, constants.TaskStatusPending, accepted.Status)

	require.Eventually(t, func() bool {
		info, ok := h.tracker.Get(accepted.TaskID)
		return ok && info.Status == constants.TaskStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
}

func TestExtractAsyncValidatesUpFront(t *testing.T) {
	h := defaultHarness(t)
	resp := postJSON(t, h.srv.URL+"/extract/async", `{"case_id": "bad id!", "url": "http://docs/x.pdf"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "no task is created for an invalid case id")
}

func TestGetCase(t *testing.T) {
	stored := &entity.ExtractionRecord{CaseID: "CASE-1", Summary: "stored", PersistedAt: time.Now().UTC()}
	h := newHarness(t, &stubProc{}, &stubReader{rec: stored}, &stubExporter{}, &stubHealth{})

	resp, err := http.Get(h.srv.URL + "/extract/CASE-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec entity.ExtractionRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, "stored", rec.Summary)
}

func TestGetCaseAbsent(t *testing.T) {
	h := defaultHarness(t)
	resp, err := http.Get(h.srv.URL + "/extract/never-seen")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetTask(t *testing.T) {
	h := defaultHarness(t)
	id := h.tracker.Create(constants.TaskKindExtractURL)

	resp, err := http.Get(h.srv.URL + "/tasks/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info task.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, id, info.TaskID)
	assert.Equal(t, constants.TaskStatusPending, info.Status)
}

func TestGetTaskUnknown(t *testing.T) {
	h := defaultHarness(t)
	resp, err := http.Get(h.srv.URL + "/tasks/no-such-task")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func multipartBody(t *testing.T, caseID, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if caseID != "" {
		require.NoError(t, w.WriteField("case_id", caseID))
	}
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadGeneratesCaseID(t *testing.T) {
	h := defaultHarness(t)
	body, contentType := multipartBody(t, "", "scan.pdf", []byte("%PDF-1.4\ncontent"))

	resp, err := http.Post(h.srv.URL+"/upload", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted struct {
		TaskID string `json:"task_id"`
		CaseID string `json:"case_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	assert.True(t, strings.HasPrefix(accepted.CaseID, "upload_"))

	require.Eventually(t, func() bool {
		info, ok := h.tracker.Get(accepted.TaskID)
		return ok && info.Status == constants.TaskStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	h := defaultHarness(t)
	body, contentType := multipartBody(t, "CASE-1", "notes.pdf", []byte("plain text, no magic"))

	resp, err := http.Post(h.srv.URL+"/upload", contentType, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUploadRequiresFile(t *testing.T) {
	h := defaultHarness(t)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("case_id", "CASE-1"))
	require.NoError(t, w.Close())

	resp, err := http.Post(h.srv.URL+"/upload", w.FormDataContentType(), &buf)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestExportCase(t *testing.T) {
	h := newHarness(t, &stubProc{}, &stubReader{}, &stubExporter{data: []byte("workbook-bytes")}, &stubHealth{})
	resp, err := http.Get(h.srv.URL + "/extract/CASE-1/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "case_CASE-1.xlsx")
}

func TestExportCaseAbsent(t *testing.T) {
	h := newHarness(t, &stubProc{}, &stubReader{}, &stubExporter{err: common.ErrNotFound}, &stubHealth{})
	resp, err := http.Get(h.srv.URL + "/extract/CASE-1/export")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	h := defaultHarness(t)
	resp, err := http.Get(h.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthzDegraded(t *testing.T) {
	h := newHarness(t, &stubProc{}, &stubReader{}, &stubExporter{}, &stubHealth{err: errors.New("dial refused")})
	resp, err := http.Get(h.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
