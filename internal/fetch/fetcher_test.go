package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetrace/internal/common"
	"casetrace/internal/fetch"
)

func newFetcher(t *testing.T, maxMB int) *fetch.HTTPFetcher {
	t.Helper()
	return fetch.NewHTTPFetcher(fetch.Config{MaxSizeMB: maxMB, TmpDir: t.TempDir()}, nil)
}

func TestSourceValidate(t *testing.T) {
	assert.Error(t, fetch.Source{}.Validate(), "empty source")
	assert.Error(t, fetch.Source{URL: "http://x", LocalPath: "/y"}.Validate(), "both set")
	assert.NoError(t, fetch.Source{URL: "http://x"}.Validate())
	assert.NoError(t, fetch.Source{LocalPath: "/y"}.Validate())
}

func TestFetchDownload(t *testing.T) {
	content := "%PDF-1.4\nhello"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(content))
	}))
	defer ts.Close()

	f := newFetcher(t, 1)
	path, err := f.Fetch(context.Background(), fetch.Source{URL: ts.URL + "/doc.pdf"})
	require.NoError(t, err)
	defer os.Remove(path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestFetchDownloadNon2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	f := newFetcher(t, 1)
	_, err := f.Fetch(context.Background(), fetch.Source{URL: ts.URL + "/gone.pdf"})
	require.Error(t, err)
	assert.Equal(t, common.KindAcquisition, common.KindOf(err))
	assert.Contains(t, err.Error(), "404")
}

func TestFetchDownloadSizeCap(t *testing.T) {
	big := strings.Repeat("x", 2*1024*1024)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(big))
	}))
	defer ts.Close()

	tmp := t.TempDir()
	f := fetch.NewHTTPFetcher(fetch.Config{MaxSizeMB: 1, TmpDir: tmp}, nil)
	_, err := f.Fetch(context.Background(), fetch.Source{URL: ts.URL + "/big.pdf"})
	require.Error(t, err)
	assert.Equal(t, common.KindAcquisition, common.KindOf(err))

	// No partial file may survive the failed fetch.
	entries, readErr := os.ReadDir(tmp)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestFetchLocalCopies(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "upload.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4\nlocal"), 0o600))

	f := newFetcher(t, 1)
	path, err := f.Fetch(context.Background(), fetch.Source{LocalPath: src})
	require.NoError(t, err)
	defer os.Remove(path)

	assert.NotEqual(t, src, path, "local sources are copied into scratch space")
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4\nlocal", string(got))

	// Deleting the scratch copy must leave the original untouched.
	require.NoError(t, os.Remove(path))
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestFetchLocalMissing(t *testing.T) {
	f := newFetcher(t, 1)
	_, err := f.Fetch(context.Background(), fetch.Source{LocalPath: filepath.Join(t.TempDir(), "absent.pdf")})
	require.Error(t, err)
	assert.Equal(t, common.KindAcquisition, common.KindOf(err))
}
