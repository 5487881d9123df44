package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flmngr/flmngr-server-go/internal/auth"
	"github.com/flmngr/flmngr-server-go/internal/filemanager"
	"github.com/flmngr/flmngr-server-go/internal/preview"
	"github.com/flmngr/flmngr-server-go/internal/storage/local"
)

type testServer struct {
	h        http.Handler
	filesDir string
}

func newTestServer(t *testing.T, a *auth.Auth, maxUpload int64) *testServer {
	t.Helper()
	filesDir := filepath.Join(t.TempDir(), "files")
	require.NoError(t, os.MkdirAll(filesDir, 0755))

	files, err := local.New(local.Config{RootPath: filesDir})
	require.NoError(t, err)
	cache, err := local.New(local.Config{RootPath: filepath.Join(filesDir, ".cache"), CreateDirs: true})
	require.NoError(t, err)

	fm := filemanager.New(files, preview.NewCache(files, cache, nil, nil, preview.Options{}), filemanager.Options{})
	t.Cleanup(fm.Close)
	return &testServer{h: NewServer(fm, a, maxUpload).Handler(), filesDir: filesDir}
}

func (ts *testServer) write(t *testing.T, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(ts.filesDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, data, 0644))
}

func (ts *testServer) post(t *testing.T, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/flmngr", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	return rec
}

type response struct {
	Error *Message        `json:"error"`
	Data  json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","root":"files"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestUnknownAction(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	resp := decode(t, ts.post(t, url.Values{"action": {"selfDestruct"}}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeActionNotFound, resp.Error.Code)
	assert.Equal(t, "null", string(resp.Data))
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/flmngr", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFileListPaged(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	for _, n := range []string{"a.png", "b.png", "c.png", "d.png", "e.png"} {
		ts.write(t, "/imgs/"+n, pngBytes(t, 4, 4))
	}

	resp := decode(t, ts.post(t, url.Values{
		"action":          {"fileListPaged"},
		"dir":             {"/files/imgs"},
		"maxFiles":        {"2"},
		"orderBy":         {"name"},
		"orderAsc":        {"true"},
		"alwaysInclude[]": {"d.png"},
	}))
	require.Nil(t, resp.Error)

	var page struct {
		Files []struct {
			Name   string `json:"name"`
			Width  *int   `json:"width"`
			Height *int   `json:"height"`
		} `json:"files"`
		CountTotal    int  `json:"countTotal"`
		CountFiltered int  `json:"countFiltered"`
		IsEnd         bool `json:"isEnd"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	require.Len(t, page.Files, 3)
	assert.Equal(t, "d.png", page.Files[0].Name)
	assert.Equal(t, "a.png", page.Files[1].Name)
	assert.Equal(t, "b.png", page.Files[2].Name)
	assert.Equal(t, 5, page.CountTotal)
	assert.False(t, page.IsEnd)
}

func TestFileListPaged_Errors(t *testing.T) {
	ts := newTestServer(t, nil, 0)

	tests := []struct {
		name string
		form url.Values
		code int
	}{
		{"page size", url.Values{"action": {"fileListPaged"}, "dir": {"/files"}}, codeMalformedRequest},
		{"wrong root", url.Values{"action": {"fileListPaged"}, "dir": {"/nope"}, "maxFiles": {"5"}}, codeIncorrectRoot},
		{"dotdot", url.Values{"action": {"fileListPaged"}, "dir": {"/files/.."}, "maxFiles": {"5"}}, codeInvalidSymbols},
		{"formats", url.Values{"action": {"fileListPaged"}, "dir": {"/files"}, "maxFiles": {"5"}, "formatIds[]": {"a", "b"}, "formatSuffixes[]": {"_a"}}, codeMalformedRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := decode(t, ts.post(t, tt.form))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestCodec(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	require.NoError(t, os.MkdirAll(filepath.Join(ts.filesDir, "sub"), 0755))

	enc := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }
	resp := decode(t, ts.post(t, url.Values{
		"codec":         {"1"},
		enc("action"):   {enc("dirList")},
		enc("maxDepth"): {enc("5")},
	}))
	require.Nil(t, resp.Error)

	var dirs []filemanager.Dir
	require.NoError(t, json.Unmarshal(resp.Data, &dirs))
	require.Len(t, dirs, 2)
	assert.Equal(t, "/files/sub", dirs[1].P)

	rec := ts.post(t, url.Values{"codec": {"7"}, "action": {"dirList"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, internalErrorText+"\n", rec.Body.String())
}

func TestDirActions(t *testing.T) {
	ts := newTestServer(t, nil, 0)

	resp := decode(t, ts.post(t, url.Values{"action": {"dirCreate"}, "d": {"/files"}, "n": {"docs"}}))
	require.Nil(t, resp.Error)
	assert.Equal(t, "true", string(resp.Data))
	assert.DirExists(t, filepath.Join(ts.filesDir, "docs"))

	resp = decode(t, ts.post(t, url.Values{"action": {"dirRename"}, "d": {"/files/docs"}, "n": {"papers"}}))
	require.Nil(t, resp.Error)
	assert.DirExists(t, filepath.Join(ts.filesDir, "papers"))

	resp = decode(t, ts.post(t, url.Values{"action": {"dirDelete"}, "d": {"/files/missing"}}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeFileDoesNotExist, resp.Error.Code)

	resp = decode(t, ts.post(t, url.Values{"action": {"dirDelete"}, "d": {"/files/papers"}}))
	require.Nil(t, resp.Error)
	assert.NoDirExists(t, filepath.Join(ts.filesDir, "papers"))

	resp = decode(t, ts.post(t, url.Values{"action": {"dirList"}, "fromDir": {"/ghost"}}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeRootDirDoesNotExist, resp.Error.Code)
}

func TestFileActions(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	ts.write(t, "/a.txt", []byte("a"))
	ts.write(t, "/b.txt", []byte("b"))
	require.NoError(t, os.MkdirAll(filepath.Join(ts.filesDir, "dst"), 0755))

	resp := decode(t, ts.post(t, url.Values{"action": {"fileCopy"}, "fs": {"/files/a.txt|/files/b.txt"}, "n": {"/files/dst"}}))
	require.Nil(t, resp.Error)
	assert.FileExists(t, filepath.Join(ts.filesDir, "dst", "b.txt"))

	resp = decode(t, ts.post(t, url.Values{"action": {"fileRename"}, "f": {"/files/a.txt"}, "n": {"b.txt"}}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeFileAlreadyExists, resp.Error.Code)

	resp = decode(t, ts.post(t, url.Values{"action": {"fileDelete"}, "fs": {""}}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMalformedRequest, resp.Error.Code)

	resp = decode(t, ts.post(t, url.Values{"action": {"fileDelete"}, "fs": {"/files/a.txt|/files/b.txt"}}))
	require.Nil(t, resp.Error)
	assert.NoFileExists(t, filepath.Join(ts.filesDir, "a.txt"))

	resp = decode(t, ts.post(t, url.Values{"action": {"fileListSpecified"}, "files[]": {"dst/a.txt", "gone.txt"}}))
	require.Nil(t, resp.Error)
	var specified []struct {
		Dir  string `json:"dir"`
		File struct {
			Name string `json:"name"`
		} `json:"file"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &specified))
	require.Len(t, specified, 1)
	assert.Equal(t, "/dst", specified[0].Dir)
	assert.Equal(t, "a.txt", specified[0].File.Name)
}

func TestPreviewActions(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	ts.write(t, "/pic.png", pngBytes(t, 300, 200))
	ts.write(t, "/notes.txt", []byte("hi"))

	rec := ts.post(t, url.Values{"action": {"filePreview"}, "f": {"/files/pic.png"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	_, format, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	rec = ts.post(t, url.Values{"action": {"fileOriginal"}, "f": {"/files/pic.png"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	resp := decode(t, ts.post(t, url.Values{"action": {"fileOriginal"}, "f": {"/files/notes.txt"}}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeFileIsNotImage, resp.Error.Code)

	resp = decode(t, ts.post(t, url.Values{"action": {"filePreviewAndResolution"}, "f": {"/files/pic.png"}}))
	require.Nil(t, resp.Error)
	var par struct {
		Width   int    `json:"width"`
		Height  int    `json:"height"`
		Preview string `json:"preview"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &par))
	assert.Equal(t, 300, par.Width)
	assert.Equal(t, 200, par.Height)
	assert.True(t, strings.HasPrefix(par.Preview, "data:image/jpeg;base64,"))

	resp = decode(t, ts.post(t, url.Values{"action": {"fileResize"}, "f": {"/pic.png"}, "n": {"pic_small"}, "mw": {"150"}, "mode": {"ALWAYS"}}))
	require.Nil(t, resp.Error)
	assert.Equal(t, `"/pic_small.png"`, string(resp.Data))

	resp = decode(t, ts.post(t, url.Values{"action": {"fileResize"}, "f": {"/pic.png"}, "n": {"pic_new"}, "mw": {"150"}, "mode": {"IF_EXISTS"}}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeNotNeededToUpdate, resp.Error.Code)
}

func multipartUpload(t *testing.T, fields map[string]string, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t, nil, 1<<20)

	send := func(fields map[string]string, name string, data []byte) *httptest.ResponseRecorder {
		body, ct := multipartUpload(t, fields, name, data)
		req := httptest.NewRequest(http.MethodPost, "/flmngr", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		ts.h.ServeHTTP(rec, req)
		return rec
	}

	for _, want := range []string{"up.png", "up_1.png"} {
		resp := decode(t, send(map[string]string{"action": "upload", "dir": "/inbox"}, "up.png", pngBytes(t, 10, 8)))
		require.Nil(t, resp.Error)
		var out struct {
			File struct {
				Name string `json:"name"`
				Size int64  `json:"size"`
			} `json:"file"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &out))
		assert.Equal(t, want, out.File.Name)
		assert.Positive(t, out.File.Size)
	}

	resp := decode(t, send(map[string]string{"action": "uploadFile"}, "", nil))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeFilesNotSet, resp.Error.Code)

	resp = decode(t, send(map[string]string{"action": "upload"}, "big.bin", bytes.Repeat([]byte("x"), 2<<20)))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeFileSizeExceeds, resp.Error.Code)
}

func TestGetVersion(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	resp := decode(t, ts.post(t, url.Values{"action": {"getVersion"}}))
	require.Nil(t, resp.Error)

	var v filemanager.Version
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	assert.Equal(t, "5", v.Version)
	assert.Equal(t, "go", v.Language)
	assert.Equal(t, ts.filesDir, v.DirFiles)
}

func TestAuth(t *testing.T) {
	a := auth.New("0123456789abcdef")
	ts := newTestServer(t, a, 0)

	rec := ts.post(t, url.Values{"action": {"getVersion"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rw, err := a.Issue("editor", time.Hour, false)
	require.NoError(t, err)
	ro, err := a.Issue("viewer", time.Hour, true)
	require.NoError(t, err)

	call := func(token string, form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/flmngr", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		ts.h.ServeHTTP(rec, req)
		return rec
	}

	resp := decode(t, call(rw, url.Values{"action": {"dirCreate"}, "d": {"/files"}, "n": {"x"}}))
	assert.Nil(t, resp.Error)

	rec = call(ro, url.Values{"action": {"dirCreate"}, "d": {"/files"}, "n": {"y"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NoDirExists(t, filepath.Join(ts.filesDir, "y"))

	resp = decode(t, call(ro, url.Values{"action": {"dirList"}}))
	assert.Nil(t, resp.Error)

	// Health stays public.
	rec = httptest.NewRecorder()
	ts.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
