package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"
	"go.uber.org/goleak"

	"inshokuten-api/internal/config"
	"inshokuten-api/internal/events"
	"inshokuten-api/internal/images"
	"inshokuten-api/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testServer struct {
	*Server
	imageDir string
	events   *recordingPublisher
}

func testConfig(imageDir string) *config.Config {
	return &config.Config{
		ListenAddr:         ":0",
		DBDSN:              ":memory:",
		TableName:          testutil.TestTable,
		ImageBackend:       "disk",
		ImageDir:           imageDir,
		UploadMaxBytes:     1 << 20,
		EventSubjectPrefix: "inventory.items",
		LogLevel:           "info",
		LogFormat:          "json",
		ShutdownTimeout:    time.Second,
	}
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()

	dir := t.TempDir()
	cfg := testConfig(dir)
	for _, fn := range mutate {
		fn(cfg)
	}

	imgs, err := images.NewDisk(dir)
	require.NoError(t, err)
	pub := &recordingPublisher{}

	s, err := NewServer(cfg, testutil.NewTestDB(t), imgs, pub, zerolog.Nop())
	require.NoError(t, err)

	return &testServer{Server: s, imageDir: dir, events: pub}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) upload(t *testing.T, id string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if id != "" {
		require.NoError(t, writer.WriteField("id", id))
	}
	if content != nil {
		fw, err := writer.CreateFormFile("image", "photo.jpg")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func TestItemsEndToEnd(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "GET", "/api/TestTable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = ts.do(t, "POST", "/api/TestTable", map[string]any{"id": 1, "name": "Coffee", "price": 300})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":1,"name":"Coffee","price":300}`, w.Body.String())

	w = ts.do(t, "GET", "/api/TestTable", nil)
	assert.JSONEq(t, `[{"ID":1,"Name":"Coffee","Price":300}]`, w.Body.String())

	w = ts.do(t, "PUT", "/api/TestTable/1", map[string]any{"name": "Tea", "price": 250})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":true}`, w.Body.String())

	w = ts.do(t, "GET", "/api/TestTable", nil)
	assert.JSONEq(t, `[{"ID":1,"Name":"Tea","Price":250}]`, w.Body.String())

	w = ts.do(t, "DELETE", "/api/TestTable/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":true}`, w.Body.String())

	w = ts.do(t, "GET", "/api/TestTable", nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = ts.do(t, "DELETE", "/api/TestTable/1", nil)
	assert.JSONEq(t, `{"deleted":false}`, w.Body.String())

	assert.Equal(t, []string{events.ItemCreated, events.ItemUpdated, events.ItemDeleted}, ts.events.types())
}

func TestUpdateMissingItem(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, "POST", "/api/TestTable", map[string]any{"id": 1, "name": "Coffee", "price": 300})

	w := ts.do(t, "PUT", "/api/TestTable/99", map[string]any{"name": "Ghost", "price": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":false}`, w.Body.String())

	w = ts.do(t, "GET", "/api/TestTable", nil)
	assert.JSONEq(t, `[{"ID":1,"Name":"Coffee","Price":300}]`, w.Body.String())
}

func TestCreateWithNullsAndNoID(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "POST", "/api/TestTable", map[string]any{"name": nil, "price": nil})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":1,"name":null,"price":null}`, w.Body.String())

	w = ts.do(t, "GET", "/api/TestTable", nil)
	assert.JSONEq(t, `[{"ID":1,"Name":null,"Price":null}]`, w.Body.String())
}

func TestCreateDuplicateIDIsStoreError(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, "POST", "/api/TestTable", map[string]any{"id": 1, "name": "Coffee", "price": 300})
	w := ts.do(t, "POST", "/api/TestTable", map[string]any{"id": 1, "name": "Tea", "price": 250})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "create error: ")
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"create with invalid JSON", "POST", "/api/TestTable", "{"},
		{"update with non-integer id", "PUT", "/api/TestTable/abc", `{"name":"x","price":1}`},
		{"update with invalid JSON", "PUT", "/api/TestTable/1", "nope"},
		{"delete with non-integer id", "DELETE", "/api/TestTable/abc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			ts.Router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestStoreFailureIs500(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.DB.Close())

	w := ts.do(t, "GET", "/api/TestTable", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "list error: ")

	w = ts.do(t, "GET", "/dbping", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUploadImage(t *testing.T) {
	ts := newTestServer(t)

	w := ts.upload(t, "7", []byte("first"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"image uploaded","filename":"7.jpg"}`, w.Body.String())

	w = ts.do(t, "GET", "/images/7.jpg?1700000000000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "first", w.Body.String())

	w = ts.upload(t, "7", []byte("second"))
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, "GET", "/images/7.jpg", nil)
	assert.Equal(t, "second", w.Body.String())

	assert.Equal(t, []string{events.ItemImageUploaded, events.ItemImageUploaded}, ts.events.types())
}

func TestUploadWithoutFile(t *testing.T) {
	ts := newTestServer(t)

	w := ts.upload(t, "7", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"no file uploaded"}`, w.Body.String())

	entries, err := os.ReadDir(ts.imageDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, ts.events.types())
}

func TestUploadEmptyToBucket(t *testing.T) {
	bucket := images.NewBucket(images.BucketConfig{
		Endpoint:  "http://127.0.0.1:1",
		Bucket:    "images",
		Region:    "us-east-1",
		AccessKey: "test",
		SecretKey: "test",
	})
	pub := &recordingPublisher{}
	s, err := NewServer(testConfig(t.TempDir()), testutil.NewTestDB(t), bucket, pub, zerolog.Nop())
	require.NoError(t, err)
	ts := &testServer{Server: s, events: pub}

	w := ts.upload(t, "7", []byte{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"empty file"}`, w.Body.String())
	assert.Empty(t, pub.types())
}

func TestUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.UploadMaxBytes = 1024 })

	w := ts.upload(t, "7", bytes.Repeat([]byte("x"), 8192))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	entries, err := os.ReadDir(ts.imageDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadRejectsUnsafeID(t *testing.T) {
	ts := newTestServer(t)

	for _, id := range []string{"", "../7", "a/b"} {
		w := ts.upload(t, id, []byte("x"))
		assert.Equal(t, http.StatusBadRequest, w.Code, "id %q", id)
	}

	_, err := os.Stat(filepath.Join(filepath.Dir(ts.imageDir), "7.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestMissingImageIs404(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "GET", "/images/404.jpg", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	ts := newTestServer(t)
	ts.events.err = errors.New("broker down")

	w := ts.do(t, "POST", "/api/TestTable", map[string]any{"id": 1, "name": "Coffee", "price": 300})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSIsOpen(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/TestTable", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/api/TestTable", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w = httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestClientUI(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.APIBaseURL = "http://api.example.com" })

	w := ts.do(t, "GET", "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `data-api-base="http://api.example.com"`)
	assert.Contains(t, w.Body.String(), `data-table="TestTable"`)

	w = ts.do(t, "GET", "/static/app.js", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "placeholder.jpg")
	// A failed create rejects the add chain instead of refetching.
	assert.NotContains(t, w.Body.String(), ".catch(")
}

func TestHealthAndOptionalRoutes(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		ts := newTestServer(t)

		w := ts.do(t, "GET", "/health", nil)
		assert.Equal(t, "ok", w.Body.String())

		w = ts.do(t, "GET", "/dbping", nil)
		assert.Equal(t, "db: ok", w.Body.String())

		assert.Equal(t, http.StatusNotFound, ts.do(t, "GET", "/metrics", nil).Code)
		assert.Equal(t, http.StatusNotFound, ts.do(t, "GET", "/openapi.yaml", nil).Code)
	})

	t.Run("metrics and docs enabled", func(t *testing.T) {
		ts := newTestServer(t, func(c *config.Config) {
			c.EnableMetrics = true
			c.EnableSwagger = true
		})

		ts.do(t, "GET", "/api/TestTable", nil)

		w := ts.do(t, "GET", "/metrics", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `path="/api/TestTable"`)
		assert.Contains(t, w.Body.String(), `store_operations_total{op="list",result="ok"} 1`)

		w = ts.do(t, "GET", "/openapi.yaml", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "/api/upload")

		assert.Equal(t, http.StatusOK, ts.do(t, "GET", "/docs", nil).Code)
	})
}

func TestCloseReleasesResources(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.Close(context.Background()))
	assert.Error(t, ts.DB.Ping())
}

func TestExcelImportAnnouncesWrites(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.EnableMetrics = true })

	ts.do(t, "POST", "/api/TestTable", map[string]any{"id": 1, "name": "Coffee", "price": 300})

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Items")
	require.NoError(t, err)
	for _, row := range [][]string{{"ID", "Name", "Price"}, {"1", "Latte", "450"}, {"2", "Tea", "250"}} {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().SetString(v)
		}
	}
	var book bytes.Buffer
	require.NoError(t, f.Write(&book))

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", "items.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(book.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/TestTable/import", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, []string{events.ItemCreated, events.ItemUpdated, events.ItemCreated}, ts.events.types())

	metrics := ts.do(t, "GET", "/metrics", nil).Body.String()
	assert.Contains(t, metrics, `store_operations_total{op="create",result="ok"} 2`)
	assert.Contains(t, metrics, `store_operations_total{op="update",result="ok"} 2`)
}
