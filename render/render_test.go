package render

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/digineo/purged/purge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	exactResult = purge.Result{
		Outcome: purge.Purged,
		Mode:    purge.Exact,
		Key:     "httpexample.com/<b>",
		Path:    "/var/cache/c/29/b7f54b2df7773722d382f4809d65029c",
	}
	bulkResult = purge.Result{
		Outcome: purge.Purged,
		Mode:    purge.Prefix,
		Key:     "a/*",
		Path:    "/var/cache",
		Removed: 2,
		Skipped: 1,
	}
)

func write(t *testing.T, method string, typ Type, res purge.Result) *http.Response {
	t.Helper()
	rec := httptest.NewRecorder()
	err := Write(rec, httptest.NewRequest(method, "/", nil), typ, res)
	require.NoError(t, err)
	return rec.Result()
}

func TestParseType(t *testing.T) {
	t.Parallel()

	for s, expected := range map[string]Type{"": HTML, "html": HTML, "json": JSON, "xml": XML, "text": Text} {
		typ, err := ParseType(s)
		require.NoError(t, err, s)
		assert.Equal(t, expected, typ)
		if s != "" {
			assert.Equal(t, s, typ.String())
		}
	}

	_, err := ParseType("yaml")
	assert.EqualError(t, err, `unknown response type "yaml", acceptable values are: [html, json, xml, text]`)
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusOK, StatusCode(purge.Purged))
	assert.Equal(t, http.StatusNotFound, StatusCode(purge.NotFound))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(purge.InternalError))
}

func TestWrite_html(t *testing.T) {
	t.Parallel()

	res := write(t, http.MethodGet, HTML, exactResult)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, mimeTypeHTML, res.Header.Get("Content-Type"))

	body := readAll(t, res)
	assert.Contains(t, body, "<title>Successful purge</title>")
	assert.Contains(t, body, "\n<br>Key : httpexample.com/&lt;b&gt;\n<br>Path: /var/cache/c/29/b7f54b2df7773722d382f4809d65029c\n</center>")
	assert.Equal(t, strconv.Itoa(len(body)), res.Header.Get("Content-Length"))
}

func TestWrite_head(t *testing.T) {
	t.Parallel()

	get := write(t, http.MethodGet, HTML, exactResult)
	head := write(t, http.MethodHead, HTML, exactResult)

	assert.Equal(t, http.StatusOK, head.StatusCode)
	assert.Equal(t, get.Header.Get("Content-Length"), head.Header.Get("Content-Length"))
	assert.Empty(t, readAll(t, head))
}

func TestWrite_json(t *testing.T) {
	t.Parallel()

	res := write(t, http.MethodPost, JSON, bulkResult)
	assert.Equal(t, mimeTypeJSON, res.Header.Get("Content-Type"))

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(readAll(t, res)), &data))
	assert.Equal(t, map[string]interface{}{
		"status":  "purged",
		"mode":    "prefix",
		"key":     "a/*",
		"path":    "/var/cache",
		"removed": 2.0,
		"skipped": 1.0,
		"failed":  0.0,
	}, data)
}

func TestWrite_xml(t *testing.T) {
	t.Parallel()

	res := write(t, http.MethodGet, XML, exactResult)
	assert.Equal(t, mimeTypeXML, res.Header.Get("Content-Type"))

	body := readAll(t, res)
	assert.Contains(t, body, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, body, `<purge status="purged" mode="exact"><key>httpexample.com/&lt;b&gt;</key>`)
}

func TestWrite_text(t *testing.T) {
	t.Parallel()

	res := write(t, http.MethodGet, Text, bulkResult)
	assert.Equal(t, mimeTypePlain, res.Header.Get("Content-Type"))
	assert.Equal(t, "Successful purge\nKey: a/*\nPath: /var/cache\nRemoved: 2\nSkipped: 1\nFailed: 0\n", readAll(t, res))
}

func TestWrite_failures(t *testing.T) {
	t.Parallel()

	res := write(t, http.MethodGet, Text, purge.Result{Outcome: purge.NotFound, Key: "k"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "404 Not Found\nKey: k\n", readAll(t, res))

	res = write(t, http.MethodGet, JSON, purge.Result{
		Outcome: purge.InternalError,
		Key:     "k",
		Err:     errors.New("secret details"),
	})
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	body := readAll(t, res)
	assert.NotContains(t, body, "secret")
	assert.JSONEq(t, `{"status":"internal_error","error":"internal server error"}`, body)
}

func readAll(t *testing.T, res *http.Response) string {
	t.Helper()
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(b)
}
