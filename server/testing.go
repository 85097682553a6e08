/*
	This file contains functions useful for testing the server in other packages.
	They cannot live in *_test.go files since those are unavailable to test files
	in external packages, so they are exported and contain the "Test" keyword.
*/

package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/janelia-flyem/pixstore/metadata"
)

// OpenTest returns a server over a temporary storage root serving the given
// pixels sets.  The config may be nil.
func OpenTest(t *testing.T, c *Config, entries ...metadata.Entry) *Server {
	t.Helper()
	if c == nil {
		c = NewConfig()
	}
	dir := t.TempDir()
	if c.Storage.Root == "" {
		c.Storage.Root = filepath.Join(dir, "OMERO")
	}
	if c.Pyramid.TileWidth == 0 {
		c.Pyramid.TileWidth, c.Pyramid.TileHeight = 16, 16
	}
	if c.Pyramid.CacheMB == 0 {
		c.Pyramid.CacheMB = 4
	}
	if c.Server.Manifest == "" && len(entries) != 0 {
		data, err := json.Marshal(map[string]interface{}{"pixels": entries})
		if err != nil {
			t.Fatalf("Unable to write test manifest: %v\n", err)
		}
		c.Server.Manifest = filepath.Join(dir, "manifest.json")
		if err := os.WriteFile(c.Server.Manifest, data, 0644); err != nil {
			t.Fatalf("Unable to write test manifest: %v\n", err)
		}
	}
	s, err := New(c)
	if err != nil {
		t.Fatalf("Unable to open test server: %v\n", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestHTTPResponse returns a response from a test run of the server.
// Use TestHTTP if you just want the response body bytes.
func TestHTTPResponse(t *testing.T, s *Server, method, urlStr string, payload io.Reader) *httptest.ResponseRecorder {
	req, err := http.NewRequest(method, urlStr, payload)
	if err != nil {
		t.Fatalf("Unsuccessful %s on %q: %v\n", method, urlStr, err)
	}
	resp := httptest.NewRecorder()
	s.Handler().ServeHTTP(resp, req)
	return resp
}

// TestHTTP returns the response body bytes for a test request, making sure any response has
// status OK.
func TestHTTP(t *testing.T, s *Server, method, urlStr string, payload io.Reader) []byte {
	resp := TestHTTPResponse(t, s, method, urlStr, payload)
	if resp.Code != http.StatusOK {
		t.Fatalf("Bad server response (%d) to %s on %q: %s\n", resp.Code, method, urlStr, resp.Body.String())
	}
	return resp.Body.Bytes()
}

// TestBadHTTP expects a HTTP response with the given error status code.
func TestBadHTTP(t *testing.T, s *Server, method, urlStr string, payload io.Reader, status int) {
	resp := TestHTTPResponse(t, s, method, urlStr, payload)
	if resp.Code != status {
		t.Fatalf("Expected status %d to %s on %q, got %d instead: %s\n", status, method, urlStr, resp.Code, resp.Body.String())
	}
}
