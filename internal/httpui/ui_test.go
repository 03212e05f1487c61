package httpui

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

var bundle = fstest.MapFS{
	"index.html":          {Data: []byte("<html>storefront</html>")},
	"assets/index-ab1.js": {Data: []byte("console.log(1)")},
}

func get(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHandlerServesBundle(t *testing.T) {
	h, err := Handler(bundle)
	require.NoError(t, err)

	w := get(t, h, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "storefront")
	require.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	w = get(t, h, http.MethodGet, "/assets/index-ab1.js")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Cache-Control"), "immutable")
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestHandlerFallsBackToIndex(t *testing.T) {
	h, err := Handler(bundle)
	require.NoError(t, err)

	w := get(t, h, http.MethodGet, "/library/42")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "storefront")

	require.Equal(t, http.StatusNotFound, get(t, h, http.MethodGet, "/api/unknown").Code)
	require.Equal(t, http.StatusMethodNotAllowed, get(t, h, http.MethodPost, "/").Code)
}

func TestHandlerNeedsIndex(t *testing.T) {
	_, err := Handler(fstest.MapFS{"app.js": {Data: []byte("x")}})
	require.Error(t, err)
}
