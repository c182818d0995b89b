package serializer

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Header().Set("Content-Type", "text/html; charset=utf-8")
	rr.Header().Set("Etag", `"abc123"`)
	rr.WriteHeader(http.StatusOK)
	rr.WriteString("<html>study page</html>")
	res := rr.Result()

	bts, err := ResponseToBytes(res)
	require.NoError(t, err)

	// serializing must leave the original body readable
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "<html>study page</html>", string(body))

	parsed, err := BytesToResponse(bts, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, parsed.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", parsed.Header.Get("Content-Type"))
	assert.Equal(t, `"abc123"`, parsed.Header.Get("Etag"))
	parsedBody, err := io.ReadAll(parsed.Body)
	require.NoError(t, err)
	assert.Equal(t, "<html>study page</html>", string(parsedBody))
}

func TestNonOKStatusSurvives(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.WriteHeader(http.StatusNotFound)
	rr.WriteString("not here")
	res := rr.Result()

	bts, err := ResponseToBytes(res)
	require.NoError(t, err)

	parsed, err := BytesToResponse(bts, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, parsed.StatusCode)
}

func TestBytesToResponseRejectsGarbage(t *testing.T) {
	_, err := BytesToResponse([]byte("definitely not http"), nil)
	assert.Error(t, err)
}
