package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vision-care-api/internal/models"
	appErrors "github.com/noah-isme/vision-care-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestJSONEnvelope(t *testing.T) {
	c, w := newContext()
	JSON(c, http.StatusOK, []string{"f1"}, &models.Pagination{Page: 1, PageSize: 50, TotalCount: 1}, map[string]interface{}{"source": "db"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var env struct {
		Data       []string          `json:"data"`
		Pagination models.Pagination `json:"pagination"`
		Meta       map[string]string `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, []string{"f1"}, env.Data)
	assert.Equal(t, 1, env.Pagination.TotalCount)
	assert.Equal(t, "db", env.Meta["source"])
}

func TestErrorMapsStatusAndAborts(t *testing.T) {
	c, w := newContext()
	Error(c, appErrors.Clone(appErrors.ErrFrameUnavailable, "frame f1 is ALLOCATED"))

	require.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, c.IsAborted())
	assert.Empty(t, w.Header().Get("Retry-After"))

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "FRAME_UNAVAILABLE", env.Error.Code)
	assert.Equal(t, "frame f1 is ALLOCATED", env.Error.Message)
}

func TestErrorRetryAfterOnConcurrentModification(t *testing.T) {
	c, w := newContext()
	Error(c, appErrors.ErrConcurrentModification)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestErrorUntypedBecomesInternal(t *testing.T) {
	c, w := newContext()
	Error(c, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
