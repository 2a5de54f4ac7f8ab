package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/searchview-backend/internal/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(handler gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	handler(c)

	var resp Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestSuccess(t *testing.T) {
	w, resp := run(func(c *gin.Context) { Success(c, nil) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, apperrors.Success, resp.Code)
	assert.Equal(t, map[string]interface{}{}, resp.Data)

	w, _ = run(func(c *gin.Context) { Accepted(c, gin.H{"job": "j1"}) })
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestHandleError(t *testing.T) {
	w, resp := run(func(c *gin.Context) {
		HandleError(c, apperrors.New(apperrors.ErrStaleGeneration, "generation 1 (current 2)"))
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.ErrStaleGeneration, resp.Code)
	assert.Equal(t, "Search generation has been superseded: generation 1 (current 2)", resp.Message)

	w, resp = run(func(c *gin.Context) { HandleError(c, errors.New("boom")) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.ErrInternalServer, resp.Code)
}

func TestNotFound(t *testing.T) {
	w, resp := run(func(c *gin.Context) { NotFound(c, "query q1") })
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Resource not found: query q1", resp.Message)
}
