package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/types"
)

func newTestEngine(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware, ErrorHandler())
	r.GET("/test", handler)
	return r
}

func TestErrorHandlerWritesErrorResponse(t *testing.T) {
	r := newTestEngine(func(c *gin.Context) {
		c.Error(ierr.NewError("bill bill_1 moved on").
			WithHint("Reload the bill and try again").
			WithReportableDetails(map[string]any{"bill_id": "bill_1"}).
			Mark(ierr.ErrStaleBillState))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusConflict, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, ierr.ErrCodeStaleBillState, resp.Error.Code)
	assert.Equal(t, "Reload the bill and try again", resp.Error.Display)
	assert.Equal(t, "bill_1", resp.Error.Details["bill_id"])
}

func TestErrorHandlerUnmarkedError(t *testing.T) {
	r := newTestEngine(func(c *gin.Context) {
		c.Error(assert.AnError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ierr.ErrCodeSystemError, resp.Error.Code)
	assert.Equal(t, "An unexpected error occurred", resp.Error.Display)
	assert.Nil(t, resp.Error.Details)
}

func TestErrorHandlerLeavesWrittenResponses(t *testing.T) {
	r := newTestEngine(func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"ok": true})
		c.Error(assert.AnError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen, user string
	r := newTestEngine(func(c *gin.Context) {
		seen = types.GetRequestID(c.Request.Context())
		user = types.GetUserID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(types.HeaderRequestID))
	assert.Equal(t, types.DefaultUserID, user)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(types.HeaderRequestID, "desk-42")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "desk-42", seen)
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware)
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/test", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
