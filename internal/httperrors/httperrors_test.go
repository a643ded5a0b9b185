package httperrors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordResponse(respond func(c *gin.Context)) (*httptest.ResponseRecorder, ErrorResponse) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respond(c)

	var body ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRespondUnauthorized(t *testing.T) {
	w, body := recordResponse(func(c *gin.Context) { RespondUnauthorized(c, "") })
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, MsgUnauthorized, body.Error)
	assert.Equal(t, CodeUnauthorized, body.Code)

	w, body = recordResponse(func(c *gin.Context) { RespondUnauthorized(c, "custom message") })
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "custom message", body.Error)
}

func TestRespondInvalidToken(t *testing.T) {
	w, body := recordResponse(RespondInvalidToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, MsgInvalidToken, body.Error)
	assert.Equal(t, CodeInvalidToken, body.Code)
}

func TestRespondInvalidCredentials(t *testing.T) {
	w, body := recordResponse(RespondInvalidCredentials)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, MsgInvalidCredentials, body.Error)
}

func TestRespondConfirmationRequired(t *testing.T) {
	// Distinct from invalid credentials: 403 with its own code
	w, body := recordResponse(RespondConfirmationRequired)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, MsgConfirmationRequired, body.Error)
	assert.Equal(t, CodeConfirmationRequired, body.Code)
}

func TestRespondForbidden(t *testing.T) {
	w, body := recordResponse(RespondForbidden)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, CodeForbidden, body.Code)
}

func TestRespondBadRequest(t *testing.T) {
	w, body := recordResponse(func(c *gin.Context) { RespondBadRequest(c, "limit must be an integer") })
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "limit must be an integer", body.Error)
}

func TestRespondConflict(t *testing.T) {
	w, body := recordResponse(func(c *gin.Context) { RespondConflict(c, "") })
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, MsgConflict, body.Error)
}

func TestRespondInternalError(t *testing.T) {
	w, body := recordResponse(RespondInternalError)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// Internal details never leak to the client
	assert.Equal(t, MsgInternalError, body.Error)
}

func TestRespondServiceUnavailable(t *testing.T) {
	w, _ := recordResponse(RespondServiceUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRespondNotFound(t *testing.T) {
	w, body := recordResponse(func(c *gin.Context) { RespondNotFound(c, "") })
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, MsgResourceNotFound, body.Error)
}
