package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtoi(t *testing.T) {
	assert.Equal(t, 7, Atoi("", 7))
	assert.Equal(t, 3, Atoi(" 3 ", 7))
	assert.Equal(t, 7, Atoi("tres", 7))
}

func TestToBool(t *testing.T) {
	assert.True(t, ToBool("Sí", false))
	assert.True(t, ToBool("on", false))
	assert.False(t, ToBool("no", true))
	assert.True(t, ToBool("quizá", true))
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	var v struct {
		Query string `json:"query"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"a","extra":1}`))
	assert.Error(t, DecodeJSON(req, &v))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"a"}`))
	assert.NoError(t, DecodeJSON(req, &v))
	assert.Equal(t, "a", v.Query)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusTeapot, "nope")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.JSONEq(t, `{"error":"nope"}`, rec.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}
