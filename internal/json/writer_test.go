package json

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dgellow/cdsso/internal/jsonrpc"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		write      func(http.ResponseWriter)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "bad request",
			write:      func(w http.ResponseWriter) { WriteBadRequest(w, "missing auth") },
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"bad_request","message":"missing auth"}`,
		},
		{
			name:       "forbidden",
			write:      func(w http.ResponseWriter) { WriteForbidden(w, "") },
			wantStatus: http.StatusForbidden,
			wantBody:   `{"error":"forbidden"}`,
		},
		{
			name:       "internal error",
			write:      func(w http.ResponseWriter) { WriteInternalServerError(w, "registry down") },
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"internal_server_error","message":"registry down"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestWriteActionError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteActionError(w,
		jsonrpc.NewErrorWithData(jsonrpc.MethodNotFound, "Method not found", map[string]string{"action": "nope"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t,
		`{"success":false,"error":{"code":-32601,"message":"Method not found","data":{"action":"nope"}}}`,
		w.Body.String())
}
