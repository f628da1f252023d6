package middleware_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duli-labs/wa-gateway/internal/middleware"
)

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	const secret = "app-secret"
	const body = `{"object":"whatsapp_business_account","entry":[]}`

	tests := []struct {
		name       string
		secret     string
		signature  string
		wantStatus int
		wantNext   bool
	}{
		{
			name:       "valid signature passes",
			secret:     secret,
			signature:  sign(secret, body),
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
		{
			name:       "missing header rejected",
			secret:     secret,
			signature:  "",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "wrong secret rejected",
			secret:     secret,
			signature:  sign("other-secret", body),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "tampered body rejected",
			secret:     secret,
			signature:  sign(secret, body+"x"),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "missing sha256 prefix rejected",
			secret:     secret,
			signature:  strings.TrimPrefix(sign(secret, body), "sha256="),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "unconfigured secret rejects everything",
			secret:     "",
			signature:  sign(secret, body),
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled := false
			var seenBody string

			handler := middleware.VerifySignature(tt.secret, zap.NewNop())(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					nextCalled = true
					// The middleware must restore the body it consumed.
					b, err := io.ReadAll(r.Body)
					require.NoError(t, err)
					seenBody = string(b)
				}))

			req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
			if tt.signature != "" {
				req.Header.Set(middleware.SignatureHeader, tt.signature)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantNext, nextCalled)
			if tt.wantNext {
				assert.Equal(t, body, seenBody)
			}
		})
	}
}
