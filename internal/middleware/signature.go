package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"go.uber.org/zap"
)

const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// VerifySignature authenticates webhook deliveries with an HMAC-SHA256 over
// the raw request body, compared in constant time. Failure means zero
// reconciliation work is scheduled downstream.
func VerifySignature(appSecret string, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			signature := r.Header.Get(SignatureHeader)
			if signature == "" {
				logger.Warn("Webhook signature header missing",
					zap.String("remote_addr", r.RemoteAddr))
				sendSignatureError(w, r)
				return
			}

			if appSecret == "" {
				logger.Error("Webhook app secret not configured")
				sendSignatureError(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read webhook body", zap.Error(err))
				sendSignatureError(w, r)
				return
			}
			// Restore the body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !validSignature(body, signature, appSecret) {
				logger.Warn("Webhook signature verification failed",
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("user_agent", r.UserAgent()))
				sendSignatureError(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func validSignature(body []byte, signature, appSecret string) bool {
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := signaturePrefix + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

func sendSignatureError(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusForbidden)
	render.JSON(w, r, map[string]interface{}{
		"error":   ErrorCodeInvalidSignature,
		"message": ErrorMessageInvalidSignature,
	})
}
