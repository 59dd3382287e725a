package authfilter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	ngerr "github.com/StricklySoft/nexus-gateway-auth/pkg/errors"
)

// Header names used on incoming and forwarded requests.
const (
	HeaderAuthorization = "Authorization"

	// Identity headers set on the forwarded request after a successful
	// authentication. Incoming values are stripped first; clients must
	// not be able to smuggle identity claims past the filter.
	HeaderUserID    = "X-User-ID"
	HeaderClientID  = "X-Client-ID"
	HeaderUsername  = "X-Username"
	HeaderUserEmail = "X-User-Email"
	HeaderRoles     = "X-Roles"

	// HeaderRequestID carries the request correlation ID. An incoming
	// value is preserved; otherwise the middleware generates one.
	HeaderRequestID = "X-Request-ID"
)

// identityHeaders are the headers stripped from incoming requests and
// rewritten from the validated identity.
var identityHeaders = []string{
	HeaderUserID,
	HeaderClientID,
	HeaderUsername,
	HeaderUserEmail,
	HeaderRoles,
}

// errorBody is the JSON shape of a rejection response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Middleware returns an HTTP middleware that authenticates every
// request through the filter.
//
// On success the request is forwarded with the identity headers
// rewritten from the token claims, the identity stored in the request
// context, and an X-Request-ID assigned if the client did not send one.
//
// On rejection the middleware responds immediately with a JSON body
//
//	{"error": "<category>", "message": "<detail>"}
//
// using the status mapped from the rejection's error code: 401 for
// authentication failures, 503 when the key service is unavailable.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/api/data", handleData)
//	handler := authfilter.Middleware(filter)(mux)
func Middleware(filter *Filter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			ctx = ContextWithRequestID(ctx, requestID)

			identity, err := filter.Authenticate(ctx, r.Header.Get(HeaderAuthorization))
			if err != nil {
				writeError(ctx, w, err, requestID)
				return
			}

			ctx = ContextWithIdentity(ctx, identity)

			// Rewrite identity headers from the validated claims.
			for _, h := range identityHeaders {
				r.Header.Del(h)
			}
			setNonEmpty(r.Header, HeaderUserID, identity.Subject)
			setNonEmpty(r.Header, HeaderClientID, identity.ClientID)
			setNonEmpty(r.Header, HeaderUsername, identity.Username)
			setNonEmpty(r.Header, HeaderUserEmail, identity.Email)
			if len(identity.Roles) > 0 {
				if roles, err := json.Marshal(identity.Roles); err == nil {
					r.Header.Set(HeaderRoles, string(roles))
				}
			}
			r.Header.Set(HeaderRequestID, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// setNonEmpty sets the header only when the value is non-empty, so
// upstreams can distinguish "claim absent" from "claim empty".
func setNonEmpty(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

// writeError renders a rejection as a JSON response. The error code's
// Label becomes the "error" field; the message deliberately omits the
// cause chain so provider internals never reach clients.
func writeError(ctx context.Context, w http.ResponseWriter, err error, requestID string) {
	code := ngerr.GetCode(err)
	message := "authentication failed"
	status := http.StatusUnauthorized
	if ngErr, ok := ngerr.AsError(err); ok {
		message = ngErr.Message
		status = ngErr.HTTPStatus()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderRequestID, requestID)
	w.WriteHeader(status)

	if encodeErr := json.NewEncoder(w).Encode(errorBody{
		Error:   code.Label(),
		Message: message,
	}); encodeErr != nil {
		slog.WarnContext(ctx, "authfilter: failed to write error response",
			"error", encodeErr,
			"request_id", requestID,
		)
	}
}
