package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const apiKeyNameKey contextKey = "api_key_name"

// SetKeyName records the name of the API key that authenticated the request.
func SetKeyName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, apiKeyNameKey, name)
}

// KeyName returns the authenticated API key name, if any.
func KeyName(r *http.Request) (string, bool) {
	name, ok := r.Context().Value(apiKeyNameKey).(string)
	return name, ok && name != ""
}
