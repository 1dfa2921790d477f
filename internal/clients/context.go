package clients

import "context"

// contextKey avoids collisions with other packages' context keys.
type contextKey string

const userIDKey contextKey = "user-id"

// WithUserID attaches a user id to ctx. HTTPClient.Do extracts it back out
// and forwards it as X-User-ID on every outbound request, so tool and
// provider calls carry the caller's identity without threading it through
// every function signature.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID retrieves the user id set by WithUserID, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
