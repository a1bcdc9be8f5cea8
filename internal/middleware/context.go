package middleware

import "context"

type contextKey string

const UserIDKey contextKey = "user_id"

// GetUserID returns the caller identity set by AuthServiceValidate.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}
