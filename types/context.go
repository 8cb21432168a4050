package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID   contextKey = "trace_id"
	keyUserID    contextKey = "user_id"
	keyRoles     contextKey = "roles"
	keyRoomID    contextKey = "room_id"
	keyPersonaID contextKey = "persona_id"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithUserID adds user ID to context. Moderation uses it as reviewer identity.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

// UserID extracts user ID from context.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)
	return v, ok && v != ""
}

// WithRoles adds the caller's roles to context.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, keyRoles, roles)
}

// Roles extracts roles from context.
func Roles(ctx context.Context) ([]string, bool) {
	v, ok := ctx.Value(keyRoles).([]string)
	return v, ok && len(v) > 0
}

// WithRoomID tags the context with the room being processed.
func WithRoomID(ctx context.Context, roomID uint) context.Context {
	return context.WithValue(ctx, keyRoomID, roomID)
}

// RoomID extracts the room ID from context.
func RoomID(ctx context.Context) (uint, bool) {
	v, ok := ctx.Value(keyRoomID).(uint)
	return v, ok && v != 0
}

// WithPersonaID tags the context with the persona a model call is made for.
func WithPersonaID(ctx context.Context, personaID uint) context.Context {
	return context.WithValue(ctx, keyPersonaID, personaID)
}

// PersonaID extracts the persona ID from context.
func PersonaID(ctx context.Context) (uint, bool) {
	v, ok := ctx.Value(keyPersonaID).(uint)
	return v, ok && v != 0
}
