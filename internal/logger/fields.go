package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	FieldRequestID = "request_id"
	FieldPhotoID   = "photo_id"
	FieldComponent = "component"
	FieldUserID    = "user_id"
	FieldJob       = "job"
)

// Metric fields, attached per log line through the Entry API.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
)
