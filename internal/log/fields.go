package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldOperation   = "operation"
	FieldTable       = "table"
	FieldUser        = "user"
	FieldMovementID  = "movement_id"
	FieldAmount      = "amount"
	FieldCategory    = "category"
	FieldKind        = "kind"
	FieldRows        = "rows"
	FieldMedium      = "medium"
	FieldVersion     = "version"
	FieldCacheHit    = "cache_hit"
	FieldOrigin      = "origin"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentLedger  = "ledger"
	ComponentHTTP    = "http"
	ComponentStorage = "storage"
	ComponentSheets  = "sheets"
	ComponentCache   = "cache"
	ComponentAMQP    = "amqp"
	ComponentBackend = "backend"
	ComponentCLI     = "cli"
)

// Operations defines standard operation names
const (
	OpRead       = "read"
	OpWrite      = "write"
	OpAppend     = "append"
	OpDelete     = "delete"
	OpList       = "list"
	OpSeed       = "seed"
	OpMigrate    = "migrate"
	OpInvalidate = "invalidate"
	OpPublish    = "publish"
	OpConsume    = "consume"
	OpStartup    = "startup"
	OpShutdown   = "shutdown"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeBackingStore  = "backing_store_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message and, when known, its category.
func (f LogFields) WithError(err error, errorType string) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		if errorType != "" {
			f[FieldErrorType] = errorType
		}
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithTable(table string) LogFields {
	f[FieldTable] = table
	return f
}

// WithMovement adds movement fields. Descriptions are never logged.
func (f LogFields) WithMovement(id, user, amount, category, kind string) LogFields {
	f[FieldMovementID] = id
	f[FieldUser] = user
	f[FieldAmount] = amount
	f[FieldCategory] = category
	f[FieldKind] = kind
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if query != "" {
		f[FieldQuery] = query
	}
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
