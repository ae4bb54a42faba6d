package log

// Field names shared by every component.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldStatCode   = "stat_code"
	FieldItemCode   = "item_code"
	FieldCycle      = "cycle"
	FieldMarket     = "market"
	FieldStockCode  = "stock_code"
	FieldFrom       = "from"
	FieldTo         = "to"
	FieldRows       = "rows"
	FieldEventID    = "event_id"
)

// Component names.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentStorage   = "storage"
	ComponentECOS      = "ecos"
	ComponentKIS       = "kis"
	ComponentSync      = "sync"
	ComponentAlert     = "alert"
	ComponentNotify    = "notify"
	ComponentAMQP      = "amqp"
	ComponentScheduler = "scheduler"
	ComponentCache     = "cache"
	ComponentSheets    = "sheets"
	ComponentTemplate  = "template"
)

// Operation names.
const (
	OpFetch    = "fetch"
	OpImport   = "import"
	OpSync     = "sync"
	OpEvaluate = "evaluate"
	OpNotify   = "notify"
	OpExport   = "export"
	OpRender   = "render"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields builds structured attributes for slog.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error text; nil errors are skipped.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithSeries identifies an ECOS series.
func (f LogFields) WithSeries(statCode, itemCode, cycle string) LogFields {
	f[FieldStatCode] = statCode
	if itemCode != "" {
		f[FieldItemCode] = itemCode
	}
	f[FieldCycle] = cycle
	return f
}

// WithRange adds a YYYYMMDD (or period key) range.
func (f LogFields) WithRange(from, to string) LogFields {
	f[FieldFrom] = from
	f[FieldTo] = to
	return f
}

func (f LogFields) WithRows(n int) LogFields {
	f[FieldRows] = n
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
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

// ToSlice flattens the fields into slog key/value pairs.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
