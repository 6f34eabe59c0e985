package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
	FieldSource    = "source"
	FieldTab       = "tab"
	FieldPage      = "page"
	FieldPages     = "pages"
	FieldItems     = "items"
	FieldRecords   = "records"
	FieldRows      = "rows"
	FieldTotal     = "total"
	FieldCreated   = "created"
	FieldHeader    = "header_written"
	FieldMarker    = "marker"
	FieldDuration  = "duration"
	FieldStatus    = "status"
	FieldError     = "error"
	FieldOperation = "operation"
	FieldBackend   = "backend"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentFetcher = "fetcher"
	ComponentSync    = "sync"
	ComponentSheets  = "sheets"
	ComponentLedger  = "ledger"
	ComponentAMQP    = "amqp"
	ComponentAuth    = "auth"
)

// Sources
const (
	SourceCommissions = "commissions"
	SourceEntrants    = "entrants"
)

// Operations defines standard operation names
const (
	OpFetch     = "fetch"
	OpPartition = "partition"
	OpEnsureTab = "ensure_tab"
	OpWriteRows = "write_rows"
	OpListTabs  = "list_tabs"
	OpPublish   = "publish"
	OpAuthorise = "authorise"
	OpRecordRun = "record_run"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTab adds tab-related fields
func (f LogFields) WithTab(tab string, rows int) LogFields {
	f[FieldTab] = tab
	f[FieldRows] = rows
	return f
}

// WithSource adds the source feed name
func (f LogFields) WithSource(source string) LogFields {
	f[FieldSource] = source
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
