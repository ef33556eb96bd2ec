package collection

import "io"

// ActionResultType discriminates ActionResult.
type ActionResultType string

const (
	ResultSuccess  ActionResultType = "Success"
	ResultError    ActionResultType = "Error"
	ResultWebhook  ActionResultType = "Webhook"
	ResultFile     ActionResultType = "File"
	ResultRedirect ActionResultType = "Redirect"
)

// ActionResult is what an action returns. Only the fields matching Type are
// meaningful.
type ActionResult struct {
	Type        ActionResultType  `json:"type"`
	Message     string            `json:"message,omitempty"`
	Format      string            `json:"format,omitempty"`
	Invalidated []string          `json:"invalidated,omitempty"`
	URL         string            `json:"url,omitempty"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        any               `json:"body,omitempty"`
	MimeType    string            `json:"mime_type,omitempty"`
	Name        string            `json:"name,omitempty"`
	Stream      io.Reader         `json:"-"`
	Path        string            `json:"path,omitempty"`

	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
}

// ActionFieldType is the widget type of a form field.
type ActionFieldType string

const (
	ActionFieldBoolean    ActionFieldType = "Boolean"
	ActionFieldCollection ActionFieldType = "Collection"
	ActionFieldDate       ActionFieldType = "Date"
	ActionFieldDateOnly   ActionFieldType = "Dateonly"
	ActionFieldEnum       ActionFieldType = "Enum"
	ActionFieldFile       ActionFieldType = "File"
	ActionFieldJSON       ActionFieldType = "Json"
	ActionFieldNumber     ActionFieldType = "Number"
	ActionFieldString     ActionFieldType = "String"
	ActionFieldEnumList   ActionFieldType = "EnumList"
	ActionFieldFileList   ActionFieldType = "FileList"
	ActionFieldNumberList ActionFieldType = "NumberList"
	ActionFieldStringList ActionFieldType = "StringList"
)

// ActionField is one field of an action form.
type ActionField struct {
	Type           ActionFieldType `json:"type"`
	Label          string          `json:"label"`
	Description    string          `json:"description,omitempty"`
	IsRequired     bool            `json:"is_required"`
	IsReadOnly     bool            `json:"is_read_only"`
	Value          any             `json:"value,omitempty"`
	DefaultValue   any             `json:"default_value,omitempty"`
	WatchChanges   bool            `json:"watch_changes"`
	EnumValues     []string        `json:"enum_values,omitempty"`
	CollectionName string          `json:"collection_name,omitempty"`
}

// Chart is a rendered chart payload: a map for value, objective and
// multi-series charts, a slice for distributions and leaderboards, a number
// for percentages.
type Chart any
