package model

// ProcessorType identifies which processor variant a RequestHandler
// dispatches to (spec.md §3, §9 "Runtime type dispatch → tagged variant").
type ProcessorType string

const (
	ProcessorStatic ProcessorType = "static"
	ProcessorPHP    ProcessorType = "php"
	ProcessorProxy  ProcessorType = "proxy"
)

// RequestHandler pairs URL-match patterns and a priority with a processor
// reference (spec.md §3).
type RequestHandler struct {
	ID            string        `json:"id"`
	IsEnabled     bool          `json:"is_enabled"`
	Name          string        `json:"name"`
	Priority      int           `json:"priority"` // lower first; ties unordered
	ProcessorType ProcessorType `json:"processor_type"`
	ProcessorID   string        `json:"processor_id"`
	URLPatterns   []string      `json:"url_patterns"`
}
