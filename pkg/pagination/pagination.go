// Package pagination resolves the size/from result window of a search.
package pagination

import "fmt"

// MaxResultWindow mirrors the default index.max_result_window of
// Elasticsearch and OpenSearch. Deeper windows are rejected by the engine.
const MaxResultWindow = 10000

// Window is a resolved result window.
type Window struct {
	Size int `json:"size"`
	From int `json:"from"`
}

// Limits bounds a window.
type Limits struct {
	DefaultSize int
	MaxWindow   int
}

// DefaultLimits returns the gateway defaults.
func DefaultLimits() Limits {
	return Limits{DefaultSize: 60, MaxWindow: MaxResultWindow}
}

// Resolve fills absent values with defaults and rejects negative values and
// windows reaching past MaxWindow.
func Resolve(size, from *int, l Limits) (Window, error) {
	w := Window{Size: l.DefaultSize}
	if size != nil {
		w.Size = *size
	}
	if from != nil {
		w.From = *from
	}

	switch {
	case w.Size < 0:
		return Window{}, fmt.Errorf("size must not be negative, got %d", w.Size)
	case w.From < 0:
		return Window{}, fmt.Errorf("from must not be negative, got %d", w.From)
	case l.MaxWindow > 0 && w.Size+w.From > l.MaxWindow:
		return Window{}, fmt.Errorf("from + size must not exceed %d, got %d", l.MaxWindow, w.Size+w.From)
	}
	return w, nil
}
