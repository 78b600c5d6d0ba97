// Package task defines the Task domain entity.
package task

import "time"

// Task is an immutable description of work fetched from a source-control
// provider. It is created once and never modified afterwards.
type Task struct {
	ID        string    `json:"id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	SourceURL string    `json:"source_url"`
	Labels    []string  `json:"labels,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasLabel reports whether the task carries the given label.
func (t Task) HasLabel(name string) bool {
	for _, l := range t.Labels {
		if l == name {
			return true
		}
	}
	return false
}
