// Package memory holds long-lived facts about a user.
package memory

import "time"

// Fact kinds.
const (
	KindProfile    = "profile"
	KindPreference = "preference"
	KindWorkflow   = "workflow"
)

// Fact is a stable statement about a user ("trồng sầu riêng ở Đắk Lắk")
// with the embedding used to recall it.
type Fact struct {
	Kind       string    `json:"type"`
	Text       string    `json:"fact"`
	Confidence float64   `json:"confidence"`
	Embedding  []float32 `json:"embedding"`
	At         time.Time `json:"ts"`
}
