package types

import "time"

// ErrorKind classifies an error log entry
type ErrorKind string

// Error kinds recorded in the run error log
const (
	ErrorKindTransient     ErrorKind = "transient"
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindFusion        ErrorKind = "fusion"
	ErrorKindStage         ErrorKind = "stage"
	ErrorKindInterrupted   ErrorKind = "interrupted"
)

// ErrorEntry is one element of the append-only run error log
type ErrorEntry struct {
	Stage   string    `json:"stage"`
	Source  string    `json:"source,omitempty"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Fatal   bool      `json:"fatal"`
	Time    time.Time `json:"time"`
}

// Message is an inter-stage note appended to the run message channel
type Message struct {
	Stage string    `json:"stage"`
	Text  string    `json:"text"`
	Time  time.Time `json:"time"`
}
