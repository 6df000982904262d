package pipeline

import (
	"encoding/json"
	"io"
)

// Status is the machine readable record emitted for every processed
// image, for consumption by a calling process such as the job runner.
type Status struct {
	Success      bool   `json:"success"`
	ModelPath    string `json:"modelPath"`
	FeaturesPath string `json:"featuresPath"`
	Message      string `json:"message"`
	Degraded     bool   `json:"degraded"`
}

// Failed returns the status for a fatal error.
func Failed(err error) Status {
	msg := "unknown error"
	if err != nil {
		msg = Kind(err) + ": " + err.Error()
	}
	return Status{Success: false, Message: msg}
}

// Write encodes s as one line of JSON.
func (s Status) Write(w io.Writer) error {
	return json.NewEncoder(w).Encode(s)
}
