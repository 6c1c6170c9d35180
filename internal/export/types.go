// Package export rasterizes a case's chart and timeline visuals with
// headless Chrome, for embedding alongside the submitted record.
package export

import "errors"

// Result contains the rendered output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrChromeMissing indicates the headless Chrome runtime dependency is
	// unavailable; rendering degrades to "no embed" rather than failing a
	// submission.
	ErrChromeMissing = errors.New("export chromium not installed")
)
