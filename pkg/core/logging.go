package core

import (
	"log"
	"os"
	"strings"
)

const logPrefix = "githubapp"

// NewLogger returns a logger whose prefix names the owning component.
func NewLogger(component string) *log.Logger {
	prefix := logPrefix
	component = strings.TrimSpace(component)
	if component != "" {
		prefix += "/" + component
	}
	return log.New(os.Stderr, prefix+" ", log.LstdFlags)
}

// WithRequestID derives a logger that tags every line with a request id.
func WithRequestID(base *log.Logger, requestID string) *log.Logger {
	if base == nil {
		base = log.Default()
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return base
	}
	return log.New(base.Writer(), base.Prefix()+"request_id="+requestID+" ", base.Flags())
}
