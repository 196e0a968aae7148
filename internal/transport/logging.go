// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"

	applog "beatbox/internal/log"
)

// LoggingTransport writes every payload to the engine log at debug level.
// Used for headless runs where no websocket or UDP consumer is attached.
type LoggingTransport struct{}

// NewLoggingTransport creates a logging transport.
func NewLoggingTransport() *LoggingTransport {
	return &LoggingTransport{}
}

// Send logs the payload. Marshal failures are logged, never returned: a
// transport that cannot render a payload must not fail the pipeline.
func (t *LoggingTransport) Send(data any) error {
	if applog.GetLevel() > applog.LevelDebug {
		return nil
	}
	out, err := json.Marshal(data)
	if err != nil {
		applog.Debugf("Transport: unserializable payload (%T): %v", data, err)
		return nil
	}
	applog.Debugf("Transport: %s", out)
	return nil
}

// Close is a no-op.
func (t *LoggingTransport) Close() error { return nil }

var _ Transport = (*LoggingTransport)(nil)
