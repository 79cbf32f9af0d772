package transport

import (
	"spectro/internal/log"
)

// LoggingTransport implements the Transport interface by logging a summary
// of each frame at debug level. It is the sink for headless runs.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the newest row's peak bin.
func (lt *LoggingTransport) Send(data any) error {
	frame, ok := data.(Frame)
	if !ok {
		log.Debugf("Transport: Received %T", data)
		return nil
	}
	if len(frame.Rows) == 0 {
		return nil
	}

	newest := frame.Rows[len(frame.Rows)-1]
	peak, peakValue := 0, 0.0
	for i, v := range newest {
		if v > peakValue {
			peak, peakValue = i, v
		}
	}
	log.Debugf("Transport: Frame %d peak bin %d (%.3f)", frame.Sequence, peak, peakValue)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	log.Debugf("Transport: LoggingTransport closed")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
