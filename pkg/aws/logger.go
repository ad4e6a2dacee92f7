package aws

import (
	"fmt"

	"github.com/aws/smithy-go/logging"
	"github.com/rs/zerolog"
)

// sdkLogger forwards SDK client logs to zerolog
type sdkLogger struct {
	logger zerolog.Logger
}

func newSDKLogger(logger zerolog.Logger) logging.Logger {
	return sdkLogger{logger: logger.With().Str("component", "aws-sdk").Logger()}
}

func (l sdkLogger) Logf(classification logging.Classification, format string, v ...interface{}) {
	event := l.logger.Trace()
	if classification == logging.Warn {
		event = l.logger.Warn()
	}
	event.Msg(fmt.Sprintf(format, v...))
}
