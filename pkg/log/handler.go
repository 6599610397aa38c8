package log

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// levelFilterWriter drops records below min so the file and console sinks can run
// at different levels behind one MultiLevelWriter.
type levelFilterWriter struct {
	w   io.Writer
	min zerolog.Level
}

func (lw *levelFilterWriter) Write(p []byte) (int, error) {
	return lw.w.Write(p)
}

func (lw *levelFilterWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < lw.min {
		return len(p), nil
	}
	return lw.w.Write(p)
}

// addError writes err and, for cockroachdb/errors values, its stack trace.
func addError(ev *zerolog.Event, key string, err error) {
	if m, ok := errors.UnwrapAll(err).(zerolog.LogObjectMarshaler); ok {
		ev.Str(key, err.Error())
		ev.Object(key+"_detail", m)
	} else {
		ev.Str(key, err.Error())
	}
	if st := extractStacktrace(err); st != "" {
		ev.Str(StacktraceKey, st)
	}
	ev.Str(ErrorTypeKey, fmt.Sprintf("%T", errors.UnwrapAll(err)))
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	if errors.GetReportableStackTrace(err) != nil {
		return fmt.Sprintf("%+v", err)
	}
	return ""
}
