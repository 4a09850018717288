package report

import (
	"log"

	"github.com/rollbar/rollbar-go"

	"gradex/internal/platform/config"
)

// Reporter is a fire-and-forget sink for internal diagnostics. Implementations
// must never block the caller and never return an error: a failed report is
// logged and dropped.
type Reporter interface {
	Report(err error, fields map[string]interface{})
}

// RollbarReporter ships reports to Rollbar and mirrors them on the std logger.
type RollbarReporter struct {
	std *log.Logger
}

var _ Reporter = (*RollbarReporter)(nil)

func NewRollbarReporter(std *log.Logger) *RollbarReporter {
	rollbar.SetToken(config.AppConfig.RollbarToken)
	rollbar.SetEnvironment(config.AppConfig.Environment)
	rollbar.SetServerHost(config.AppConfig.JudgeHost)
	return &RollbarReporter{std: std}
}

func (r *RollbarReporter) Report(err error, fields map[string]interface{}) {
	if err == nil {
		return
	}
	rollbar.Error(err, fields)
	r.std.Printf("reported: %v %+v", err, fields)
}

// ConsoleReporter logs reports to the std logger only. Used in development and
// whenever no Rollbar token is configured.
type ConsoleReporter struct {
	std *log.Logger
}

var _ Reporter = (*ConsoleReporter)(nil)

func NewConsoleReporter(std *log.Logger) *ConsoleReporter {
	return &ConsoleReporter{std: std}
}

func (r *ConsoleReporter) Report(err error, fields map[string]interface{}) {
	if err == nil {
		return
	}
	r.std.Printf("ERROR REPORT: %v %+v", err, fields)
}
