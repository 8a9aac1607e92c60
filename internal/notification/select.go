package notification

import (
	"runtime"
	"strings"

	logx "remindsync/pkg/logx"
)

// goos is swapped in tests.
var goos = runtime.GOOS

// hostless lists runtimes where no notification host can run.
var hostless = map[string]bool{
	"js":     true,
	"wasip1": true,
}

// Select picks the adapter for this process. platform is the
// notifications.platform config value: "auto" (or empty), "local" or "none".
func Select(platform string, host Host, log logx.Logger) Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := strings.ToLower(strings.TrimSpace(platform))
	switch p {
	case "none":
		log.Info("notifications disabled by config")
		return NewStub(log)
	case "local":
		if host == nil {
			log.Warn("local notifications requested without a host; using stub")
			return NewStub(log)
		}
		return NewLocal(host, log)
	default:
		if hostless[goos] || host == nil {
			log.Info("no notification host on this platform; using stub", logx.String("goos", goos))
			return NewStub(log)
		}
		return NewLocal(host, log)
	}
}
