package astiavlogger

import (
	"strings"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// Callback returns an astiav log callback forwarding libav's own log
// lines into the process logger. libav may call it from any thread.
func Callback(l logger.Logger) astiav.LogCallback {
	var locker sync.Mutex
	return func(c astiav.Classer, level astiav.LogLevel, format, msg string) {
		locker.Lock()
		defer locker.Unlock()
		entry := l
		if c != nil {
			if cl := c.Class(); cl != nil {
				entry = l.WithField("ff_class", cl.String())
			}
		}
		entry.Logf(LogLevelFromAstiav(level), "%s", strings.TrimSpace(msg))
	}
}
