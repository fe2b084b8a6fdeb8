package icmp

import (
	"io"

	"github.com/sirupsen/logrus"
)

// discardLogger is the engine's default logger: protocol noise (stale
// replies, wrong-type packets, send failures) is logged but goes
// nowhere unless a caller supplies its own *logrus.Entry via
// WithLogger, matching the non-goal that log formatting/output belongs
// to the external front end.
func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "icmp")
}
