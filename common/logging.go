// Package common provides centralized logging infrastructure.
//
// Log output is split by level: error-level lines go to stderr so they
// stand out and can be captured separately, everything else goes to
// stdout. This matters for the CLI invocations that wrap this module,
// where stdout is often piped into another tool.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes logrus output to stderr for error-level lines
// and stdout for everything else, based on the formatted line itself.
type OutputSplitter struct{}

// Write implements io.Writer, routing p to stderr when it looks like
// an error-level logrus line and to stdout otherwise.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-wide logrus instance used by components that
// are not handed a logger explicitly.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
