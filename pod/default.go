package pod

import (
	"os"

	"github.com/haje01/swak/plugin"
	"github.com/haje01/swak/stdplugins/stdout"
)

// newStdoutSink is the unbuffered default sink: one line per event on
// standard output.
func newStdoutSink() plugin.Sink {
	return stdout.New(os.Stdout)
}
