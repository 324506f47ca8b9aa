// Package profiling serves the net/http/pprof handlers on a local port.
package profiling

import (
	"net/http"
	_ "net/http/pprof" //nolint:gosec
	"strconv"
)

const DefaultPort = 6060

// Start runs the pprof server in the background. A non-positive port
// disables it.
func Start(port int) {
	if port <= 0 {
		return
	}
	go func() {
		_ = http.ListenAndServe("localhost:"+strconv.Itoa(port), nil) //nolint:gosec
	}()
}
