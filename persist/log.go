package persist

import "github.com/vsync-go/vsync/vlog"

var logger = newPackageLogger()

func newPackageLogger() *vlog.Logger {
	return vlog.NewLogger("persist", vlog.INFO)
}
