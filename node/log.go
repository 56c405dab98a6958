package node

import "github.com/vsync-go/vsync/vlog"

var logger = newPackageLogger()

func newPackageLogger() *vlog.Logger {
	return vlog.NewLogger("node", vlog.INFO)
}
