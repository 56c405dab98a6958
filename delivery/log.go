package delivery

import "github.com/vsync-go/vsync/vlog"

func newPackageLogger() *vlog.Logger {
	return vlog.NewLogger("delivery", vlog.INFO)
}
