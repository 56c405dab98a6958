package gms

import "github.com/vsync-go/vsync/vlog"

var logger = newPackageLogger()

func newPackageLogger() *vlog.Logger {
	return vlog.NewLogger("gms", vlog.INFO)
}
