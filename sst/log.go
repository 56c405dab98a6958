package sst

import "github.com/vsync-go/vsync/vlog"

func newPackageLogger() *vlog.Logger {
	return vlog.NewLogger("sst", vlog.INFO)
}
