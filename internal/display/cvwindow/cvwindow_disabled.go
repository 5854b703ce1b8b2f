//go:build !gocv
// +build !gocv

package cvwindow

import (
	"depthview/internal/display"
	logx "depthview/pkg/logx"
)

func New(log logx.Logger) (display.Sink, error) {
	_ = log
	return nil, ErrUnavailable
}
