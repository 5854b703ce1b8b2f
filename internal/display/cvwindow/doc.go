// Package cvwindow shows frames in native HighGUI windows through gocv.
//
// It needs OpenCV and is only compiled with -tags gocv; without the tag New
// returns ErrUnavailable and the app falls back to another sink.
package cvwindow

import "errors"

var ErrUnavailable = errors.New("cvwindow: not built: build with -tags gocv (requires OpenCV)")
