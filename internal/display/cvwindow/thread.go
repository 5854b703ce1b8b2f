package cvwindow

import (
	"errors"
	"runtime"
)

var errThreadStopped = errors.New("cvwindow: gui thread stopped")

// guiThread runs every submitted call on one goroutine locked to its OS
// thread. HighGUI backends bind windows to the thread that created them.
type guiThread struct {
	calls chan func()
	quit  chan struct{}
	done  chan struct{}
}

func newGUIThread() *guiThread {
	t := &guiThread{
		calls: make(chan func()),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go t.loop()
	return t
}

func (t *guiThread) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)
	for {
		select {
		case fn := <-t.calls:
			fn()
		case <-t.quit:
			return
		}
	}
}

// do runs fn on the gui thread and waits for it.
func (t *guiThread) do(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case t.calls <- func() { errc <- fn() }:
	case <-t.done:
		return errThreadStopped
	}
	return <-errc
}

// stop ends the thread after the call in progress, if any.
func (t *guiThread) stop() {
	select {
	case <-t.quit:
	default:
		close(t.quit)
	}
	<-t.done
}
