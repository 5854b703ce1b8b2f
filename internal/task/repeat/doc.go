// Package repeat runs an action over and over at a fixed interval on one
// background goroutine.
//
// A Repeater sleeps, invokes its action synchronously, and only then starts the
// next sleep, so invocations never overlap and the measured period is the
// interval plus however long the action took. Stop ends the loop before the
// next sleep begins. A failing (or panicking) action is reported per cycle and
// the schedule keeps going unless StopOnFailure is selected.
package repeat
