// Package scheduler keeps a registry of named repeating schedules.
//
// Each schedule is a repeat.Repeater run on a supervisor goroutine. Names are
// unique: adding a schedule under an existing name replaces it, and the
// replacement only starts once the previous repeater has exited, so a name
// never has two invocations in flight.
package scheduler
