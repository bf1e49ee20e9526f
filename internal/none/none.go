// Package none provides a zero-size signal type for channels that carry no
// payload, only an event (close/done/tick signals).
package none

// T is sent or closed-over on channels that only ever signal an event, never
// carry data, e.g. `chan none.T` for a done/closing channel.
type T struct{}
