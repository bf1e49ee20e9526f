// Package actor provides a lightweight, hierarchical scope tag used to label
// log lines and goroutines without pulling in a full actor runtime. An ID is
// an immutable slash-separated path built up via NewChild as a goroutine
// spawns children, e.g. "gruntle/g1/orders/3/pullMessages".
package actor

import (
	"strings"
	"sync"

	"github.com/mailgun/log"
)

// RootID is the base of every ID path in the process.
var RootID = &ID{path: "gruntle"}

// ID is an immutable scope tag. The zero value is not usable; start from
// RootID.
type ID struct {
	path string
}

// NewChild returns a new ID with component appended to the path.
func (id *ID) NewChild(component string) *ID {
	if id == nil {
		return &ID{path: component}
	}
	return &ID{path: id.path + "/" + component}
}

func (id *ID) String() string {
	if id == nil {
		return ""
	}
	return id.path
}

// LogScope logs entry into the scope and returns a function that logs exit;
// intended to be used as `defer cid.LogScope()()`.
func (id *ID) LogScope() func() {
	log.Debugf("<%s> entered", id)
	return func() {
		log.Debugf("<%s> leaving", id)
	}
}

// Spawn runs fn in a new goroutine tracked by wg, logging the scope's entry
// and exit under id.
func Spawn(id *ID, wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer id.LogScope()()
		fn()
	}()
}

// Short returns the last path component, useful for metrics labels where the
// full hierarchical path would be too high-cardinality on its own.
func (id *ID) Short() string {
	if id == nil {
		return ""
	}
	parts := strings.Split(id.path, "/")
	return parts[len(parts)-1]
}
