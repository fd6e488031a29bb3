// Package instance implements the single-instance lock: a loopback
// TCP listener held for the process lifetime. A second instance fails
// to bind and exits politely.
package instance

import (
	"errors"
	"fmt"
	"net"
)

// ErrAlreadyRunning indicates another instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Lock is a held single-instance lock.
type Lock struct {
	ln net.Listener
}

// Acquire binds the loopback lock endpoint. A bind failure is reported
// as ErrAlreadyRunning.
func Acquire(host string, port int) (*Lock, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("%w (bind %s:%d: %v)", ErrAlreadyRunning, host, port, err)
	}
	return &Lock{ln: ln}, nil
}

// Release closes the lock listener. Safe to call on a nil lock.
func (l *Lock) Release() {
	if l == nil || l.ln == nil {
		return
	}
	_ = l.ln.Close()
	l.ln = nil
}
