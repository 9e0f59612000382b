// Package limits tracks system-wide resource limits, the same role the
// teacher's own limits package plays for biscuit's many kernel subsystems
// (procs, vnodes, futexes, sockets, pipes, ...) — only the fields this
// kernel actually charges against survive the port; see DESIGN.md for
// which teacher fields were dropped and why.
package limits

import "sync/atomic"

// Sysatomic_t is an atomically-adjusted resource counter: negative after
// a Taken means the limit was exceeded, so Taken immediately gives the
// amount back rather than leaving the counter over-drawn.
type Sysatomic_t int64

// Taken tries to decrement the counter by n, reporting whether the
// budget allowed it.
func (s *Sysatomic_t) Taken(n uint) bool {
	if atomic.AddInt64((*int64)(s), -int64(n)) >= 0 {
		return true
	}
	atomic.AddInt64((*int64)(s), int64(n))
	return false
}

// Given increases the counter by n, e.g. when a resource is released.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64((*int64)(s), int64(n))
}

// Take is Taken(1), the common single-unit case.
func (s *Sysatomic_t) Take() bool { return s.Taken(1) }

// Give is Given(1), the common single-unit case.
func (s *Sysatomic_t) Give() { s.Given(1) }

// Syslimit_t holds every system-wide resource budget this kernel
// charges against. Pipes is the only field any component currently
// consumes (fd.NewPipe); the rest of the teacher's struct (Sysprocs,
// Vnodes, Futexes, Arpents, Routes, Tcpsegs, Socks, Mfspgs, Blocks) named
// budgets for subsystems this kernel doesn't implement (networking,
// shared-memory vnodes, block-device paging) and were dropped rather
// than kept unused — see DESIGN.md.
type Syslimit_t struct {
	Pipes Sysatomic_t
}

// Syslimit is the single process-wide instance every caller charges
// against, mirroring the teacher's own package-level Syslimit variable.
var Syslimit = &Syslimit_t{
	Pipes: 1e4,
}
