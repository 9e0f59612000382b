// Package trap defines the trap-frame layout shared by every thread and
// the per-thread kernel-stack slot computation. It deliberately knows
// nothing about the scheduler or process model above it (trap frames are
// pure data); the actual entry/exit assembly and the scause dispatch live
// with the orchestration code in package kernel, which does depend on
// trap, proc, and syscall together.
package trap

// / Frame is the per-thread trap frame: saved user registers plus the
// / extra state needed to run kernel code with only those registers
// / saved (spec §4.4, §3 "TrapFrame"). It lives on a dedicated framed
// / page in the user address space; the kernel reaches it by PPN.
type Frame struct {
	X           [32]uint64 // general-purpose registers x0..x31
	Sstatus     uint64
	Sepc        uint64
	KernelSatp  uint64
	KernelSP    uint64 // kernel stack top for this thread
	TrapHandler uint64 // kernel-side trap_handler entry address
}

// Register indices into Frame.X, named the way the calling convention
// uses them (x10..x17 are a0..a7, the syscall argument/number registers).
const (
	RegRA = 1
	RegSP = 2
	RegA0 = 10
	RegA1 = 11
	RegA2 = 12
	RegA7 = 17
)

/// A0 returns the syscall return-value / first-argument register.
func (f *Frame) A0() uint64 { return f.X[RegA0] }

/// SetA0 writes the syscall return value.
func (f *Frame) SetA0(v uint64) { f.X[RegA0] = v }

/// SyscallArgs returns (id, a0, a1, a2) as the dispatcher wants them.
func (f *Frame) SyscallArgs() (id, a0, a1, a2 uint64) {
	return f.X[RegA7], f.X[RegA0], f.X[RegA1], f.X[RegA2]
}

// / AppInitFrame builds the trap frame a freshly created (or just-exec'd)
// / thread resumes into: sepc at entry, sp at the top of its user stack,
// / and the kernel-side bookkeeping needed to re-enter the kernel on its
// / first trap.
func AppInitFrame(entry, userSP, kernelSatp, kernelSP, trapHandler uint64) Frame {
	var f Frame
	f.Sepc = entry
	f.X[RegSP] = userSP
	f.KernelSatp = kernelSatp
	f.KernelSP = kernelSP
	f.TrapHandler = trapHandler
	return f
}
