package kernel

import (
	"debug/elf"
	"encoding/binary"
)

// buildMinimalELF is the same hand-assembled minimal RISC-V64 image
// package proc's and package syscall's own tests use — see
// proc/elf_test_helper_test.go's doc comment for why no real instruction
// bytes are needed (Non-goals: this hosted kernel never executes user
// instructions).
func buildMinimalELF(entry uint64, data []byte) []byte {
	const (
		ehdrSize = 64
		phdrSize = 56
		vaddr    = 0x1000
	)
	buf := make([]byte, ehdrSize+phdrSize+len(data))

	copy(buf[0:4], []byte{0x7F, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EI_VERSION

	le := binary.LittleEndian
	le.PutUint16(buf[16:], uint16(elf.ET_EXEC))
	le.PutUint16(buf[18:], uint16(elf.EM_RISCV))
	le.PutUint32(buf[20:], 1) // e_version
	le.PutUint64(buf[24:], entry)
	le.PutUint64(buf[32:], ehdrSize) // e_phoff
	le.PutUint64(buf[40:], 0)        // e_shoff
	le.PutUint16(buf[52:], ehdrSize)
	le.PutUint16(buf[54:], phdrSize)
	le.PutUint16(buf[56:], 1) // e_phnum

	ph := buf[ehdrSize:]
	le.PutUint32(ph[0:], uint32(elf.PT_LOAD))
	le.PutUint32(ph[4:], uint32(elf.PF_R|elf.PF_W|elf.PF_X))
	le.PutUint64(ph[8:], ehdrSize+phdrSize) // p_offset
	le.PutUint64(ph[16:], vaddr)            // p_vaddr
	le.PutUint64(ph[24:], vaddr)            // p_paddr
	le.PutUint64(ph[32:], uint64(len(data)))
	le.PutUint64(ph[40:], uint64(len(data)))
	le.PutUint64(ph[48:], 0x1000) // p_align

	copy(buf[ehdrSize+phdrSize:], data)
	return buf
}
