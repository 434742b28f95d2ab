// Package disasm decodes short native code sequences, such as the entry
// stub of a PE image, into a common instruction representation.
package disasm

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"csa/internal/pex"
)

const (
	// MaxStubBytes bounds how much code is read at the entry point.
	MaxStubBytes = 64
	// MaxStubInstructions bounds the decoded stub length.
	MaxStubInstructions = 8
)

var (
	ErrNoEntryPoint       = errors.New("image has no native entry point")
	ErrUnsupportedMachine = errors.New("unsupported machine for disassembly")
)

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64 `json:"va"`   // virtual address of instruction
	Text string `json:"text"` // formatted disassembly string
	Op   string `json:"op"`   // mnemonic in lowercase
	Raw  []byte `json:"raw"`  // raw encoding
}

func (i Inst) String() string {
	return fmt.Sprintf("%x  %s", i.VA, i.Text)
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// String renders one instruction per line.
func (s Stream) String() string {
	var sb strings.Builder
	for _, inst := range s {
		sb.WriteString(inst.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// EntryStub decodes the code at AddressOfEntryPoint. Managed executables
// for x86 carry a jump to _CorExeMain there; IL-only x64 and ARM64 images
// usually have none.
func EntryStub(im *pex.Image) (Stream, error) {
	if im.EntryPoint == 0 {
		return nil, ErrNoEntryPoint
	}
	off, ok := im.RVAToOffset(im.EntryPoint)
	if !ok {
		return nil, fmt.Errorf("%w: entry point RVA 0x%x", pex.ErrTruncated, im.EntryPoint)
	}
	code := im.All[off:]
	if len(code) > MaxStubBytes {
		code = code[:MaxStubBytes]
	}
	return Decode(im.Machine, code, im.ImageBase+uint64(im.EntryPoint), MaxStubInstructions)
}

// Decode disassembles up to max instructions of code loaded at va. It stops
// after the first unconditional transfer of control.
func Decode(machine pex.Machine, code []byte, va uint64, max int) (Stream, error) {
	switch machine {
	case pex.MachineI386:
		return decodeX86(code, va, 32, max)
	case pex.MachineAMD64:
		return decodeX86(code, va, 64, max)
	case pex.MachineARM64:
		return decodeARM64(code, va, max)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedMachine, machine)
}

func noSymbols(uint64) (string, uint64) { return "", 0 }

func decodeX86(code []byte, va uint64, mode, max int) (Stream, error) {
	var out Stream
	for len(code) > 0 && len(out) < max {
		inst, err := x86asm.Decode(code, mode)
		if err != nil {
			if len(out) == 0 {
				return nil, fmt.Errorf("decode at 0x%x: %w", va, err)
			}
			break
		}
		op := strings.ToLower(inst.Op.String())
		out = append(out, Inst{
			VA:   va,
			Text: x86asm.IntelSyntax(inst, va, noSymbols),
			Op:   op,
			Raw:  append([]byte(nil), code[:inst.Len]...),
		})
		code = code[inst.Len:]
		va += uint64(inst.Len)
		if op == "jmp" || op == "ret" {
			break
		}
	}
	return out, nil
}

func decodeARM64(code []byte, va uint64, max int) (Stream, error) {
	var out Stream
	for len(code) >= 4 && len(out) < max {
		inst, err := arm64asm.Decode(code[:4])
		if err != nil {
			if len(out) == 0 {
				return nil, fmt.Errorf("decode at 0x%x: %w", va, err)
			}
			break
		}
		op := strings.ToLower(inst.Op.String())
		out = append(out, Inst{
			VA:   va,
			Text: arm64asm.GNUSyntax(inst),
			Op:   op,
			Raw:  append([]byte(nil), code[:4]...),
		})
		code = code[4:]
		va += 4
		if op == "ret" || op == "b" || op == "br" {
			break
		}
	}
	return out, nil
}
