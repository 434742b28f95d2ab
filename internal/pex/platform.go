package pex

import (
	dpe "debug/pe"
	"fmt"
)

// Machine is the COFF machine type.
type Machine uint16

const (
	MachineUnknown     Machine = dpe.IMAGE_FILE_MACHINE_UNKNOWN
	MachineI386        Machine = dpe.IMAGE_FILE_MACHINE_I386
	MachineAMD64       Machine = dpe.IMAGE_FILE_MACHINE_AMD64
	MachineIA64        Machine = dpe.IMAGE_FILE_MACHINE_IA64
	MachineARM         Machine = dpe.IMAGE_FILE_MACHINE_ARM
	MachineARMNT       Machine = dpe.IMAGE_FILE_MACHINE_ARMNT
	MachineARM64       Machine = dpe.IMAGE_FILE_MACHINE_ARM64
	MachineThumb       Machine = dpe.IMAGE_FILE_MACHINE_THUMB
	MachineEBC         Machine = dpe.IMAGE_FILE_MACHINE_EBC
	MachineLoongArch64 Machine = dpe.IMAGE_FILE_MACHINE_LOONGARCH64
	MachineRISCV64     Machine = dpe.IMAGE_FILE_MACHINE_RISCV64
)

var machineNames = map[Machine]string{
	MachineUnknown:                     "Unknown",
	MachineI386:                        "I386",
	MachineAMD64:                       "Amd64",
	MachineIA64:                        "IA64",
	MachineARM:                         "Arm",
	MachineARMNT:                       "ArmThumb2",
	MachineARM64:                       "Arm64",
	MachineThumb:                       "Thumb",
	MachineEBC:                         "Ebc",
	MachineLoongArch64:                 "LoongArch64",
	MachineRISCV64:                     "RiscV64",
	dpe.IMAGE_FILE_MACHINE_LOONGARCH32: "LoongArch32",
	dpe.IMAGE_FILE_MACHINE_RISCV32:     "RiscV32",
	dpe.IMAGE_FILE_MACHINE_RISCV128:    "RiscV128",
	dpe.IMAGE_FILE_MACHINE_M32R:        "M32R",
	dpe.IMAGE_FILE_MACHINE_MIPS16:      "MIPS16",
	dpe.IMAGE_FILE_MACHINE_MIPSFPU:     "MipsFpu",
	dpe.IMAGE_FILE_MACHINE_MIPSFPU16:   "MipsFpu16",
	dpe.IMAGE_FILE_MACHINE_POWERPC:     "PowerPC",
	dpe.IMAGE_FILE_MACHINE_POWERPCFP:   "PowerPCFP",
	dpe.IMAGE_FILE_MACHINE_R4000:       "R4000",
	dpe.IMAGE_FILE_MACHINE_SH3:         "SH3",
	dpe.IMAGE_FILE_MACHINE_SH3DSP:      "SH3Dsp",
	dpe.IMAGE_FILE_MACHINE_SH4:         "SH4",
	dpe.IMAGE_FILE_MACHINE_SH5:         "SH5",
	dpe.IMAGE_FILE_MACHINE_WCEMIPSV2:   "WceMipsV2",
	dpe.IMAGE_FILE_MACHINE_AM33:        "AM33",
}

func (m Machine) String() string {
	if name, ok := machineNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%04x)", uint16(m))
}

// Characteristics are the COFF header characteristic flags.
type Characteristics uint16

const (
	CharExecutableImage Characteristics = dpe.IMAGE_FILE_EXECUTABLE_IMAGE
	CharBit32Machine    Characteristics = dpe.IMAGE_FILE_32BIT_MACHINE
	CharDLL             Characteristics = dpe.IMAGE_FILE_DLL
)

// CorFlags are the runtime flags of the CLI header.
type CorFlags uint32

const (
	CorILOnly           CorFlags = 0x00000001
	CorRequires32Bit    CorFlags = 0x00000002
	CorILLibrary        CorFlags = 0x00000004
	CorStrongNameSigned CorFlags = 0x00000008
	CorNativeEntryPoint CorFlags = 0x00000010
	CorTrackDebugData   CorFlags = 0x00010000
	CorPrefers32Bit     CorFlags = 0x00020000
)

// Platform names reported by Classify.
const (
	PlatformX86          = "x86"
	PlatformX64          = "x64"
	PlatformItanium      = "Itanium"
	PlatformAnyCPU32Pref = "AnyCPU (32-bit preferred)"
	PlatformAnyCPU64Pref = "AnyCPU (64-bit preferred)"
)

// Classify names the target platform of an image. flags is nil when the
// image has no CLI header.
//
// Requires32Bit is checked before Prefers32Bit, so an image carrying both
// reports x86.
func Classify(machine Machine, characteristics Characteristics, flags *CorFlags) string {
	switch machine {
	case MachineI386:
		if flags == nil {
			return machine.String()
		}
		f := *flags
		if f&CorRequires32Bit != 0 {
			return PlatformX86
		}
		if f&CorPrefers32Bit != 0 {
			return PlatformAnyCPU32Pref
		}
		// ECMA-335 II.25.3.3.1 wants Requires32Bit and Bit32Machine in sync
		// for managed images; C++/CLI mixed-mode images only set the latter.
		if f&CorILOnly == 0 && characteristics&CharBit32Machine != 0 {
			return PlatformX86
		}
		return PlatformAnyCPU64Pref
	case MachineAMD64:
		return PlatformX64
	case MachineIA64:
		return PlatformItanium
	default:
		return machine.String()
	}
}

// Platform classifies the image from its own headers.
func (im *Image) Platform() string {
	var flags *CorFlags
	if cli, err := im.CLIHeader(); err == nil {
		flags = &cli.Flags
	}
	return Classify(im.Machine, im.Characteristics, flags)
}
