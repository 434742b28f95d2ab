package pex

import "testing"

func flags(f CorFlags) *CorFlags { return &f }

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		machine Machine
		chars   Characteristics
		flags   *CorFlags
		want    string
	}{
		{"native i386", MachineI386, CharBit32Machine, nil, "I386"},
		{"requires32", MachineI386, 0, flags(CorILOnly | CorRequires32Bit), PlatformX86},
		{"prefers32", MachineI386, 0, flags(CorILOnly | CorPrefers32Bit), PlatformAnyCPU32Pref},
		{"requires beats prefers", MachineI386, 0, flags(CorILOnly | CorRequires32Bit | CorPrefers32Bit), PlatformX86},
		{"mixed mode", MachineI386, CharBit32Machine, flags(0), PlatformX86},
		{"il only with 32bit char", MachineI386, CharBit32Machine, flags(CorILOnly), PlatformAnyCPU64Pref},
		{"anycpu", MachineI386, CharExecutableImage, flags(CorILOnly), PlatformAnyCPU64Pref},
		{"mixed mode without 32bit char", MachineI386, 0, flags(0), PlatformAnyCPU64Pref},
		{"amd64", MachineAMD64, 0, flags(CorILOnly), PlatformX64},
		{"amd64 ignores flags", MachineAMD64, CharBit32Machine, flags(CorRequires32Bit | CorPrefers32Bit), PlatformX64},
		{"amd64 native", MachineAMD64, 0, nil, PlatformX64},
		{"ia64", MachineIA64, 0, flags(CorILOnly), PlatformItanium},
		{"ia64 native", MachineIA64, CharBit32Machine, nil, PlatformItanium},
		{"arm64", MachineARM64, 0, flags(CorILOnly), "Arm64"},
		{"unknown", Machine(0x1234), 0, nil, "Unknown(0x1234)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.machine, tt.chars, tt.flags)
			if got != tt.want {
				t.Errorf("Classify(%v, 0x%x, %v) = %q, want %q", tt.machine, uint16(tt.chars), tt.flags, got, tt.want)
			}
			if again := Classify(tt.machine, tt.chars, tt.flags); again != got {
				t.Errorf("Classify is not deterministic: %q then %q", got, again)
			}
		})
	}
}

func TestClassifyDoesNotMutateFlags(t *testing.T) {
	f := CorILOnly | CorPrefers32Bit
	Classify(MachineI386, CharBit32Machine, &f)
	if f != CorILOnly|CorPrefers32Bit {
		t.Fatalf("flags mutated to 0x%x", uint32(f))
	}
}

func TestMachineString(t *testing.T) {
	tests := map[Machine]string{
		MachineI386:        "I386",
		MachineAMD64:       "Amd64",
		MachineARM64:       "Arm64",
		MachineIA64:        "IA64",
		Machine(0xbeef):    "Unknown(0xbeef)",
		Machine(0x0001):    "Unknown(0x0001)",
		MachineUnknown:     "Unknown",
		MachineRISCV64:     "RiscV64",
		MachineLoongArch64: "LoongArch64",
	}
	for m, want := range tests {
		if got := m.String(); got != want {
			t.Errorf("Machine(0x%04x).String() = %q, want %q", uint16(m), got, want)
		}
	}
}
