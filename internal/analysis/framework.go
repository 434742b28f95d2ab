package analysis

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"

	"csa/internal/climeta"
)

const targetFrameworkAttribute = "System.Runtime.Versioning.TargetFrameworkAttribute"

var reRuntimeVersion = regexp.MustCompile(`^v(\d+)\.(\d+)`)

var defaultChain = NewFrameworkDetectorChain(
	AttributeDetector{},
	CoreLibraryDetector{},
	RuntimeVersionDetector{},
)

// DetectTargetFramework returns the declared or inferred target framework
// moniker, or UnknownFramework.
func DetectTargetFramework(md *climeta.Metadata) string {
	return defaultChain.Detect(md)
}

// AttributeDetector reads the assembly-level TargetFrameworkAttribute.
type AttributeDetector struct{}

func (AttributeDetector) Name() string { return "attribute" }

func (AttributeDetector) Detect(md *climeta.Metadata) (string, bool) {
	for _, ca := range md.CustomAttributes {
		if ca.ParentTable != climeta.TableAssembly {
			continue
		}
		if AttributeTypeName(md, ca) != targetFrameworkAttribute {
			continue
		}
		if s, ok := FirstStringArgument(ca.Value); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// AttributeTypeName returns the full name of the type declaring the
// attribute's constructor.
func AttributeTypeName(md *climeta.Metadata, ca climeta.CustomAttribute) string {
	switch ca.CtorTable {
	case climeta.TableMemberRef:
		if ca.CtorRow == 0 || int(ca.CtorRow) > len(md.MemberRefs) {
			return ""
		}
		mr := md.MemberRefs[ca.CtorRow-1]
		switch mr.ClassTable {
		case climeta.TableTypeRef:
			return md.TypeRefFullName(mr.ClassRow)
		case climeta.TableTypeDef:
			return md.TypeDefFullName(mr.ClassRow)
		}
	case climeta.TableMethodDef:
		return md.TypeDefFullName(md.DeclaringType(ca.CtorRow))
	}
	return ""
}

// FirstStringArgument decodes the first fixed argument of a custom
// attribute blob as a SerString. A null string reports false.
func FirstStringArgument(blob []byte) (string, bool) {
	if len(blob) < 3 || binary.LittleEndian.Uint16(blob) != 0x0001 {
		return "", false
	}
	b := blob[2:]
	if b[0] == 0xff {
		return "", false
	}
	n, size, ok := compressed(b)
	if !ok || n > MaxSerStringLength || size+int(n) > len(b) {
		return "", false
	}
	return string(b[size : size+int(n)]), true
}

func compressed(b []byte) (uint32, int, bool) {
	switch {
	case len(b) >= 1 && b[0]&0x80 == 0:
		return uint32(b[0]), 1, true
	case len(b) >= 2 && b[0]&0xc0 == 0x80:
		return uint32(b[0]&0x3f)<<8 | uint32(b[1]), 2, true
	case len(b) >= 4 && b[0]&0xe0 == 0xc0:
		return uint32(b[0]&0x1f)<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), 4, true
	}
	return 0, 0, false
}

// CoreLibraryDetector infers the framework from the referenced core library.
type CoreLibraryDetector struct{}

func (CoreLibraryDetector) Name() string { return "core library" }

func (CoreLibraryDetector) Detect(md *climeta.Metadata) (string, bool) {
	for _, ref := range md.AssemblyRefs {
		v := ref.Version
		switch ref.Name {
		case "netstandard":
			return fmt.Sprintf(".NETStandard,Version=v%d.%d", v.Major, v.Minor), true
		case "System.Runtime", "System.Private.CoreLib":
			if version, ok := coreAppVersion(v); ok {
				return ".NETCoreApp,Version=v" + version, true
			}
		case "mscorlib":
			switch v.Major {
			case 4:
				return ".NETFramework,Version=v4.0", true
			case 2:
				return ".NETFramework,Version=v2.0", true
			}
		}
	}
	return "", false
}

// coreAppVersion maps System.Runtime reference versions to .NET Core
// releases. 4.2.x covers 2.0 to 3.1; from 5.0 the versions line up.
func coreAppVersion(v climeta.Version) (string, bool) {
	switch {
	case v.Major >= 5:
		return fmt.Sprintf("%d.%d", v.Major, v.Minor), true
	case v.Major == 4 && v.Minor == 2 && v.Build >= 2:
		return "3.1", true
	case v.Major == 4 && v.Minor == 2 && v.Build == 1:
		return "3.0", true
	case v.Major == 4 && v.Minor >= 2:
		return "2.0", true
	}
	return "", false
}

// RuntimeVersionDetector falls back to the metadata version string.
type RuntimeVersionDetector struct{}

func (RuntimeVersionDetector) Name() string { return "runtime version" }

func (RuntimeVersionDetector) Detect(md *climeta.Metadata) (string, bool) {
	m := reRuntimeVersion.FindStringSubmatch(md.Version)
	if m == nil {
		return "", false
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return fmt.Sprintf(".NETFramework,Version=v%d.%d", major, minor), true
}
