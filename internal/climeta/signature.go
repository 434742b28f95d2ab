package climeta

import (
	"fmt"
	"strings"
)

// Element types from ECMA-335 II.23.1.16.
const (
	elemVoid        = 0x01
	elemBoolean     = 0x02
	elemChar        = 0x03
	elemI1          = 0x04
	elemU1          = 0x05
	elemI2          = 0x06
	elemU2          = 0x07
	elemI4          = 0x08
	elemU4          = 0x09
	elemI8          = 0x0a
	elemU8          = 0x0b
	elemR4          = 0x0c
	elemR8          = 0x0d
	elemString      = 0x0e
	elemPtr         = 0x0f
	elemByRef       = 0x10
	elemValueType   = 0x11
	elemClass       = 0x12
	elemVar         = 0x13
	elemArray       = 0x14
	elemGenericInst = 0x15
	elemTypedByRef  = 0x16
	elemI           = 0x18
	elemU           = 0x19
	elemFnPtr       = 0x1b
	elemObject      = 0x1c
	elemSZArray     = 0x1d
	elemMVar        = 0x1e
	elemCModReqd    = 0x1f
	elemCModOpt     = 0x20
	elemSentinel    = 0x41
	elemPinned      = 0x45
)

// Signature calling convention bits.
const (
	sigField    = 0x06
	sigProperty = 0x08
	sigGeneric  = 0x10
	sigHasThis  = 0x20
)

const maxSigDepth = 32

var ErrBadSignature = fmt.Errorf("%w: bad signature", ErrBadMetadata)

var primitiveNames = map[byte]string{
	elemVoid:       "System.Void",
	elemBoolean:    "System.Boolean",
	elemChar:       "System.Char",
	elemI1:         "System.SByte",
	elemU1:         "System.Byte",
	elemI2:         "System.Int16",
	elemU2:         "System.UInt16",
	elemI4:         "System.Int32",
	elemU4:         "System.UInt32",
	elemI8:         "System.Int64",
	elemU8:         "System.UInt64",
	elemR4:         "System.Single",
	elemR8:         "System.Double",
	elemString:     "System.String",
	elemTypedByRef: "System.TypedReference",
	elemI:          "System.IntPtr",
	elemU:          "System.UIntPtr",
	elemObject:     "System.Object",
}

var suffixes = map[byte]string{elemPtr: "*", elemByRef: "&", elemSZArray: "[]"}

// GenericContext names the generic parameters in scope while decoding a
// signature. Missing names render as !n and !!n.
type GenericContext struct {
	Type   []string
	Method []string
}

// MethodSig is a decoded MethodDefSig or MethodRefSig.
type MethodSig struct {
	HasThis           bool
	GenericParamCount uint32
	Return            string
	Params            []string
}

// maxArrayRank is the largest rank the runtime loads.
const maxArrayRank = 32

type sigReader struct {
	md    *Metadata
	ctx   GenericContext
	b     []byte
	depth int
}

func (r *sigReader) byte() (byte, error) {
	if len(r.b) == 0 {
		return 0, fmt.Errorf("%w: unexpected end", ErrBadSignature)
	}
	c := r.b[0]
	r.b = r.b[1:]
	return c, nil
}

func (r *sigReader) peek() (byte, bool) {
	if len(r.b) == 0 {
		return 0, false
	}
	return r.b[0], true
}

func (r *sigReader) uint() (uint32, error) {
	v, n, err := decompress(r.b)
	if err != nil {
		return 0, err
	}
	r.b = r.b[n:]
	return v, nil
}

// count reads an element count. Each element takes at least one byte, so a
// count larger than the rest of the blob is malformed.
func (r *sigReader) count() (uint32, error) {
	n, err := r.uint()
	if err != nil {
		return 0, err
	}
	if uint64(n) > uint64(len(r.b)) {
		return 0, fmt.Errorf("%w: count %d exceeds remaining %d bytes", ErrBadSignature, n, len(r.b))
	}
	return n, nil
}

// FieldType decodes a FieldSig into a display type name.
func (md *Metadata) FieldType(sig []byte, ctx GenericContext) (string, error) {
	r := &sigReader{md: md, ctx: ctx, b: sig}
	cc, err := r.byte()
	if err != nil {
		return "", err
	}
	if cc&0x0f != sigField {
		return "", fmt.Errorf("%w: calling convention 0x%02x is not a field", ErrBadSignature, cc)
	}
	return r.typ()
}

// PropertyType decodes a PropertySig and returns the property type.
func (md *Metadata) PropertyType(sig []byte, ctx GenericContext) (string, error) {
	r := &sigReader{md: md, ctx: ctx, b: sig}
	cc, err := r.byte()
	if err != nil {
		return "", err
	}
	if cc&0x0f != sigProperty {
		return "", fmt.Errorf("%w: calling convention 0x%02x is not a property", ErrBadSignature, cc)
	}
	if _, err := r.uint(); err != nil {
		return "", err
	}
	return r.typ()
}

// MethodSignature decodes a MethodDefSig or MethodRefSig.
func (md *Metadata) MethodSignature(sig []byte, ctx GenericContext) (*MethodSig, error) {
	r := &sigReader{md: md, ctx: ctx, b: sig}
	return r.method()
}

func (r *sigReader) method() (*MethodSig, error) {
	cc, err := r.byte()
	if err != nil {
		return nil, err
	}
	ms := &MethodSig{HasThis: cc&sigHasThis != 0}
	if cc&sigGeneric != 0 {
		if ms.GenericParamCount, err = r.uint(); err != nil {
			return nil, err
		}
	}
	count, err := r.count()
	if err != nil {
		return nil, err
	}
	if ms.Return, err = r.typ(); err != nil {
		return nil, fmt.Errorf("return type: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		// Varargs call sites separate fixed and extra arguments.
		if c, ok := r.peek(); ok && c == elemSentinel {
			r.b = r.b[1:]
		}
		p, err := r.typ()
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		ms.Params = append(ms.Params, p)
	}
	return ms, nil
}

// TypeSpecName decodes the 1-based TypeSpec row.
func (md *Metadata) TypeSpecName(row uint32, ctx GenericContext) (string, error) {
	return md.typeSpecName(row, ctx, 0)
}

func (md *Metadata) typeSpecName(row uint32, ctx GenericContext, depth int) (string, error) {
	if row == 0 || int(row) > len(md.TypeSpecs) {
		return "", fmt.Errorf("%w: TypeSpec row %d", ErrBadSignature, row)
	}
	r := &sigReader{md: md, ctx: ctx, b: md.TypeSpecs[row-1], depth: depth}
	return r.typ()
}

// typ decodes one Type production, skipping custom modifiers.
func (r *sigReader) typ() (string, error) {
	r.depth++
	defer func() { r.depth-- }()
	if r.depth > maxSigDepth {
		return "", fmt.Errorf("%w: nesting too deep", ErrBadSignature)
	}

	for {
		c, ok := r.peek()
		if !ok {
			return "", fmt.Errorf("%w: unexpected end", ErrBadSignature)
		}
		switch c {
		case elemCModReqd, elemCModOpt:
			r.b = r.b[1:]
			if _, err := r.uint(); err != nil {
				return "", err
			}
			continue
		case elemPinned:
			r.b = r.b[1:]
			continue
		}
		break
	}

	et, _ := r.byte()
	if name, ok := primitiveNames[et]; ok {
		return name, nil
	}

	switch et {
	case elemClass, elemValueType:
		tok, err := r.uint()
		if err != nil {
			return "", err
		}
		return r.typeDefOrRef(tok)
	case elemPtr, elemByRef, elemSZArray:
		inner, err := r.typ()
		if err != nil {
			return "", err
		}
		return inner + suffixes[et], nil
	case elemArray:
		return r.array()
	case elemVar, elemMVar:
		n, err := r.uint()
		if err != nil {
			return "", err
		}
		names, prefix := r.ctx.Type, "!"
		if et == elemMVar {
			names, prefix = r.ctx.Method, "!!"
		}
		if int(n) < len(names) && names[n] != "" {
			return names[n], nil
		}
		return fmt.Sprintf("%s%d", prefix, n), nil
	case elemGenericInst:
		return r.genericInst()
	case elemFnPtr:
		return r.fnPtr()
	}
	return "", fmt.Errorf("%w: element type 0x%02x", ErrBadSignature, et)
}

func (r *sigReader) typeDefOrRef(tok uint32) (string, error) {
	t, row := decodeCoded(codedTypeDefOrRef, tok)
	switch t {
	case TableTypeDef:
		if int(row) > len(r.md.TypeDefs) || row == 0 {
			break
		}
		return r.md.TypeDefFullName(row), nil
	case TableTypeRef:
		if int(row) > len(r.md.TypeRefs) || row == 0 {
			break
		}
		return r.md.TypeRefFullName(row), nil
	case TableTypeSpec:
		return r.md.typeSpecName(row, r.ctx, r.depth)
	}
	return "", fmt.Errorf("%w: TypeDefOrRef token 0x%x", ErrBadSignature, tok)
}

func (r *sigReader) array() (string, error) {
	inner, err := r.typ()
	if err != nil {
		return "", err
	}
	rank, err := r.uint()
	if err != nil {
		return "", err
	}
	// Sizes and lower bounds only matter to the runtime.
	for range 2 {
		n, err := r.uint()
		if err != nil {
			return "", err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := r.uint(); err != nil {
				return "", err
			}
		}
	}
	if rank == 0 {
		rank = 1
	}
	if rank > maxArrayRank {
		return "", fmt.Errorf("%w: array rank %d", ErrBadSignature, rank)
	}
	return inner + "[" + strings.Repeat(",", int(rank)-1) + "]", nil
}

func (r *sigReader) genericInst() (string, error) {
	base, err := r.typ()
	if err != nil {
		return "", err
	}
	n, err := r.count()
	if err != nil {
		return "", err
	}
	args := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		a, err := r.typ()
		if err != nil {
			return "", err
		}
		args = append(args, a)
	}
	return base + "<" + strings.Join(args, ", ") + ">", nil
}

func (r *sigReader) fnPtr() (string, error) {
	ms, err := r.method()
	if err != nil {
		return "", err
	}
	return "delegate*<" + strings.Join(append(ms.Params, ms.Return), ", ") + ">", nil
}
