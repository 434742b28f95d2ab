package analysis

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"

	"csa/internal/climeta"
	"csa/internal/disasm"
	"csa/internal/pex"
)

var corFlagNames = []struct {
	flag pex.CorFlags
	name string
}{
	{pex.CorILOnly, "ILOnly"},
	{pex.CorRequires32Bit, "Requires32Bit"},
	{pex.CorILLibrary, "ILLibrary"},
	{pex.CorStrongNameSigned, "StrongNameSigned"},
	{pex.CorNativeEntryPoint, "NativeEntryPoint"},
	{pex.CorTrackDebugData, "TrackDebugData"},
	{pex.CorPrefers32Bit, "Prefers32Bit"},
}

// Open opens path and inspects it. Missing files keep pex.ErrFileNotFound;
// every other header or metadata failure is a *FormatError.
func Open(path string, opts Options) (*Report, error) {
	im, err := pex.Open(path)
	if err != nil {
		if errors.Is(err, pex.ErrBadImageFormat) {
			return nil, &FormatError{Path: path, Err: err}
		}
		return nil, err
	}
	defer im.Close()
	return Inspect(im, opts)
}

// Inspect builds the report for an opened image.
func Inspect(im *pex.Image, opts Options) (*Report, error) {
	cli, err := im.CLIHeader()
	if err != nil {
		return nil, &FormatError{Path: im.Path, Err: err}
	}
	raw, err := im.Metadata()
	if err != nil {
		return nil, &FormatError{Path: im.Path, Err: err}
	}
	md, err := climeta.Parse(raw)
	if err != nil {
		return nil, &FormatError{Path: im.Path, Err: err}
	}

	path, err := filepath.Abs(im.Path)
	if err != nil {
		path = im.Path
	}

	r := &Report{
		Path:           path,
		Name:           AssemblyFullName(md),
		Framework:      DetectTargetFramework(md),
		Architecture:   im.Platform(),
		RuntimeVersion: md.Version,
		CorFlags:       CorFlagNames(cli.Flags),
		EntryPoint:     EntryPointName(md, cli),
	}
	if len(md.TypeDefs) > 0 {
		r.GlobalType = clean(md.TypeDefFullName(1))
	}

	if opts.Types || opts.Fields || opts.Properties || opts.Methods {
		r.Types = TypeTree(md, opts)
	}
	if opts.Exports {
		if r.Exports, err = ScanExports(im); err != nil {
			return nil, fmt.Errorf("exports: %w", err)
		}
	}
	if opts.EntryStub {
		stub, err := disasm.EntryStub(im)
		switch {
		case errors.Is(err, disasm.ErrNoEntryPoint), errors.Is(err, disasm.ErrUnsupportedMachine):
		case err != nil:
			return nil, fmt.Errorf("entry stub: %w", err)
		default:
			r.EntryStub = stub
		}
	}
	return r, nil
}

// AssemblyFullName renders "Name, Version=a.b.c.d, Culture=c, PublicKeyToken=t".
// Modules without an assembly manifest report the module name.
func AssemblyFullName(md *climeta.Metadata) string {
	a := md.Assembly
	if a == nil {
		return clean(md.Module.Name)
	}
	culture := a.Culture
	if culture == "" {
		culture = "neutral"
	}
	token := "null"
	if len(a.PublicKey) > 0 {
		token = hex.EncodeToString(PublicKeyToken(a.PublicKey))
	}
	return fmt.Sprintf("%s, Version=%s, Culture=%s, PublicKeyToken=%s", clean(a.Name), a.Version, culture, token)
}

// PublicKeyToken is the last 8 bytes of the key's SHA-1 hash, reversed.
func PublicKeyToken(key []byte) []byte {
	sum := sha1.Sum(key)
	token := make([]byte, 8)
	for i := range token {
		token[i] = sum[len(sum)-1-i]
	}
	return token
}

// CorFlagNames lists the names of the set flags.
func CorFlagNames(f pex.CorFlags) []string {
	names := []string{}
	for _, n := range corFlagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	return names
}

// EntryPointName returns DeclaringType.Method for a managed entry point,
// or "" when the header carries a native RVA or an unresolvable token.
func EntryPointName(md *climeta.Metadata, cli *pex.CLIHeader) string {
	if !cli.HasManagedEntryPoint() {
		return ""
	}
	row := cli.EntryPointToken & 0x00ffffff
	if int(row) > len(md.MethodDefs) {
		return ""
	}
	owner := md.DeclaringType(row)
	if owner == 0 {
		return ""
	}
	return clean(md.TypeDefFullName(owner)) + "." + clean(md.MethodDefs[row-1].Name)
}

// TypeTree lists every TypeDef in table order with the requested members.
func TypeTree(md *climeta.Metadata, opts Options) []TypeInfo {
	types := make([]TypeInfo, 0, len(md.TypeDefs))
	for i := range md.TypeDefs {
		row := uint32(i + 1)
		td := md.TypeDefs[i]
		ctx := climeta.GenericContext{Type: md.GenericParamNames(climeta.TableTypeDef, row)}

		ti := TypeInfo{
			FullName: clean(md.TypeDefFullName(row)),
			Depth:    md.NestingDepth(row),
		}
		if opts.Fields {
			ti.Fields = []Member{}
			for f := td.FieldList; f < td.FieldEnd; f++ {
				fd := md.Fields[f-1]
				typ, err := md.FieldType(fd.Signature, ctx)
				if err != nil {
					typ = unknownType
				}
				ti.Fields = append(ti.Fields, Member{Type: typ, Name: clean(fd.Name)})
			}
		}
		if opts.Properties {
			ti.Properties = []Member{}
			start, end := md.PropertyRange(row)
			for p := start; p < end; p++ {
				pd := md.Properties[p-1]
				typ, err := md.PropertyType(pd.Signature, ctx)
				if err != nil {
					typ = unknownType
				}
				ti.Properties = append(ti.Properties, Member{Type: typ, Name: clean(pd.Name)})
			}
		}
		if opts.Methods {
			ti.Methods = []Method{}
			for m := td.MethodList; m < td.MethodEnd; m++ {
				ti.Methods = append(ti.Methods, method(md, m, ctx))
			}
		}
		types = append(types, ti)
	}
	return types
}

func method(md *climeta.Metadata, row uint32, ctx climeta.GenericContext) Method {
	m := md.MethodDefs[row-1]
	ctx.Method = md.GenericParamNames(climeta.TableMethodDef, row)
	out := Method{Name: clean(m.Name), ReturnType: unknownType, Params: []Member{}}

	sig, err := md.MethodSignature(m.Signature, ctx)
	if err != nil {
		return out
	}
	out.ReturnType = sig.Return
	for i, p := range sig.Params {
		name := md.ParamName(row, i+1)
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		out.Params = append(out.Params, Member{Type: p, Name: clean(name)})
	}
	return out
}
