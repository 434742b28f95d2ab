package climeta

import (
	"sort"
	"strings"
)

// maxNesting bounds enclosing-type chains so a cyclic NestedClass table
// cannot recurse forever.
const maxNesting = 64

// TypeDefFullName returns Namespace.Outer.Inner for the 1-based TypeDef row.
// Generic arity suffixes ("`1") are dropped.
func (md *Metadata) TypeDefFullName(row uint32) string {
	return md.typeDefFullName(row, 0)
}

func (md *Metadata) typeDefFullName(row uint32, depth int) string {
	if row == 0 || int(row) > len(md.TypeDefs) {
		return ""
	}
	td := md.TypeDefs[row-1]
	name := trimArity(td.Name)
	if outer, ok := md.enclosing[row]; ok && depth < maxNesting {
		return md.typeDefFullName(outer, depth+1) + "." + name
	}
	if td.Namespace == "" {
		return name
	}
	return td.Namespace + "." + name
}

// TypeRefFullName returns the full name of the 1-based TypeRef row. A
// TypeRef scoped to another TypeRef is nested inside it.
func (md *Metadata) TypeRefFullName(row uint32) string {
	return md.typeRefFullName(row, 0)
}

func (md *Metadata) typeRefFullName(row uint32, depth int) string {
	if row == 0 || int(row) > len(md.TypeRefs) {
		return ""
	}
	tr := md.TypeRefs[row-1]
	name := trimArity(tr.Name)
	if tr.ScopeTable == TableTypeRef && depth < maxNesting {
		return md.typeRefFullName(tr.ScopeRow, depth+1) + "." + name
	}
	if tr.Namespace == "" {
		return name
	}
	return tr.Namespace + "." + name
}

// EnclosingType returns the TypeDef row that row is nested in, or 0.
func (md *Metadata) EnclosingType(row uint32) uint32 {
	return md.enclosing[row]
}

// NestingDepth counts the enclosing types of the TypeDef row.
func (md *Metadata) NestingDepth(row uint32) int {
	depth := 0
	for outer, ok := md.enclosing[row]; ok && depth < maxNesting; outer, ok = md.enclosing[outer] {
		depth++
	}
	return depth
}

// DeclaringType returns the TypeDef row owning the 1-based MethodDef row,
// or 0 when no type claims it.
func (md *Metadata) DeclaringType(method uint32) uint32 {
	for i, td := range md.TypeDefs {
		if method >= td.MethodList && method < td.MethodEnd {
			return uint32(i + 1)
		}
	}
	return 0
}

// PropertyRange returns the half-open Property row range of the TypeDef row.
func (md *Metadata) PropertyRange(row uint32) (uint32, uint32) {
	for _, pm := range md.PropertyMaps {
		if pm.Parent == row {
			return pm.PropertyList, pm.PropertyEnd
		}
	}
	return 0, 0
}

// ParamName returns the name of the parameter at sequence seq (1-based) of
// the MethodDef row, or "" if the Param table has none.
func (md *Metadata) ParamName(method uint32, seq int) string {
	if method == 0 || int(method) > len(md.MethodDefs) {
		return ""
	}
	m := md.MethodDefs[method-1]
	for r := m.ParamList; r < m.ParamEnd; r++ {
		if int(r) > len(md.Params) {
			break
		}
		if p := md.Params[r-1]; int(p.Sequence) == seq {
			return p.Name
		}
	}
	return ""
}

// GenericParamNames returns the names of the generic parameters owned by
// the given TypeDef or MethodDef row, ordered by number.
func (md *Metadata) GenericParamNames(table int, row uint32) []string {
	var gps []GenericParam
	for _, gp := range md.GenericParams {
		if gp.OwnerTable == table && gp.OwnerRow == row {
			gps = append(gps, gp)
		}
	}
	if len(gps) == 0 {
		return nil
	}
	sort.Slice(gps, func(i, j int) bool { return gps[i].Number < gps[j].Number })
	names := make([]string, len(gps))
	for i, gp := range gps {
		names[i] = gp.Name
	}
	return names
}

func trimArity(name string) string {
	if i := strings.LastIndexByte(name, '`'); i > 0 {
		return name[:i]
	}
	return name
}
