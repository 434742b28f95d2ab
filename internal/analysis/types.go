package analysis

import "csa/internal/disasm"

// Report is the result of inspecting one assembly.
type Report struct {
	Path           string         `json:"path"`
	Name           string         `json:"name"`
	Framework      string         `json:"framework"`
	Architecture   string         `json:"architecture"`
	RuntimeVersion string         `json:"runtimeVersion"`
	CorFlags       []string       `json:"corFlags"`
	GlobalType     string         `json:"globalType,omitempty"`
	EntryPoint     string         `json:"entryPoint,omitempty"`
	Types          []TypeInfo     `json:"types,omitempty"`
	Exports        []ExportSymbol `json:"exports,omitempty"`
	EntryStub      disasm.Stream  `json:"entryStub,omitempty"`
}

// TypeInfo is one TypeDef with the members that were requested.
type TypeInfo struct {
	FullName   string   `json:"fullName"`
	Depth      int      `json:"depth"` // number of enclosing types
	Fields     []Member `json:"fields,omitempty"`
	Properties []Member `json:"properties,omitempty"`
	Methods    []Method `json:"methods,omitempty"`
}

// Member is a field or property.
type Member struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func (m Member) String() string { return m.Type + " " + m.Name }

// Method is a method with its parameter list.
type Method struct {
	ReturnType string   `json:"returnType"`
	Name       string   `json:"name"`
	Params     []Member `json:"params"`
}

func (m Method) String() string {
	s := m.ReturnType + " " + m.Name + "("
	for i, p := range m.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	return s + ")"
}

// Options selects the optional parts of a Report.
type Options struct {
	Types      bool
	Fields     bool
	Properties bool
	Methods    bool
	Exports    bool
	EntryStub  bool
}
