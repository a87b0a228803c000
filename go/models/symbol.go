package models

import (
	"fmt"
)

type SymbolKind int

const (
	SymExport SymbolKind = iota
	SymImport
)

func (k SymbolKind) String() string {
	if k == SymImport {
		return "import"
	}
	return "export"
}

// Symbol is a named entity a binary exports or imports.
// Addr is only meaningful for exports and is relative to the image base.
type Symbol struct {
	Name    string
	Kind    SymbolKind
	Addr    uint64
	Library string
	Weak    bool
}

func (s Symbol) String() string {
	if s.Kind == SymImport {
		desc := "import " + s.Name
		if s.Library != "" {
			desc += " (" + s.Library + ")"
		}
		if s.Weak {
			desc += " [weak]"
		}
		return desc
	}
	return fmt.Sprintf("export %s @0x%x", s.Name, s.Addr)
}
