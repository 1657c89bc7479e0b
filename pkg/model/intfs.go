package model

import "github.com/lumenswitch/orchagent/pkg/sai"

// IntfsEntry is the router-interface (RIF) mirror IntfsOrch maintains for
// one alias. Created by the alias's bare (prefix-less) INTF_TABLE row;
// prefix rows only add to Prefixes once it exists. Destroyed when RefCount
// reaches zero and Prefixes is empty.
type IntfsEntry struct {
	Alias     string
	RIFID     sai.ObjectID
	VRFID     sai.ObjectID
	Prefixes  map[string]bool
	ProxyARP  bool
	MAC       string
	MTU       int
	AdminUp   bool
	NATZone   int
	MPLS      bool
	RefCount  int
}

// NewIntfsEntry returns an entry with an initialized prefix set.
func NewIntfsEntry(alias string) *IntfsEntry {
	return &IntfsEntry{Alias: alias, Prefixes: make(map[string]bool)}
}

// Removable reports whether the RIF may be destroyed: no outstanding
// references and no configured prefixes.
func (e *IntfsEntry) Removable() bool {
	return e.RefCount == 0 && len(e.Prefixes) == 0
}
