// Package zone parses hostdb zone-definition text into a State tree: the
// networks, hosts, DHCP ranges and cnames that should exist in the IPAM
// backend. The same tree shape is used for the state observed in the backend.
package zone

import (
	"fmt"
	"iter"
	"net/netip"
	"slices"

	"go4.org/netipx"
)

// Host is the payload of one address in a network.
type Host struct {
	Name    string   // canonical name, fully qualified
	MAC     string   // upper-case, colon separated
	Comment string   // free text
	Aliases []string // in declaration order
}

// IsZero reports whether h is an empty placeholder (an address with no data).
func (h Host) IsZero() bool {
	return h.Name == "" && h.MAC == "" && h.Comment == "" && len(h.Aliases) == 0
}

// Equal compares every field, including alias order.
func (h Host) Equal(o Host) bool {
	return h.Name == o.Name &&
		h.MAC == o.MAC &&
		h.Comment == o.Comment &&
		slices.Equal(h.Aliases, o.Aliases)
}

func (h Host) clone() Host {
	h.Aliases = slices.Clone(h.Aliases)
	return h
}

// Range is a DHCP range derived from a run of pool hosts.
type Range struct {
	Start netip.Addr
	End   netip.Addr
}

// IPRange returns r as a netipx.IPRange. The result is invalid when the run
// was declared in descending address order.
func (r Range) IPRange() netipx.IPRange {
	return netipx.IPRangeFrom(r.Start, r.End)
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// Network is one CIDR with its hosts and DHCP ranges.
type Network struct {
	prefix netip.Prefix
	order  []netip.Addr
	hosts  map[netip.Addr]*Host
	ranges []Range
}

func newNetwork(prefix netip.Prefix) *Network {
	return &Network{prefix: prefix, hosts: make(map[netip.Addr]*Host)}
}

// Prefix returns the network's address block.
func (n *Network) Prefix() netip.Prefix { return n.prefix }

// CIDR returns the key the network is stored under.
func (n *Network) CIDR() string { return n.prefix.String() }

// Len returns the number of declared addresses.
func (n *Network) Len() int { return len(n.order) }

// Host returns the payload of addr.
func (n *Network) Host(addr netip.Addr) (Host, bool) {
	h, ok := n.hosts[addr]
	if !ok {
		return Host{}, false
	}
	return h.clone(), true
}

// Hosts yields addresses and payloads in declaration order.
func (n *Network) Hosts() iter.Seq2[netip.Addr, Host] {
	return func(yield func(netip.Addr, Host) bool) {
		for _, addr := range n.order {
			if !yield(addr, n.hosts[addr].clone()) {
				return
			}
		}
	}
}

// Ranges returns the DHCP ranges in inference order.
func (n *Network) Ranges() []Range { return slices.Clone(n.ranges) }

// HasRange reports whether r is one of the network's ranges.
func (n *Network) HasRange(r Range) bool { return slices.Contains(n.ranges, r) }

func (n *Network) addHost(addr netip.Addr) *Host {
	h := &Host{}
	n.order = append(n.order, addr)
	n.hosts[addr] = h
	return h
}

// CnameSet lists the aliases pointing at one canonical name.
type CnameSet struct {
	Canonical string
	Aliases   []string
}

type ownerKind int

const (
	ownerCanonical ownerKind = iota
	ownerAlias
	ownerCname
)

// owner records who claimed a name, for conflict messages.
type owner struct {
	kind ownerKind
	of   string
}

func (o owner) String() string {
	switch o.kind {
	case ownerCanonical:
		return "canonical name of " + o.of
	case ownerAlias:
		return "alias for " + o.of
	default:
		return "cname alias for " + o.of
	}
}

// State is a desired or observed network layout. Networks, hosts and cnames
// keep their insertion order.
type State struct {
	networks []*Network
	netIndex map[string]*Network

	cnames     []*CnameSet
	cnameIndex map[string]*CnameSet

	names map[string]owner
}

// NewState returns an empty tree.
func NewState() *State {
	return &State{
		netIndex:   make(map[string]*Network),
		cnameIndex: make(map[string]*CnameSet),
		names:      make(map[string]owner),
	}
}

// Networks returns the networks in declaration order.
func (s *State) Networks() []*Network { return slices.Clone(s.networks) }

// Network looks a network up by CIDR.
func (s *State) Network(cidr string) (*Network, bool) {
	n, ok := s.netIndex[cidr]
	return n, ok
}

// Cnames returns the cname sets in declaration order of their canonical name.
func (s *State) Cnames() []CnameSet {
	out := make([]CnameSet, 0, len(s.cnames))
	for _, c := range s.cnames {
		out = append(out, CnameSet{Canonical: c.Canonical, Aliases: slices.Clone(c.Aliases)})
	}
	return out
}

// HasCname reports whether alias points at canonical.
func (s *State) HasCname(canonical, alias string) bool {
	c, ok := s.cnameIndex[canonical]
	return ok && slices.Contains(c.Aliases, alias)
}

// CnameTarget returns the canonical name alias points at.
func (s *State) CnameTarget(alias string) (string, bool) {
	o, ok := s.names[alias]
	if !ok || o.kind != ownerCname {
		return "", false
	}
	return o.of, true
}

func (s *State) addNetwork(prefix netip.Prefix) *Network {
	n := newNetwork(prefix)
	s.networks = append(s.networks, n)
	s.netIndex[n.CIDR()] = n
	return n
}

func (s *State) addCname(canonical, alias string) {
	c, ok := s.cnameIndex[canonical]
	if !ok {
		c = &CnameSet{Canonical: canonical}
		s.cnames = append(s.cnames, c)
		s.cnameIndex[canonical] = c
	}
	c.Aliases = append(c.Aliases, alias)
}

// checkName fails with ErrNamingConflict when name is already claimed.
func (s *State) checkName(name string) error {
	if prior, ok := s.names[name]; ok {
		return newError(ErrNamingConflict, "%s: this name is already the %s", name, prior)
	}
	return nil
}

func (s *State) claimName(name string, o owner) error {
	if err := s.checkName(name); err != nil {
		return err
	}
	s.names[name] = o
	return nil
}

// Summary describes the size of the tree, for logs.
func (s *State) Summary() string {
	hosts, ranges, aliases := 0, 0, 0
	for _, n := range s.networks {
		hosts += n.Len()
		ranges += len(n.ranges)
	}
	for _, c := range s.cnames {
		aliases += len(c.Aliases)
	}
	return fmt.Sprintf("%d networks, %d hosts, %d ranges, %d cnames", len(s.networks), hosts, ranges, aliases)
}
