// Package plan computes the ordered list of backend writes that turns an
// observed zone.State into a desired one.
package plan

import (
	"fmt"
	"net/netip"

	"github.com/yuriy-kovalchuk/hostdb/internal/zone"
)

// Op is the kind of write an action performs.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// RecordType is the backend object an action writes.
type RecordType string

const (
	TypeHost  RecordType = "host"
	TypeRange RecordType = "range"
	TypeCname RecordType = "cname"
)

// Payload is the data carried by an action: HostData, RangeData or CnameData.
type Payload interface {
	recordType() RecordType
	fmt.Stringer
}

// HostData is one address of a network and its record.
type HostData struct {
	Network string
	Address netip.Addr
	Host    zone.Host
}

func (HostData) recordType() RecordType { return TypeHost }

func (d HostData) String() string {
	s := d.Address.String()
	if d.Host.Name != "" {
		s += " " + d.Host.Name
	}
	if d.Host.MAC != "" {
		s += " mac=" + d.Host.MAC
	}
	if d.Host.Comment != "" {
		s += fmt.Sprintf(" comment=%q", d.Host.Comment)
	}
	if len(d.Host.Aliases) > 0 {
		s += fmt.Sprintf(" aliases=%v", d.Host.Aliases)
	}
	return s
}

// RangeData is a DHCP range of a network.
type RangeData struct {
	Network string
	Range   zone.Range
}

func (RangeData) recordType() RecordType { return TypeRange }

func (d RangeData) String() string { return d.Range.String() + " in " + d.Network }

// CnameData is an alias pointing at a canonical name.
type CnameData struct {
	Canonical string
	Alias     string
}

func (CnameData) recordType() RecordType { return TypeCname }

func (d CnameData) String() string { return d.Alias + " -> " + d.Canonical }

// Action is one backend write. OldData is only set for updates.
type Action struct {
	Op      Op
	Type    RecordType
	Data    Payload
	OldData Payload
}

func newAction(op Op, data Payload) Action {
	return Action{Op: op, Type: data.recordType(), Data: data}
}

// Network returns the CIDR the action belongs to, or "" for cnames.
func (a Action) Network() string {
	switch d := a.Data.(type) {
	case HostData:
		return d.Network
	case RangeData:
		return d.Network
	default:
		return ""
	}
}

func (a Action) String() string {
	if a.Op == OpUpdate && a.OldData != nil {
		return fmt.Sprintf("%s %s %s (was %s)", a.Op, a.Type, a.Data, a.OldData)
	}
	return fmt.Sprintf("%s %s %s", a.Op, a.Type, a.Data)
}
