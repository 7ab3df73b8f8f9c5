package ipam

import (
	"github.com/yuriy-kovalchuk/hostdb/internal/plan"
)

// TouchesDHCP reports whether applying a changes data served by DHCP: any
// range write, or a host write where the new or old record carries a MAC.
func TouchesDHCP(a plan.Action) bool {
	switch a.Type {
	case plan.TypeRange:
		return true
	case plan.TypeHost:
		for _, p := range []plan.Payload{a.Data, a.OldData} {
			if d, ok := p.(plan.HostData); ok && d.Host.MAC != "" {
				return true
			}
		}
	}
	return false
}
