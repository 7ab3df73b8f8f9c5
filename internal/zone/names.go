package zone

import (
	"net/netip"
	"slices"
	"strings"

	"github.com/miekg/dns"
)

var addrDashes = strings.NewReplacer(".", "-", ":", "-")

// expandName lower-cases tok, rewrites reserved pool markers on host names
// and appends the default domain to relative single-label names. A trailing
// dot marks a name as absolute and is stripped.
func (p *Parser) expandName(tok string, addr netip.Addr, hostName bool) (string, error) {
	name := strings.ToLower(tok)
	rooted := strings.HasSuffix(name, ".")
	name = strings.TrimSuffix(name, ".")

	if slices.Contains(p.opts.ReservedNames, name) {
		if !hostName || !addr.IsValid() {
			return "", newError(ErrArgument, "%s: reserved name is only valid as a host name", name)
		}
		name = name + "-" + addrDashes.Replace(addr.String())
	}

	if !rooted && !strings.Contains(name, ".") {
		name += p.suffix
	}

	if _, ok := dns.IsDomainName(name); !ok || name == "" {
		return "", newError(ErrArgument, "%s: not a valid domain name", tok)
	}
	return name, nil
}

// isPool reports whether an expanded name belongs to a DHCP pool.
func (p *Parser) isPool(name string) bool {
	return p.opts.PoolPrefix != "" && strings.HasPrefix(name, p.opts.PoolPrefix)
}
