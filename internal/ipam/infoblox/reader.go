package infoblox

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

type network struct {
	Network string `json:"network"`
	Comment string `json:"comment"`
}

type ipv4Address struct {
	IPAddress  string   `json:"ip_address"`
	MACAddress string   `json:"mac_address"`
	Names      []string `json:"names"`
	Types      []string `json:"types"`
}

type hostRecord struct {
	Name    string   `json:"name"`
	Comment string   `json:"comment"`
	Aliases []string `json:"aliases"`
}

type cnameRecord struct {
	Name      string `json:"name"`
	Canonical string `json:"canonical"`
}

var commentNewlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Dump reads the live IPAM state and renders it as zone file lines. DHCP
// pools are not read directly: the parser rebuilds them from the pool host
// names, the same way it does for a hand written zone file.
func (p *Provider) Dump(ctx context.Context) ([]string, error) {
	nets, err := list[network](ctx, p.wapi, "network", url.Values{"_return_fields": {"network,comment"}})
	if err != nil {
		return nil, fmt.Errorf("infoblox: list networks: %w", err)
	}

	var lines []string
	for _, n := range nets {
		lines = append(lines, "", "network\t"+n.Network)

		addrs, err := list[ipv4Address](ctx, p.wapi, "ipv4address", url.Values{
			"network": {n.Network},
			"status":  {"USED"},
		})
		if err != nil {
			return nil, fmt.Errorf("infoblox: list addresses of %s: %w", n.Network, err)
		}
		for _, a := range addrs {
			if slices.Contains(a.Types, "NETWORK") || slices.Contains(a.Types, "BROADCAST") {
				continue
			}
			hostLines, err := p.dumpAddress(ctx, a)
			if err != nil {
				return nil, err
			}
			lines = append(lines, hostLines...)
		}
	}

	cnames, err := list[cnameRecord](ctx, p.wapi, "record:cname", url.Values{"_return_fields": {"name,canonical"}})
	if err != nil {
		return nil, fmt.Errorf("infoblox: list cnames: %w", err)
	}
	for _, c := range cnames {
		lines = append(lines, "", "cname\t"+c.Name, "target\t"+c.Canonical)
	}

	p.log.V(1).Info("dumped IPAM state", "networks", len(nets), "cnames", len(cnames), "lines", len(lines))
	return lines, nil
}

func (p *Provider) dumpAddress(ctx context.Context, a ipv4Address) ([]string, error) {
	lines := []string{"", "host\t" + a.IPAddress}

	var name string
	if len(a.Names) > 0 {
		name = a.Names[0]
		if len(a.Names) > 1 {
			p.log.Info("ignoring additional names", "address", a.IPAddress, "names", a.Names[1:])
		}
	}
	if name != "" {
		lines = append(lines, "name\t"+name)
		info, err := p.hostInfo(ctx, name)
		if err != nil {
			return nil, err
		}
		if info.Comment != "" {
			comment := commentNewlines.Replace(info.Comment)
			if p.commentMarker != "" && strings.Contains(comment, p.commentMarker) {
				p.log.Info("comment contains the comment marker and will be truncated", "name", name, "comment", comment)
			}
			lines = append(lines, "comment\t"+comment)
		}
		for _, alias := range info.Aliases {
			lines = append(lines, "alias\t"+alias)
		}
	}
	if a.MACAddress != "" && name != "" && !(p.poolPrefix != "" && strings.HasPrefix(name, p.poolPrefix)) {
		lines = append(lines, "mac\t"+a.MACAddress)
	}
	return lines, nil
}

// hostInfo returns the comment and aliases of the host record called name.
// Addresses used by other object types have no host record.
func (p *Provider) hostInfo(ctx context.Context, name string) (hostRecord, error) {
	recs, err := list[hostRecord](ctx, p.wapi, "record:host", url.Values{
		"name":           {name},
		"_return_fields": {"name,comment,aliases"},
	})
	if err != nil {
		return hostRecord{}, fmt.Errorf("infoblox: host %s: %w", name, err)
	}
	switch len(recs) {
	case 0:
		return hostRecord{}, nil
	case 1:
		return recs[0], nil
	default:
		return hostRecord{}, fmt.Errorf("infoblox: host %s matched %d records: %w", name, len(recs), ErrAmbiguous)
	}
}
