package infoblox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/client-go/util/retry"

	"github.com/yuriy-kovalchuk/hostdb/internal/ipam"
	"github.com/yuriy-kovalchuk/hostdb/internal/plan"
)

func init() {
	ipam.Register("infoblox", func(log logr.Logger, settings map[string]string) (ipam.Backend, error) {
		return New(log, settings)
	})
}

// Provider implements ipam.Backend for Infoblox NIOS through WAPI.
type Provider struct {
	wapi          *wapi
	failover      string
	poolPrefix    string
	commentMarker string
	restart       bool
	dhcpDirty     bool
	log           logr.Logger
}

// New creates an Infoblox provider from the given settings map.
// Required settings: base_url (including the WAPI version path), username,
// password.
// Optional settings: skip_tls_verify (default false), page_size (default
// 500), timeout (default 30s), failover_association, pool_prefix (default
// "dhcp"), comment_marker (default "#"), restart_services (default true).
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	baseURL := settings["base_url"]
	if baseURL == "" {
		return nil, fmt.Errorf("infoblox: missing required setting 'base_url'")
	}
	username := settings["username"]
	if username == "" {
		return nil, fmt.Errorf("infoblox: missing required setting 'username'")
	}
	password := settings["password"]
	if password == "" {
		return nil, fmt.Errorf("infoblox: missing required setting 'password'")
	}

	pageSize := 500
	if v := settings["page_size"]; v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("infoblox: invalid page_size %q", v)
		}
		pageSize = parsed
	}

	timeout := 30 * time.Second
	if v := settings["timeout"]; v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("infoblox: invalid timeout %q: %w", v, err)
		}
		timeout = parsed
	}

	restart := true
	if v := settings["restart_services"]; v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("infoblox: invalid restart_services %q: %w", v, err)
		}
		restart = parsed
	}

	poolPrefix := "dhcp"
	if v, ok := settings["pool_prefix"]; ok {
		poolPrefix = v
	}
	commentMarker := "#"
	if v, ok := settings["comment_marker"]; ok {
		commentMarker = v
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if v := settings["skip_tls_verify"]; v == "true" {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Provider{
		wapi: &wapi{
			baseURL:  baseURL,
			username: username,
			password: password,
			pageSize: pageSize,
			client:   &http.Client{Transport: transport, Timeout: timeout},
			backoff:  retry.DefaultBackoff,
			log:      log,
		},
		failover:      settings["failover_association"],
		poolPrefix:    poolPrefix,
		commentMarker: commentMarker,
		restart:       restart,
		log:           log,
	}, nil
}

// Apply performs one plan action.
func (p *Provider) Apply(ctx context.Context, a plan.Action) error {
	var (
		wrote bool
		err   error
	)
	switch d := a.Data.(type) {
	case plan.HostData:
		wrote, err = p.applyHost(ctx, a, d)
	case plan.RangeData:
		wrote, err = true, p.applyRange(ctx, a.Op, d)
	case plan.CnameData:
		wrote, err = true, p.applyCname(ctx, a.Op, d)
	default:
		return fmt.Errorf("infoblox: unsupported action payload %T", a.Data)
	}
	if err != nil {
		return fmt.Errorf("infoblox: %s: %w", a, err)
	}
	if wrote && ipam.TouchesDHCP(a) {
		p.dhcpDirty = true
	}
	return nil
}

// buildHostBody creates the JSON body for record:host create and update
// calls. Updates always send comment and aliases so removed values are
// cleared.
func buildHostBody(d plan.HostData, update bool) map[string]interface{} {
	addr := map[string]interface{}{
		"ipv4addr": d.Address.String(),
	}
	if d.Host.MAC != "" {
		addr["mac"] = d.Host.MAC
		addr["configure_for_dhcp"] = true
	} else if update {
		addr["configure_for_dhcp"] = false
	}

	body := map[string]interface{}{
		"name":      d.Host.Name,
		"ipv4addrs": []interface{}{addr},
	}
	if update || d.Host.Comment != "" {
		body["comment"] = d.Host.Comment
	}
	if update || len(d.Host.Aliases) > 0 {
		aliases := d.Host.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		body["aliases"] = aliases
	}
	return body
}

func (p *Provider) hostRef(ctx context.Context, name string) (string, error) {
	return p.wapi.ref(ctx, "record:host", url.Values{"name": {name}})
}

// applyHost reports whether anything was written. Records without a name
// cannot exist in Infoblox, so they are skipped.
func (p *Provider) applyHost(ctx context.Context, a plan.Action, d plan.HostData) (bool, error) {
	switch a.Op {
	case plan.OpCreate:
		if d.Host.Name == "" {
			p.log.Info("skipping host without a name", "address", d.Address, "network", d.Network)
			return false, nil
		}
		ref, err := p.wapi.create(ctx, "record:host", buildHostBody(d, false))
		if err != nil {
			return false, err
		}
		p.log.Info("host created", "ref", ref)
		return true, nil

	case plan.OpUpdate:
		old, ok := a.OldData.(plan.HostData)
		if !ok || old.Host.Name == "" {
			return false, fmt.Errorf("update without previous host name")
		}
		ref, err := p.hostRef(ctx, old.Host.Name)
		if err != nil {
			return false, err
		}
		if d.Host.Name == "" {
			if err := p.wapi.remove(ctx, ref); err != nil {
				return false, err
			}
			p.log.Info("host removed, new record has no name", "ref", ref)
			return true, nil
		}
		newRef, err := p.wapi.update(ctx, ref, buildHostBody(d, true))
		if err != nil {
			return false, err
		}
		p.log.Info("host updated", "ref", newRef)
		return true, nil

	case plan.OpDelete:
		if d.Host.Name == "" {
			p.log.V(1).Info("nothing to delete for unnamed address", "address", d.Address)
			return false, nil
		}
		ref, err := p.hostRef(ctx, d.Host.Name)
		if err != nil {
			return false, err
		}
		if err := p.wapi.remove(ctx, ref); err != nil {
			return false, err
		}
		p.log.Info("host deleted", "ref", ref)
		return true, nil
	}
	return false, fmt.Errorf("unsupported op %q", a.Op)
}

func (p *Provider) applyRange(ctx context.Context, op plan.Op, d plan.RangeData) error {
	start, end := d.Range.Start.String(), d.Range.End.String()
	switch op {
	case plan.OpCreate:
		if !d.Range.IPRange().IsValid() {
			return fmt.Errorf("range %s is not in ascending order", d.Range)
		}
		body := map[string]interface{}{
			"network":    d.Network,
			"start_addr": start,
			"end_addr":   end,
		}
		if p.failover != "" {
			body["server_association_type"] = "FAILOVER"
			body["failover_association"] = p.failover
		}
		ref, err := p.wapi.create(ctx, "range", body)
		if err != nil {
			return err
		}
		p.log.Info("range created", "ref", ref)
		return nil

	case plan.OpDelete:
		ref, err := p.wapi.ref(ctx, "range", url.Values{"start_addr": {start}, "end_addr": {end}})
		if err != nil {
			return err
		}
		if err := p.wapi.remove(ctx, ref); err != nil {
			return err
		}
		p.log.Info("range deleted", "ref", ref)
		return nil
	}
	return fmt.Errorf("unsupported op %q", op)
}

func (p *Provider) applyCname(ctx context.Context, op plan.Op, d plan.CnameData) error {
	switch op {
	case plan.OpCreate:
		ref, err := p.wapi.create(ctx, "record:cname", map[string]interface{}{
			"name":      d.Alias,
			"canonical": d.Canonical,
		})
		if err != nil {
			return err
		}
		p.log.Info("cname created", "ref", ref)
		return nil

	case plan.OpDelete:
		ref, err := p.wapi.ref(ctx, "record:cname", url.Values{"name": {d.Alias}})
		if err != nil {
			return err
		}
		if err := p.wapi.remove(ctx, ref); err != nil {
			return err
		}
		p.log.Info("cname deleted", "ref", ref)
		return nil
	}
	return fmt.Errorf("unsupported op %q", op)
}

// Commit restarts the grid's DHCP service once if any applied action touched
// DHCP data.
func (p *Provider) Commit(ctx context.Context) error {
	if !p.dhcpDirty {
		return nil
	}
	if !p.restart {
		p.log.Info("DHCP data changed, service restart disabled")
		p.dhcpDirty = false
		return nil
	}

	gridRef, err := p.wapi.ref(ctx, "grid", nil)
	if err != nil {
		return fmt.Errorf("infoblox: restart DHCP: %w", err)
	}
	err = p.wapi.call(ctx, gridRef, "requestrestartservices", map[string]interface{}{
		"member_order":   "SEQUENTIALLY",
		"restart_option": "RESTART_IF_NEEDED",
		"service_option": "DHCP",
	})
	if err != nil {
		return fmt.Errorf("infoblox: restart DHCP: %w", err)
	}
	p.dhcpDirty = false
	p.log.Info("DHCP restart requested", "grid", gridRef)
	return nil
}
