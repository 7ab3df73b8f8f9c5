package zone

import (
	"errors"
	"net/netip"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseLines(t *testing.T, lines ...string) (*State, error) {
	t.Helper()
	p := NewParser(DefaultOptions("example.com"))
	err := p.Parse(slices.Values(lines))
	return p.State(), err
}

func mustParse(t *testing.T, lines ...string) *State {
	t.Helper()
	s, err := parseLines(t, lines...)
	require.NoError(t, err)
	return s
}

func addr(s string) netip.Addr { return netip.MustParseAddr(s) }

func rng(start, end string) Range { return Range{Start: addr(start), End: addr(end)} }

func TestParse_SingleDHCPHost(t *testing.T) {
	s := mustParse(t,
		"network 10.0.0.0/24",
		"host 10.0.0.5",
		"name dhcp",
		"host 10.0.0.6",
		"name web",
	)

	n, ok := s.Network("10.0.0.0/24")
	require.True(t, ok)
	assert.Equal(t, []Range{rng("10.0.0.5", "10.0.0.5")}, n.Ranges())

	h, ok := n.Host(addr("10.0.0.5"))
	require.True(t, ok)
	assert.Equal(t, "dhcp-10-0-0-5.example.com", h.Name)

	h, ok = n.Host(addr("10.0.0.6"))
	require.True(t, ok)
	assert.Equal(t, "web.example.com", h.Name)
}

func TestParse_RangeInference(t *testing.T) {
	s := mustParse(t,
		"network 10.0.0.0/24",
		"host 10.0.0.1", "name web",
		"host 10.0.0.2", "name dhcp-a",
		"host 10.0.0.3", "name dhcp-b",
		"host 10.0.0.4", "name web2",
	)

	n, _ := s.Network("10.0.0.0/24")
	assert.Equal(t, []Range{rng("10.0.0.2", "10.0.0.3")}, n.Ranges())
}

func TestParse_RangeClosing(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  map[string][]Range
	}{
		{
			name: "end of input closes at last host",
			lines: []string{
				"network 10.0.0.0/24",
				"host 10.0.0.1", "name web",
				"host 10.0.0.2", "name dhcp",
				"host 10.0.0.3", "name dhcp",
			},
			want: map[string][]Range{"10.0.0.0/24": {rng("10.0.0.2", "10.0.0.3")}},
		},
		{
			name: "two runs in one network",
			lines: []string{
				"network 10.0.0.0/24",
				"host 10.0.0.1", "name dhcp",
				"host 10.0.0.2", "name dhcp",
				"host 10.0.0.3", "name gw",
				"host 10.0.0.4", "name reserved",
				"host 10.0.0.5", "name dhcp",
			},
			want: map[string][]Range{"10.0.0.0/24": {
				rng("10.0.0.1", "10.0.0.2"),
				rng("10.0.0.5", "10.0.0.5"),
			}},
		},
		{
			name: "new network closes pending range",
			lines: []string{
				"network 10.0.0.0/24",
				"host 10.0.0.10", "name dhcp",
				"host 10.0.0.11", "name dhcp",
				"network 10.0.1.0/24",
				"host 10.0.1.1", "name gw",
			},
			want: map[string][]Range{
				"10.0.0.0/24": {rng("10.0.0.10", "10.0.0.11")},
				"10.0.1.0/24": nil,
			},
		},
		{
			name: "unnamed host inside a run",
			lines: []string{
				"network 10.0.0.0/24",
				"host 10.0.0.1", "name dhcp",
				"host 10.0.0.2",
				"host 10.0.0.3", "name gw",
			},
			want: map[string][]Range{"10.0.0.0/24": {rng("10.0.0.1", "10.0.0.2")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustParse(t, tt.lines...)
			for cidr, want := range tt.want {
				n, ok := s.Network(cidr)
				require.True(t, ok, cidr)
				if want == nil {
					assert.Empty(t, n.Ranges(), cidr)
					continue
				}
				assert.Equal(t, want, n.Ranges(), cidr)
			}
		})
	}
}

func TestParse_HostRecord(t *testing.T) {
	s := mustParse(t,
		"# office network",
		"network 192.168.1.0/24   # trailing comment",
		"",
		"host 192.168.1.20",
		"  name printer",
		"  mac aa:bb:cc:dd:ee:0f",
		"  comment 2nd floor, room 12",
		"  alias lp",
		"  alias scan.other.org",
	)

	n, _ := s.Network("192.168.1.0/24")
	assert.Equal(t, netip.MustParsePrefix("192.168.1.0/24"), n.Prefix())
	h, ok := n.Host(addr("192.168.1.20"))
	require.True(t, ok)
	assert.Equal(t, Host{
		Name:    "printer.example.com",
		MAC:     "AA:BB:CC:DD:EE:0F",
		Comment: "2nd floor, room 12",
		Aliases: []string{"lp.example.com", "scan.other.org"},
	}, h)
}

func TestParse_NamesAreLowerCased(t *testing.T) {
	s := mustParse(t, "network 10.0.0.0/8", "host 10.1.2.3", "name Web.Example.COM")
	n, _ := s.Network("10.0.0.0/8")
	h, _ := n.Host(addr("10.1.2.3"))
	assert.Equal(t, "web.example.com", h.Name)
}

func TestParse_Cnames(t *testing.T) {
	s := mustParse(t,
		"network 10.0.0.0/24",
		"host 10.0.0.2", "name bob",
		"cname alice", "target bob",
		"cname carol", "target bob",
		"cname www", "target site.other.org",
	)

	assert.Equal(t, []CnameSet{
		{Canonical: "bob.example.com", Aliases: []string{"alice.example.com", "carol.example.com"}},
		{Canonical: "site.other.org", Aliases: []string{"www.example.com"}},
	}, s.Cnames())

	target, ok := s.CnameTarget("alice.example.com")
	require.True(t, ok)
	assert.Equal(t, "bob.example.com", target)
	assert.True(t, s.HasCname("site.other.org", "www.example.com"))

	_, ok = s.CnameTarget("bob.example.com")
	assert.False(t, ok, "canonical names are not cname aliases")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		wantErr error
		wantMsg string
	}{
		{
			name:    "unknown directive",
			lines:   []string{"zone example.com"},
			wantErr: ErrDirective,
			wantMsg: "zone",
		},
		{
			name:    "host before network",
			lines:   []string{"host 10.0.0.9"},
			wantErr: ErrMissingParent,
		},
		{
			name:    "name outside host",
			lines:   []string{"network 10.0.0.0/24", "name web"},
			wantErr: ErrContext,
			wantMsg: "current context is network, but host required",
		},
		{
			name:    "mac before any declaration",
			lines:   []string{"mac 00:11:22:33:44:55"},
			wantErr: ErrContext,
		},
		{
			name:    "target without cname",
			lines:   []string{"target web"},
			wantErr: ErrContext,
		},
		{
			name:    "host after cname",
			lines:   []string{"network 10.0.0.0/24", "cname a", "target b", "host 10.0.0.1"},
			wantErr: ErrContext,
		},
		{
			name:    "cname without target at end",
			lines:   []string{"network 10.0.0.0/24", "cname www"},
			wantErr: ErrContext,
			wantMsg: "www.example.com: cname has no target",
		},
		{
			name:    "cname without target before network",
			lines:   []string{"cname www", "network 10.0.0.0/24"},
			wantErr: ErrContext,
			wantMsg: "cname has no target",
		},
		{
			name:    "cname without target before cname",
			lines:   []string{"cname www", "cname ftp", "target web"},
			wantErr: ErrContext,
			wantMsg: "www.example.com: cname has no target",
		},
		{
			name:    "mac before name",
			lines:   []string{"network 10.0.0.0/24", "host 10.0.0.1", "mac 00:11:22:33:44:55"},
			wantErr: ErrOrdering,
		},
		{
			name:    "comment before name",
			lines:   []string{"network 10.0.0.0/24", "host 10.0.0.1", "comment hello"},
			wantErr: ErrOrdering,
		},
		{
			name:    "alias before name",
			lines:   []string{"network 10.0.0.0/24", "host 10.0.0.1", "alias www"},
			wantErr: ErrOrdering,
		},
		{
			name:    "duplicate network",
			lines:   []string{"network 10.0.0.0/24", "network 10.0.0.0/24"},
			wantErr: ErrDuplicate,
		},
		{
			name:    "duplicate host",
			lines:   []string{"network 10.0.0.0/24", "host 10.0.0.1", "host 10.0.0.1"},
			wantErr: ErrDuplicate,
		},
		{
			name:    "second name",
			lines:   []string{"network 10.0.0.0/24", "host 10.0.0.1", "name a", "name b"},
			wantErr: ErrDuplicate,
		},
		{
			name: "second mac",
			lines: []string{"network 10.0.0.0/24", "host 10.0.0.1", "name a",
				"mac 00:11:22:33:44:55", "mac 00:11:22:33:44:56"},
			wantErr: ErrDuplicate,
		},
		{
			name:    "second comment",
			lines:   []string{"network 10.0.0.0/24", "host 10.0.0.1", "name a", "comment x", "comment y"},
			wantErr: ErrDuplicate,
		},
		{
			name:    "host outside network",
			lines:   []string{"network 10.0.0.0/24", "host 10.0.1.1"},
			wantErr: ErrMembership,
			wantMsg: "10.0.0.0-10.0.0.255",
		},
		{
			name:    "name reused",
			lines:   []string{"network 10.0.0.0/24", "host 10.0.0.1", "name a", "host 10.0.0.2", "name a"},
			wantErr: ErrNamingConflict,
			wantMsg: "already the canonical name of 10.0.0.1",
		},
		{
			name: "alias reuses canonical name",
			lines: []string{"network 10.0.0.0/24", "host 10.0.0.1", "name a",
				"host 10.0.0.2", "name b", "alias a"},
			wantErr: ErrNamingConflict,
		},
		{
			name: "cname reuses host alias",
			lines: []string{"network 10.0.0.0/24", "host 10.0.0.1", "name a", "alias www",
				"cname www", "target a"},
			wantErr: ErrNamingConflict,
			wantMsg: "alias for a.example.com",
		},
		{
			name:    "name reuses cname alias",
			lines:   []string{"cname web", "target x", "network 10.0.0.0/24", "host 10.0.0.1", "name web"},
			wantErr: ErrNamingConflict,
			wantMsg: "cname alias for x.example.com",
		},
		{
			name:    "mac on dhcp host",
			lines:   []string{"network 10.0.0.0/24", "host 10.0.0.1", "name dhcp", "mac 00:11:22:33:44:55"},
			wantErr: ErrArgument,
		},
		{
			name:    "reserved marker as alias",
			lines:   []string{"network 10.0.0.0/24", "host 10.0.0.1", "name a", "alias dhcp"},
			wantErr: ErrArgument,
		},
		{
			name:    "reserved marker as cname",
			lines:   []string{"cname reserved"},
			wantErr: ErrArgument,
		},
		{
			name:    "cname points at itself",
			lines:   []string{"cname a", "target a"},
			wantErr: ErrArgument,
		},
		{
			name:    "missing network address",
			lines:   []string{"network"},
			wantErr: ErrArgument,
		},
		{
			name:    "bad cidr",
			lines:   []string{"network 10.0.0.300/24"},
			wantErr: ErrArgument,
		},
		{
			name:    "host bits set",
			lines:   []string{"network 10.0.0.1/24"},
			wantErr: ErrArgument,
		},
		{
			name:    "bad mac",
			lines:   []string{"network 10.0.0.0/24", "host 10.0.0.1", "name a", "mac nope"},
			wantErr: ErrArgument,
		},
		{
			name:    "two names on one line",
			lines:   []string{"network 10.0.0.0/24", "host 10.0.0.1", "name a b"},
			wantErr: ErrArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseLines(t, tt.lines...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParse_ErrorPosition(t *testing.T) {
	p := NewParser(DefaultOptions("example.com"))
	input := "network 10.0.0.0/24\n\n# hosts\nhost 10.0.0.1\nmac 00:11:22:33:44:55\n"

	err := p.ParseReader("office.zone", strings.NewReader(input))
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "office.zone", perr.Source)
	assert.Equal(t, 5, perr.Line)
	assert.Equal(t, "mac", perr.Directive)
	assert.True(t, strings.HasPrefix(err.Error(), "office.zone:5: mac: "), err.Error())
}

func TestParse_CnameWithoutTargetPosition(t *testing.T) {
	p := NewParser(DefaultOptions("example.com"))
	input := "network 10.0.0.0/24\nhost 10.0.0.1\nname web\n\ncname www\n# no target\n"

	err := p.ParseReader("office.zone", strings.NewReader(input))
	require.ErrorIs(t, err, ErrContext)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "office.zone", perr.Source)
	assert.Equal(t, 5, perr.Line)
	assert.Equal(t, "cname", perr.Directive)
	assert.Empty(t, p.State().Cnames())
}

func TestParse_StopsAtFirstError(t *testing.T) {
	s, err := parseLines(t,
		"network 10.0.0.0/24",
		"host 10.0.0.1",
		"bogus",
		"host 10.0.0.2",
	)
	require.ErrorIs(t, err, ErrDirective)

	n, _ := s.Network("10.0.0.0/24")
	assert.Equal(t, 1, n.Len())
}

func TestParser_MultipleSources(t *testing.T) {
	p := NewParser(DefaultOptions("example.com"))

	require.NoError(t, p.Parse(slices.Values([]string{"network 10.0.0.0/24", "host 10.0.0.1", "name a"})))
	require.NoError(t, p.Parse(slices.Values([]string{"network 10.0.1.0/24", "host 10.0.1.1", "name b"})))
	assert.Len(t, p.State().Networks(), 2)

	// Names are unique across sources.
	err := p.Parse(slices.Values([]string{"network 10.0.2.0/24", "host 10.0.2.1", "name a"}))
	assert.ErrorIs(t, err, ErrNamingConflict)

	// Each pass starts without an open network.
	err = p.Parse(slices.Values([]string{"host 10.0.1.2"}))
	assert.ErrorIs(t, err, ErrMissingParent)

	p.Reset()
	assert.Empty(t, p.State().Networks())
	require.NoError(t, p.Parse(slices.Values([]string{"network 10.0.0.0/24", "host 10.0.0.1", "name a"})))
}

func TestParse_CustomOptions(t *testing.T) {
	p := NewParser(Options{
		Domain:        "lan.",
		CommentMarker: ";",
		PoolPrefix:    "pool",
		ReservedNames: []string{"pool", "ledig"},
	})
	err := p.Parse(slices.Values([]string{
		"network 10.0.0.0/29 ; lab",
		"host 10.0.0.1", "name pool",
		"host 10.0.0.2", "name ledig",
		"host 10.0.0.3", "name dhcp # not a comment here",
	}))
	require.ErrorIs(t, err, ErrArgument, "'#' is not the comment marker")

	p.Reset()
	require.NoError(t, p.Parse(slices.Values([]string{
		"network 10.0.0.0/29 ; lab",
		"host 10.0.0.1", "name pool",
		"host 10.0.0.2", "name ledig",
	})))
	n, _ := p.State().Network("10.0.0.0/29")
	h, _ := n.Host(addr("10.0.0.2"))
	assert.Equal(t, "ledig-10-0-0-2.lan", h.Name)
	assert.Equal(t, []Range{rng("10.0.0.1", "10.0.0.1")}, n.Ranges())
}

func TestState_Summary(t *testing.T) {
	s := mustParse(t,
		"network 10.0.0.0/24",
		"host 10.0.0.1", "name dhcp",
		"host 10.0.0.2", "name a",
		"cname b", "target a",
	)
	assert.Equal(t, "1 networks, 2 hosts, 1 ranges, 1 cnames", s.Summary())
}
