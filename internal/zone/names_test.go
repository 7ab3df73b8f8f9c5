package zone

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandName(t *testing.T) {
	p := NewParser(DefaultOptions("example.com"))
	ip := netip.MustParseAddr("10.1.2.3")

	tests := []struct {
		tok      string
		addr     netip.Addr
		hostName bool
		want     string
		wantErr  bool
	}{
		{tok: "web", want: "web.example.com"},
		{tok: "WEB", want: "web.example.com"},
		{tok: "web.other.org", want: "web.other.org"},
		{tok: "web.", want: "web"},
		{tok: "web.other.org.", want: "web.other.org"},
		{tok: "DHCP.", addr: ip, hostName: true, want: "dhcp-10-1-2-3"},
		{tok: "reserved.", addr: ip, wantErr: true},
		{tok: "dhcp", addr: ip, hostName: true, want: "dhcp-10-1-2-3.example.com"},
		{tok: "reserved", addr: ip, hostName: true, want: "reserved-10-1-2-3.example.com"},
		{tok: "dhcp", addr: netip.MustParseAddr("fd00::1"), hostName: true, want: "dhcp-fd00--1.example.com"},
		{tok: "dhcp", addr: ip, wantErr: true},
		{tok: "dhcp", hostName: true, wantErr: true},
		{tok: "dhcp-pool", want: "dhcp-pool.example.com"},
		{tok: ".", wantErr: true},
		{tok: "a..b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.tok, func(t *testing.T) {
			got, err := p.expandName(tt.tok, tt.addr, tt.hostName)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsPool(t *testing.T) {
	p := NewParser(DefaultOptions("example.com"))
	assert.True(t, p.isPool("dhcp-10-0-0-1.example.com"))
	assert.True(t, p.isPool("dhcpclient.example.com"))
	assert.False(t, p.isPool("reserved-10-0-0-1.example.com"))

	p = NewParser(Options{Domain: "example.com"})
	assert.False(t, p.isPool("dhcp-10-0-0-1.example.com"), "empty prefix disables pools")
}
