package ipam

import (
	"context"
	"net/netip"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuriy-kovalchuk/hostdb/internal/plan"
	"github.com/yuriy-kovalchuk/hostdb/internal/zone"
)

type nopBackend struct{ settings map[string]string }

func (nopBackend) Dump(context.Context) ([]string, error)    { return nil, nil }
func (nopBackend) Apply(context.Context, plan.Action) error { return nil }
func (nopBackend) Commit(context.Context) error             { return nil }

func TestRegistry(t *testing.T) {
	Register("test-nop", func(_ logr.Logger, settings map[string]string) (Backend, error) {
		return nopBackend{settings: settings}, nil
	})

	b, err := NewBackend("test-nop", logr.Discard(), map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", b.(nopBackend).settings["k"])
	assert.Contains(t, Registered(), "test-nop")

	assert.Panics(t, func() {
		Register("test-nop", func(logr.Logger, map[string]string) (Backend, error) { return nil, nil })
	})

	_, err = NewBackend("missing", logr.Discard(), nil)
	assert.ErrorContains(t, err, `unsupported IPAM provider: "missing"`)
}

func TestTouchesDHCP(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.5")
	host := func(mac string) plan.HostData {
		return plan.HostData{Network: "10.0.0.0/24", Address: addr, Host: zone.Host{Name: "a.example.com", MAC: mac}}
	}

	tests := []struct {
		name   string
		action plan.Action
		want   bool
	}{
		{"range create", plan.Action{Op: plan.OpCreate, Type: plan.TypeRange, Data: plan.RangeData{}}, true},
		{"host without mac", plan.Action{Op: plan.OpCreate, Type: plan.TypeHost, Data: host("")}, false},
		{"host with mac", plan.Action{Op: plan.OpDelete, Type: plan.TypeHost, Data: host("AA:BB:CC:DD:EE:FF")}, true},
		{"update removing mac", plan.Action{Op: plan.OpUpdate, Type: plan.TypeHost, Data: host(""), OldData: host("AA:BB:CC:DD:EE:FF")}, true},
		{"cname", plan.Action{Op: plan.OpCreate, Type: plan.TypeCname, Data: plan.CnameData{}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TouchesDHCP(tt.action))
		})
	}
}
