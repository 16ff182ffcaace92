package builtins

import (
	"silo/types"
	"testing"
)

// fakeConn is a minimal Connection stub that only needs to report a remote
// address for these tests.
type fakeConn struct {
	remote string
}

func (c *fakeConn) Send(string) error        { return nil }
func (c *fakeConn) Buffer(string)             {}
func (c *fakeConn) Flush() error              { return nil }
func (c *fakeConn) RemoteAddr() string        { return c.remote }
func (c *fakeConn) GetOutputPrefix() string   { return "" }
func (c *fakeConn) GetOutputSuffix() string   { return "" }
func (c *fakeConn) BufferedOutputLength() int { return 0 }
func (c *fakeConn) ConnectedSeconds() int64   { return 0 }
func (c *fakeConn) IdleSeconds() int64        { return 0 }

// fakeConnManager always hands back the same connection for every lookup.
type fakeConnManager struct {
	conn       Connection
	listenPort int
}

func (m *fakeConnManager) GetConnection(types.ObjID) Connection        { return m.conn }
func (m *fakeConnManager) ConnectedPlayers(bool) []types.ObjID         { return []types.ObjID{7} }
func (m *fakeConnManager) BootPlayer(types.ObjID) error                { return nil }
func (m *fakeConnManager) SwitchPlayer(types.ObjID, types.ObjID) error { return nil }
func (m *fakeConnManager) GetListenPort() int                         { return m.listenPort }

func TestConnectionNameFormats(t *testing.T) {
	prev := globalConnManager
	defer func() { globalConnManager = prev }()
	globalConnManager = &fakeConnManager{
		conn:       &fakeConn{remote: "[::1]:4567"},
		listenPort: 7777,
	}

	ctx := types.NewTaskContext()
	ctx.Player = 7

	for _, tc := range []struct {
		name string
		args []types.Value
		want string
	}{
		{"legacy format (method 0)", []types.Value{types.NewObj(7)}, "port 7777 from ::1, port 4567"},
		{"host only (method 1)", []types.Value{types.NewObj(7), types.NewInt(1)}, "::1"},
		{"host and port (method 2)", []types.Value{types.NewObj(7), types.NewInt(2)}, "::1, port 4567"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := builtinConnectionName(ctx, tc.args)
			if res.IsError() {
				t.Fatalf("unexpected error: %v", res.Error)
			}
			got, ok := res.Val.(types.StrValue)
			if !ok {
				t.Fatalf("expected string result, got %T", res.Val)
			}
			if got.Value() != tc.want {
				t.Fatalf("got %q, want %q", got.Value(), tc.want)
			}
		})
	}
}
