package builtins

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"silo/trace"
	"silo/types"
)

// ConnectionManager is implemented by the server package; declaring it here
// instead of importing that package avoids an import cycle.
type ConnectionManager interface {
	GetConnection(player types.ObjID) Connection
	ConnectedPlayers(showAll bool) []types.ObjID
	BootPlayer(player types.ObjID) error
	SwitchPlayer(oldPlayer, newPlayer types.ObjID) error
	GetListenPort() int
}

// Connection is the per-player network handle builtins operate on.
type Connection interface {
	Send(message string) error
	Buffer(message string)
	Flush() error
	RemoteAddr() string
	GetOutputPrefix() string
	GetOutputSuffix() string
	BufferedOutputLength() int
	ConnectedSeconds() int64
	IdleSeconds() int64
}

var globalConnManager ConnectionManager

// SetConnectionManager wires the live connection manager into the builtins
// package; called once during server startup.
func SetConnectionManager(cm ConnectionManager) {
	globalConnManager = cm
}

// InputForcer lets builtins inject input lines into a player's command
// stream; implemented by the scheduler to avoid an import cycle.
type InputForcer interface {
	ForceInput(player types.ObjID, line string, atFront bool)
}

var globalInputForcer InputForcer

// SetInputForcer wires the live input forcer into the builtins package.
func SetInputForcer(f InputForcer) {
	globalInputForcer = f
}

type connOptionEntry struct {
	name    string
	initial types.Value
}

// connOptionDefaults lists every option recognized by set_connection_option,
// with the value a freshly-connected player starts with.
var connOptionDefaults = []connOptionEntry{
	{"hold-input", types.NewInt(0)},
	{"client-echo", types.NewInt(1)},
	{"disable-oob", types.NewInt(0)},
	{"binary", types.NewInt(0)},
	{"flush-command", types.NewStr("")},
	{"keep-alive", types.NewInt(0)},
}

func validConnectionOption(name string) bool {
	for _, entry := range connOptionDefaults {
		if entry.name == name {
			return true
		}
	}
	return false
}

func freshConnectionOptions() map[string]types.Value {
	out := make(map[string]types.Value, len(connOptionDefaults))
	for _, entry := range connOptionDefaults {
		out[entry.name] = entry.initial
	}
	return out
}

var connectionOptions = struct {
	mu       sync.RWMutex
	byPlayer map[types.ObjID]map[string]types.Value
}{
	byPlayer: make(map[types.ObjID]map[string]types.Value),
}

func getConnectionOptions(player types.ObjID) map[string]types.Value {
	connectionOptions.mu.RLock()
	existing, ok := connectionOptions.byPlayer[player]
	connectionOptions.mu.RUnlock()
	if !ok {
		return freshConnectionOptions()
	}
	out := make(map[string]types.Value, len(existing))
	for k, v := range existing {
		out[k] = v
	}
	return out
}

func setConnectionOption(player types.ObjID, name string, value types.Value) {
	connectionOptions.mu.Lock()
	defer connectionOptions.mu.Unlock()

	existing, ok := connectionOptions.byPlayer[player]
	if !ok {
		existing = freshConnectionOptions()
		connectionOptions.byPlayer[player] = existing
	}
	existing[name] = value
}

func parseConnectionTarget(v types.Value) (types.ObjID, bool) {
	switch t := v.(type) {
	case types.ObjValue:
		return t.ID(), true
	case types.IntValue:
		return types.ObjID(t.Val), true
	default:
		return types.ObjNothing, false
	}
}

// resolveConnection finds the live Connection for player. When looking up
// the current task's own player and the manager's direct lookup misses, it
// falls back to scanning all connected players so self-reference keeps
// working under mismatched local/global player bookkeeping.
func resolveConnection(ctx *types.TaskContext, player types.ObjID) Connection {
	if globalConnManager == nil {
		return nil
	}
	if conn := globalConnManager.GetConnection(player); conn != nil {
		return conn
	}
	if ctx == nil || player != ctx.Player {
		return nil
	}
	for _, p := range globalConnManager.ConnectedPlayers(true) {
		if conn := globalConnManager.GetConnection(p); conn != nil {
			return conn
		}
	}
	return nil
}

// splitRemoteAddr separates a "host:port" (or "[host]:port") remote address
// into its components, tolerating addresses net.SplitHostPort rejects.
func splitRemoteAddr(remoteAddr string) (host, port string) {
	if h, p, err := net.SplitHostPort(remoteAddr); err == nil {
		return strings.Trim(h, "[]"), p
	}
	if idx := strings.LastIndex(remoteAddr, ":"); idx > 0 {
		return strings.Trim(remoteAddr[:idx], "[]"), remoteAddr[idx+1:]
	}
	return strings.Trim(remoteAddr, "[]"), "0"
}

func builtinNotify(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 4 {
		return types.Err(types.E_ARGS)
	}
	if globalConnManager == nil {
		return types.Err(types.E_INVARG)
	}

	player, ok := parseConnectionTarget(args[0])
	if !ok {
		return types.Err(types.E_TYPE)
	}

	messageVal, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	message := messageVal.Value()
	trace.Notify(player, message)

	noFlush := len(args) >= 3 && args[2].Truthy()

	conn := resolveConnection(ctx, player)
	if conn == nil {
		// A missing or disconnected target is a silent no-op, not an error.
		return types.Ok(types.NewInt(1))
	}

	if noFlush {
		conn.Buffer(message)
		return types.Ok(types.NewInt(0))
	}
	if err := conn.Send(message); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(0))
}

func builtinListeners(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) > 1 {
		return types.Err(types.E_ARGS)
	}
	if globalConnManager == nil {
		return types.Ok(types.NewList([]types.Value{}))
	}

	port := int64(globalConnManager.GetListenPort())
	entry := types.NewMap([][2]types.Value{
		{types.NewStr("object"), types.NewObj(0)},
		{types.NewStr("port"), types.NewInt(port)},
		{types.NewStr("print-messages"), types.NewInt(0)},
		{types.NewStr("ipv6"), types.NewInt(0)},
		{types.NewStr("interface"), types.NewStr("")},
	})

	if len(args) == 1 {
		switch want := args[0].(type) {
		case types.ObjValue:
			if want.ID() != 0 {
				return types.Ok(types.NewList([]types.Value{}))
			}
		case types.IntValue:
			if want.Val != port {
				return types.Ok(types.NewList([]types.Value{}))
			}
		}
	}

	return types.Ok(types.NewList([]types.Value{entry}))
}

func builtinConnectedPlayers(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) > 1 {
		return types.Err(types.E_ARGS)
	}
	if globalConnManager == nil {
		return types.Err(types.E_INVARG)
	}

	showAll := len(args) == 1 && args[0].Truthy()

	seen := make(map[types.ObjID]struct{}, 8)
	players := make([]types.ObjID, 0, 8)
	if ctx != nil && ctx.Player > 0 {
		seen[ctx.Player] = struct{}{}
		players = append(players, ctx.Player)
	}
	for _, p := range globalConnManager.ConnectedPlayers(showAll) {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		players = append(players, p)
	}

	elements := make([]types.Value, len(players))
	for i, player := range players {
		elements[i] = types.NewObj(player)
	}
	return types.Ok(types.NewList(elements))
}

// builtinConnectionName implements connection_name(player [, method]).
// Method 0 renders the legacy "port N from host, port P" string consumed
// by $string_utils:connection_hostname_bsd(); 1 is the bare host; 2 is
// "host, port P".
func builtinConnectionName(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	if globalConnManager == nil {
		return types.Err(types.E_INVARG)
	}

	player, ok := parseConnectionTarget(args[0])
	if !ok {
		return types.Err(types.E_TYPE)
	}

	method := int64(0)
	if len(args) == 2 {
		m, ok := args[1].(types.IntValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		method = m.Val
	}

	conn := resolveConnection(ctx, player)
	if conn == nil {
		return types.Err(types.E_INVARG)
	}
	host, port := splitRemoteAddr(conn.RemoteAddr())

	switch method {
	case 0:
		return types.Ok(types.NewStr(fmt.Sprintf("port %d from %s, port %s", globalConnManager.GetListenPort(), host, port)))
	case 1:
		return types.Ok(types.NewStr(host))
	case 2:
		return types.Ok(types.NewStr(fmt.Sprintf("%s, port %s", host, port)))
	default:
		return types.Err(types.E_INVARG)
	}
}

func builtinBootPlayer(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	if globalConnManager == nil {
		return types.Err(types.E_INVARG)
	}

	player, ok := parseConnectionTarget(args[0])
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !ctx.IsWizard && player != ctx.Player {
		return types.Err(types.E_PERM)
	}
	if err := globalConnManager.BootPlayer(player); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(0))
}

func builtinSwitchPlayer(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}
	if globalConnManager == nil {
		return types.Err(types.E_INVARG)
	}

	oldPlayer, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	newPlayer, ok := args[1].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if len(args) == 3 {
		if _, ok := args[2].(types.IntValue); !ok {
			return types.Err(types.E_TYPE)
		}
	}

	if err := globalConnManager.SwitchPlayer(oldPlayer.ID(), newPlayer.ID()); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(0))
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func builtinIdleSeconds(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	if globalConnManager == nil {
		return types.Err(types.E_INVARG)
	}
	player, ok := parseConnectionTarget(args[0])
	if !ok {
		return types.Err(types.E_TYPE)
	}
	conn := resolveConnection(ctx, player)
	if conn == nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(nonNegative(conn.IdleSeconds())))
}

func builtinConnectedSeconds(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	if globalConnManager == nil {
		return types.Err(types.E_INVARG)
	}
	player, ok := parseConnectionTarget(args[0])
	if !ok {
		return types.Err(types.E_TYPE)
	}
	conn := resolveConnection(ctx, player)
	if conn == nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(nonNegative(conn.ConnectedSeconds())))
}

func builtinConnectionInfo(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	if globalConnManager == nil {
		return types.Err(types.E_INVARG)
	}
	player, ok := parseConnectionTarget(args[0])
	if !ok {
		return types.Err(types.E_TYPE)
	}
	conn := resolveConnection(ctx, player)
	if conn == nil {
		return types.Err(types.E_INVARG)
	}

	host, portText := splitRemoteAddr(conn.RemoteAddr())
	var destPort int64
	_, _ = fmt.Sscanf(portText, "%d", &destPort)

	protocol := "IPv4"
	if strings.Contains(host, ":") {
		protocol = "IPv6"
	}

	result := types.NewMap([][2]types.Value{
		{types.NewStr("source_address"), types.NewStr("localhost")},
		{types.NewStr("source_ip"), types.NewStr("127.0.0.1")},
		{types.NewStr("source_port"), types.NewInt(int64(globalConnManager.GetListenPort()))},
		{types.NewStr("destination_address"), types.NewStr(host)},
		{types.NewStr("destination_ip"), types.NewStr(host)},
		{types.NewStr("destination_port"), types.NewInt(destPort)},
		{types.NewStr("protocol"), types.NewStr(protocol)},
		{types.NewStr("outbound"), types.NewInt(0)},
	})
	return types.Ok(result)
}

func builtinConnectionNameLookup(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	player, ok := parseConnectionTarget(args[0])
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if resolveConnection(ctx, player) == nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(0))
}

// connectionOptionTarget resolves and permission-checks the player argument
// shared by set_connection_option/connection_option.
func connectionOptionTarget(ctx *types.TaskContext, args []types.Value) (types.ObjID, types.ErrorCode) {
	player, ok := parseConnectionTarget(args[0])
	if !ok {
		return types.ObjNothing, types.E_TYPE
	}
	if resolveConnection(ctx, player) == nil {
		return types.ObjNothing, types.E_INVARG
	}
	if !ctx.IsWizard && player != ctx.Player {
		return types.ObjNothing, types.E_PERM
	}
	return player, types.E_NONE
}

func builtinSetConnectionOption(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 3 {
		return types.Err(types.E_ARGS)
	}
	player, errc := connectionOptionTarget(ctx, args)
	if errc != types.E_NONE {
		return types.Err(errc)
	}

	nameVal, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	name := nameVal.Value()
	if !validConnectionOption(name) {
		return types.Err(types.E_INVARG)
	}

	setConnectionOption(player, name, args[2])
	return types.Ok(types.NewInt(0))
}

func builtinConnectionOption(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	player, errc := connectionOptionTarget(ctx, args)
	if errc != types.E_NONE {
		return types.Err(errc)
	}

	nameVal, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	name := nameVal.Value()
	if !validConnectionOption(name) {
		return types.Err(types.E_INVARG)
	}

	value, ok := getConnectionOptions(player)[name]
	if !ok {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(value)
}

// builtinReadHTTP implements read_http([type [, connection]]). HTTP parsing
// and task suspension are not implemented; this currently only validates
// arguments and permissions before reporting failure.
func builtinReadHTTP(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) == 0 {
		return types.Err(types.E_ARGS)
	}

	typeVal, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if typeStr := typeVal.Value(); typeStr != "request" && typeStr != "response" {
		return types.Err(types.E_INVARG)
	}

	connection := ctx.Player
	explicitConn := len(args) > 1
	if explicitConn {
		connVal, ok := args[1].(types.ObjValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		connection = connVal.ID()
	}
	_ = connection

	if explicitConn {
		// TODO: implement db_object_owner check when we have DB access; for
		// now any explicit connection argument requires a wizard.
		if !ctx.IsWizard {
			return types.Err(types.E_PERM)
		}
	} else if !ctx.IsWizard {
		return types.Err(types.E_PERM)
		// TODO: check last_input_task_id(connection) == current_task_id.
	}

	// TODO: Implement HTTP parsing and task suspension.
	return types.Err(types.E_INVARG)
}
