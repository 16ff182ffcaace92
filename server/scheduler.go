package server

import (
	"silo/db"
	"silo/eval"
	"silo/parser"
	"silo/task"
	"silo/trace"
	"silo/types"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// InputEvent represents a line of input (or disconnect) from a connection.
// Connection goroutines enqueue these; the scheduler processes them.
type InputEvent struct {
	ConnID       int64
	Player       types.ObjID // negative = pre-login, positive = logged-in
	Line         string
	IsDisconnect bool
	Done         chan struct{} // Closed when processing is complete
}

// Scheduler manages task execution. All MOO code in the database runs
// through a single shared evaluator; execSlot enforces LambdaMOO's
// single-threaded execution model (one task's code running at a time) while
// letting a suspended task's goroutine park for free.
type Scheduler struct {
	tasks       map[int64]*task.Task
	nextTaskID  int64
	evaluator   *eval.Evaluator
	execSlot    chan struct{}
	store       *db.Store
	connManager *ConnectionManager
	inputQueue  chan InputEvent
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewScheduler creates a new task scheduler
func NewScheduler(store *db.Store) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		tasks:      make(map[int64]*task.Task),
		nextTaskID: 1,
		evaluator:  eval.NewEvaluatorWithStore(store),
		execSlot:   make(chan struct{}, 1),
		store:      store,
		inputQueue: make(chan InputEvent, 256),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.execSlot <- struct{}{}

	return s
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// GetEvaluator returns the scheduler's shared evaluator
func (s *Scheduler) GetEvaluator() *eval.Evaluator {
	return s.evaluator
}

// SetConnectionManager sets the connection manager for output flushing
func (s *Scheduler) SetConnectionManager(cm *ConnectionManager) {
	s.connManager = cm
}

// EnqueueInput sends an input event to the scheduler for processing.
// The caller should wait on evt.Done to know when processing is complete.
func (s *Scheduler) EnqueueInput(evt InputEvent) {
	s.inputQueue <- evt
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case input := <-s.inputQueue:
			s.processInput(input)
		case <-ticker.C:
			s.wakeTimedTasks()
		}
	}
}

// processInput handles an input event from a connection.
// Login and command dispatch happen here, on the scheduler goroutine,
// matching Toast's single-threaded execution model. Background execution of
// the resulting verb task itself happens on its own goroutine (see
// executeVerbTaskSync), so a task that suspends does not stall this loop.
func (s *Scheduler) processInput(input InputEvent) {
	defer func() {
		if input.Done != nil {
			close(input.Done)
		}
	}()

	if input.IsDisconnect {
		s.processDisconnect(input)
		return
	}

	// Check if a task is read()ing from this player — if so, route input there
	if s.deliverToReadingTask(input.Player, input.Line) {
		return
	}

	if input.Player < 0 {
		s.processPreLogin(input)
		return
	}

	s.processCommand(input)
}

// deliverToReadingTask checks whether any suspended task is read()ing from the
// given player. If found, clears the reading flag and resumes the task with the
// input line. Returns true if delivered.
func (s *Scheduler) deliverToReadingTask(player types.ObjID, line string) bool {
	mgr := task.GetManager()
	t := mgr.FindReadingTask(player)
	if t == nil {
		return false
	}
	t.ReadingPlayer = types.ObjNothing
	t.Resume(types.NewStr(line))
	return true
}

// ForceInput implements builtins.InputForcer.
// It injects a line of input for the given player. If a task is currently
// read()ing from that player, the line resumes it directly. Otherwise the
// line is enqueued as a normal InputEvent.
func (s *Scheduler) ForceInput(player types.ObjID, line string, atFront bool) {
	if s.deliverToReadingTask(player, line) {
		return
	}

	connID := int64(0)
	if s.connManager != nil {
		if conn := s.connManager.GetConnection(player); conn != nil {
			if c, ok := conn.(*Connection); ok {
				connID = c.ID
			}
		}
	}
	s.inputQueue <- InputEvent{ConnID: connID, Player: player, Line: line}
}

// processDisconnect handles a disconnect event.
func (s *Scheduler) processDisconnect(input InputEvent) {
	cm := s.connManager
	if cm == nil {
		return
	}

	cm.mu.Lock()
	conn := cm.connections[input.ConnID]
	if conn == nil {
		cm.mu.Unlock()
		return
	}

	wasLoggedIn := conn.IsLoggedIn()
	player := conn.GetPlayer()

	if wasLoggedIn {
		delete(cm.playerConns, player)
	} else {
		delete(cm.playerConns, types.ObjID(-conn.ID))
	}
	cm.mu.Unlock()

	if wasLoggedIn {
		trace.Connection("DISCONNECT", conn.ID, player, "")
	} else {
		trace.Connection("DISCONNECT", conn.ID, types.ObjID(-conn.ID), "unlogged")
	}

	if wasLoggedIn {
		s.callUserDisconnected(player)
	}

	log.Printf("Connection %d closed", conn.ID)
}

// processPreLogin handles input from an unauthenticated connection.
func (s *Scheduler) processPreLogin(input InputEvent) {
	cm := s.connManager
	if cm == nil {
		return
	}

	conn := cm.getConnectionByConnID(input.ConnID)
	if conn == nil {
		return
	}

	if !s.shouldCallDoLoginCommand(conn, input.Line) {
		return
	}

	player, _ := s.callDoLoginCommand(conn, input.Line)
	if player > 0 {
		s.loginPlayer(conn, player)
	}
}

// processCommand handles input from an authenticated (logged-in) connection.
func (s *Scheduler) processCommand(input InputEvent) {
	cm := s.connManager
	if cm == nil {
		return
	}

	conn := cm.getConnectionByConnID(input.ConnID)
	if conn == nil {
		return
	}

	player := conn.GetPlayer()
	playerObj := s.store.Get(player)
	if playerObj == nil {
		return
	}
	location := playerObj.Location

	cmd := ParseCommand(input.Line)
	if cmd.Verb == "" {
		return
	}

	// Handle intrinsic commands (PREFIX, SUFFIX, OUTPUTPREFIX, OUTPUTSUFFIX, EVAL)
	verbUpper := strings.ToUpper(cmd.Verb)
	switch verbUpper {
	case "PREFIX", "OUTPUTPREFIX":
		conn.SetOutputPrefix(cmd.Argstr)
		return
	case "SUFFIX", "OUTPUTSUFFIX":
		conn.SetOutputSuffix(cmd.Argstr)
		return
	case "EVAL":
		code := strings.TrimSpace(cmd.Argstr)
		if code == "" {
			return
		}
		// Try database verb dispatch first (matches Toast behavior).
		// In Toast, eval is NOT an intrinsic -- it goes through normal
		// verb dispatch, letting database-defined eval verbs (e.g. #2:eval)
		// handle formatting and set_task_perms.
		match := FindVerb(s.store, player, location, cmd)
		if match != nil {
			if match.Verb.Program == nil && len(match.Verb.Code) > 0 {
				program, errs := db.CompileVerb(match.Verb.Code)
				if len(errs) > 0 {
					conn.Send(fmt.Sprintf("Verb compile error: %s", errs[0]))
					return
				}
				match.Verb.Program = program
			}
			if match.Verb.Program != nil {
				outputPrefix := conn.GetOutputPrefix()
				outputSuffix := conn.GetOutputSuffix()
				if outputPrefix != "" {
					_ = conn.Send(outputPrefix)
				}
				s.executeVerbTaskSync(player, match, cmd, outputSuffix)
				return
			}
		}
		s.EvalCommand(player, code, conn)
		return
	}

	outputPrefix := conn.GetOutputPrefix()
	outputSuffix := conn.GetOutputSuffix()
	if outputPrefix != "" {
		_ = conn.Send(outputPrefix)
	}

	// Invoke #0:do_command for normal commands
	handled, _ := s.callDoCommand(player, input.Line)
	if handled {
		if outputSuffix != "" {
			_ = conn.Send(outputSuffix)
		}
		return
	}

	if cmd.Dobjstr != "" {
		cmd.Dobj = MatchObject(s.store, player, location, cmd.Dobjstr)
	}
	if cmd.Iobjstr != "" {
		cmd.Iobj = MatchObject(s.store, player, location, cmd.Iobjstr)
	}

	match := FindVerb(s.store, player, location, cmd)
	if match == nil {
		if hasVerbNameMatch(s.store, player, location, cmd) {
			conn.Send("I couldn't understand that.")
			if outputSuffix != "" {
				_ = conn.Send(outputSuffix)
			}
			return
		}

		// Try player.location:huh fallback
		if huhVerb, huhVerbLoc, err := s.store.FindVerb(location, "huh"); err == nil && huhVerb != nil {
			huhMatch := &VerbMatch{Verb: huhVerb, This: location, VerbLoc: huhVerbLoc}

			if huhMatch.Verb.Program == nil && len(huhMatch.Verb.Code) > 0 {
				program, errs := db.CompileVerb(huhMatch.Verb.Code)
				if len(errs) > 0 {
					conn.Send(fmt.Sprintf("Verb compile error: %s", errs[0]))
					if outputSuffix != "" {
						_ = conn.Send(outputSuffix)
					}
					return
				}
				huhMatch.Verb.Program = program
			}

			if huhMatch.Verb.Program == nil || len(huhMatch.Verb.Program.Statements) == 0 {
				conn.Send("I couldn't understand that.")
				if outputSuffix != "" {
					_ = conn.Send(outputSuffix)
				}
				return
			}

			s.executeVerbTaskSync(player, huhMatch, cmd, outputSuffix)
			return
		}
		conn.Send("I couldn't understand that.")
		if outputSuffix != "" {
			_ = conn.Send(outputSuffix)
		}
		return
	}

	if match.Verb.Program == nil && len(match.Verb.Code) > 0 {
		program, errs := db.CompileVerb(match.Verb.Code)
		if len(errs) > 0 {
			conn.Send(fmt.Sprintf("Verb compile error: %s", errs[0]))
			if outputSuffix != "" {
				_ = conn.Send(outputSuffix)
			}
			return
		}
		match.Verb.Program = program
	}

	if match.Verb.Program == nil || len(match.Verb.Program.Statements) == 0 {
		conn.Send(fmt.Sprintf("[%s has no code]", match.Verb.Name))
		if outputSuffix != "" {
			_ = conn.Send(outputSuffix)
		}
		return
	}

	s.executeVerbTaskSync(player, match, cmd, outputSuffix)
}

// spawnTask starts t running on its own goroutine, gated by execSlot so that
// only one task's MOO code executes at any instant. onFirstYield, if given,
// fires exactly once: the first time the task either suspends (via
// suspend()/read()) or finishes, whichever comes first.
func (s *Scheduler) spawnTask(t *task.Task, onFirstYield func()) {
	var once sync.Once
	fire := func() {
		if onFirstYield != nil {
			once.Do(onFirstYield)
		}
	}

	t.SetExecutionSlot(
		func() { <-s.execSlot },
		func() { s.execSlot <- struct{}{}; fire() },
	)

	<-s.execSlot
	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()
	task.GetManager().RegisterTask(t)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTaskBody(t)
		s.execSlot <- struct{}{}
		fire()
	}()
}

// executeVerbTaskSync runs a verb task to completion or first suspension,
// blocking the caller until that point, then flushes buffered output. This
// is what the command pipeline uses: the player sees output from their
// command before the connection reads its next line, even though the task
// itself now runs on its own goroutine.
func (s *Scheduler) executeVerbTaskSync(player types.ObjID, match *VerbMatch, cmd *ParsedCommand, outputSuffix string) {
	t := s.newVerbTask(player, match, cmd, outputSuffix)

	yielded := make(chan struct{})
	s.spawnTask(t, func() { close(yielded) })
	<-yielded

	s.flushTaskOutput(t)
}

func (s *Scheduler) newVerbTask(player types.ObjID, match *VerbMatch, cmd *ParsedCommand, outputSuffix string) *task.Task {
	taskID := atomic.AddInt64(&s.nextTaskID, 1)
	t := task.NewTaskFull(taskID, player, match.Verb.Program.Statements, 300000, 5.0)
	t.StartTime = time.Now()
	t.Programmer = match.Verb.Owner
	t.Context.Programmer = match.Verb.Owner
	t.Context.IsWizard = s.isWizard(match.Verb.Owner)

	t.VerbName = cmd.Verb
	t.VerbLoc = match.VerbLoc
	t.This = match.This
	t.Caller = player
	t.Argstr = cmd.Argstr
	t.Args = cmd.Args
	t.Dobjstr = cmd.Dobjstr
	t.Dobj = cmd.Dobj
	t.Prepstr = cmd.Prepstr
	t.Iobjstr = cmd.Iobjstr
	t.Iobj = cmd.Iobj
	t.CommandOutputSuffix = outputSuffix
	return t
}

func (s *Scheduler) flushTaskOutput(t *task.Task) {
	if s.connManager == nil {
		return
	}
	conn := s.connManager.GetConnection(t.Owner)
	if conn == nil {
		return
	}
	conn.Flush()
	if t.CommandOutputSuffix != "" {
		_ = conn.Send(t.CommandOutputSuffix)
	}
}

// runTaskBody executes a task's code on the goroutine spawnTask started for
// it, running until the task finishes (normally, by exception, or killed).
// A suspend()/read() call deep inside blocks this same goroutine in place;
// Go's own call stack is the task's continuation, so there is no separate
// "resume" entry point to write.
func (s *Scheduler) runTaskBody(t *task.Task) {
	defer func() {
		if r := recover(); r != nil {
			if r == task.ErrKilled {
				t.SetState(task.TaskKilled)
				return
			}
			log.Printf("PANIC in task %d: %v", t.ID, r)
			t.SetState(task.TaskKilled)
		}
	}()

	t.SetState(task.TaskRunning)

	ctx := t.Context
	if ctx == nil {
		t.SetState(task.TaskKilled)
		return
	}
	ctx.Task = t
	ctx.TaskID = t.ID

	deadline := t.StartTime.Add(time.Duration(t.SecondsLimit * float64(time.Second)))
	taskCtx, cancel := context.WithDeadline(s.ctx, deadline)
	t.CancelFunc = cancel
	defer cancel()

	var result types.Result
	if t.VerbName != "" {
		verb, defObjID, err := s.store.FindVerb(t.This, t.VerbName)
		if err != nil || verb == nil {
			t.SetState(task.TaskKilled)
			return
		}

		argList := make([]types.Value, len(t.Args))
		for i, a := range t.Args {
			argList[i] = types.NewStr(a)
		}

		t.PushFrame(task.ActivationFrame{
			This:       t.This,
			Player:     t.Owner,
			Programmer: t.Programmer,
			Caller:     t.Caller,
			Verb:       t.VerbName,
			VerbLoc:    t.VerbLoc,
			Args:       argList,
			LineNumber: 1,
		})

		info := eval.VerbCallInfo{
			Player:  t.Owner,
			This:    t.This,
			Caller:  t.Caller,
			Verb:    t.VerbName,
			Args:    argList,
			Argstr:  t.Argstr,
			Dobj:    t.Dobj,
			Dobjstr: t.Dobjstr,
			Prepstr: t.Prepstr,
			Iobj:    t.Iobj,
			Iobjstr: t.Iobjstr,
		}
		result = s.evaluator.ExecuteVerb(verb, defObjID, ctx, info)
	} else {
		code, ok := t.Code.([]parser.Stmt)
		if !ok || code == nil {
			t.SetState(task.TaskKilled)
			return
		}
		result = s.evaluator.EvalStatements(code, ctx)
	}

	t.Result = result

	select {
	case <-taskCtx.Done():
		t.SetState(task.TaskKilled)
		return
	default:
	}

	if result.Flow == types.FlowException {
		t.SetState(task.TaskKilled)
		s.logTraceback(t, result.Error)
		s.sendTraceback(t, result.Error)
	} else {
		t.SetState(task.TaskCompleted)
	}

	for len(t.CallStack) > 0 {
		t.PopFrame()
	}

	if t.Done != nil {
		close(t.Done)
	}
}

// wakeTimedTasks resumes suspended tasks whose suspend(seconds) deadline has
// passed. Tasks parked on an indefinite suspend() or read() wake themselves
// via SuspendAndWait's own channel/timer and never need to be found here.
func (s *Scheduler) wakeTimedTasks() {
	s.mu.Lock()
	now := time.Now()
	var due []*task.Task
	for _, t := range s.tasks {
		if t.WakeDue(now) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.Resume(types.NewInt(0))
	}
}

// shouldCallDoLoginCommand checks whether do_login_command should be called
// for the given input. Trusted proxy blank lines route through do_blank_command first.
func (s *Scheduler) shouldCallDoLoginCommand(conn *Connection, line string) bool {
	if line != "" || !s.isTrustedProxyConnection(conn) {
		return true
	}

	allowLogin, err := s.callDoBlankCommand(conn, line)
	if err != nil {
		log.Printf("do_blank_command failed: %v", err)
		return false
	}
	return allowLogin
}

// callDoLoginCommand calls #0:do_login_command with the given line.
// Returns the player ObjID if login succeeded, or a negative value on failure.
func (s *Scheduler) callDoLoginCommand(conn *Connection, line string) (types.ObjID, error) {
	systemObj := s.store.Get(0)
	if systemObj == nil {
		return types.ObjID(-1), fmt.Errorf("system object not found")
	}

	verb := systemObj.Verbs["do_login_command"]
	if verb == nil {
		conn.Send("Welcome! (No login handler defined)")
		return types.ObjID(2), nil
	}

	connID := types.ObjID(-conn.ID)

	words := strings.Fields(line)
	args := make([]types.Value, len(words))
	for i, word := range words {
		args[i] = types.NewStr(word)
	}

	result := s.CallVerb(0, "do_login_command", args, connID)
	if result.Flow == types.FlowException {
		return types.ObjID(-1), nil
	}

	if objVal, ok := result.Val.(types.ObjValue); ok {
		playerID := objVal.ID()
		if playerID > 0 {
			if obj := s.store.Get(playerID); obj != nil && obj.Flags.Has(db.FlagUser) {
				return playerID, nil
			}
		}
	}

	// Check if switch_player was called during the verb execution
	if currentPlayer := conn.GetPlayer(); currentPlayer > 0 {
		return currentPlayer, nil
	}

	return types.ObjID(-1), nil
}

// callDoBlankCommand calls #0:do_blank_command and returns whether login should proceed.
func (s *Scheduler) callDoBlankCommand(conn *Connection, line string) (bool, error) {
	connID := types.ObjID(-conn.ID)
	result := s.CallVerb(0, "do_blank_command", nil, connID)
	if result.Flow == types.FlowException {
		return false, nil
	}
	if result.Val == nil {
		return false, nil
	}
	return result.Val.Truthy(), nil
}

// callDoCommand calls #0:do_command(command) and returns whether command was handled.
func (s *Scheduler) callDoCommand(player types.ObjID, line string) (bool, error) {
	args := []types.Value{types.NewStr(line)}
	result := s.CallVerb(0, "do_command", args, player)
	if result.Flow == types.FlowException {
		return result.Error != types.E_VERBNF, nil
	}
	if result.Val == nil {
		return false, nil
	}
	return result.Val.Truthy(), nil
}

// callUserConnected calls #0:user_connected(player)
func (s *Scheduler) callUserConnected(player types.ObjID) {
	s.CallVerb(0, "user_connected", []types.Value{types.NewObj(player)}, player)
}

// callUserReconnected calls #0:user_reconnected(player)
func (s *Scheduler) callUserReconnected(player types.ObjID) {
	s.CallVerb(0, "user_reconnected", []types.Value{types.NewObj(player)}, player)
}

// callUserDisconnected calls #0:user_disconnected(player)
func (s *Scheduler) callUserDisconnected(player types.ObjID) {
	s.CallVerb(0, "user_disconnected", []types.Value{types.NewObj(player)}, player)
}

// connectMessage returns the server_options.connect_msg value,
// falling back to "*** Connected ***" if not set.
func (s *Scheduler) connectMessage() string {
	if val, ok := s.getServerOption(0, "connect_msg"); ok {
		if strVal, ok := val.(types.StrValue); ok && strVal.Value() != "" {
			return strVal.Value()
		}
	}
	return "*** Connected ***"
}

// loginPlayer associates a connection with a player.
// Called on the scheduler goroutine after a successful do_login_command.
func (s *Scheduler) loginPlayer(conn *Connection, player types.ObjID) {
	cm := s.connManager
	if cm == nil {
		return
	}

	cm.mu.Lock()

	delete(cm.playerConns, types.ObjID(-conn.ID))

	alreadyLoggedIn := false
	reconnection := false
	var existingConn *Connection
	if ec, exists := cm.playerConns[player]; exists {
		if ec == conn {
			alreadyLoggedIn = true
		} else {
			existingConn = ec
			reconnection = true
		}
	}

	if !alreadyLoggedIn {
		conn.SetPlayer(player)
		cm.playerConns[player] = conn
	}

	cm.mu.Unlock()

	if reconnection {
		trace.Connection("RECONNECT", conn.ID, player, "")
	} else {
		trace.Connection("LOGIN", conn.ID, player, "")
	}

	if alreadyLoggedIn {
		log.Printf("Connection %d already logged in as player %d via switch_player", conn.ID, player)
		_ = conn.Send(s.connectMessage())
		s.callUserConnected(player)
		return
	}

	if reconnection {
		existingConn.Send("You have been disconnected (reconnected elsewhere)")
		existingConn.Close()
		s.callUserReconnected(player)
	} else {
		_ = conn.Send(s.connectMessage())
		s.callUserConnected(player)
	}

	log.Printf("Connection %d logged in as player %d", conn.ID, player)
}

// sendTracebackToPlayer sends a formatted traceback to the player's connection
func (s *Scheduler) sendTracebackToPlayer(player types.ObjID, err types.ErrorCode, stack []task.ActivationFrame) {
	if s.connManager == nil {
		return
	}

	lines := task.FormatTraceback(stack, err, player)

	conn := s.connManager.GetConnection(player)
	if conn == nil {
		log.Printf("Traceback for player %v (connection not found):", player)
		for _, line := range lines {
			log.Printf("  %s", line)
		}
		return
	}

	for _, line := range lines {
		conn.Send(line)
	}
}

// isTrustedProxyConnection checks if a connection's IP is in the trusted proxies list.
func (s *Scheduler) isTrustedProxyConnection(conn *Connection) bool {
	trustedProxies, ok := s.getServerOption(0, "trusted_proxies")
	if !ok {
		return false
	}

	addr := conn.RemoteAddr()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := strings.Trim(host, "[]")
	if ip == "" {
		return false
	}

	return listContainsString(trustedProxies, ip)
}

// listContainsString reports whether a MOO list value contains the given
// string, case-insensitively.
func listContainsString(v types.Value, s string) bool {
	list, ok := v.(types.ListValue)
	if !ok {
		return false
	}
	for _, elem := range list.Elements() {
		if str, ok := elem.(types.StrValue); ok && strings.EqualFold(str.Value(), s) {
			return true
		}
	}
	return false
}

// getServerOption looks up a server option from the server_options property.
func (s *Scheduler) getServerOption(listener types.ObjID, name string) (types.Value, bool) {
	serverOptions := s.findPropertyInherited(listener, "server_options")
	if serverOptions == nil && listener != 0 {
		serverOptions = s.findPropertyInherited(0, "server_options")
	}
	if serverOptions == nil {
		return nil, false
	}

	serverOptionsObj, ok := serverOptions.Value.(types.ObjValue)
	if !ok {
		return nil, false
	}

	prop := s.findPropertyInherited(serverOptionsObj.ID(), name)
	if prop == nil {
		return nil, false
	}
	return prop.Value, true
}

// findPropertyInherited walks the parent chain to find a property.
func (s *Scheduler) findPropertyInherited(objID types.ObjID, name string) *db.Property {
	queue := []types.ObjID{objID}
	visited := make(map[types.ObjID]bool)

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		if visited[currentID] {
			continue
		}
		visited[currentID] = true

		current := s.store.Get(currentID)
		if current == nil {
			continue
		}

		if prop, ok := current.Properties[name]; ok {
			return prop
		}

		queue = append(queue, current.Parents...)
	}

	return nil
}

// CallVerb synchronously executes a verb on an object and returns the
// result. It is used for server hooks (do_login_command, user_connected,
// shutdown_started, etc) that the MOO model calls from outside any player
// command. A missing verb is reported as E_VERBNF without logging, matching
// these hooks' status as optional.
//
// CallVerb blocks its caller for as long as the verb runs, including across
// any suspend()/read() inside it -- there is no "foreground" task behind it
// to hand control back to. This mirrors the original server: these hooks run
// inline on its single thread and were never able to suspend either. Calling
// it from the scheduler's own run() goroutine (as processPreLogin/
// processCommand do) is therefore a deliberate, documented limitation: a hook
// that suspends stalls new input for every connection until it resumes.
func (s *Scheduler) CallVerb(objID types.ObjID, verbName string, args []types.Value, player types.ObjID) (result types.Result) {
	verb, defObjID, err := s.store.FindVerb(objID, verbName)
	if err != nil || verb == nil {
		return types.Err(types.E_VERBNF)
	}
	if verb.Program == nil {
		program, errs := db.CompileVerb(verb.Code)
		if len(errs) > 0 {
			return types.Err(types.E_VERBNF)
		}
		verb.Program = program
	}

	trace.VerbCall(objID, verbName, args, player, player)

	t := task.NewTask(atomic.AddInt64(&s.nextTaskID, 1), player, 300000, 5.0)
	t.Programmer = verb.Owner

	ctx := types.NewTaskContext()
	ctx.Player = player
	ctx.Programmer = verb.Owner
	ctx.IsWizard = s.isWizard(verb.Owner)
	ctx.Task = t
	ctx.TaskID = t.ID

	t.PushFrame(task.ActivationFrame{
		This:            objID,
		Player:          player,
		Programmer:      verb.Owner,
		Caller:          player,
		Verb:            verbName,
		VerbLoc:         defObjID,
		Args:            args,
		LineNumber:      1,
		ServerInitiated: true,
	})

	t.SetExecutionSlot(
		func() { <-s.execSlot },
		func() { s.execSlot <- struct{}{} },
	)
	<-s.execSlot
	defer func() { s.execSlot <- struct{}{} }()

	info := eval.VerbCallInfo{
		Player: player,
		This:   objID,
		Caller: player,
		Verb:   verbName,
		Args:   args,
		Dobj:   types.ObjNothing,
		Iobj:   types.ObjNothing,
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in CallVerb(%v:%s): %v", objID, verbName, r)
				result = types.Err(types.E_NONE)
			}
		}()
		result = s.evaluator.ExecuteVerb(verb, defObjID, ctx, info)
	}()

	if result.Flow == types.FlowException {
		stack := t.GetCallStack()
		if result.Error != types.E_VERBNF {
			s.logCallVerbTraceback(objID, verbName, result.Error, stack, player)
			trace.Exception(objID, verbName, result.Error)
			s.sendTracebackToPlayer(player, result.Error, stack)
		}
	} else {
		trace.VerbReturn(objID, verbName, result.Val)
	}

	return result
}

// evalConnection is the interface needed for eval command output
type evalConnection interface {
	Send(string) error
	GetOutputPrefix() string
	GetOutputSuffix() string
}

// EvalCommand evaluates MOO code directly (for ; commands), blocking until
// it completes and sending its result back to the connection in ToastStunt's
// eval reply format. Like CallVerb, a suspend()/read() inside the code
// blocks the caller -- acceptable here since ; commands are already
// synchronous from the player's point of view.
func (s *Scheduler) EvalCommand(player types.ObjID, code string, conn interface{}) {
	c, ok := conn.(evalConnection)
	if !ok {
		return
	}

	prefix := c.GetOutputPrefix()
	suffix := c.GetOutputSuffix()

	defer func() {
		if r := recover(); r != nil {
			if prefix != "" {
				c.Send(prefix)
			}
			c.Send(fmt.Sprintf("{0, {\"Internal error: %v\"}}", r))
			if suffix != "" {
				c.Send(suffix)
			}
			log.Printf("PANIC in EvalCommand: %v", r)
		}
	}()

	p := parser.NewParser(code)
	stmts, err := p.ParseProgram()
	if err != nil {
		if prefix != "" {
			c.Send(prefix)
		}
		c.Send(fmt.Sprintf("{0, {\"Parse error: %s\"}}", err))
		if suffix != "" {
			c.Send(suffix)
		}
		return
	}

	ctx := types.NewTaskContext()
	ctx.Player = player
	ctx.Programmer = player
	ctx.IsWizard = s.isWizard(player)

	mgr := task.GetManager()
	t := mgr.CreateTask(player, 300000, 5.0)
	defer mgr.RemoveTask(t.ID)
	t.Programmer = player
	ctx.Task = t
	ctx.TaskID = t.ID

	t.SetExecutionSlot(
		func() { <-s.execSlot },
		func() { s.execSlot <- struct{}{} },
	)
	<-s.execSlot
	defer func() { s.execSlot <- struct{}{} }()

	result := s.evaluator.EvalStatements(stmts, ctx)

	if prefix != "" {
		c.Send(prefix)
	}
	var resultStr string
	if result.Flow == types.FlowException {
		errCode := types.NewErr(result.Error).String()
		errMsg := result.Error.Message()
		resultStr = fmt.Sprintf("{2, {%s, \"%s\", 0}}", errCode, errMsg)
	} else if result.Val != nil {
		resultStr = fmt.Sprintf("{1, %s}", result.Val.String())
	} else {
		resultStr = "{1, 0}"
	}
	c.Send(resultStr)
	if suffix != "" {
		c.Send(suffix)
	}
}

// ResumeTask resumes a suspended task
func (s *Scheduler) ResumeTask(taskID int64, value types.Value) error {
	s.mu.Lock()
	t, exists := s.tasks[taskID]
	s.mu.Unlock()

	if !exists {
		return ErrNotSuspended
	}

	if !t.Resume(value) {
		return ErrNotSuspended
	}
	return nil
}

// KillTask kills a running task
func (s *Scheduler) KillTask(taskID int64, killerID types.ObjID) error {
	s.mu.Lock()
	t, exists := s.tasks[taskID]
	s.mu.Unlock()

	if !exists {
		return ErrNotSuspended
	}

	if t.Owner != killerID && !s.isWizard(killerID) {
		return ErrPermission
	}

	t.Kill()
	return nil
}

// GetTask retrieves a task by ID
func (s *Scheduler) GetTask(taskID int64) *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[taskID]
}

// QueuedTasks returns tasks currently running or waiting to run.
func (s *Scheduler) QueuedTasks() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]*task.Task, 0)
	for _, t := range s.tasks {
		if t.GetState() == task.TaskRunning {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

// SuspendedTasks returns list of suspended tasks
func (s *Scheduler) SuspendedTasks() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]*task.Task, 0)
	for _, t := range s.tasks {
		if t.GetState() == task.TaskSuspended {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

// isWizard checks if an object has wizard permissions
func (s *Scheduler) isWizard(objID types.ObjID) bool {
	obj := s.store.Get(objID)
	if obj == nil {
		return false
	}
	return obj.Flags.Has(db.FlagWizard)
}

// logTraceback logs a formatted traceback to the server log for a task
func (s *Scheduler) logTraceback(t *task.Task, err types.ErrorCode) {
	stack := t.GetCallStack()
	lines := task.FormatTraceback(stack, err, t.Owner)
	log.Printf("TRACEBACK: Task %d (#%d:%s) uncaught exception %s",
		t.ID, t.This, t.VerbName, types.NewErr(err).String())
	for _, line := range lines {
		log.Printf("TRACEBACK:   %s", line)
	}
	s.logTracebackSource(stack)
}

// logCallVerbTraceback logs a formatted traceback to the server log for a synchronous verb call
func (s *Scheduler) logCallVerbTraceback(objID types.ObjID, verbName string, err types.ErrorCode, stack []task.ActivationFrame, player types.ObjID) {
	lines := task.FormatTraceback(stack, err, player)
	log.Printf("TRACEBACK: #%d:%s uncaught exception %s (player #%d)",
		objID, verbName, types.NewErr(err).String(), player)
	for _, line := range lines {
		log.Printf("TRACEBACK:   %s", line)
	}
	s.logTracebackSource(stack)
}

func (s *Scheduler) logTracebackSource(stack []task.ActivationFrame) {
	for i := len(stack) - 1; i >= 0; i-- {
		frame := stack[i]
		if frame.SourceLine == "" {
			continue
		}
		log.Printf("TRACEBACK:     #%d:%s line %d => %s",
			frame.VerbLoc, frame.Verb, frame.LineNumber, frame.SourceLine)
	}
}

// sendTraceback sends a formatted traceback to the player
func (s *Scheduler) sendTraceback(t *task.Task, err types.ErrorCode) {
	if s.connManager == nil {
		return
	}

	conn := s.connManager.GetConnection(t.Owner)
	if conn == nil {
		return
	}

	lines := task.FormatTraceback(t.GetCallStack(), err, t.Owner)
	for _, line := range lines {
		conn.Send(line)
	}
}

// Error definitions
var (
	ErrTicksExceeded = errors.New("tick limit exceeded")
	ErrNotSuspended  = errors.New("task not suspended")
	ErrResumeFailed  = errors.New("failed to resume task")
	ErrPermission    = errors.New("permission denied")
)
