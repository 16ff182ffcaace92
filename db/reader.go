package db

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"silo/types"
)

// Database is the in-memory result of parsing a MOO database file.
type Database struct {
	Version        int
	Objects        map[types.ObjID]*Object
	Players        []types.ObjID
	RecycledObjs   []types.ObjID
	QueuedTasks    []*QueuedTask
	SuspendedTasks []*SuspendedTask

	// savedWaifs accumulates WAIFs as they're read, indexed by save order,
	// so that later "reference" entries can resolve back to them, and so
	// property names can be backfilled once every class's propdefs are known.
	savedWaifs []waifLoadData
}

type waifLoadData struct {
	waif         types.WaifValue
	propsByIndex map[int]types.Value
}

// NewStoreFromDatabase builds a live Store from a parsed Database.
func (d *Database) NewStoreFromDatabase() *Store {
	store := NewStore()
	for id, obj := range d.Objects {
		store.objects[id] = obj
		if id > store.highWaterID {
			store.highWaterID = id
		}
		if !obj.Anonymous && id > store.maxObjID {
			store.maxObjID = id
		}
	}
	return store
}

// QueuedTask is a task waiting to run, as recorded in the database file.
type QueuedTask struct {
	ID        int64
	StartTime int64
}

// SuspendedTask is a suspended task, as recorded in the database file.
type SuspendedTask struct {
	ID        int64
	StartTime int64
}

// LoadDatabase reads and parses a MOO database file from disk.
func LoadDatabase(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer f.Close()

	return parseDatabase(bufio.NewReader(f))
}

// parseDatabase dispatches to the version-specific parser after reading the
// header line.
func parseDatabase(r *bufio.Reader) (*Database, error) {
	d := &Database{Objects: make(map[types.ObjID]*Object)}

	header, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = strings.TrimSpace(header)

	switch {
	case strings.Contains(header, "Format Version 4"):
		d.Version = 4
		return d.parseV4(r)
	case strings.Contains(header, "Format Version 17"):
		d.Version = 17
		return d.parseV17(r)
	default:
		return nil, fmt.Errorf("unsupported database format: %s", header)
	}
}

// parseV4 parses the original LambdaMOO "Format Version 4" layout: a flat
// object count/verb count header, simple single-parent objects, and no
// maps, bools, or anonymous-object batches.
func (d *Database) parseV4(r *bufio.Reader) (*Database, error) {
	objCount, err := readInt(r)
	if err != nil {
		return nil, fmt.Errorf("read object count: %w", err)
	}
	verbCount, err := readInt(r)
	if err != nil {
		return nil, fmt.Errorf("read verb count: %w", err)
	}
	if _, err := readLine(r); err != nil {
		return nil, fmt.Errorf("read dummy line: %w", err)
	}
	if err := d.readPlayerList(r); err != nil {
		return nil, fmt.Errorf("read players: %w", err)
	}

	for i := 0; i < objCount; i++ {
		obj, err := d.readObjectV4(r)
		if err != nil {
			return nil, fmt.Errorf("read object %d: %w", i, err)
		}
		if obj != nil {
			d.Objects[obj.ID] = obj
		}
	}
	for i := 0; i < verbCount; i++ {
		if err := d.readVerbCode(r); err != nil {
			return nil, fmt.Errorf("read verb code %d: %w", i, err)
		}
	}
	if err := d.readClocks(r); err != nil {
		return nil, fmt.Errorf("read clocks: %w", err)
	}
	if err := d.readQueuedTasks(r); err != nil {
		return nil, fmt.Errorf("read queued tasks: %w", err)
	}
	if err := d.readSuspendedTasks(r); err != nil {
		return nil, fmt.Errorf("read suspended tasks: %w", err)
	}
	// Anything after this (e.g. active connections) is optional and ignored.

	d.resolvePropertyNames()
	d.resolveWaifProperties()
	return d, nil
}

// parseV17 parses the extended "Format Version 17" layout, which adds
// multiple inheritance, maps, bools, anonymous objects, and richer task
// checkpoint sections ahead of the object table.
func (d *Database) parseV17(r *bufio.Reader) (*Database, error) {
	if err := d.readPlayerList(r); err != nil {
		return nil, fmt.Errorf("read players: %w", err)
	}
	if err := d.readFinalizations(r); err != nil {
		return nil, fmt.Errorf("read finalizations: %w", err)
	}
	if err := d.readClocks(r); err != nil {
		return nil, fmt.Errorf("read clocks: %w", err)
	}
	if err := d.readQueuedTasks(r); err != nil {
		return nil, fmt.Errorf("read queued tasks: %w", err)
	}
	if err := d.readSuspendedTasks(r); err != nil {
		return nil, fmt.Errorf("read suspended tasks: %w", err)
	}
	if err := d.readInterruptedTasks(r); err != nil {
		return nil, fmt.Errorf("read interrupted tasks: %w", err)
	}
	if err := d.readActiveConnections(r); err != nil {
		return nil, fmt.Errorf("read active connections: %w", err)
	}

	objCount, err := readInt(r)
	if err != nil {
		return nil, fmt.Errorf("read object count: %w", err)
	}
	for i := 0; i < objCount; i++ {
		obj, err := d.readObject(r)
		if err != nil {
			return nil, fmt.Errorf("read object %d: %w", i, err)
		}
		if obj != nil {
			d.Objects[obj.ID] = obj
		}
	}
	if err := d.readAnonymousObjects(r); err != nil {
		return nil, fmt.Errorf("read anonymous objects: %w", err)
	}

	verbCount, err := readInt(r)
	if err != nil {
		return nil, fmt.Errorf("read verb count: %w", err)
	}
	for i := 0; i < verbCount; i++ {
		if err := d.readVerbCode(r); err != nil {
			return nil, fmt.Errorf("read verb code %d: %w", i, err)
		}
	}

	d.resolvePropertyNames()
	d.resolveWaifProperties()
	return d, nil
}

// readPlayerList reads the "nplayers, player[0], player[1], ..." section
// shared by both format versions.
func (d *Database) readPlayerList(r *bufio.Reader) error {
	count, err := readInt(r)
	if err != nil {
		return err
	}
	d.Players = make([]types.ObjID, count)
	for i := 0; i < count; i++ {
		objID, err := readObjID(r)
		if err != nil {
			return err
		}
		d.Players[i] = objID
	}
	return nil
}

// readFinalizations skips the v17 pending-finalizations line; finalization
// is not implemented.
func (d *Database) readFinalizations(r *bufio.Reader) error {
	_, err := r.ReadString('\n')
	return err
}

// readClocks skips the obsolete clocks section.
func (d *Database) readClocks(r *bufio.Reader) error {
	_, err := r.ReadString('\n')
	return err
}

// readCountedSection reads a "<N> <suffix>" header line and invokes skip for
// each of the N entries that follow. Shared by the queued/suspended/
// interrupted task sections, which differ only in their header text and
// per-entry skip logic.
func readCountedSection(r *bufio.Reader, suffix string, skip func(*bufio.Reader) error) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	var count int
	if _, err := fmt.Sscanf(line, "%d "+suffix, &count); err != nil {
		return 0, fmt.Errorf("parse %s count from %q: %w", suffix, line, err)
	}
	for i := 0; i < count; i++ {
		if err := skip(r); err != nil {
			return 0, fmt.Errorf("%s %d: %w", suffix, i, err)
		}
	}
	return count, nil
}

// readQueuedTasks skips the queued-tasks section; each entry is a blob
// terminated by a "." line.
func (d *Database) readQueuedTasks(r *bufio.Reader) error {
	count, err := readCountedSection(r, "queued tasks", func(r *bufio.Reader) error {
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return err
			}
			if strings.TrimSpace(line) == "." {
				return nil
			}
		}
	})
	if err != nil {
		return err
	}
	d.QueuedTasks = make([]*QueuedTask, 0, count)
	return nil
}

// readSuspendedTasks reads the suspended-tasks section. Kept as a named
// method (rather than folded into readCountedSection) because it's also
// exercised directly by tests against a bare Database value.
func (d *Database) readSuspendedTasks(r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	var count int
	if _, err := fmt.Sscanf(line, "%d suspended tasks", &count); err != nil {
		return fmt.Errorf("parse suspended tasks count: %w", err)
	}
	d.SuspendedTasks = make([]*SuspendedTask, 0, count)
	for i := 0; i < count; i++ {
		if err := d.skipSuspendedTask(r); err != nil {
			return fmt.Errorf("skip suspended task %d: %w", i, err)
		}
	}
	return nil
}

// skipSuspendedTask skips one suspended task: a header line, an optional
// typed suspend value, a VM local, a VM header giving the activation-stack
// depth, and that many activations.
func (d *Database) skipSuspendedTask(r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read task header: %w", err)
	}
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) < 2 {
		return fmt.Errorf("parse task header: expected at least 2 fields, got %d from %q", len(parts), line)
	}
	if len(parts) >= 3 {
		typeCode, err := strconv.Atoi(parts[2])
		if err != nil {
			return fmt.Errorf("parse suspend value type: %w", err)
		}
		if err := d.skipValueAfterType(r, typeCode); err != nil {
			return fmt.Errorf("read suspend value: %w", err)
		}
	}

	if _, err := d.readValue(r); err != nil {
		return fmt.Errorf("read VM local: %w", err)
	}

	line, err = r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read VM header: %w", err)
	}
	var topActivStack, rootActivVector, funcID int
	if n, _ := fmt.Sscanf(line, "%d %d %d", &topActivStack, &rootActivVector, &funcID); n < 3 {
		return fmt.Errorf("parse VM header: got %d fields from %q", n, line)
	}

	for a := 0; a <= topActivStack; a++ {
		if err := d.skipActivation(r); err != nil {
			return fmt.Errorf("skip activation %d: %w", a, err)
		}
	}
	return nil
}

// skipActivation skips one stack frame of a suspended or interrupted task:
// its verb source (terminated by "."), local variables, rt_stack contents,
// and the activ_as_pi bookkeeping block (this/vloc/caller chain, verb name
// and aliases, PC info).
func (d *Database) skipActivation(r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read language version: %w", err)
	}
	if !strings.HasPrefix(line, "language version") {
		return fmt.Errorf("expected 'language version', got %q", line)
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read verb code: %w", err)
		}
		if strings.TrimSpace(line) == "." {
			break
		}
	}

	line, err = r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read variables header: %w", err)
	}
	var numVars int
	if _, err := fmt.Sscanf(line, "%d variables", &numVars); err != nil {
		return fmt.Errorf("parse variables count from %q: %w", line, err)
	}
	for i := 0; i < numVars; i++ {
		if _, err = r.ReadString('\n'); err != nil { // variable name
			return fmt.Errorf("read variable %d name: %w", i, err)
		}
		if _, err := d.readValue(r); err != nil {
			return fmt.Errorf("read variable %d value: %w", i, err)
		}
	}

	line, err = r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read rt_stack header: %w", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(line), "rt_stack slots in use") {
		return fmt.Errorf("expected 'rt_stack slots in use', got %q", line)
	}
	var numStackSlots int
	fmt.Sscanf(line, "%d rt_stack slots in use", &numStackSlots)
	for i := 0; i < numStackSlots; i++ {
		if _, err := d.readValue(r); err != nil {
			return fmt.Errorf("read stack slot %d: %w", i, err)
		}
	}

	// activ_as_pi: dummy, _this, vloc (3 values), threaded line, verbref
	// line, 4 placeholder strings, verb name, verb aliases, a temp value,
	// and the PC info line.
	for i := 0; i < 3; i++ {
		if _, err := d.readValue(r); err != nil {
			return fmt.Errorf("read activ value %d: %w", i, err)
		}
	}
	if _, err = r.ReadString('\n'); err != nil {
		return fmt.Errorf("read threaded: %w", err)
	}
	if _, err = r.ReadString('\n'); err != nil {
		return fmt.Errorf("read verbref: %w", err)
	}
	for i := 0; i < 4; i++ {
		if _, err = r.ReadString('\n'); err != nil {
			return fmt.Errorf("read placeholder string %d: %w", i, err)
		}
	}
	if _, err = r.ReadString('\n'); err != nil {
		return fmt.Errorf("read verb name: %w", err)
	}
	if _, err = r.ReadString('\n'); err != nil {
		return fmt.Errorf("read verb aliases: %w", err)
	}
	if _, err := d.readValue(r); err != nil {
		return fmt.Errorf("read temp value: %w", err)
	}
	if _, err = r.ReadString('\n'); err != nil {
		return fmt.Errorf("read PC info: %w", err)
	}
	return nil
}

// readInterruptedTasks skips the interrupted-tasks section.
func (d *Database) readInterruptedTasks(r *bufio.Reader) error {
	_, err := readCountedSection(r, "interrupted tasks", d.skipInterruptedTask)
	return err
}

// skipInterruptedTask skips one interrupted task: a header line followed by
// a VM with no suspend value.
func (d *Database) skipInterruptedTask(r *bufio.Reader) error {
	if _, err := r.ReadString('\n'); err != nil {
		return fmt.Errorf("read task header: %w", err)
	}
	if _, err := d.readValue(r); err != nil {
		return fmt.Errorf("read VM local: %w", err)
	}

	line, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read VM header: %w", err)
	}
	var topActivStack int
	if n, _ := fmt.Sscanf(line, "%d", &topActivStack); n < 1 {
		return fmt.Errorf("parse VM header from %q", line)
	}
	for a := 0; a <= topActivStack; a++ {
		if err := d.skipActivation(r); err != nil {
			return fmt.Errorf("skip activation %d: %w", a, err)
		}
	}
	return nil
}

// readActiveConnections skips the active-connections section, whose header
// may read either "N active connections" or "... with listeners".
func (d *Database) readActiveConnections(r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	var count int
	if _, err := fmt.Sscanf(line, "%d active connections", &count); err != nil {
		return fmt.Errorf("parse active connections count from %q: %w", line, err)
	}
	for i := 0; i < count; i++ {
		if _, err := r.ReadString('\n'); err != nil {
			return fmt.Errorf("read connection %d: %w", i, err)
		}
	}
	return nil
}

// parseObjectHeaderLine parses an object's "#123" or "#123 recycled" header
// line, returning its ID and whether it was marked recycled.
func parseObjectHeaderLine(line string) (types.ObjID, bool, error) {
	line = strings.TrimSpace(line)
	recycled := false
	if strings.Contains(line, "recycled") {
		recycled = true
		line = strings.Replace(line, "recycled", "", 1)
		line = strings.TrimSpace(line)
	}
	if !strings.HasPrefix(line, "#") {
		return 0, false, fmt.Errorf("invalid object ID line: %s", line)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(line[1:]), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse object ID: %w", err)
	}
	return types.ObjID(id), recycled, nil
}

// readVerbList reads the shared verb-metadata table (name, owner, perms,
// preposition) that follows an object's basic fields in both formats. Verb
// source code is filled in separately by readVerbCode.
func readVerbList(r *bufio.Reader, count int) ([]*Verb, error) {
	verbs := make([]*Verb, count)
	for i := 0; i < count; i++ {
		verb := &Verb{}
		name, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		verb.Name = strings.TrimSpace(name)
		verb.Names = strings.Split(verb.Name, " ")

		if verb.Owner, err = readObjID(r); err != nil {
			return nil, err
		}
		perms, err := readInt(r)
		if err != nil {
			return nil, err
		}
		verb.Perms = VerbPerms(perms & 0xF)
		dobj := (perms >> 4) & 0x3
		iobj := (perms >> 6) & 0x3

		prep, err := readInt(r)
		if err != nil {
			return nil, err
		}
		verb.ArgSpec.This = argspecToString(dobj)
		verb.ArgSpec.Prep = prepToString(prep)
		verb.ArgSpec.That = argspecToString(iobj)

		verbs[i] = verb
	}
	return verbs, nil
}

// readPropDefNames reads the object's locally-defined property name table.
func readPropDefNames(r *bufio.Reader, count int) ([]string, error) {
	names := make([]string, count)
	for i := 0; i < count; i++ {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSuffix(line, "\n")
		names[i] = strings.TrimSuffix(line, "\r")
	}
	return names, nil
}

// readPropertyValues reads totalCount property value/owner/perms triples,
// naming the first len(propDefs) from propDefs and placeholder-naming the
// rest for later resolution by resolvePropertyNames.
func (d *Database) readPropertyValues(r *bufio.Reader, propDefs []string, totalCount int) (map[string]*Property, []string, error) {
	props := make(map[string]*Property, totalCount)
	order := make([]string, totalCount)

	for i := 0; i < totalCount; i++ {
		name := fmt.Sprintf("_inherited_%d", i)
		if i < len(propDefs) {
			name = propDefs[i]
		}
		order[i] = name

		prop := &Property{Name: name}
		val, err := d.readValue(r)
		if err != nil {
			return nil, nil, fmt.Errorf("prop %d (%s) value: %w", i, name, err)
		}
		prop.Value = val
		prop.Clear = val == nil // type code 5 (CLEAR) decodes to a nil value

		if prop.Owner, err = readObjID(r); err != nil {
			return nil, nil, err
		}
		perms, err := readInt(r)
		if err != nil {
			return nil, nil, err
		}
		prop.Perms = PropertyPerms(perms)
		props[name] = prop
	}
	return props, order, nil
}

// readObjectV4 reads one object in the Format 4 layout: a single parent
// objnum and a flat linked-list of contents/children that this reader
// discards in favor of the Store's own indices.
func (d *Database) readObjectV4(r *bufio.Reader) (*Object, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	objID, recycled, err := parseObjectHeaderLine(header)
	if err != nil {
		return nil, err
	}
	if recycled {
		d.RecycledObjs = append(d.RecycledObjs, objID)
		return nil, nil
	}

	obj := &Object{ID: objID, Properties: make(map[string]*Property), Verbs: make(map[string]*Verb)}
	if obj.Name, err = r.ReadString('\n'); err != nil {
		return nil, err
	}
	obj.Name = strings.TrimSpace(obj.Name)

	if _, err := r.ReadString('\n'); err != nil { // blank line, v4 only
		return nil, err
	}

	flags, err := readInt(r)
	if err != nil {
		return nil, err
	}
	obj.Flags = ObjectFlags(flags)

	if obj.Owner, err = readObjID(r); err != nil {
		return nil, err
	}
	if obj.Location, err = readObjID(r); err != nil {
		return nil, err
	}
	if _, err := readInt(r); err != nil { // firstContent, unused
		return nil, err
	}
	if _, err := readInt(r); err != nil { // neighbor, unused
		return nil, err
	}
	parent, err := readObjID(r)
	if err != nil {
		return nil, err
	}
	if parent != -1 {
		obj.Parents = []types.ObjID{parent}
	}
	if _, err := readInt(r); err != nil { // firstChild, unused
		return nil, err
	}
	if _, err := readInt(r); err != nil { // sibling, unused
		return nil, err
	}

	verbCount, err := readInt(r)
	if err != nil {
		return nil, err
	}
	if obj.VerbList, err = readVerbList(r, verbCount); err != nil {
		return nil, err
	}
	for _, v := range obj.VerbList {
		obj.Verbs[v.Names[0]] = v
	}

	propDefCount, err := readInt(r)
	if err != nil {
		return nil, err
	}
	propDefs, err := readPropDefNames(r, propDefCount)
	if err != nil {
		return nil, err
	}
	totalPropCount, err := readInt(r)
	if err != nil {
		return nil, err
	}
	obj.PropDefsCount = propDefCount
	if obj.Properties, obj.PropOrder, err = d.readPropertyValues(r, propDefs, totalPropCount); err != nil {
		return nil, err
	}
	return obj, nil
}

// readObject reads one object in the Format 17 layout: multiple parents,
// explicit contents/children lists, and map-typed location/contents values.
func (d *Database) readObject(r *bufio.Reader) (*Object, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	objID, recycled, err := parseObjectHeaderLine(header)
	if err != nil {
		return nil, err
	}
	if recycled {
		d.RecycledObjs = append(d.RecycledObjs, objID)
		return nil, nil
	}

	obj := &Object{ID: objID, Properties: make(map[string]*Property), Verbs: make(map[string]*Verb)}
	if obj.Name, err = r.ReadString('\n'); err != nil {
		return nil, err
	}
	obj.Name = strings.TrimSpace(obj.Name)

	flags, err := readInt(r)
	if err != nil {
		return nil, err
	}
	obj.Flags = ObjectFlags(flags)
	if obj.Owner, err = readObjID(r); err != nil {
		return nil, err
	}

	locVal, err := d.readValue(r)
	if err != nil {
		return nil, err
	}
	if objVal, ok := locVal.(types.ObjValue); ok {
		obj.Location = objVal.ID()
	}

	if _, err := d.readValue(r); err != nil { // last_move, unused
		return nil, err
	}

	contentsVal, err := d.readValue(r)
	if err != nil {
		return nil, err
	}
	obj.Contents = objIDsFromValue(contentsVal)

	parentsVal, err := d.readValue(r)
	if err != nil {
		return nil, err
	}
	switch pv := parentsVal.(type) {
	case types.ListValue:
		obj.Parents = objIDsFromValue(pv)
	case types.ObjValue:
		if pv.ID() != -1 {
			obj.Parents = append(obj.Parents, pv.ID())
		}
	}

	childrenVal, err := d.readValue(r)
	if err != nil {
		return nil, err
	}
	obj.Children = objIDsFromValue(childrenVal)

	verbCount, err := readInt(r)
	if err != nil {
		return nil, err
	}
	if obj.VerbList, err = readVerbList(r, verbCount); err != nil {
		return nil, err
	}
	for _, v := range obj.VerbList {
		obj.Verbs[v.Names[0]] = v
	}

	propDefCount, err := readInt(r)
	if err != nil {
		return nil, err
	}
	propDefs, err := readPropDefNames(r, propDefCount)
	if err != nil {
		return nil, err
	}
	totalPropCount, err := readInt(r)
	if err != nil {
		return nil, err
	}
	obj.PropDefsCount = propDefCount
	if obj.Properties, obj.PropOrder, err = d.readPropertyValues(r, propDefs, totalPropCount); err != nil {
		return nil, err
	}
	return obj, nil
}

// objIDsFromValue collects the ObjValue elements of a ListValue, or returns
// nil for anything else.
func objIDsFromValue(v types.Value) []types.ObjID {
	list, ok := v.(types.ListValue)
	if !ok {
		return nil
	}
	var ids []types.ObjID
	for i := 1; i <= list.Len(); i++ {
		if objVal, ok := list.Get(i).(types.ObjValue); ok {
			ids = append(ids, objVal.ID())
		}
	}
	return ids
}

// readAnonymousObjects reads zero-terminated batches of v17 anonymous
// objects: each batch starts with a count, and a count of 0 ends the section.
func (d *Database) readAnonymousObjects(r *bufio.Reader) error {
	for {
		count, err := readInt(r)
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		for i := 0; i < count; i++ {
			obj, err := d.readObject(r)
			if err != nil {
				return err
			}
			if obj != nil {
				obj.Anonymous = true
				d.Objects[obj.ID] = obj
			}
		}
	}
}

// readVerbCode reads one "#objnum:verbindex" verb-source block, terminated
// by a "." line, and attaches it to the already-loaded object.
func (d *Database) readVerbCode(r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	line = strings.TrimSpace(line)

	parts := strings.Split(line, ":")
	if len(parts) != 2 || !strings.HasPrefix(parts[0], "#") {
		return fmt.Errorf("invalid verb reference: %s", line)
	}
	objID, err := strconv.ParseInt(parts[0][1:], 10, 64)
	if err != nil {
		return fmt.Errorf("parse verb object ID: %w", err)
	}
	verbIndex, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("parse verb index: %w", err)
	}

	var codeLines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\n\r")
		if line == "." {
			break
		}
		codeLines = append(codeLines, line)
	}

	if obj := d.Objects[types.ObjID(objID)]; obj != nil && verbIndex < len(obj.VerbList) {
		obj.VerbList[verbIndex].Code = codeLines
	}
	return nil
}

// moo database value type codes, as written by the server's save_value.
const (
	dbTypeInt     = 0
	dbTypeObj     = 1
	dbTypeStr     = 2
	dbTypeErr     = 3
	dbTypeList    = 4
	dbTypeClear   = 5
	dbTypeNone    = 6
	dbTypeCatch   = 7
	dbTypeFinally = 8
	dbTypeFloat   = 9
	dbTypeMap     = 10
	dbTypeAnon    = 12
	dbTypeWaif    = 13
	dbTypeBool    = 14
)

// readValue reads one typed MOO value in database format: a type-code line
// followed by type-specific payload lines.
func (d *Database) readValue(r *bufio.Reader) (types.Value, error) {
	typeCode, err := readInt(r)
	if err != nil {
		return nil, err
	}

	switch typeCode {
	case dbTypeInt, dbTypeCatch, dbTypeFinally:
		val, err := readInt(r)
		if err != nil {
			return nil, err
		}
		return types.NewInt(int64(val)), nil

	case dbTypeObj:
		objID, err := readObjID(r)
		if err != nil {
			return nil, err
		}
		return types.NewObj(objID), nil

	case dbTypeStr:
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		return types.NewStr(strings.TrimRight(line, "\n\r")), nil

	case dbTypeErr:
		errCode, err := readInt(r)
		if err != nil {
			return nil, err
		}
		return types.NewErr(types.ErrorCode(errCode)), nil

	case dbTypeList:
		count, err := readInt(r)
		if err != nil {
			return nil, err
		}
		elements := make([]types.Value, count)
		for i := 0; i < count; i++ {
			if elements[i], err = d.readValue(r); err != nil {
				return nil, err
			}
		}
		return types.NewList(elements), nil

	case dbTypeClear:
		return nil, nil // caller treats a nil value as the CLEAR marker

	case dbTypeNone:
		return types.NewInt(0), nil

	case dbTypeFloat:
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		val, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil {
			return nil, err
		}
		return types.NewFloat(val), nil

	case dbTypeMap:
		if d.Version < 17 {
			return nil, fmt.Errorf("MAP type requires version 17+")
		}
		count, err := readInt(r)
		if err != nil {
			return nil, err
		}
		pairs := make([][2]types.Value, count)
		for i := 0; i < count; i++ {
			key, err := d.readValue(r)
			if err != nil {
				return nil, err
			}
			val, err := d.readValue(r)
			if err != nil {
				return nil, err
			}
			pairs[i] = [2]types.Value{key, val}
		}
		return types.NewMap(pairs), nil

	case dbTypeAnon:
		objID, err := readInt(r)
		if err != nil {
			return nil, err
		}
		return types.NewObj(types.ObjID(objID)), nil

	case dbTypeWaif:
		return d.readWaifValue(r)

	case dbTypeBool:
		if d.Version < 17 {
			return nil, fmt.Errorf("BOOL type requires version 17+")
		}
		val, err := readInt(r)
		if err != nil {
			return nil, err
		}
		return types.NewBool(val != 0), nil

	default:
		return nil, fmt.Errorf("unsupported type code: %d", typeCode)
	}
}

// readWaifValue reads a WAIF, which is saved either as a reference ('r') to
// a previously-seen WAIF or a creation ('c') carrying its class, owner, and
// sparse index->value property map.
func (d *Database) readWaifValue(r *bufio.Reader) (types.Value, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimSpace(line)
	if len(line) < 1 {
		return nil, fmt.Errorf("empty WAIF marker")
	}

	switch line[0] {
	case 'r':
		if _, err := r.ReadString('\n'); err != nil { // "." terminator
			return nil, err
		}
		refIdx, err := strconv.Atoi(strings.TrimSpace(line[1:]))
		if err != nil {
			return nil, fmt.Errorf("parse WAIF ref index: %w", err)
		}
		if refIdx < 0 || refIdx >= len(d.savedWaifs) {
			return nil, fmt.Errorf("WAIF ref index %d out of range (have %d)", refIdx, len(d.savedWaifs))
		}
		return d.savedWaifs[refIdx].waif, nil

	case 'c':
		class, err := readObjID(r)
		if err != nil {
			return nil, err
		}
		owner, err := readObjID(r)
		if err != nil {
			return nil, err
		}
		if _, err := readInt(r); err != nil { // propdefs_length
			return nil, err
		}

		// Register before reading properties: a property value may itself
		// reference this WAIF (or one nested inside it) by index.
		waif := types.NewWaif(class, owner)
		wIdx := len(d.savedWaifs)
		d.savedWaifs = append(d.savedWaifs, waifLoadData{waif: waif})

		propsByIndex := make(map[int]types.Value)
		for {
			propIdx, err := readInt(r)
			if err != nil {
				return nil, err
			}
			if propIdx < 0 {
				break
			}
			val, err := d.readValue(r)
			if err != nil {
				return nil, err
			}
			propsByIndex[propIdx] = val
		}
		if _, err := r.ReadString('\n'); err != nil { // "." terminator
			return nil, fmt.Errorf("read WAIF terminator: %w", err)
		}

		d.savedWaifs[wIdx] = waifLoadData{waif: waif, propsByIndex: propsByIndex}
		return waif, nil

	default:
		return nil, fmt.Errorf("unknown WAIF marker: %c", line[0])
	}
}

// skipValueAfterType skips a value whose type code has already been read
// (it shares a line with other data, as in a suspended task's header).
func (d *Database) skipValueAfterType(r *bufio.Reader, typeCode int) error {
	switch typeCode {
	case dbTypeInt, dbTypeErr, dbTypeCatch, dbTypeFinally, dbTypeAnon, dbTypeBool:
		_, err := readInt(r)
		return err

	case dbTypeObj:
		_, err := readObjID(r)
		return err

	case dbTypeStr, dbTypeFloat:
		_, err := r.ReadString('\n')
		return err

	case dbTypeClear, dbTypeNone:
		return nil

	case dbTypeList:
		count, err := readInt(r)
		if err != nil {
			return err
		}
		for i := 0; i < count; i++ {
			if _, err := d.readValue(r); err != nil {
				return err
			}
		}
		return nil

	case dbTypeMap:
		count, err := readInt(r)
		if err != nil {
			return err
		}
		for i := 0; i < count; i++ {
			if _, err := d.readValue(r); err != nil {
				return err
			}
			if _, err := d.readValue(r); err != nil {
				return err
			}
		}
		return nil

	case dbTypeWaif:
		return d.skipWaifAfterMarker(r)

	default:
		return fmt.Errorf("unsupported type code in skipValueAfterType: %d", typeCode)
	}
}

// skipWaifAfterMarker mirrors readWaifValue's parsing without retaining the
// result, including the legacy N_MAPPABLE_PROPS tail used by old creation
// records.
func (d *Database) skipWaifAfterMarker(r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	line = strings.TrimSpace(line)
	if len(line) < 1 {
		return fmt.Errorf("empty WAIF marker")
	}
	if line[0] == 'r' {
		_, err := r.ReadString('\n')
		return err
	}
	if line[0] != 'c' {
		return nil
	}

	if _, err := readObjID(r); err != nil {
		return err
	}
	if _, err := readObjID(r); err != nil {
		return err
	}
	propdefsLen, err := readInt(r)
	if err != nil {
		return err
	}
	for {
		propIdx, err := readInt(r)
		if err != nil {
			return err
		}
		if propIdx < 0 {
			break
		}
		if _, err := d.readValue(r); err != nil {
			return err
		}
	}
	const nMappableProps = 32
	for i := nMappableProps; i < propdefsLen; i++ {
		if _, err := d.readValue(r); err != nil {
			return err
		}
	}
	return nil
}

// readInt reads a whole line and parses it as a decimal integer.
func readInt(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	val, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("parse int: %w", err)
	}
	return val, nil
}

// readObjID reads a line holding an object ID, with or without a leading "#".
func readObjID(r *bufio.Reader) (types.ObjID, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "#")
	val, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse objid: %w", err)
	}
	return types.ObjID(val), nil
}

// readLine reads a line and strips its trailing newline, tolerating EOF.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\n\r"), nil
}

// argspecToString renders a packed dobj/iobj spec as the "none"/"any"/"this"
// name used elsewhere in the server.
func argspecToString(spec int) string {
	switch spec {
	case 1:
		return "any"
	case 2:
		return "this"
	default:
		return "none"
	}
}

var prepositionNames = []string{
	"with/using",
	"at/to",
	"in front of",
	"in/inside/into",
	"on top of/on/onto/upon",
	"out of/from inside/from",
	"over",
	"through",
	"under/underneath/beneath",
	"behind",
	"beside",
	"for/about",
	"is",
	"as",
	"off/off of",
}

// prepToString renders a packed preposition index as its canonical name.
func prepToString(prep int) string {
	switch {
	case prep == -2:
		return "any"
	case prep >= 0 && prep < len(prepositionNames):
		return prepositionNames[prep]
	default:
		return "none"
	}
}

// resolvePropertyNames replaces the "_inherited_N" placeholder names left by
// readPropertyValues with their real names, derived from the depth-first
// propdef order of each object's ancestry. Names are resolved for every
// object in a first pass before being applied, so that a parent being
// visited out of map-iteration order doesn't see half-renamed ancestors.
func (d *Database) resolvePropertyNames() {
	type resolved struct {
		properties map[string]*Property
		propOrder  []string
	}
	byID := make(map[types.ObjID]resolved, len(d.Objects))

	for id, obj := range d.Objects {
		if obj == nil {
			continue
		}
		allNames := d.collectPropertyNamesRaw(obj)

		newProps := make(map[string]*Property)
		newOrder := make([]string, 0, len(obj.PropOrder))
		for i, oldName := range obj.PropOrder {
			prop := obj.Properties[oldName]
			if prop == nil {
				continue
			}
			newName := oldName
			if i < len(allNames) {
				newName = allNames[i]
			}
			prop.Name = newName
			newProps[newName] = prop
			newOrder = append(newOrder, newName)
		}
		byID[id] = resolved{properties: newProps, propOrder: newOrder}
	}

	for id, obj := range d.Objects {
		if obj == nil {
			continue
		}
		if r, ok := byID[id]; ok {
			obj.Properties = r.properties
			obj.PropOrder = r.propOrder
		}
	}
}

// collectPropertyNamesRaw walks obj's ancestry depth-first (parents before
// self) collecting each object's raw local propdefs, matching the order the
// database file stores property values in.
func (d *Database) collectPropertyNamesRaw(obj *Object) []string {
	var names []string
	d.collectRawPropNamesRecursive(obj, &names, make(map[types.ObjID]bool))
	return names
}

func (d *Database) collectRawPropNamesRecursive(obj *Object, names *[]string, visited map[types.ObjID]bool) {
	if obj == nil || visited[obj.ID] {
		return
	}
	visited[obj.ID] = true
	for _, parentID := range obj.Parents {
		d.collectRawPropNamesRecursive(d.Objects[parentID], names, visited)
	}
	for i := 0; i < obj.PropDefsCount && i < len(obj.PropOrder); i++ {
		*names = append(*names, obj.PropOrder[i])
	}
}

// collectPropertyNames returns obj's final, already-resolved property order.
func (d *Database) collectPropertyNames(obj *Object) []string {
	if obj == nil || len(obj.PropOrder) == 0 {
		return nil
	}
	names := make([]string, len(obj.PropOrder))
	copy(names, obj.PropOrder)
	return names
}

// resolveWaifProperties maps each loaded WAIF's raw property indices to
// names, using its class's ":"-prefixed propdefs. Must run after
// resolvePropertyNames so PropOrder is final.
func (d *Database) resolveWaifProperties() {
	for _, wd := range d.savedWaifs {
		classObj := d.Objects[wd.waif.Class()]
		if classObj == nil {
			continue
		}
		waifPropNames := d.collectWaifPropNames(classObj)
		for idx, val := range wd.propsByIndex {
			if idx < len(waifPropNames) {
				name := strings.TrimPrefix(waifPropNames[idx], ":")
				wd.waif.SetProperty(name, val)
			}
		}
	}
	d.savedWaifs = nil // only needed during loading
}

// collectWaifPropNames returns the ":"-prefixed property names from an
// object's ancestry, in the order the WAIF's sparse property indices expect.
func (d *Database) collectWaifPropNames(obj *Object) []string {
	var waifNames []string
	for _, name := range d.collectPropertyNames(obj) {
		if strings.HasPrefix(name, ":") {
			waifNames = append(waifNames, name)
		}
	}
	return waifNames
}
