package db

import (
	"fmt"
	"sort"

	"silo/types"
)

// WriteDatabase writes a full v17-format snapshot of the store to the
// writer's destination in the on-disk section order: header, players,
// finalization/clock placeholders, task checkpoints, connections, the
// object table, anonymous objects, and verb programs.
func (w *Writer) WriteDatabase() error {
	if err := w.writeString("** LambdaMOO Database, Format Version 17 **"); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	if err := w.writePlayers(); err != nil {
		return fmt.Errorf("write players: %w", err)
	}
	if err := w.writeString("0 values pending finalization"); err != nil {
		return fmt.Errorf("write pending: %w", err)
	}
	if err := w.writeString("0 clocks"); err != nil {
		return fmt.Errorf("write clocks: %w", err)
	}
	if err := w.writeQueuedTasks(); err != nil {
		return fmt.Errorf("write queued tasks: %w", err)
	}
	if err := w.writeSuspendedTasks(); err != nil {
		return fmt.Errorf("write suspended tasks: %w", err)
	}
	if err := w.writeInterruptedTasks(); err != nil {
		return fmt.Errorf("write interrupted tasks: %w", err)
	}
	if err := w.writeString("0 active connections with listeners"); err != nil {
		return fmt.Errorf("write connections: %w", err)
	}
	if err := w.writeObjects(); err != nil {
		return fmt.Errorf("write objects: %w", err)
	}
	if err := w.writeAnonymousObjects(); err != nil {
		return fmt.Errorf("write anonymous objects: %w", err)
	}
	if err := w.writeVerbPrograms(); err != nil {
		return fmt.Errorf("write verb programs: %w", err)
	}
	return w.Flush()
}

func (w *Writer) writePlayers() error {
	players := w.store.Players()
	if err := w.writeInt(len(players)); err != nil {
		return err
	}
	for _, playerID := range players {
		if err := w.writeObjID(playerID); err != nil {
			return err
		}
	}
	return nil
}

// writeObjects writes every slot from #0 through the store's max object ID,
// including recycled slots, which must still appear as placeholders to
// preserve numbering on reload.
func (w *Writer) writeObjects() error {
	maxID := w.store.MaxObject()
	if err := w.writeInt(int(maxID) + 1); err != nil {
		return err
	}
	for id := types.ObjID(0); id <= maxID; id++ {
		obj := w.store.GetUnsafe(id)
		if obj == nil || obj.Recycled || obj.Anonymous {
			if err := w.writeString(fmt.Sprintf("# %d recycled", id)); err != nil {
				return err
			}
			continue
		}
		if err := w.writeObject(obj); err != nil {
			return err
		}
	}
	return nil
}

// writeAnonymousObjects writes the store's anonymous objects as a single
// batch, then the 0 count that ends the (possibly multi-batch) section.
func (w *Writer) writeAnonymousObjects() error {
	anons := w.store.GetAnonymousObjects()
	if len(anons) > 0 {
		if err := w.writeInt(len(anons)); err != nil {
			return err
		}
		for _, obj := range anons {
			if err := w.writeObject(obj); err != nil {
				return err
			}
		}
	}
	return w.writeInt(0)
}

func (w *Writer) writeObject(obj *Object) error {
	if err := w.writeString(fmt.Sprintf("#%d", obj.ID)); err != nil {
		return err
	}
	if err := w.writeString(obj.Name); err != nil {
		return err
	}
	if err := w.writeInt(int(obj.Flags)); err != nil {
		return err
	}
	if err := w.writeObjID(obj.Owner); err != nil {
		return err
	}
	if err := w.writeValue(types.NewObj(obj.Location)); err != nil {
		return err
	}
	if err := w.writeValue(types.NewEmptyMap()); err != nil { // last_move: not tracked
		return err
	}
	if err := w.writeObjectList(obj.Contents); err != nil {
		return err
	}
	if err := w.writeParents(obj.Parents); err != nil {
		return err
	}
	if err := w.writeObjectList(obj.Children); err != nil {
		return err
	}

	if err := w.writeInt(len(obj.VerbList)); err != nil {
		return err
	}
	for _, verb := range obj.VerbList {
		if err := w.writeVerbMetadata(verb); err != nil {
			return err
		}
	}
	return w.writeProperties(obj)
}

func (w *Writer) writeObjectList(ids []types.ObjID) error {
	elements := make([]types.Value, len(ids))
	for i, id := range ids {
		elements[i] = types.NewObj(id)
	}
	return w.writeValue(types.NewList(elements))
}

// writeParents encodes 0 parents as #-1, 1 parent as a bare OBJ, and
// multiple parents as a list, matching what readObject's parentsVal
// type-switch expects.
func (w *Writer) writeParents(parents []types.ObjID) error {
	switch len(parents) {
	case 0:
		return w.writeValue(types.NewObj(-1))
	case 1:
		return w.writeValue(types.NewObj(parents[0]))
	default:
		elements := make([]types.Value, len(parents))
		for i, id := range parents {
			elements[i] = types.NewObj(id)
		}
		return w.writeValue(types.NewList(elements))
	}
}

// writeVerbMetadata writes a verb's name/owner/perms/prep fields; its
// source code is written separately by writeVerbPrograms.
func (w *Writer) writeVerbMetadata(verb *Verb) error {
	if err := w.writeString(verb.Name); err != nil {
		return err
	}
	if err := w.writeObjID(verb.Owner); err != nil {
		return err
	}
	perms := int(verb.Perms)
	perms |= argspecToInt(verb.ArgSpec.This) << 4
	perms |= argspecToInt(verb.ArgSpec.That) << 6
	if err := w.writeInt(perms); err != nil {
		return err
	}
	return w.writeInt(prepToInt(verb.ArgSpec.Prep))
}

// orderedPropertyNames returns obj's properties in PropOrder, falling back
// to a sorted key list if PropOrder wasn't populated.
func orderedPropertyNames(obj *Object) []string {
	if len(obj.PropOrder) > 0 || len(obj.Properties) == 0 {
		return obj.PropOrder
	}
	names := make([]string, 0, len(obj.Properties))
	for name := range obj.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (w *Writer) writeProperties(obj *Object) error {
	propNames := orderedPropertyNames(obj)

	propDefsCount := obj.PropDefsCount
	if propDefsCount > len(propNames) {
		propDefsCount = len(propNames)
	}
	if err := w.writeInt(propDefsCount); err != nil {
		return err
	}
	for i := 0; i < propDefsCount; i++ {
		if err := w.writeString(propNames[i]); err != nil {
			return err
		}
	}

	if err := w.writeInt(len(propNames)); err != nil {
		return err
	}
	for _, name := range propNames {
		prop := obj.Properties[name]
		if prop == nil {
			if err := w.writeInt(dbWriteClear); err != nil {
				return err
			}
			if err := w.writeObjID(-1); err != nil {
				return err
			}
			if err := w.writeInt(0); err != nil {
				return err
			}
			continue
		}
		if err := w.writeProperty(prop); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeProperty(prop *Property) error {
	if prop.Clear {
		if err := w.writeInt(dbWriteClear); err != nil {
			return err
		}
	} else if err := w.writeValue(prop.Value); err != nil {
		return err
	}
	if err := w.writeObjID(prop.Owner); err != nil {
		return err
	}
	return w.writeInt(int(prop.Perms))
}

type writableVerb struct {
	objID   types.ObjID
	verbIdx int
	code    []string
}

// collectWritableVerbs gathers every non-recycled object's verbs that carry
// source code, in object-table iteration order.
func (w *Writer) collectWritableVerbs() []writableVerb {
	var verbs []writableVerb
	for _, obj := range w.store.All() {
		if obj == nil || obj.Recycled {
			continue
		}
		for idx, verb := range obj.VerbList {
			if len(verb.Code) > 0 {
				verbs = append(verbs, writableVerb{objID: obj.ID, verbIdx: idx, code: verb.Code})
			}
		}
	}
	return verbs
}

// writeVerbPrograms writes the verb-code section: a count, then each verb's
// "#objnum:verbindex" header, its source lines, and a "." terminator.
func (w *Writer) writeVerbPrograms() error {
	verbs := w.collectWritableVerbs()
	if err := w.writeInt(len(verbs)); err != nil {
		return err
	}
	for _, v := range verbs {
		if err := w.writeString(fmt.Sprintf("#%d:%d", v.objID, v.verbIdx)); err != nil {
			return err
		}
		for _, line := range v.code {
			if err := w.writeString(line); err != nil {
				return err
			}
		}
		if err := w.writeString("."); err != nil {
			return err
		}
	}
	return nil
}

func argspecToInt(spec string) int {
	switch spec {
	case "any":
		return 1
	case "this":
		return 2
	default:
		return 0
	}
}

func prepToInt(prep string) int {
	switch prep {
	case "none":
		return -1
	case "any":
		return -2
	}
	for i, p := range prepositionNames {
		if prep == p {
			return i
		}
	}
	return -1
}
