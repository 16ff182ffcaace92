package builtins

import (
	"silo/db"
	"silo/types"
)

// callerIsWizard reports whether the invoking programmer or player holds
// wizard bits. Either suffices: IsWizard reflects the task's current
// permissions (post setuid), while the player's own flag covers builtins
// invoked before a setuid promotion has taken place.
func callerIsWizard(ctx *types.TaskContext, store *db.Store) bool {
	return ctx.IsWizard || isPlayerWizard(store, ctx.Player) || isPlayerWizard(store, ctx.Programmer)
}

// ownerOrWizard reports whether the caller may perform an operation that
// LambdaMOO restricts to an entity's owner or a wizard.
func ownerOrWizard(ctx *types.TaskContext, store *db.Store, owner types.ObjID) bool {
	return owner == ctx.Programmer || callerIsWizard(ctx, store)
}

// canReadProperty implements the §4.6 property read rule: owner, or the
// property carries the 'r' bit, or the caller is a wizard.
func canReadProperty(ctx *types.TaskContext, store *db.Store, prop *db.Property) bool {
	if prop.Owner == ctx.Programmer {
		return true
	}
	if prop.Perms.Has(db.PropRead) {
		return true
	}
	return callerIsWizard(ctx, store)
}

// canWriteProperty implements the §4.6 property write rule: owner, or the
// property carries the 'w' bit, or the caller is a wizard.
func canWriteProperty(ctx *types.TaskContext, store *db.Store, prop *db.Property) bool {
	if prop.Owner == ctx.Programmer {
		return true
	}
	if prop.Perms.Has(db.PropWrite) {
		return true
	}
	return callerIsWizard(ctx, store)
}
