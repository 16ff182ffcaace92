package types

// Default limits applied to a freshly created task context. The tick
// budget is generous compared to classic LambdaMOO's 30,000-60,000
// range so long pure-Go loops don't need to suspend as often.
const (
	defaultTickBudget     = 300000
	defaultMaxStringConcat = 1000000
)

// TaskContext threads the permission, identity, and resource-limit
// state of one running task through every evaluator call: whose
// permissions an operation runs with, what "this"/verb it's inside,
// how many ticks are left, and where ^ / $ resolve inside an
// index expression.
type TaskContext struct {
	TicksRemaining int64
	Player         ObjID
	Programmer     ObjID
	ThisObj        ObjID
	Verb           string

	// IndexContext holds the length of the collection currently being
	// indexed, so that ^ and $ in a sub-expression like list[^..^+1]
	// resolve to real offsets. -1 means "not currently indexing".
	IndexContext int

	// MapFirstKey/MapLastKey hold the first/last key of a map being
	// indexed, so ^ and $ can resolve to a key rather than an integer
	// when the indexed collection is a map.
	MapFirstKey Value
	MapLastKey  Value

	// TaskLocal is the task-local storage slot read/written by the
	// task_local()/set_task_local() built-ins.
	TaskLocal Value

	TaskID   int64
	IsWizard bool

	// Task and Store are typed as interface{} to avoid an import cycle
	// back to the task/db packages; callers type-assert to *task.Task
	// and *db.Store respectively.
	Task  interface{}
	Store interface{}

	// MaxStringConcat caps the length of strings produced by
	// string-building built-ins before they fail with E_QUOTA.
	MaxStringConcat int
}

// NewTaskContext builds a context with the server's default resource
// limits and no bound player, programmer, or this-object.
func NewTaskContext() *TaskContext {
	return &TaskContext{
		TicksRemaining:  defaultTickBudget,
		Player:          ObjNothing,
		Programmer:      ObjNothing,
		ThisObj:         ObjNothing,
		IndexContext:    -1,
		MaxStringConcat: defaultMaxStringConcat,
	}
}

// ConsumeTick spends one tick and reports whether any remain. Once it
// returns false the running task must suspend rather than keep
// executing.
func (ctx *TaskContext) ConsumeTick() bool {
	ctx.TicksRemaining--
	return ctx.TicksRemaining > 0
}

// CheckStringLimit returns E_QUOTA when length exceeds the context's
// MaxStringConcat, E_NONE otherwise. Builtins that also consult a
// server-option-derived global cache must apply that check themselves
// before (or instead of) calling this, since the cache lives in the
// builtins package and can't be reached from here without an import
// cycle.
func (ctx *TaskContext) CheckStringLimit(length int) ErrorCode {
	if limit := ctx.MaxStringConcat; limit > 0 && length > limit {
		return E_QUOTA
	}
	return E_NONE
}
