package builtins

import (
	"silo/db"
	"silo/types"
)

// BuiltinFunc is the signature every registered MOO builtin implements.
type BuiltinFunc func(ctx *types.TaskContext, args []types.Value) types.Result

// VerbCallerFunc invokes a verb on an object, returning E_VERBNF if the verb
// doesn't exist. Supplied by the evaluator so the registry can offer
// call_function-style dispatch without importing eval.
type VerbCallerFunc func(objID types.ObjID, verbName string, args []types.Value, ctx *types.TaskContext) types.Result

// Registry maps builtin names (and their stable numeric IDs) to implementations.
type Registry struct {
	funcs      map[string]BuiltinFunc
	byID       map[int]BuiltinFunc
	nameToID   map[string]int
	nextID     int
	verbCaller VerbCallerFunc
}

type builtinEntry struct {
	name string
	fn   BuiltinFunc
}

// coreBuiltins lists every builtin that needs no dependency beyond its
// arguments and task context. Builtins requiring store access are wired up
// separately by RegisterCryptoBuiltins/RegisterSystemBuiltins.
var coreBuiltins = []builtinEntry{
	// type conversion
	{"typeof", builtinTypeof},
	{"tostr", builtinTostr},
	{"toint", builtinToint},
	{"tofloat", builtinTofloat},
	{"toliteral", builtinToliteral},
	{"toobj", builtinToobj},
	{"equal", builtinEqual},

	// strings
	{"length", builtinLength},
	{"strsub", builtinStrsub},
	{"strtr", builtinStrtr},
	{"index", builtinIndex},
	{"rindex", builtinRindex},
	{"strcmp", builtinStrcmp},
	{"upcase", builtinUpcase},
	{"downcase", builtinDowncase},
	{"capitalize", builtinCapitalize},
	{"explode", builtinExplode},
	{"implode", builtinImplode},
	{"trim", builtinTrim},
	{"ltrim", builtinLtrim},
	{"rtrim", builtinRtrim},
	{"match", builtinMatch},
	{"rmatch", builtinRmatch},
	{"substitute", builtinSubstitute},
	{"all_members", builtinAllMembers},
	{"chr", builtinChr},
	{"parse_ansi", builtinParseAnsi},
	{"remove_ansi", builtinRemoveAnsi},

	// lists
	{"listappend", builtinListappend},
	{"listinsert", builtinListinsert},
	{"listdelete", builtinListdelete},
	{"listset", builtinListset},
	{"setadd", builtinSetadd},
	{"setremove", builtinSetremove},
	{"is_member", builtinIsMember},
	{"sort", builtinSort},
	{"reverse", builtinReverse},
	{"unique", builtinUnique},
	{"slice", builtinSlice},

	// math
	{"abs", builtinAbs},
	{"min", builtinMin},
	{"max", builtinMax},
	{"random", builtinRandom},
	{"frandom", builtinFrandom},
	{"reseed_random", builtinReseedRandom},
	{"sqrt", builtinSqrt},
	{"sin", builtinSin},
	{"cos", builtinCos},
	{"tan", builtinTan},
	{"asin", builtinAsin},
	{"acos", builtinAcos},
	{"acosh", builtinAcosh},
	{"atan", builtinAtan},
	{"atan2", builtinAtan2},
	{"asinh", builtinAsinh},
	{"atanh", builtinAtanh},
	{"sinh", builtinSinh},
	{"cosh", builtinCosh},
	{"tanh", builtinTanh},
	{"exp", builtinExp},
	{"log", builtinLog},
	{"log10", builtinLog10},
	{"cbrt", builtinCbrt},
	{"round", builtinRound},
	{"ceil", builtinCeil},
	{"floor", builtinFloor},
	{"trunc", builtinTrunc},
	{"floatstr", builtinFloatstr},
	{"distance", builtinDistance},
	{"relative_heading", builtinRelativeHeading},
	{"simplex_noise", builtinSimplexNoise},

	// maps
	{"mapkeys", builtinMapkeys},
	{"mapvalues", builtinMapvalues},
	{"mapdelete", builtinMapdelete},
	{"maphaskey", builtinMaphaskey},
	{"mapmerge", builtinMapmerge},

	// JSON
	{"generate_json", builtinGenerateJson},
	{"parse_json", builtinParseJson},

	// network
	{"notify", builtinNotify},
	{"listeners", builtinListeners},
	{"listen", builtinListen},
	{"unlisten", builtinUnlisten},
	{"connected_players", builtinConnectedPlayers},
	{"connection_name", builtinConnectionName},
	{"connection_name_lookup", builtinConnectionNameLookup},
	{"connection_options", builtinConnectionOptions},
	{"boot_player", builtinBootPlayer},
	{"switch_player", builtinSwitchPlayer},
	{"idle_seconds", builtinIdleSeconds},
	{"connected_seconds", builtinConnectedSeconds},
	{"connection_info", builtinConnectionInfo},
	{"set_connection_option", builtinSetConnectionOption},
	{"connection_option", builtinConnectionOption},
	{"open_network_connection", builtinOpenNetworkConnection},
	{"read_http", builtinReadHTTP},
	{"flush_input", builtinFlushInput},
	{"force_input", builtinForceInput},
	{"read", builtinRead},
	{"buffered_output_length", builtinBufferedOutputLength},
	{"output_delimiters", builtinOutputDelimiters},

	// crypto/encoding (crypt itself needs store; registered separately)
	{"encode_base64", builtinEncodeBase64},
	{"decode_base64", builtinDecodeBase64},
	{"encode_binary", builtinEncodeBinary},
	{"decode_binary", builtinDecodeBinary},

	// hashing
	{"string_hash", builtinStringHash},
	{"binary_hash", builtinBinaryHash},
	{"value_hash", builtinValueHash},
	{"string_hmac", builtinStringHmac},
	{"binary_hmac", builtinBinaryHmac},
	{"value_hmac", builtinValueHmac},

	// salt, random bytes, passwords, HTTP, regex extensions
	{"salt", builtinSalt},
	{"random_bytes", builtinRandomBytes},
	{"argon2", builtinArgon2},
	{"argon2_verify", builtinArgon2Verify},
	{"curl", builtinCurl},
	{"url_encode", builtinUrlEncode},
	{"url_decode", builtinUrlDecode},
	{"pcre_cache_stats", builtinPcreCacheStats},
	{"pcre_match", builtinPcreMatch},
	{"pcre_replace", builtinPcreReplace},

	// file IO extensions
	{"file_open", builtinFileOpen},
	{"file_close", builtinFileClose},
	{"file_name", builtinFileName},
	{"file_openmode", builtinFileOpenmode},
	{"file_read", builtinFileRead},
	{"file_readline", builtinFileReadline},
	{"file_readlines", builtinFileReadlines},
	{"file_write", builtinFileWrite},
	{"file_writeline", builtinFileWriteline},
	{"file_flush", builtinFileFlush},
	{"file_seek", builtinFileSeek},
	{"file_tell", builtinFileTell},
	{"file_eof", builtinFileEOF},
	{"file_size", builtinFileSize},
	{"file_mode", builtinFileMode},
	{"file_last_access", builtinFileLastAccess},
	{"file_last_change", builtinFileLastChange},
	{"file_last_modify", builtinFileLastModify},
	{"file_stat", builtinFileStat},
	{"file_type", builtinFileType},
	{"file_remove", builtinFileRemove},
	{"file_rename", builtinFileRename},
	{"file_mkdir", builtinFileMkdir},
	{"file_rmdir", builtinFileRmdir},
	{"file_chmod", builtinFileChmod},
	{"file_list", builtinFileList},
	{"file_handles", builtinFileHandles},
	{"file_count_lines", builtinFileCountLines},
	{"file_grep", builtinFileGrep},

	// sqlite extension
	{"sqlite_open", builtinSqliteOpen},
	{"sqlite_close", builtinSqliteClose},
	{"sqlite_handles", builtinSqliteHandles},
	{"sqlite_info", builtinSqliteInfo},
	{"sqlite_query", builtinSqliteQuery},
	{"sqlite_execute", builtinSqliteExecute},
	{"sqlite_last_insert_row_id", builtinSqliteLastInsertRowID},
	{"sqlite_limit", builtinSqliteLimit},
	{"sqlite_interrupt", builtinSqliteInterrupt},

	// system / task introspection
	{"background_test", builtinBackgroundTest},
	{"db_disk_size", builtinDbDiskSize},
	{"dump_database", builtinDumpDatabase},
	{"getenv", builtinGetenv},
	{"read_stdin", builtinReadStdin},
	{"spellcheck", builtinSpellcheck},
	{"set_thread_mode", builtinSetThreadMode},
	{"shutdown", builtinShutdown},
	{"task_local", builtinTaskLocal},
	{"set_task_local", builtinSetTaskLocal},
	{"task_id", builtinTaskID},
	{"ticks_left", builtinTicksLeft},
	{"seconds_left", builtinSecondsLeft},
	{"task_perms", builtinTaskPerms},
	{"queue_info", builtinQueueInfo},
	{"finished_tasks", builtinFinishedTasks},
	{"thread_pool", builtinThreadPool},
	{"threads", builtinThreads},
	{"usage", builtinUsage},
	{"malloc_stats", builtinMallocStats},
	{"memory_usage", builtinMemoryUsage},
	{"log_cache_stats", builtinLogCacheStats},
	{"exec", builtinExec},
	{"server_log", builtinServerLog},
	{"server_version", builtinServerVersion},
	{"time", builtinTime},
	{"ftime", builtinFtime},
	{"ctime", builtinCtime},

	// garbage collection
	{"run_gc", builtinRunGC},
	{"gc_stats", builtinGCStats},

	// task management
	{"queued_tasks", builtinQueuedTasks},
	{"kill_task", builtinKillTask},
	{"task_stack", builtinTaskStack},
	{"suspend", builtinSuspend},
	{"resume", builtinResume},
	{"callers", builtinCallers},
	{"set_task_perms", builtinSetTaskPerms},
	{"caller_perms", builtinCallerPerms},
	{"raise", builtinRaise},
	{"yin", builtinYin},
}

// NewRegistry builds a registry populated with every builtin that doesn't
// need store access. eval() is registered separately by the Evaluator via
// RegisterEvalBuiltin, since eval needs the parser which needs eval.
func NewRegistry() *Registry {
	r := &Registry{
		funcs:    make(map[string]BuiltinFunc),
		byID:     make(map[int]BuiltinFunc),
		nameToID: make(map[string]int),
	}
	for _, entry := range coreBuiltins {
		r.Register(entry.name, entry.fn)
	}

	r.Register("call_function", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinCallFunction(ctx, args, r)
	})
	r.Register("function_info", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinFunctionInfo(ctx, args, r)
	})

	return r
}

// Register adds a builtin function to the registry, assigning it the next
// sequential numeric ID.
func (r *Registry) Register(name string, fn BuiltinFunc) {
	id := r.nextID
	r.nextID++
	r.funcs[name] = fn
	r.byID[id] = fn
	r.nameToID[name] = id
}

// GetID returns the numeric ID assigned to a builtin name.
func (r *Registry) GetID(name string) (int, bool) {
	id, ok := r.nameToID[name]
	return id, ok
}

// CallByID invokes a builtin by its numeric ID, returning E_VERBNF if unassigned.
func (r *Registry) CallByID(id int, ctx *types.TaskContext, args []types.Value) types.Result {
	fn, ok := r.byID[id]
	if !ok {
		return types.Err(types.E_VERBNF)
	}
	return fn(ctx, args)
}

// Get retrieves a builtin function by name.
func (r *Registry) Get(name string) (BuiltinFunc, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Has reports whether name is a registered builtin.
func (r *Registry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// SetVerbCaller installs the callback used by CallVerb.
func (r *Registry) SetVerbCaller(caller VerbCallerFunc) {
	r.verbCaller = caller
}

// CallVerb dispatches to a verb via the registered verb caller, or reports
// E_VERBNF if no caller has been installed.
func (r *Registry) CallVerb(objID types.ObjID, verbName string, args []types.Value, ctx *types.TaskContext) types.Result {
	if r.verbCaller == nil {
		return types.Err(types.E_VERBNF)
	}
	return r.verbCaller(objID, verbName, args, ctx)
}

// RegisterCryptoBuiltins wires up crypto builtins that need store access.
func (r *Registry) RegisterCryptoBuiltins(store *db.Store) {
	r.Register("crypt", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinCrypt(ctx, args, store)
	})
}

// RegisterSystemBuiltins wires up system builtins that need store access.
func (r *Registry) RegisterSystemBuiltins(store *db.Store) {
	r.Register("load_server_options", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinLoadServerOptions(ctx, args, store)
	})
	r.Register("locate_by_name", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinLocateByName(ctx, args, store)
	})
	r.Register("locations", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinLocations(ctx, args, store)
	})
	r.Register("owned_objects", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinOwnedObjects(ctx, args, store)
	})
	r.Register("next_recycled_object", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinNextRecycledObject(ctx, args, store)
	})
	r.Register("recycled_objects", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinRecycledObjects(ctx, args, store)
	})
	r.Register("recreate", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinRecreate(ctx, args, store)
	})
	r.Register("waif_stats", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinWaifStats(ctx, args, store)
	})
	r.Register("verb_cache_stats", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinVerbCacheStats(ctx, args, store)
	})
	r.Register("reset_max_object", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinResetMaxObject(ctx, args, store)
	})
	r.Register("value_bytes", builtinValueBytes)

	// Supersedes the store-less set_task_perms so that changing the
	// programmer also updates ctx.IsWizard for subsequent checks.
	r.Register("set_task_perms", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinSetTaskPermsWithStore(ctx, args, store)
	})
}
