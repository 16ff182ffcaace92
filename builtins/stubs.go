package builtins

import "silo/types"

// stubNotImplemented backs every recognized-but-unimplemented builtin. It
// exists so function_info() and presence checks see the name, while an
// actual call reports E_ARGS rather than E_VERBNF.
func stubNotImplemented(ctx *types.TaskContext, args []types.Value) types.Result {
	return types.Err(types.E_ARGS)
}

// coreStubNames lists builtins from the core function set (math and string
// extensions, list helpers, and introspection) that get the stub when no real
// implementation has been registered under that name.
var coreStubNames = []string{
	"acosh", "asinh", "atan2", "atanh", "cbrt", "distance", "frandom",
	"relative_heading", "reseed_random", "round", "simplex_noise",
	"chr", "parse_ansi", "remove_ansi",
	"all_members",
	"background_test", "buffered_output_length", "call_function",
	"connection_options", "db_disk_size", "dump_database", "finished_tasks",
	"flush_input", "force_input", "function_info", "listen", "locate_by_name",
	"locations", "log_cache_stats", "malloc_stats", "memory_usage",
	"next_recycled_object", "open_network_connection", "output_delimiters",
	"owned_objects", "queue_info", "read", "recreate", "recycled_objects",
	"reset_max_object", "set_thread_mode", "shutdown", "task_perms",
	"thread_pool", "threads", "unlisten", "usage", "verb_cache_stats",
	"waif_stats",
}

// extensionStubNames lists builtins from the extension set (crypto,
// networking, file I/O, PCRE, SQLite, and encoding) that get the stub when no
// real implementation has been registered under that name.
var extensionStubNames = []string{
	"argon2", "argon2_verify",
	"curl",
	"file_chmod", "file_close", "file_count_lines", "file_eof", "file_flush",
	"file_grep", "file_handles", "file_last_access", "file_last_change",
	"file_last_modify", "file_list", "file_mkdir", "file_mode", "file_name",
	"file_open", "file_openmode", "file_read", "file_readline",
	"file_readlines", "file_remove", "file_rename", "file_rmdir", "file_seek",
	"file_size", "file_stat", "file_tell", "file_type", "file_write",
	"file_writeline",
	"pcre_cache_stats", "pcre_match", "pcre_replace",
	"read_stdin", "spellcheck",
	"sqlite_close", "sqlite_execute", "sqlite_handles", "sqlite_info",
	"sqlite_interrupt", "sqlite_last_insert_row_id", "sqlite_limit",
	"sqlite_open", "sqlite_query",
	"url_decode", "url_encode",
}

// RegisterStubBuiltins registers stubNotImplemented under every name in
// coreStubNames and extensionStubNames that isn't already registered,
// leaving any real implementation in place.
func (r *Registry) RegisterStubBuiltins() {
	for _, name := range coreStubNames {
		r.registerIfAbsent(name)
	}
	for _, name := range extensionStubNames {
		r.registerIfAbsent(name)
	}
}

func (r *Registry) registerIfAbsent(name string) {
	if !r.Has(name) {
		r.Register(name, stubNotImplemented)
	}
}
