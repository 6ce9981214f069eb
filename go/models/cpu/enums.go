package cpu

// hook and memory enums follow Unicorn's numbering
// https://github.com/unicorn-engine/unicorn/blob/master/bindings/go/unicorn/unicorn_const.go
const (
	// hook (after) each memory read/write
	HOOK_MEM_READ  = 1024
	HOOK_MEM_WRITE = 2048
	HOOK_MEM       = HOOK_MEM_READ | HOOK_MEM_WRITE

	// hook all memory errors
	HOOK_MEM_ERR = 1008
)

// these errors are used for HOOK_MEM_ERR
const (
	MEM_READ_UNMAPPED  = 19
	MEM_WRITE_UNMAPPED = 20
	MEM_FETCH_UNMAPPED = 21
	MEM_WRITE_PROT     = 12
	MEM_READ_PROT      = 13
	MEM_FETCH_PROT     = 14
)

// these constants are used for memory protections
const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

// these constants are used in a hook to specify the type of memory access
const (
	MEM_WRITE = 16
	MEM_READ  = 17
	MEM_FETCH = 18
)
