package cpu

// Hook types share unicorn's values so backends can pass them through.
const (
	HOOK_INTR  = 1
	HOOK_CODE  = 4
	HOOK_BLOCK = 8

	HOOK_MEM_READ_UNMAPPED  = 16
	HOOK_MEM_WRITE_UNMAPPED = 32
	HOOK_MEM_FETCH_UNMAPPED = 64
	HOOK_MEM_READ_PROT      = 128
	HOOK_MEM_WRITE_PROT     = 256
	HOOK_MEM_FETCH_PROT     = 512

	HOOK_MEM_UNMAPPED = HOOK_MEM_READ_UNMAPPED | HOOK_MEM_WRITE_UNMAPPED | HOOK_MEM_FETCH_UNMAPPED
	HOOK_MEM_PROT     = HOOK_MEM_READ_PROT | HOOK_MEM_WRITE_PROT | HOOK_MEM_FETCH_PROT
	HOOK_MEM_ERR      = HOOK_MEM_UNMAPPED | HOOK_MEM_PROT
)

// MemError kinds, as unicorn reports them to memory fault hooks
const (
	MEM_WRITE_PROT     = 12
	MEM_READ_PROT      = 13
	MEM_FETCH_PROT     = 14
	MEM_READ_UNMAPPED  = 19
	MEM_WRITE_UNMAPPED = 20
	MEM_FETCH_UNMAPPED = 21
)

var memErrorNames = map[int]string{
	MEM_WRITE_PROT:     "write protected",
	MEM_READ_PROT:      "read protected",
	MEM_FETCH_PROT:     "fetch protected",
	MEM_READ_UNMAPPED:  "read unmapped",
	MEM_WRITE_UNMAPPED: "write unmapped",
	MEM_FETCH_UNMAPPED: "fetch unmapped",
}

const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)
