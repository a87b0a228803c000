package loader

var (
	ElfFixture   = elfFixture
	MachOFixture = machoFixture
	PEFixture    = peFixture
)
