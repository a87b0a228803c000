package arch

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/qbdl/qbdl/go/arch/arm"
	"github.com/qbdl/qbdl/go/arch/arm64"
	"github.com/qbdl/qbdl/go/arch/mips"
	"github.com/qbdl/qbdl/go/arch/x86"
	"github.com/qbdl/qbdl/go/arch/x86_64"
	"github.com/qbdl/qbdl/go/models"
)

var machineMap = map[string]*models.Machine{
	"arm":    arm.Machine,
	"arm64":  arm64.Machine,
	"mips":   mips.Machine,
	"mipsel": mips.MachineEL,
	"x86":    x86.Machine,
	"x86_64": x86_64.Machine,
}

func GetMachine(name string) (*models.Machine, error) {
	a, err := models.ParseArch(name)
	if err != nil {
		return nil, err
	}
	return ForArch(a)
}

// ForArch returns the machine that runs code for a.
func ForArch(a models.Arch) (*models.Machine, error) {
	for _, m := range machineMap {
		if m.Arch == a {
			return m, nil
		}
	}
	return nil, errors.Errorf("no machine for %s", a)
}

func Names() []string {
	names := make([]string, 0, len(machineMap))
	for name := range machineMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
