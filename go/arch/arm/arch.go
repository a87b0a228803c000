package arm

import (
	ks "github.com/keystone-engine/keystone/bindings/go/keystone"
	cs "github.com/lunixbochs/capstr"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/qbdl/qbdl/go/cpu"
	"github.com/qbdl/qbdl/go/cpu/unicorn"
	"github.com/qbdl/qbdl/go/models"
)

// AAPCS, ARM mode only
var Machine = &models.Machine{
	Arch:   models.ArchARM,
	Name:   "arm",
	Radare: "arm",

	Cpu: &unicorn.Builder{Arch: uc.ARCH_ARM, Mode: uc.MODE_ARM},
	Dis: &cpu.Capstr{Arch: cs.ARCH_ARM, Mode: cs.MODE_ARM},
	Asm: &cpu.Keystone{Arch: ks.ARCH_ARM, Mode: ks.MODE_ARM},

	PC:     uc.ARM_REG_PC,
	SP:     uc.ARM_REG_SP,
	Ret:    uc.ARM_REG_R0,
	Link:   uc.ARM_REG_LR,
	Args:   []int{uc.ARM_REG_R0, uc.ARM_REG_R1, uc.ARM_REG_R2, uc.ARM_REG_R3},
	Return: "bx lr",
	Regs: map[string]int{
		"r0":  uc.ARM_REG_R0,
		"r1":  uc.ARM_REG_R1,
		"r2":  uc.ARM_REG_R2,
		"r3":  uc.ARM_REG_R3,
		"r4":  uc.ARM_REG_R4,
		"r5":  uc.ARM_REG_R5,
		"r6":  uc.ARM_REG_R6,
		"r7":  uc.ARM_REG_R7,
		"r8":  uc.ARM_REG_R8,
		"r9":  uc.ARM_REG_R9,
		"r10": uc.ARM_REG_R10,
		"r11": uc.ARM_REG_R11,
		"r12": uc.ARM_REG_R12,
		"lr":  uc.ARM_REG_LR,
		"sp":  uc.ARM_REG_SP,
		"pc":  uc.ARM_REG_PC,
	},
}
