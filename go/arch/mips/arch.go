package mips

import (
	ks "github.com/keystone-engine/keystone/bindings/go/keystone"
	cs "github.com/lunixbochs/capstr"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/qbdl/qbdl/go/cpu"
	"github.com/qbdl/qbdl/go/cpu/unicorn"
	"github.com/qbdl/qbdl/go/models"
)

var regs = map[string]int{
	"at": uc.MIPS_REG_AT,
	"v0": uc.MIPS_REG_V0,
	"v1": uc.MIPS_REG_V1,
	"a0": uc.MIPS_REG_A0,
	"a1": uc.MIPS_REG_A1,
	"a2": uc.MIPS_REG_A2,
	"a3": uc.MIPS_REG_A3,
	"t0": uc.MIPS_REG_T0,
	"t1": uc.MIPS_REG_T1,
	"t2": uc.MIPS_REG_T2,
	"t3": uc.MIPS_REG_T3,
	"t4": uc.MIPS_REG_T4,
	"t5": uc.MIPS_REG_T5,
	"t6": uc.MIPS_REG_T6,
	"t7": uc.MIPS_REG_T7,
	"s0": uc.MIPS_REG_S0,
	"s1": uc.MIPS_REG_S1,
	"s2": uc.MIPS_REG_S2,
	"s3": uc.MIPS_REG_S3,
	"s4": uc.MIPS_REG_S4,
	"s5": uc.MIPS_REG_S5,
	"s6": uc.MIPS_REG_S6,
	"s7": uc.MIPS_REG_S7,
	"t8": uc.MIPS_REG_T8,
	"t9": uc.MIPS_REG_T9,
	"gp": uc.MIPS_REG_GP,
	"sp": uc.MIPS_REG_SP,
	"fp": uc.MIPS_REG_FP,
	"ra": uc.MIPS_REG_RA,
	"pc": uc.MIPS_REG_PC,
}

func machine(arch models.Arch, name string) *models.Machine {
	// each library numbers its endian flag differently
	ucMode, csMode, ksMode := uc.MODE_MIPS32+uc.MODE_LITTLE_ENDIAN, cs.MODE_MIPS32+cs.MODE_LITTLE_ENDIAN, ks.MODE_MIPS32+ks.MODE_LITTLE_ENDIAN
	if arch.Endian == models.Big {
		ucMode, csMode, ksMode = uc.MODE_MIPS32+uc.MODE_BIG_ENDIAN, cs.MODE_MIPS32+cs.MODE_BIG_ENDIAN, ks.MODE_MIPS32+ks.MODE_BIG_ENDIAN
	}
	return &models.Machine{
		Arch:   arch,
		Name:   name,
		Radare: "mips",

		Cpu: &unicorn.Builder{Arch: uc.ARCH_MIPS, Mode: ucMode},
		Dis: &cpu.Capstr{Arch: cs.ARCH_MIPS, Mode: csMode},
		Asm: &cpu.Keystone{Arch: ks.ARCH_MIPS, Mode: ksMode},

		PC:   uc.MIPS_REG_PC,
		SP:   uc.MIPS_REG_SP,
		Ret:  uc.MIPS_REG_V0,
		Link: uc.MIPS_REG_RA,
		Args: []int{uc.MIPS_REG_A0, uc.MIPS_REG_A1, uc.MIPS_REG_A2, uc.MIPS_REG_A3},
		// the delay slot runs before the jump lands
		Return: "jr $ra; nop",
		Regs:   regs,
	}
}

// o32, big and little endian
var (
	Machine   = machine(models.ArchMIPS, "mips")
	MachineEL = machine(models.ArchMIPSel, "mipsel")
)
