package x86_64

import (
	ks "github.com/keystone-engine/keystone/bindings/go/keystone"
	cs "github.com/lunixbochs/capstr"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/qbdl/qbdl/go/cpu"
	"github.com/qbdl/qbdl/go/cpu/unicorn"
	"github.com/qbdl/qbdl/go/models"
)

// System V AMD64 calling convention
var Machine = &models.Machine{
	Arch:   models.ArchX86_64,
	Name:   "x86_64",
	Radare: "x86",

	Cpu: &unicorn.Builder{Arch: uc.ARCH_X86, Mode: uc.MODE_64},
	Dis: &cpu.Capstr{Arch: cs.ARCH_X86, Mode: cs.MODE_64},
	Asm: &cpu.Keystone{Arch: ks.ARCH_X86, Mode: ks.MODE_64},

	PC:     uc.X86_REG_RIP,
	SP:     uc.X86_REG_RSP,
	Ret:    uc.X86_REG_RAX,
	Args:   []int{uc.X86_REG_RDI, uc.X86_REG_RSI, uc.X86_REG_RDX, uc.X86_REG_RCX, uc.X86_REG_R8, uc.X86_REG_R9},
	Return: "ret",
	Regs: map[string]int{
		"rip": uc.X86_REG_RIP,
		"rax": uc.X86_REG_RAX,
		"rbx": uc.X86_REG_RBX,
		"rcx": uc.X86_REG_RCX,
		"rdx": uc.X86_REG_RDX,
		"rsi": uc.X86_REG_RSI,
		"rdi": uc.X86_REG_RDI,
		"rbp": uc.X86_REG_RBP,
		"rsp": uc.X86_REG_RSP,
		"r8":  uc.X86_REG_R8,
		"r9":  uc.X86_REG_R9,
		"r10": uc.X86_REG_R10,
		"r11": uc.X86_REG_R11,
		"r12": uc.X86_REG_R12,
		"r13": uc.X86_REG_R13,
		"r14": uc.X86_REG_R14,
		"r15": uc.X86_REG_R15,
	},
}
