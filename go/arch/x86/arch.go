package x86

import (
	ks "github.com/keystone-engine/keystone/bindings/go/keystone"
	cs "github.com/lunixbochs/capstr"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/qbdl/qbdl/go/cpu"
	"github.com/qbdl/qbdl/go/cpu/unicorn"
	"github.com/qbdl/qbdl/go/models"
)

// cdecl: arguments on the stack, return in eax
var Machine = &models.Machine{
	Arch:   models.ArchX86,
	Name:   "x86",
	Radare: "x86",

	Cpu: &unicorn.Builder{Arch: uc.ARCH_X86, Mode: uc.MODE_32},
	Dis: &cpu.Capstr{Arch: cs.ARCH_X86, Mode: cs.MODE_32},
	Asm: &cpu.Keystone{Arch: ks.ARCH_X86, Mode: ks.MODE_32},

	PC:     uc.X86_REG_EIP,
	SP:     uc.X86_REG_ESP,
	Ret:    uc.X86_REG_EAX,
	Return: "ret",
	Regs: map[string]int{
		"eip": uc.X86_REG_EIP,
		"esp": uc.X86_REG_ESP,
		"ebp": uc.X86_REG_EBP,
		"eax": uc.X86_REG_EAX,
		"ebx": uc.X86_REG_EBX,
		"ecx": uc.X86_REG_ECX,
		"edx": uc.X86_REG_EDX,
		"esi": uc.X86_REG_ESI,
		"edi": uc.X86_REG_EDI,

		"eflags": uc.X86_REG_EFLAGS,
	},
}
