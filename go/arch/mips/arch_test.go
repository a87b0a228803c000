package mips

import (
	"testing"
)

func TestMips(t *testing.T)       { Machine.SmokeTest(t) }
func TestMipsStub(t *testing.T)   { Machine.TestStub(t) }
func TestMipsel(t *testing.T)     { MachineEL.SmokeTest(t) }
func TestMipselStub(t *testing.T) { MachineEL.TestStub(t) }
