package common

import (
	"fmt"
	"strconv"
	"strings"
)

// longest string shown in a trace line
const traceStrsize = 30

func traceHex(a interface{}) string {
	tmp := fmt.Sprintf("0x%x", a)
	if strings.HasPrefix(tmp, "0x-") {
		tmp = "-0x" + tmp[3:]
	}
	return tmp
}

func traceStr(s string) string {
	if len(s) > traceStrsize {
		return strconv.Quote(s[:traceStrsize]) + "..."
	}
	return strconv.Quote(s)
}

func (f Func) traceArg(args ...interface{}) string {
	switch arg := args[0].(type) {
	case Obuf:
		return traceHex(arg.Addr)
	case Buf:
		if len(args) > 1 {
			if length, ok := args[1].(Len); ok {
				mem, err := arg.Bytes(uint64(length))
				if err == nil {
					return traceStr(string(mem))
				}
			}
		}
		return traceHex(arg.Addr)
	case Ptr:
		return traceHex(arg)
	case Fd:
		return fmt.Sprintf("%d", int32(arg))
	case string:
		return traceStr(arg)
	case uint64:
		return traceHex(arg)
	default:
		return fmt.Sprintf("%v", arg)
	}
}

func (f Func) traceArgs(regs []uint64) string {
	if len(regs) < len(f.In) {
		return "?"
	}
	inRef, err := f.Kernel.Argjoy.Convert(f.In, false, regs[:len(f.In)])
	if err != nil {
		return err.Error()
	}
	ret := make([]string, len(inRef))
	in := make([]interface{}, len(inRef))
	for i, val := range inRef {
		in[i] = val.Interface()
	}
	for i := range in {
		ret[i] = f.traceArg(in[i:]...)
	}
	return strings.Join(ret, ", ")
}

// Trace formats a call for verbose output.
func (f Func) Trace(regs []uint64) string {
	return fmt.Sprintf("%s(%s)", f.Name, f.traceArgs(regs))
}

func (f Func) TraceRet(ret uint64) string {
	return " = " + traceHex(ret)
}
