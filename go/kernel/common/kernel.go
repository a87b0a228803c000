package common

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lunixbochs/argjoy"

	"github.com/qbdl/qbdl/go/models"
)

// KernelBase holds the dispatch table of a host library. Embed it and call
// Init with the outer struct; every exported method becomes a function named
// in snake_case. A "Literal" prefix keeps the rest of the name as written.
type KernelBase struct {
	Funcs  map[string]Func
	Arch   models.Arch
	Mem    models.TargetMemory
	Argjoy argjoy.Argjoy
	// Halt stops emulation, set by the runner.
	Halt func()
}

func (k *KernelBase) HostKernel() *KernelBase {
	return k
}

type Kernel interface {
	HostKernel() *KernelBase
}

func camelToSnakeCase(name string) string {
	var words []string
	last := 0
	for i, c := range name {
		if unicode.IsUpper(c) {
			if i > 0 {
				words = append(words, name[last:i])
			}
			last = i
		}
	}
	words = append(words, name[last:])
	return strings.ToLower(strings.Join(words, "_"))
}

// methods of KernelBase itself are not host functions
var baseMethods = map[string]bool{"HostKernel": true, "Stop": true, "Names": true}

func Init(kf Kernel, arch models.Arch, mem models.TargetMemory) {
	k := kf.HostKernel()
	k.Arch = arch
	k.Mem = mem
	k.Funcs = make(map[string]Func)
	instance := reflect.ValueOf(kf)
	typ := instance.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if baseMethods[method.Name] {
			continue
		}
		name := method.Name
		literal := strings.HasPrefix(name, "Literal")
		if literal {
			name = strings.TrimPrefix(name, "Literal")
		} else if r, size := utf8.DecodeRuneInString(name); size <= 0 || !unicode.IsUpper(r) {
			continue
		}
		if !literal {
			name = camelToSnakeCase(name)
		}
		in := make([]reflect.Type, method.Type.NumIn()-1)
		for j := 1; j < method.Type.NumIn(); j++ {
			in[j-1] = method.Type.In(j)
		}
		uintArr := len(in) > 0 && in[0] == reflect.SliceOf(reflect.TypeOf(uint64(0)))
		if uintArr {
			in = in[1:]
		}
		k.Funcs[name] = Func{
			Name:     name,
			Kernel:   k,
			Instance: instance,
			Method:   method,
			In:       in,
			UintArr:  uintArr,
		}
	}
	k.Argjoy.Register(k.commonArgCodec)
	k.Argjoy.Register(argjoy.IntToInt)
}

func Lookup(kf Kernel, name string) *Func {
	k := kf.HostKernel()
	if fn, ok := k.Funcs[name]; ok {
		return &fn
	}
	return nil
}

// Names lists the functions the kernel provides.
func (k *KernelBase) Names() []string {
	names := make([]string, 0, len(k.Funcs))
	for name := range k.Funcs {
		names = append(names, name)
	}
	return names
}

func (k *KernelBase) Stop() {
	if k.Halt != nil {
		k.Halt()
	}
}
