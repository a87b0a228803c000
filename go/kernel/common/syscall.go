package common

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// variadic functions see this many raw arguments
const MaxArgs = 8

type Func struct {
	Name     string
	Kernel   *KernelBase
	Instance reflect.Value
	Method   reflect.Method
	In       []reflect.Type
	UintArr  bool
}

// Argc is the number of raw arguments Call wants.
func (f Func) Argc() int {
	if f.UintArr {
		return MaxArgs
	}
	return len(f.In)
}

// Call runs the function with raw register/stack arguments. A panic in the
// handler is returned as an error.
func (f Func) Call(args []uint64) (ret uint64, err error) {
	if len(args) < len(f.In) {
		return 0, errors.Errorf("%s: wanted %d arguments, got %d", f.Name, len(f.In), len(args))
	}
	extraArgs := 1
	if f.UintArr {
		extraArgs++
	}
	in := make([]reflect.Value, len(f.In)+extraArgs)
	in[0] = f.Instance
	if f.UintArr {
		in[1] = reflect.ValueOf(args)
	}
	converted, err := f.Kernel.Argjoy.Convert(f.In, false, args[:len(f.In)])
	if err != nil {
		return 0, errors.Wrapf(err, "calling %s()", f.Name)
	}
	copy(in[extraArgs:], converted)
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%s() panicked: %v", f.Name, r)
		}
	}()
	out := f.Method.Func.Call(in)
	Uint64Type := reflect.TypeOf(uint64(0))
	if len(out) > 0 && out[0].Type().ConvertibleTo(Uint64Type) {
		return out[0].Convert(Uint64Type).Uint(), nil
	}
	return 0, nil
}

func (f Func) String() string {
	return fmt.Sprintf("%s/%d", f.Name, len(f.In))
}
