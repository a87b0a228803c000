package arch

import (
	"testing"

	"github.com/qbdl/qbdl/go/models"
)

func TestGetMachine(t *testing.T) {
	for _, name := range Names() {
		m, err := GetMachine(name)
		if err != nil {
			t.Fatal(err)
		}
		if m.Name != name {
			t.Errorf("%s resolved to %s", name, m.Name)
		}
	}
	if m, err := GetMachine("amd64"); err != nil || m.Arch != models.ArchX86_64 {
		t.Fatalf("amd64: %v", err)
	}
	if _, err := GetMachine("ppc"); err == nil {
		t.Fatal("found a machine for ppc")
	}
}
