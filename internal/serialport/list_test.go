package serialport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestListInFindsSerialDevices(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "pts"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"ttyUSB10", "ttyUSB2", "ttyS0", "ttyACM1", "pts/3", "pts/ptmx", "null"} {
		if err := os.WriteFile(filepath.Join(root, name), nil, 0o644); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	got, err := listIn(root)
	if err != nil {
		t.Fatalf("listIn: %v", err)
	}
	want := []string{
		filepath.Join(root, "pts", "3"),
		filepath.Join(root, "ttyACM1"),
		filepath.Join(root, "ttyS0"),
		filepath.Join(root, "ttyUSB2"),
		filepath.Join(root, "ttyUSB10"),
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected ports %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("port %d = %q, want %q (all %v)", i, got[i], want[i], got)
		}
	}
}
