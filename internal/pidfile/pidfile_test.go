package pidfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRemove(t *testing.T) {
	s := New(t.TempDir(), "api")
	if err := s.Write(4242); err != nil {
		t.Fatalf("Write: %v", err)
	}
	pid, ok := s.Read()
	if !ok || pid != 4242 {
		t.Fatalf("Read: got (%d,%v) want (4242,true)", pid, ok)
	}
	if !s.Exists() {
		t.Fatalf("Exists should be true after write")
	}
	if err := s.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := s.Read(); ok {
		t.Fatalf("Read should fail after remove")
	}
}

func TestReadMissing(t *testing.T) {
	s := New(t.TempDir(), "api")
	if pid, ok := s.Read(); ok || pid != 0 {
		t.Fatalf("missing file: got (%d,%v) want (0,false)", pid, ok)
	}
}

func TestReadGarbage(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "api")
	if err := os.WriteFile(s.Path, []byte("not-a-pid\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := s.Read(); ok {
		t.Fatalf("garbage content must read as no PID")
	}
}

func TestReadNegative(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "api")
	if err := os.WriteFile(s.Path, []byte("-7"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := s.Read(); ok {
		t.Fatalf("non-positive PID must read as no PID")
	}
}

func TestRemoveIdempotent(t *testing.T) {
	s := New(t.TempDir(), "api")
	if err := s.Remove(); err != nil {
		t.Fatalf("Remove on absent file: %v", err)
	}
	if err := s.Remove(); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}

func TestWriteCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "run")
	s := New(dir, "bui")
	if err := s.Write(99); err != nil {
		t.Fatalf("Write into missing dir: %v", err)
	}
	pid, ok := s.Read()
	if !ok || pid != 99 {
		t.Fatalf("Read after nested write: got (%d,%v)", pid, ok)
	}
}

func TestWriteOverwrites(t *testing.T) {
	s := New(t.TempDir(), "api")
	if err := s.Write(1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(2); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	pid, ok := s.Read()
	if !ok || pid != 2 {
		t.Fatalf("got (%d,%v) want (2,true)", pid, ok)
	}
}
