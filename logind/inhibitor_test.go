package logind

import (
	"os"
	"testing"
)

func pipeLock(t *testing.T) (*InhibitorLock, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return &InhibitorLock{file: w}, r
}

func TestReleaseIdempotent(t *testing.T) {
	lock, _ := pipeLock(t)

	if !lock.Held() {
		t.Fatal("fresh lock not held")
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if lock.Held() {
		t.Fatal("lock still held after release")
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second release not a no-op: %v", err)
	}
}

func TestDupIndependent(t *testing.T) {
	lock, r := pipeLock(t)

	dup, err := lock.Dup()
	if err != nil {
		t.Fatalf("dup: %v", err)
	}

	// Releasing the original must not invalidate the duplicate: the
	// read side only sees EOF once both references are gone.
	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := dup.Write([]byte("x")); err != nil {
		t.Fatalf("duplicate unusable after original released: %v", err)
	}
	dup.Close()

	buf := make([]byte, 2)
	n, _ := r.Read(buf)
	if n != 1 || buf[0] != 'x' {
		t.Fatalf("read %q (%d bytes), want %q", buf[:n], n, "x")
	}
}

func TestDupAfterRelease(t *testing.T) {
	lock, _ := pipeLock(t)
	lock.Release()
	if _, err := lock.Dup(); err == nil {
		t.Fatal("dup of released lock succeeded")
	}
}
