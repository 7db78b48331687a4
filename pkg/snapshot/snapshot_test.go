package snapshot

import (
	"path/filepath"
	"testing"
)

func TestBuilderEncodeDecodeRoundTrip(t *testing.T) {
	b := NewBuilder()
	hello := b.Intern("hello")
	world := b.Intern("world")
	// Interning the same string again should return the same index.
	if again := b.Intern("hello"); again != hello {
		t.Fatalf("expected interning 'hello' twice to return the same index, got %d and %d", hello, again)
	}

	rec0 := b.AddRecord([]byte{byte(hello), byte(world)})

	path := filepath.Join(t.TempDir(), "snap.bin")
	if err := b.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	snap, err := Load("en", path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if snap.Len() != 2 {
		t.Fatalf("expected 2 interned strings, got %d", snap.Len())
	}
	if snap.Intern(hello) != "hello" || snap.Intern(world) != "world" {
		t.Fatalf("intern table mismatch: %v", snap.strings)
	}
	if snap.RecordCount() != 1 {
		t.Fatalf("expected 1 record, got %d", snap.RecordCount())
	}
	if got := snap.Record(rec0); len(got) != 2 {
		t.Fatalf("unexpected record bytes: %v", got)
	}
}

func TestLoadCachesPerLanguage(t *testing.T) {
	b := NewBuilder()
	b.Intern("bonjour")
	path := filepath.Join(t.TempDir(), "fr.bin")
	if err := b.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	first, err := Load("fr-cache-test", path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := Load("fr-cache-test", "/nonexistent/path/should/not/be/read.bin")
	if err != nil {
		t.Fatalf("Load (cached): %v", err)
	}
	if first != second {
		t.Fatal("expected the second Load for the same language to return the cached snapshot")
	}
	Forget("fr-cache-test")
}

func TestInternNormalizesToNFC(t *testing.T) {
	b := NewBuilder()

	// "e" + combining acute accent U+0301 (NFD) should intern to the same
	// slot as the precomposed U+00E9 "e with acute" (NFC).
	nfd := "école"
	nfc := "école"

	i1 := b.Intern(nfd)
	i2 := b.Intern(nfc)
	if i1 != i2 {
		t.Fatalf("expected NFD and NFC forms to intern to the same index, got %d and %d", i1, i2)
	}
}
