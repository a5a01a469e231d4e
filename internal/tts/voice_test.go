package tts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeVoiceFiles(t *testing.T, dir string, names ...string) {
	t.Helper()

	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("stub"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestLoadRegistry_MissingDirUsesBuiltins(t *testing.T) {
	reg, err := LoadRegistry(filepath.Join(t.TempDir(), "nope"), "dave")
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	voices := reg.ListVoices()
	if len(voices) != len(builtinVoices) {
		t.Fatalf("got %d voices; want %d builtins", len(voices), len(builtinVoices))
	}

	v, err := reg.Resolve("dave")
	if err != nil {
		t.Fatalf("Resolve(dave): %v", err)
	}
	if v.Ref() != "dave" {
		t.Errorf("builtin Ref() = %q; want voice name", v.Ref())
	}
}

func TestLoadRegistry_ScanAddsEmbeddings(t *testing.T) {
	dir := t.TempDir()
	writeVoiceFiles(t, dir, "narrator.safetensors", "ignore.txt")

	reg, err := LoadRegistry(dir, "dave")
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	v, err := reg.Resolve("narrator")
	if err != nil {
		t.Fatalf("Resolve(narrator): %v", err)
	}
	if v.Path != filepath.Join(dir, "narrator.safetensors") {
		t.Errorf("Path = %q", v.Path)
	}
	if v.Ref() != v.Path {
		t.Errorf("Ref() = %q; want embedding path", v.Ref())
	}

	if _, err := reg.Resolve("ignore"); err == nil {
		t.Error("non-safetensors file should not become a voice")
	}
}

func TestLoadRegistry_ManifestAuthoritativeScanFillsGaps(t *testing.T) {
	dir := t.TempDir()
	writeVoiceFiles(t, dir, "custom.safetensors", "scanned.safetensors")

	manifest := `{"voices":[{"id":"narrator","path":"custom.safetensors","license":"cc-by-4.0"}]}`
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	reg, err := LoadRegistry(dir, "dave")
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	// Manifest entry present under its manifest ID.
	v, err := reg.Resolve("narrator")
	if err != nil {
		t.Fatalf("Resolve(narrator): %v", err)
	}
	if v.License != "cc-by-4.0" {
		t.Errorf("License = %q", v.License)
	}

	// Scanned voice not named by the manifest is still visible.
	if _, err := reg.Resolve("scanned"); err != nil {
		t.Errorf("Resolve(scanned): %v", err)
	}
}

func TestLoadRegistry_MixedCaseIDsResolve(t *testing.T) {
	dir := t.TempDir()
	writeVoiceFiles(t, dir, "MegaVoice.safetensors", "listed.safetensors")

	manifest := `{"voices":[{"id":"Narrator","path":"listed.safetensors"}]}`
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	reg, err := LoadRegistry(dir, "dave")
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	for _, id := range []string{"narrator", "Narrator", "NARRATOR", "megavoice", "MegaVoice"} {
		if _, err := reg.Resolve(id); err != nil {
			t.Errorf("Resolve(%s): %v", id, err)
		}
	}
}

func TestLoadRegistry_ManifestMissingFileFails(t *testing.T) {
	dir := t.TempDir()

	manifest := `{"voices":[{"id":"ghost","path":"ghost.safetensors"}]}`
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	if _, err := LoadRegistry(dir, "dave"); err == nil {
		t.Fatal("expected error for manifest entry without a file")
	}
}

func TestLoadRegistry_BadDefaultVoiceFails(t *testing.T) {
	if _, err := LoadRegistry(t.TempDir(), "no-such-voice"); err == nil {
		t.Fatal("expected error for unknown default voice")
	}
}

func TestResolve_OpenAIAliases(t *testing.T) {
	reg, err := LoadRegistry(t.TempDir(), "dave")
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	v, err := reg.Resolve("coral")
	if err != nil {
		t.Fatalf("Resolve(coral): %v", err)
	}
	if v.ID != "dave" {
		t.Errorf("coral resolved to %q; want dave", v.ID)
	}

	for alias := range openaiAliases {
		if _, err := reg.Resolve(alias); err != nil {
			t.Errorf("Resolve(%s): %v", alias, err)
		}
	}
}

func TestResolve_DefaultAndEmpty(t *testing.T) {
	reg, err := LoadRegistry(t.TempDir(), "mia")
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	for _, id := range []string{"", "default", " Default "} {
		v, err := reg.Resolve(id)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", id, err)
		}
		if v.ID != "mia" {
			t.Errorf("Resolve(%q) = %q; want mia", id, v.ID)
		}
	}
}

func TestResolve_UnknownVoice(t *testing.T) {
	reg, err := LoadRegistry(t.TempDir(), "dave")
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	_, err = reg.Resolve("santa")
	if !errors.Is(err, ErrUnknownVoice) {
		t.Fatalf("err = %v; want ErrUnknownVoice", err)
	}
}
