package tts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Voice is a synthesizable voice profile.  Path points at a .safetensors
// voice embedding; an empty Path means a voice built into pocket-tts.
type Voice struct {
	ID      string `json:"id"`
	Path    string `json:"path,omitempty"`
	License string `json:"license,omitempty"`
}

// Ref returns the value passed to pocket-tts: the embedding path when one
// exists, otherwise the built-in voice name.
func (v Voice) Ref() string {
	if v.Path != "" {
		return v.Path
	}
	return v.ID
}

type voiceManifest struct {
	Voices []Voice `json:"voices"`
}

// ErrUnknownVoice is returned when a requested voice cannot be resolved.
var ErrUnknownVoice = errors.New("unknown voice")

// builtinVoices ship with pocket-tts and need no local embedding file.
var builtinVoices = []string{
	"alba", "ben", "dave", "javert", "jude", "lucas", "mia", "selene", "vera",
}

// openaiAliases maps OpenAI voice names onto bundled pocket voices so
// off-the-shelf OpenAI clients work without knowing our voice set.
var openaiAliases = map[string]string{
	"alloy":   "alba",
	"ash":     "ben",
	"coral":   "dave",
	"echo":    "javert",
	"fable":   "jude",
	"onyx":    "lucas",
	"nova":    "mia",
	"sage":    "selene",
	"shimmer": "vera",
}

const manifestName = "manifest.json"

// Registry resolves voice IDs to voice profiles.  Sources, in order:
//
//  1. <dir>/manifest.json, when present (authoritative for the IDs it names)
//  2. a scan of <dir> for *.safetensors embeddings not already listed,
//     so a manifest never hides voices that exist on disk
//  3. the pocket-tts built-in voices
//
// OpenAI voice names resolve through a fixed alias table, and "default"
// (or an empty ID) resolves to the configured default voice.
type Registry struct {
	baseDir   string
	voices    []Voice
	byID      map[string]Voice
	defaultID string
}

// LoadRegistry builds a Registry from the voice directory.  A missing
// directory is not an error; the registry then carries built-ins only.
func LoadRegistry(dir, defaultVoice string) (*Registry, error) {
	reg := &Registry{
		baseDir: dir,
		byID:    make(map[string]Voice),
	}

	manifestPath := filepath.Join(dir, manifestName)
	if _, err := os.Stat(manifestPath); err == nil {
		if err := reg.loadManifest(manifestPath); err != nil {
			return nil, err
		}
	}

	if err := reg.scanDir(); err != nil {
		return nil, err
	}

	for _, id := range builtinVoices {
		reg.add(Voice{ID: id})
	}

	reg.sortVoices()

	defaultVoice = strings.TrimSpace(defaultVoice)
	if defaultVoice == "" {
		defaultVoice = builtinVoices[0]
	}
	if target, ok := openaiAliases[defaultVoice]; ok {
		defaultVoice = target
	}
	if _, ok := reg.byID[defaultVoice]; !ok {
		return nil, fmt.Errorf("default voice %q not in registry", defaultVoice)
	}
	reg.defaultID = defaultVoice

	return reg, nil
}

func (r *Registry) loadManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read voice manifest: %w", err)
	}

	var manifest voiceManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("decode voice manifest: %w", err)
	}

	for _, v := range manifest.Voices {
		// IDs are stored lower-case so resolution stays case-insensitive.
		v.ID = strings.ToLower(strings.TrimSpace(v.ID))
		if v.ID == "" {
			return errors.New("voice manifest contains empty id")
		}
		if v.Path == "" {
			return fmt.Errorf("voice %q has empty path", v.ID)
		}
		if _, exists := r.byID[v.ID]; exists {
			return fmt.Errorf("duplicate voice id %q", v.ID)
		}

		resolved := v.Path
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(r.baseDir, resolved)
		}
		if _, err := os.Stat(resolved); err != nil {
			return fmt.Errorf("voice file for %q: %w", v.ID, err)
		}
		v.Path = filepath.Clean(resolved)

		r.add(v)
	}

	return nil
}

func (r *Registry) scanDir() error {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan voice dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".safetensors") {
			continue
		}

		id := strings.ToLower(strings.TrimSuffix(e.Name(), ".safetensors"))
		r.add(Voice{ID: id, Path: filepath.Join(r.baseDir, e.Name())})
	}

	return nil
}

// add registers a voice unless the ID is already taken.
func (r *Registry) add(v Voice) {
	if _, exists := r.byID[v.ID]; exists {
		return
	}

	r.byID[v.ID] = v
	r.voices = append(r.voices, v)
}

func (r *Registry) sortVoices() {
	sort.Slice(r.voices, func(i, j int) bool { return r.voices[i].ID < r.voices[j].ID })
}

// ListVoices returns all registered voices sorted by ID.
func (r *Registry) ListVoices() []Voice {
	return append([]Voice(nil), r.voices...)
}

// Resolve maps a requested voice ID to a registered voice.  Empty and
// "default" select the configured default; OpenAI names go through the
// alias table first.
func (r *Registry) Resolve(id string) (Voice, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" || id == "default" {
		id = r.defaultID
	}
	if target, ok := openaiAliases[id]; ok {
		id = target
	}

	v, ok := r.byID[id]
	if !ok {
		return Voice{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownVoice, id, strings.Join(r.ids(), ", "))
	}

	return v, nil
}

func (r *Registry) ids() []string {
	ids := make([]string, len(r.voices))
	for i, v := range r.voices {
		ids[i] = v.ID
	}
	return ids
}
