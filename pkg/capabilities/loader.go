package capabilities

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProfileConfig is the YAML structure of a profiles file.
//
//	profiles:
//	  - id: zig
//	    performance: 0.9
//	    safety: 0.7
//	    reactivity: 0.4
//	    ecosystem: 0.3
//	    specialties: [systems, embedded]
type ProfileConfig struct {
	Profiles []Profile `yaml:"profiles" json:"profiles"`
}

// YAMLLoader loads backend profiles from YAML files
type YAMLLoader struct{}

// NewYAMLLoader creates a new YAML loader
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{}
}

// LoadDir loads profiles.yaml or profiles.yml from dir. A directory with
// neither file yields no profiles.
func (l *YAMLLoader) LoadDir(dir string) ([]Profile, error) {
	var profiles []Profile
	for _, name := range []string{"profiles.yaml", "profiles.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		loaded, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, loaded...)
	}
	return profiles, nil
}

// LoadFile loads and validates every profile in a single YAML file
func (l *YAMLLoader) LoadFile(filename string) ([]Profile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var config ProfileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}

	for _, p := range config.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
	}
	return config.Profiles, nil
}

// Apply registers profiles into r. Ids already registered keep their
// handler and take the new profile, with specialties merged; new ids get
// the built-in handler.
func Apply(r *Registry, profiles []Profile) error {
	for _, p := range profiles {
		backend, err := r.Get(p.ID)
		if err != nil {
			backend = BackendFor(p)
		} else if existing, ok := r.Profile(p.ID); ok {
			p.Specialties = mergeStringSlices(existing.Specialties, p.Specialties)
		}
		if err := r.Register(p.ID, p, backend); err != nil {
			return err
		}
	}
	return nil
}

// mergeStringSlices merges two string slices, removing duplicates
func mergeStringSlices(slice1, slice2 []string) []string {
	seen := make(map[string]bool)
	var result []string

	for _, item := range append(append([]string(nil), slice1...), slice2...) {
		if item != "" && !seen[item] {
			result = append(result, item)
			seen[item] = true
		}
	}
	return result
}
