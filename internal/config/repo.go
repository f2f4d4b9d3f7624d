package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RepoOverrides is the optional per-repository scan policy, read from an
// .archmapper.yaml file at the analyzed repository's root. It can only
// narrow the scan: extra exclusions and a restricted extension set.
type RepoOverrides struct {
	ExcludeDirs []string `yaml:"exclude_dirs"`
	Extensions  []string `yaml:"extensions"`
}

const repoOverridesFile = ".archmapper.yaml"

// LoadRepoOverrides reads the override file from repoRoot. A missing file
// yields an empty override set and no error.
func LoadRepoOverrides(repoRoot string) (RepoOverrides, error) {
	var ov RepoOverrides
	data, err := os.ReadFile(filepath.Join(repoRoot, repoOverridesFile))
	if os.IsNotExist(err) {
		return ov, nil
	}
	if err != nil {
		return ov, fmt.Errorf("reading %s: %w", repoOverridesFile, err)
	}
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return ov, fmt.Errorf("parsing %s: %w", repoOverridesFile, err)
	}
	return ov, nil
}

// Apply merges the overrides into an AnalysisConfig copy.
func (ov RepoOverrides) Apply(ac AnalysisConfig) AnalysisConfig {
	out := ac
	if len(ov.ExcludeDirs) > 0 {
		out.ExcludedDirs = append(append([]string{}, ac.ExcludedDirs...), ov.ExcludeDirs...)
	}
	if len(ov.Extensions) > 0 {
		base := make(map[string]bool, len(ac.SupportedExtensions))
		for _, ext := range ac.SupportedExtensions {
			base[ext] = true
		}
		out.SupportedExtensions = []string{}
		for _, ext := range ov.Extensions {
			if base[ext] {
				out.SupportedExtensions = append(out.SupportedExtensions, ext)
			}
		}
	}
	return out
}
