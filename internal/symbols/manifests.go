package symbols

import (
	"encoding/json"
	"path"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"

	"github.com/devgraph/devgraph-go/internal/models"
)

// ManifestFile reports whether a path is a recognized dependency
// manifest.
func ManifestFile(p string) bool {
	switch path.Base(p) {
	case "package.json", "requirements.txt", "go.mod", "Cargo.toml", "pyproject.toml":
		return true
	}
	return false
}

// ParseManifest extracts declared libraries from a manifest file. The
// manifest filename is recorded so Library.manifest_sources can
// accumulate across manifests.
func ParseManifest(p string, content []byte) ([]models.Library, error) {
	source := path.Base(p)
	switch source {
	case "package.json":
		return parsePackageJSON(p, content)
	case "requirements.txt":
		return parseRequirements(p, content), nil
	case "go.mod":
		return parseGoMod(p, content)
	case "Cargo.toml":
		return parseCargoToml(p, content)
	case "pyproject.toml":
		return parsePyprojectToml(p, content)
	}
	return nil, nil
}

func parsePackageJSON(p string, content []byte) ([]models.Library, error) {
	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(content, &manifest); err != nil {
		return nil, err
	}

	var libs []models.Library
	for _, deps := range []map[string]string{manifest.Dependencies, manifest.DevDependencies} {
		for name, version := range deps {
			libs = append(libs, models.Library{
				Name:            name,
				Language:        "javascript",
				Version:         version,
				ManifestSources: []string{p},
			})
		}
	}
	return libs, nil
}

var requirementRe = regexp.MustCompile(`^([A-Za-z0-9._-]+)\s*(?:\[[^\]]*\])?\s*(?:(?:==|>=|<=|~=|!=|>|<)\s*([^\s;#]+))?`)

func parseRequirements(p string, content []byte) []models.Library {
	var libs []models.Library
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if m := requirementRe.FindStringSubmatch(line); m != nil {
			libs = append(libs, models.Library{
				Name:            strings.ToLower(m[1]),
				Language:        "python",
				Version:         m[2],
				ManifestSources: []string{p},
			})
		}
	}
	return libs
}

func parseGoMod(p string, content []byte) ([]models.Library, error) {
	file, err := modfile.Parse(p, content, nil)
	if err != nil {
		return nil, err
	}
	var libs []models.Library
	for _, req := range file.Require {
		libs = append(libs, models.Library{
			Name:            req.Mod.Path,
			Language:        "go",
			Version:         req.Mod.Version,
			ManifestSources: []string{p},
		})
	}
	return libs, nil
}

// GoModulePath returns the declared module path of a go.mod, or "".
func GoModulePath(content []byte) string {
	file, err := modfile.Parse("go.mod", content, nil)
	if err != nil || file.Module == nil {
		return ""
	}
	return file.Module.Mod.Path
}

func parseCargoToml(p string, content []byte) ([]models.Library, error) {
	var manifest struct {
		Dependencies    map[string]any `toml:"dependencies"`
		DevDependencies map[string]any `toml:"dev-dependencies"`
	}
	if err := toml.Unmarshal(content, &manifest); err != nil {
		return nil, err
	}

	var libs []models.Library
	for _, deps := range []map[string]any{manifest.Dependencies, manifest.DevDependencies} {
		for name, spec := range deps {
			version := ""
			switch v := spec.(type) {
			case string:
				version = v
			case map[string]any:
				if s, ok := v["version"].(string); ok {
					version = s
				}
			}
			libs = append(libs, models.Library{
				Name:            name,
				Language:        "rust",
				Version:         version,
				ManifestSources: []string{p},
			})
		}
	}
	return libs, nil
}

func parsePyprojectToml(p string, content []byte) ([]models.Library, error) {
	var manifest struct {
		Project struct {
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(content, &manifest); err != nil {
		return nil, err
	}

	var libs []models.Library
	for _, dep := range manifest.Project.Dependencies {
		if m := requirementRe.FindStringSubmatch(strings.TrimSpace(dep)); m != nil {
			libs = append(libs, models.Library{
				Name:            strings.ToLower(m[1]),
				Language:        "python",
				Version:         m[2],
				ManifestSources: []string{p},
			})
		}
	}
	for name, spec := range manifest.Tool.Poetry.Dependencies {
		if strings.EqualFold(name, "python") {
			continue
		}
		version := ""
		if s, ok := spec.(string); ok {
			version = s
		}
		libs = append(libs, models.Library{
			Name:            strings.ToLower(name),
			Language:        "python",
			Version:         version,
			ManifestSources: []string{p},
		})
	}
	return libs, nil
}
