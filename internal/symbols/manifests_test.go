package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestFile(t *testing.T) {
	assert.True(t, ManifestFile("package.json"))
	assert.True(t, ManifestFile("web/package.json"))
	assert.True(t, ManifestFile("go.mod"))
	assert.True(t, ManifestFile("services/api/Cargo.toml"))
	assert.False(t, ManifestFile("package-lock.json"))
	assert.False(t, ManifestFile("README.md"))
}

func TestParsePackageJSON(t *testing.T) {
	content := []byte(`{
		"name": "web",
		"dependencies": {"react": "^18.2.0", "@tanstack/react-query": "5.1.0"},
		"devDependencies": {"vitest": "~1.0.0"}
	}`)

	libs, err := ParseManifest("web/package.json", content)
	require.NoError(t, err)
	require.Len(t, libs, 3)

	byName := map[string]string{}
	for _, lib := range libs {
		assert.Equal(t, "javascript", lib.Language)
		assert.Equal(t, []string{"web/package.json"}, lib.ManifestSources)
		byName[lib.Name] = lib.Version
	}
	assert.Equal(t, "^18.2.0", byName["react"])
	assert.Equal(t, "5.1.0", byName["@tanstack/react-query"])
	assert.Equal(t, "~1.0.0", byName["vitest"])
}

func TestParseRequirements(t *testing.T) {
	content := []byte(`# pinned deps
requests==2.31.0
Flask>=2.0
uvicorn[standard]~=0.23
-r base.txt

pyyaml
`)

	libs, err := ParseManifest("requirements.txt", content)
	require.NoError(t, err)
	require.Len(t, libs, 4)

	assert.Equal(t, "requests", libs[0].Name)
	assert.Equal(t, "2.31.0", libs[0].Version)
	assert.Equal(t, "flask", libs[1].Name)
	assert.Equal(t, "2.0", libs[1].Version)
	assert.Equal(t, "uvicorn", libs[2].Name)
	assert.Equal(t, "0.23", libs[2].Version)
	assert.Equal(t, "pyyaml", libs[3].Name)
	assert.Empty(t, libs[3].Version)
	assert.Equal(t, "python", libs[0].Language)
}

func TestParseGoMod(t *testing.T) {
	content := []byte(`module github.com/acme/svc

go 1.24.0

require (
	github.com/sirupsen/logrus v1.9.3
	golang.org/x/sync v0.10.0 // indirect
)
`)

	libs, err := ParseManifest("go.mod", content)
	require.NoError(t, err)
	require.Len(t, libs, 2)
	assert.Equal(t, "github.com/sirupsen/logrus", libs[0].Name)
	assert.Equal(t, "v1.9.3", libs[0].Version)
	assert.Equal(t, "go", libs[0].Language)

	assert.Equal(t, "github.com/acme/svc", GoModulePath(content))
}

func TestParseCargoToml(t *testing.T) {
	content := []byte(`[package]
name = "svc"

[dependencies]
serde = { version = "1.0", features = ["derive"] }
tokio = "1.35"

[dev-dependencies]
insta = "1.34"
`)

	libs, err := ParseManifest("Cargo.toml", content)
	require.NoError(t, err)
	require.Len(t, libs, 3)

	byName := map[string]string{}
	for _, lib := range libs {
		assert.Equal(t, "rust", lib.Language)
		byName[lib.Name] = lib.Version
	}
	assert.Equal(t, "1.0", byName["serde"])
	assert.Equal(t, "1.35", byName["tokio"])
	assert.Equal(t, "1.34", byName["insta"])
}

func TestParsePyprojectToml(t *testing.T) {
	content := []byte(`[project]
name = "svc"
dependencies = ["fastapi>=0.100", "SQLAlchemy==2.0.23"]

[tool.poetry.dependencies]
python = "^3.11"
httpx = "^0.25"
`)

	libs, err := ParseManifest("pyproject.toml", content)
	require.NoError(t, err)
	require.Len(t, libs, 3)

	byName := map[string]string{}
	for _, lib := range libs {
		assert.Equal(t, "python", lib.Language)
		byName[lib.Name] = lib.Version
	}
	assert.Equal(t, "0.100", byName["fastapi"])
	assert.Equal(t, "2.0.23", byName["sqlalchemy"])
	assert.Equal(t, "^0.25", byName["httpx"])
	_, hasPython := byName["python"]
	assert.False(t, hasPython)
}

func TestParseManifestMalformed(t *testing.T) {
	_, err := ParseManifest("package.json", []byte(`{not json`))
	assert.Error(t, err)

	_, err = ParseManifest("go.mod", []byte(`module`))
	assert.Error(t, err)
}
