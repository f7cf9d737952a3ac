package symbols

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/graph"
	"github.com/devgraph/devgraph-go/internal/models"
)

// SourceFile is one code file handed to the extractor by the pipeline.
type SourceFile struct {
	Path     string
	Language string
}

// Loader reads and decodes a repo-relative file. Supplied by the
// pipeline so the extractor shares the chunk ingester's decoding rules.
type Loader func(path string) (string, error)

// Stats summarizes one extraction run.
type Stats struct {
	FilesScanned int           `json:"files_scanned"`
	Symbols      int           `json:"symbols"`
	ImportEdges  int           `json:"import_edges"`
	Libraries    int           `json:"libraries"`
	UsesEdges    int           `json:"uses_library_edges"`
	Duration     time.Duration `json:"-"`
}

// Extractor runs structural code analysis: Symbol nodes with
// DEFINED_IN, file-to-file IMPORTS, and Library nodes with
// USES_LIBRARY attribution.
type Extractor struct {
	client     *graph.Client
	writer     *graph.BatchWriter
	load       Loader
	maxWorkers int
	logger     *logrus.Logger
}

func NewExtractor(client *graph.Client, writer *graph.BatchWriter, load Loader, maxWorkers int, logger *logrus.Logger) *Extractor {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Extractor{client: client, writer: writer, load: load, maxWorkers: maxWorkers, logger: logger}
}

type fileScan struct {
	path    string
	symbols []models.Symbol
	imports []Import
	lang    string
}

// Run extracts symbols and libraries for the given code files and
// manifests. Parsing fans out to a worker pool; writes are batched.
func (e *Extractor) Run(ctx context.Context, files []SourceFile, manifests []string) (Stats, error) {
	start := time.Now()
	stats := Stats{}

	libraries, goModule, err := e.collectManifests(manifests)
	if err != nil {
		return stats, err
	}

	allPaths := make([]string, len(files))
	for i, f := range files {
		allPaths[i] = f.Path
	}
	resolver := NewResolver(allPaths, goModule)

	scans, err := e.scanFiles(ctx, files)
	if err != nil {
		return stats, err
	}
	stats.FilesScanned = len(scans)

	var symbolRows []map[string]any
	var definedIn []graph.EdgeRow
	var importEdges []graph.EdgeRow
	usesEdges := map[string]graph.EdgeRow{}

	libByKey := indexLibraries(libraries)

	for _, scan := range scans {
		for _, sym := range scan.symbols {
			symbolRows = append(symbolRows, sym.Properties())
			definedIn = append(definedIn, graph.EdgeRow{
				From: sym.UID(), To: sym.FilePath,
				Props: map[string]any{"sources": []string{"symbol-scan"}, "confidence": 1.0},
			})
		}
		for _, imp := range scan.imports {
			repoPath, libName := resolver.Resolve(scan.path, imp.Target, scan.lang)
			switch {
			case repoPath != "":
				importEdges = append(importEdges, graph.EdgeRow{
					From: scan.path, To: repoPath,
					Props: map[string]any{"sources": []string{"import-scan"}, "confidence": imp.Confidence()},
				})
			case libName != "":
				name := matchLibrary(libByKey, libName, scan.lang)
				if _, known := libByKey[libKey(name, scan.lang)]; !known {
					libraries = append(libraries, models.Library{Name: name, Language: languageFamily(scan.lang)})
					libByKey[libKey(name, scan.lang)] = name
				}
				key := scan.path + "\x00" + name
				if _, dup := usesEdges[key]; !dup {
					usesEdges[key] = graph.EdgeRow{
						From: scan.path, To: name,
						Props: map[string]any{"sources": []string{"import-scan"}, "confidence": imp.Confidence()},
					}
				}
			}
		}
	}

	if err := e.writer.UpsertNodes(ctx, models.LabelSymbol, symbolRows); err != nil {
		return stats, err
	}
	if err := e.writeLibraries(ctx, libraries); err != nil {
		return stats, err
	}
	if err := e.writer.UpsertEdges(ctx, graph.EdgeSpec{
		FromLabel: models.LabelSymbol, ToLabel: models.LabelFile, Rel: models.RelDefinedIn,
	}, definedIn); err != nil {
		return stats, err
	}
	if err := e.writer.UpsertEdges(ctx, graph.EdgeSpec{
		FromLabel: models.LabelFile, ToLabel: models.LabelFile, Rel: models.RelImports,
	}, importEdges); err != nil {
		return stats, err
	}

	uses := make([]graph.EdgeRow, 0, len(usesEdges))
	for _, row := range usesEdges {
		uses = append(uses, row)
	}
	sort.Slice(uses, func(i, j int) bool { return uses[i].From.(string) < uses[j].From.(string) })
	if err := e.writer.UpsertEdges(ctx, graph.EdgeSpec{
		FromLabel: models.LabelFile, ToLabel: models.LabelLibrary, Rel: models.RelUsesLibrary,
	}, uses); err != nil {
		return stats, err
	}

	stats.Symbols = len(symbolRows)
	stats.ImportEdges = len(importEdges)
	stats.Libraries = len(libraries)
	stats.UsesEdges = len(uses)
	stats.Duration = time.Since(start)

	e.logger.WithFields(logrus.Fields{
		"files":     stats.FilesScanned,
		"symbols":   stats.Symbols,
		"imports":   stats.ImportEdges,
		"libraries": stats.Libraries,
		"duration":  stats.Duration.String(),
	}).Info("symbol extraction completed")

	return stats, nil
}

func (e *Extractor) scanFiles(ctx context.Context, files []SourceFile) ([]fileScan, error) {
	scans := make([]fileScan, 0, len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)

	for _, f := range files {
		f := f
		scanner := ForLanguage(f.Language)
		if scanner == nil {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return errs.Wrap(err, errs.KindCancelled, "symbol scan cancelled")
			}
			content, err := e.load(f.Path)
			if err != nil {
				// Undecodable files were already flagged by the chunk
				// ingester; they just yield no symbols.
				return nil
			}
			lines := strings.Split(content, "\n")
			scan := fileScan{
				path:    f.Path,
				lang:    f.Language,
				symbols: scanner.Symbols(f.Path, lines),
				imports: scanner.Imports(lines),
			}
			mu.Lock()
			scans = append(scans, scan)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(scans, func(i, j int) bool { return scans[i].path < scans[j].path })
	return scans, nil
}

func (e *Extractor) collectManifests(manifests []string) ([]models.Library, string, error) {
	var libraries []models.Library
	goModule := ""

	for _, m := range manifests {
		content, err := e.load(m)
		if err != nil {
			e.logger.WithError(err).WithField("manifest", m).Warn("skipping unreadable manifest")
			continue
		}
		libs, err := ParseManifest(m, []byte(content))
		if err != nil {
			e.logger.WithError(err).WithField("manifest", m).Warn("skipping malformed manifest")
			continue
		}
		libraries = append(libraries, libs...)
		if strings.HasSuffix(m, "go.mod") {
			if mod := GoModulePath([]byte(content)); mod != "" {
				goModule = mod
			}
		}
	}
	return libraries, goModule, nil
}

// writeLibraries upserts Library nodes, accumulating manifest_sources
// across manifests instead of overwriting them.
func (e *Extractor) writeLibraries(ctx context.Context, libraries []models.Library) error {
	if len(libraries) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(libraries))
	for _, lib := range libraries {
		sources := lib.ManifestSources
		if sources == nil {
			sources = []string{}
		}
		rows = append(rows, map[string]any{
			"name":     lib.Name,
			"language": lib.Language,
			"version":  lib.Version,
			"sources":  sources,
		})
	}

	query := `
		UNWIND $rows AS row
		MERGE (l:Library {name: row.name})
		ON CREATE SET l.language = row.language, l.version = row.version,
			l.manifest_sources = row.sources
		ON MATCH SET l.version = CASE WHEN row.version <> '' THEN row.version ELSE l.version END,
			l.manifest_sources = [s IN coalesce(l.manifest_sources, []) WHERE NOT s IN row.sources] + row.sources
	`
	return errs.Retry(ctx, 3, time.Second, func() error {
		batchCtx, cancel := context.WithTimeout(ctx, graph.BatchDeadline)
		defer cancel()
		_, err := e.client.Write(batchCtx, query, map[string]any{"rows": rows})
		return err
	})
}

func libKey(name, lang string) string {
	return languageFamily(lang) + "\x00" + strings.ToLower(name)
}

func indexLibraries(libraries []models.Library) map[string]string {
	idx := make(map[string]string, len(libraries))
	for _, lib := range libraries {
		idx[libKey(lib.Name, lib.Language)] = lib.Name
	}
	return idx
}

// matchLibrary reconciles an import-derived library name with manifest
// declarations; go imports match by module-path prefix.
func matchLibrary(idx map[string]string, name, lang string) string {
	if known, ok := idx[libKey(name, lang)]; ok {
		return known
	}
	if strings.ToLower(lang) == "go" {
		for key, known := range idx {
			if strings.HasPrefix(key, "go\x00") && strings.HasPrefix(strings.ToLower(name), strings.TrimPrefix(key, "go\x00")) {
				return known
			}
		}
	}
	return name
}

func languageFamily(lang string) string {
	switch strings.ToLower(lang) {
	case "typescript", "jsx", "tsx", "javascript":
		return "javascript"
	case "python":
		return "python"
	case "go":
		return "go"
	}
	return strings.ToLower(lang)
}
