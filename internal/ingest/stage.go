package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/graph"
	"github.com/devgraph/devgraph-go/internal/models"
	"github.com/devgraph/devgraph-go/internal/pathutil"
	"github.com/devgraph/devgraph-go/internal/symbols"
)

// Result reports Stage 3 outcomes and carries the file inventory that
// later stages (symbols, sprints) consume.
type Result struct {
	Directories  int           `json:"directories"`
	Files        int           `json:"files"`
	Documents    int           `json:"documents"`
	Chunks       int           `json:"chunks"`
	DecodeErrors int           `json:"decode_errors"`
	Duration     time.Duration `json:"-"`

	CodeFiles []symbols.SourceFile `json:"-"`
	Manifests []string             `json:"-"`
	DocPaths  []string             `json:"-"`
}

// Ingester runs the structural stage: one walker goroutine, a chunking
// worker pool, and a single writer goroutine fed by a bounded channel
// so slow writes exert backpressure instead of growing memory.
type Ingester struct {
	walker     *Walker
	writer     *graph.BatchWriter
	client     *graph.Client
	root       string
	maxWorkers int
	batchSize  int
	logger     *logrus.Logger
}

func NewIngester(walker *Walker, writer *graph.BatchWriter, client *graph.Client, root string, maxWorkers, batchSize int, logger *logrus.Logger) *Ingester {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Ingester{
		walker: walker, writer: writer, client: client,
		root: root, maxWorkers: maxWorkers, batchSize: batchSize, logger: logger,
	}
}

// ContentLoader returns a loader reading and decoding repo-relative
// files, shared with the symbol extractor so both stages apply the same
// encoding fallbacks.
func ContentLoader(root string) func(path string) (string, error) {
	return func(path string) (string, error) {
		raw, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
		if err != nil {
			return "", errs.Wrapf(err, errs.KindRepository, "cannot read %s", path)
		}
		return Decode(raw)
	}
}

type fileResult struct {
	dir *models.Directory

	file   *models.File
	doc    *models.Document
	chunks []models.Chunk

	manifest bool
	codeLang string
}

// Run executes the stage. On completion every Chunk must be linked via
// CONTAINS_CHUNK; the audit query verifies this and an orphan count
// above zero is an invariant violation that panics.
func (in *Ingester) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	bound := 2 * in.maxWorkers * in.batchSize
	entries := make(chan FileEntry, bound)
	results := make(chan fileResult, bound)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(entries)
		return in.walker.Walk(
			func(dir models.Directory) error {
				select {
				case results <- fileResult{dir: &dir}:
					return nil
				case <-ctx.Done():
					return errs.Wrap(ctx.Err(), errs.KindCancelled, "walk cancelled")
				}
			},
			func(entry FileEntry) error {
				select {
				case entries <- entry:
					return nil
				case <-ctx.Done():
					return errs.Wrap(ctx.Err(), errs.KindCancelled, "walk cancelled")
				}
			})
	})

	var workers sync.WaitGroup
	for i := 0; i < in.maxWorkers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for entry := range entries {
				res, err := in.processFile(entry)
				if err != nil {
					return err
				}
				select {
				case results <- res:
				case <-ctx.Done():
					return errs.Wrap(ctx.Err(), errs.KindCancelled, "chunking cancelled")
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	g.Go(func() error {
		return in.writeResults(ctx, results, result)
	})

	if err := g.Wait(); err != nil {
		return result, err
	}

	orphans, err := in.client.ReadInt(ctx, `
		MATCH (c:Chunk)
		WHERE NOT EXISTS { MATCH ()-[:CONTAINS_CHUNK]->(c) }
		RETURN count(c) AS orphans
	`, nil)
	if err != nil {
		return result, errs.Wrap(err, errs.KindOf(err), "chunk linkage audit failed")
	}
	if orphans > 0 {
		panic(fmt.Sprintf("chunk linkage audit found %d chunks without CONTAINS_CHUNK", orphans))
	}

	result.Duration = time.Since(start)
	in.logger.WithFields(logrus.Fields{
		"directories":   result.Directories,
		"files":         result.Files,
		"documents":     result.Documents,
		"chunks":        result.Chunks,
		"decode_errors": result.DecodeErrors,
		"duration":      result.Duration.String(),
	}).Info("chunk ingestion completed")

	return result, nil
}

func (in *Ingester) processFile(entry FileEntry) (fileResult, error) {
	raw, err := os.ReadFile(entry.AbsPath)
	if err != nil {
		return fileResult{}, errs.Wrapf(err, errs.KindRepository, "cannot read %s", entry.Path)
	}

	class := Classify(entry.Path, raw)
	file := models.File{
		Path:      entry.Path,
		Language:  class.Language,
		IsCode:    class.IsCode,
		IsDoc:     class.IsDoc,
		Extension: filepath.Ext(entry.Path),
	}
	res := fileResult{file: &file, manifest: symbols.ManifestFile(entry.Path)}

	if !class.IsCode && !class.IsDoc {
		return res, nil
	}

	content, decErr := Decode(raw)
	if decErr != nil {
		file.DecodeError = decErr.Error()
		in.logger.WithField("file", entry.Path).WithError(decErr).Warn("decode failed, chunking skipped")
		return res, nil
	}

	switch {
	case class.IsDoc && class.Language == "markdown":
		doc, chunks := ChunkMarkdown(entry.Path, content, entry.ModTime)
		res.doc = &doc
		res.chunks = chunks
	case class.IsCode:
		res.chunks = ChunkSource(entry.Path, class.Language, content, entry.ModTime)
		res.codeLang = class.Language
	}
	return res, nil
}

// writeBuffers groups pending rows; the writer flushes node buffers
// before the edge buffers that reference them.
type writeBuffers struct {
	dirs   []map[string]any
	files  []map[string]any
	docs   []map[string]any
	chunks []map[string]any

	dirContains  []graph.EdgeRow // Directory -> Directory
	fileContains []graph.EdgeRow // Directory -> File
	docChunks    []graph.EdgeRow // Document -> Chunk
	fileChunks   []graph.EdgeRow // File -> Chunk
	partOf       []models.Edge   // Chunk -> File|Document
}

func (b *writeBuffers) size() int {
	return len(b.dirs) + len(b.files) + len(b.docs) + len(b.chunks) +
		len(b.dirContains) + len(b.fileContains) + len(b.docChunks) + len(b.fileChunks) + len(b.partOf)
}

func (in *Ingester) writeResults(ctx context.Context, results <-chan fileResult, out *Result) error {
	buf := &writeBuffers{}

	for res := range results {
		in.buffer(buf, res, out)
		if buf.size() >= in.batchSize {
			if err := in.flush(ctx, buf); err != nil {
				return err
			}
		}
	}
	return in.flush(ctx, buf)
}

func (in *Ingester) buffer(buf *writeBuffers, res fileResult, out *Result) {
	if res.dir != nil {
		out.Directories++
		buf.dirs = append(buf.dirs, res.dir.Properties())
		if parent := pathutil.Parent(res.dir.Path); parent != "" {
			buf.dirContains = append(buf.dirContains, graph.EdgeRow{From: parent, To: res.dir.Path})
		}
		return
	}

	file := res.file
	out.Files++
	if file.DecodeError != "" {
		out.DecodeErrors++
	}
	buf.files = append(buf.files, file.Properties())
	if parent := pathutil.Parent(file.Path); parent != "" {
		buf.fileContains = append(buf.fileContains, graph.EdgeRow{From: parent, To: file.Path})
	}
	if res.manifest {
		out.Manifests = append(out.Manifests, file.Path)
	}
	if res.codeLang != "" {
		out.CodeFiles = append(out.CodeFiles, symbols.SourceFile{Path: file.Path, Language: res.codeLang})
	}

	if res.doc != nil {
		out.Documents++
		out.DocPaths = append(out.DocPaths, res.doc.Path)
		buf.docs = append(buf.docs, res.doc.Properties())
	}

	for _, chunk := range res.chunks {
		out.Chunks++
		buf.chunks = append(buf.chunks, chunk.Properties())
		buf.fileChunks = append(buf.fileChunks, graph.EdgeRow{From: file.Path, To: chunk.ID})
		buf.partOf = append(buf.partOf, models.Edge{
			FromLabel: models.LabelChunk, FromKey: chunk.ID,
			ToLabel: models.LabelFile, ToKey: file.Path,
		})
		if res.doc != nil {
			buf.docChunks = append(buf.docChunks, graph.EdgeRow{From: res.doc.Path, To: chunk.ID})
			buf.partOf = append(buf.partOf, models.Edge{
				FromLabel: models.LabelChunk, FromKey: chunk.ID,
				ToLabel: models.LabelDocument, ToKey: res.doc.Path,
			})
		}
	}
}

func (in *Ingester) flush(ctx context.Context, buf *writeBuffers) error {
	if buf.size() == 0 {
		return nil
	}

	if err := in.writer.UpsertNodes(ctx, models.LabelDirectory, buf.dirs); err != nil {
		return err
	}
	if err := in.writer.UpsertNodes(ctx, models.LabelFile, buf.files); err != nil {
		return err
	}
	if err := in.writer.UpsertNodes(ctx, models.LabelDocument, buf.docs); err != nil {
		return err
	}
	if err := in.writer.UpsertNodes(ctx, models.LabelChunk, buf.chunks); err != nil {
		return err
	}

	edgeBatches := []struct {
		spec graph.EdgeSpec
		rows []graph.EdgeRow
	}{
		{graph.EdgeSpec{FromLabel: models.LabelDirectory, ToLabel: models.LabelDirectory, Rel: models.RelContains}, buf.dirContains},
		{graph.EdgeSpec{FromLabel: models.LabelDirectory, ToLabel: models.LabelFile, Rel: models.RelContains}, buf.fileContains},
		{graph.EdgeSpec{FromLabel: models.LabelDocument, ToLabel: models.LabelChunk, Rel: models.RelContainsChunk}, buf.docChunks},
		{graph.EdgeSpec{FromLabel: models.LabelFile, ToLabel: models.LabelChunk, Rel: models.RelContainsChunk}, buf.fileChunks},
	}
	for _, batch := range edgeBatches {
		if err := in.writer.UpsertEdges(ctx, batch.spec, batch.rows); err != nil {
			return err
		}
	}
	if err := in.writer.UpsertMixedEdges(ctx, models.RelPartOf, buf.partOf); err != nil {
		return err
	}

	*buf = writeBuffers{}
	return nil
}
