package gitlog

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devgraph/devgraph-go/internal/models"
)

// headerFormat marks commit header lines with \x01 so they cannot be
// confused with stat lines, and keeps the message as the last field so
// embedded pipes survive SplitN. %B carries the full message body
// (requirement ids often live below the subject line); \x02 terminates
// it so multi-line bodies cannot be mistaken for stat lines.
const headerFormat = "\x01%H|%an|%ae|%cI|%B\x02"

var (
	numstatRe    = regexp.MustCompile(`^(\d+|-)\t(\d+|-)\t(.+)$`)
	nameStatusRe = regexp.MustCompile(`^([AMDTRC])(\d*)\t(.+)$`)
)

// logParser assembles commits from interleaved header, numstat, and
// name-status lines. git emits both stat blocks per commit when both
// flags are given; the parser accepts them in either order and merges
// by path.
type logParser struct {
	branch    string
	current   *models.Commit
	inMessage bool
	order     []string
	deltas    map[string]*models.FileDelta
}

func newLogParser(branch string) *logParser {
	return &logParser{branch: branch}
}

// feed consumes one line. When a new header begins it returns the
// previous, fully assembled commit.
func (p *logParser) feed(line string) (models.Commit, bool) {
	if p.inMessage {
		p.feedMessage(line)
		return models.Commit{}, false
	}
	if strings.HasPrefix(line, "\x01") {
		done, ok := p.flush()
		p.start(strings.TrimPrefix(line, "\x01"))
		return done, ok
	}
	if p.current == nil || line == "" {
		return models.Commit{}, false
	}

	if m := nameStatusRe.FindStringSubmatch(line); m != nil {
		p.feedNameStatus(m[1], m[3])
		return models.Commit{}, false
	}
	if m := numstatRe.FindStringSubmatch(line); m != nil {
		p.feedNumstat(m[1], m[2], m[3])
		return models.Commit{}, false
	}
	return models.Commit{}, false
}

// flush returns the in-progress commit, if any.
func (p *logParser) flush() (models.Commit, bool) {
	if p.current == nil {
		return models.Commit{}, false
	}
	commit := *p.current
	for _, path := range p.order {
		commit.Deltas = append(commit.Deltas, *p.deltas[path])
	}
	p.current = nil
	p.order = nil
	p.deltas = nil
	return commit, true
}

func (p *logParser) start(header string) {
	parts := strings.SplitN(header, "|", 5)
	if len(parts) != 5 {
		return
	}
	ts, err := time.Parse(time.RFC3339, parts[3])
	if err != nil {
		return
	}
	message := parts[4]
	if end := strings.Index(message, "\x02"); end >= 0 {
		message = message[:end]
	} else {
		// The body continues on following lines until the terminator.
		p.inMessage = true
	}
	p.current = &models.Commit{
		Hash:        parts[0],
		Author:      parts[1],
		AuthorEmail: parts[2],
		Timestamp:   ts.UTC(),
		Message:     strings.TrimRight(message, "\n"),
		Branch:      p.branch,
	}
	p.deltas = make(map[string]*models.FileDelta)
}

// feedMessage accumulates multi-line message bodies up to the \x02
// terminator. Body lines are raw text and must never reach the stat
// matchers.
func (p *logParser) feedMessage(line string) {
	if p.current == nil {
		if strings.Contains(line, "\x02") {
			p.inMessage = false
		}
		return
	}
	if end := strings.Index(line, "\x02"); end >= 0 {
		p.current.Message = strings.TrimRight(p.current.Message+"\n"+line[:end], "\n")
		p.inMessage = false
		return
	}
	p.current.Message += "\n" + line
}

func (p *logParser) delta(path string) *models.FileDelta {
	if d, ok := p.deltas[path]; ok {
		return d
	}
	d := &models.FileDelta{Path: path, ChangeType: models.ChangeModified}
	p.deltas[path] = d
	p.order = append(p.order, path)
	return d
}

func (p *logParser) feedNameStatus(status, rest string) {
	switch status {
	case "R", "C":
		fields := strings.SplitN(rest, "\t", 2)
		if len(fields) != 2 {
			return
		}
		d := p.delta(unquotePath(fields[1]))
		d.PrevPath = unquotePath(fields[0])
		if status == "R" {
			d.ChangeType = models.ChangeRenamed
		} else {
			d.ChangeType = models.ChangeCopied
		}
	case "T":
		// Type changes count as modifications.
		p.delta(unquotePath(rest)).ChangeType = models.ChangeModified
	default:
		p.delta(unquotePath(rest)).ChangeType = status
	}
}

func (p *logParser) feedNumstat(adds, dels, pathPart string) {
	path := numstatPath(pathPart)
	d := p.delta(path)
	// Binary files report "-" for both counts.
	if adds != "-" {
		d.Additions, _ = strconv.Atoi(adds)
	}
	if dels != "-" {
		d.Deletions, _ = strconv.Atoi(dels)
	}
}

// numstatPath resolves the destination path of a numstat line,
// including the "{old => new}" and "old => new" rename shapes.
func numstatPath(part string) string {
	part = unquotePath(part)
	if open := strings.Index(part, "{"); open >= 0 {
		if close := strings.Index(part[open:], "}"); close >= 0 {
			inner := part[open+1 : open+close]
			if arrow := strings.Index(inner, " => "); arrow >= 0 {
				replaced := part[:open] + inner[arrow+4:] + part[open+close+1:]
				return strings.ReplaceAll(replaced, "//", "/")
			}
		}
	}
	if arrow := strings.Index(part, " => "); arrow >= 0 {
		return part[arrow+4:]
	}
	return part
}

// unquotePath strips the C-style quoting git applies to paths with
// non-ASCII bytes.
func unquotePath(path string) string {
	if len(path) >= 2 && path[0] == '"' && path[len(path)-1] == '"' {
		if unquoted, err := strconv.Unquote(path); err == nil {
			return unquoted
		}
		return path[1 : len(path)-1]
	}
	return path
}

// parseBlame reads git blame --line-porcelain output.
func parseBlame(output string) []models.BlameLine {
	var lines []models.BlameLine
	var hash, author string
	var finalLine int

	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "\t"):
			lines = append(lines, models.BlameLine{
				Line:       finalLine,
				CommitHash: hash,
				Author:     author,
			})
		case strings.HasPrefix(line, "author "):
			author = strings.TrimPrefix(line, "author ")
		default:
			fields := strings.Fields(line)
			if len(fields) >= 3 && len(fields[0]) == 40 && isHex(fields[0]) {
				hash = fields[0]
				finalLine, _ = strconv.Atoi(fields[2])
			}
		}
	}
	return lines
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
