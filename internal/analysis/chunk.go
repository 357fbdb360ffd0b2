package analysis

import (
	"context"
	"strings"

	"github.com/HendryAvila/vibe-check/internal/patterns"
)

// File is one changed file of a pull request.
type File struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

// Lines is the number of changed lines in f.
func (f File) Lines() int { return f.Additions + f.Deletions }

// FileSource fetches the changed files of a pull request.
type FileSource interface {
	PullRequestFiles(ctx context.Context, repository string, prNumber int) ([]File, error)
}

// Chunk is a group of files analyzed together.
type Chunk struct {
	Index int
	Files []File
	Lines int
}

// ChunkResult is the analysis of one chunk.
type ChunkResult struct {
	Index    int              `json:"index"`
	Files    []string         `json:"files"`
	Lines    int              `json:"lines"`
	Findings []patterns.Match `json:"findings,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// ChunkAnalyzer analyzes one chunk of a pull request.
type ChunkAnalyzer interface {
	AnalyzeChunk(ctx context.Context, c Chunk) (ChunkResult, error)
}

// SplitChunks groups files in order so that each chunk holds at most
// maxLines changed lines. A single file larger than maxLines gets its own
// chunk.
func SplitChunks(files []File, maxLines int) []Chunk {
	if maxLines <= 0 {
		maxLines = 500
	}
	var (
		chunks []Chunk
		cur    Chunk
	)
	for _, f := range files {
		if len(cur.Files) > 0 && cur.Lines+f.Lines() > maxLines {
			chunks = append(chunks, cur)
			cur = Chunk{Index: len(chunks)}
		}
		cur.Files = append(cur.Files, f)
		cur.Lines += f.Lines()
	}
	if len(cur.Files) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

// PatternAnalyzer runs the keyword detector over each chunk's patches and
// file names.
type PatternAnalyzer struct {
	Detector *patterns.Detector
}

// AnalyzeChunk implements ChunkAnalyzer.
func (a PatternAnalyzer) AnalyzeChunk(ctx context.Context, c Chunk) (ChunkResult, error) {
	det := a.Detector
	if det == nil {
		det = patterns.NewDetector()
	}
	res := ChunkResult{Index: c.Index, Lines: c.Lines}
	var text strings.Builder
	for _, f := range c.Files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Files = append(res.Files, f.Filename)
		text.WriteString(f.Filename)
		text.WriteByte('\n')
		text.WriteString(addedLines(f.Patch))
		text.WriteByte('\n')
	}
	res.Findings = det.Detect(text.String())
	return res, nil
}

// addedLines keeps the added lines of a unified diff, without the marker.
func addedLines(patch string) string {
	var b strings.Builder
	for line := range strings.Lines(patch) {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			b.WriteString(line[1:])
		}
	}
	return b.String()
}
