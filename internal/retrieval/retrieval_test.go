package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trend-radar/internal/config"
	"github.com/jonathan/trend-radar/internal/llm"
)

// MockLLMClient implements llm.Client for testing
type MockLLMClient struct {
	GenerateContentFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
}

func (m *MockLLMClient) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, prompt, tier)
	}
	return "", nil
}

func (m *MockLLMClient) GenerateJSON(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
	return "{}", nil
}

func (m *MockLLMClient) Close() error { return nil }

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	chunks := Chunk("one paragraph\n\nand another", 100, 10)
	assert.Equal(t, []string{"one paragraph\n\nand another"}, chunks)
}

func TestChunk_PacksParagraphsUpToSize(t *testing.T) {
	text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 40) + "\n\n" + strings.Repeat("c", 40)
	chunks := Chunk(text, 100, 0)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 40)+"\n\n"+strings.Repeat("b", 40), chunks[0])
	assert.Equal(t, strings.Repeat("c", 40), chunks[1])
}

func TestChunk_OverlapCarriesTail(t *testing.T) {
	text := strings.Repeat("a", 60) + "\n\n" + strings.Repeat("b", 60)
	chunks := Chunk(text, 80, 10)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[1], strings.Repeat("a", 10)), "second chunk starts with the tail of the first")
	assert.True(t, strings.HasSuffix(chunks[1], strings.Repeat("b", 60)))
}

func TestChunk_LongParagraphSplitWithinSize(t *testing.T) {
	text := strings.Repeat("word ", 500)
	chunks := Chunk(text, 200, 50)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 200, "chunk %d", i)
	}
}

func TestChunk_NormalizesWhitespaceAndDropsEmpty(t *testing.T) {
	chunks := Chunk("  hello \r\n  world  \r\n\r\n\r\n\n\n", 100, 0)
	assert.Equal(t, []string{"hello world"}, chunks)
	assert.Empty(t, Chunk("   \n\n  ", 100, 0))
	assert.Nil(t, Chunk("text", 0, 0))
}

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"llm", "agent", "adoption"}, QueryTerms("What is the LLM agent adoption? llm, AGENT!"))
	assert.Empty(t, QueryTerms("the of and"))
}

func TestBM25_MalformedInput(t *testing.T) {
	_, err := bm25([]byte{1, 2, 3})
	assert.Error(t, err)
}

func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

var corpus = map[string]string{
	"agents.md": "Autonomous agents orchestrate tools to complete enterprise workflows.\n\n" +
		"Agent adoption in customer service grew quickly as companies automated support.",
	"vision.txt":   "Computer vision inspects products on manufacturing lines.",
	"notes/health.html": "<html><body><nav>menu</nav><article><p>Medical imaging models assist radiologists " +
		"with diagnosis.</p></article></body></html>",
	"slides.pdf": "%PDF-1.4",
}

func TestIndex_BuildAndSearch(t *testing.T) {
	ctx := context.Background()
	dir := writeDocs(t, corpus)
	ix, err := Open(filepath.Join(t.TempDir(), "index", "index.db"))
	require.NoError(t, err)
	defer ix.Close()

	summary, err := ix.Build(ctx, dir, 1000, 200, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Indexed)
	assert.Equal(t, 1, summary.Skipped, "pdf is not a supported type")
	assert.Equal(t, 0, summary.Failed)

	n, err := ix.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := ix.Search(ctx, "agent adoption", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "agents.md", hits[0].Source)
	assert.Greater(t, hits[0].Score, 0.0)

	hits, err = ix.Search(ctx, "radiologists", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "notes/health.html", hits[0].Source)
	assert.NotContains(t, hits[0].Content, "menu")

	hits, err = ix.Search(ctx, "blockchain", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_RebuildIsIncremental(t *testing.T) {
	ctx := context.Background()
	dir := writeDocs(t, corpus)
	ix, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer ix.Close()

	_, err = ix.Build(ctx, dir, 1000, 200, nil)
	require.NoError(t, err)

	summary, err := ix.Build(ctx, dir, 1000, 200, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Unchanged)
	assert.Zero(t, summary.Indexed)

	path := filepath.Join(dir, "vision.txt")
	require.NoError(t, os.WriteFile(path, []byte("Robotics arms sort parcels."), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	require.NoError(t, os.Remove(filepath.Join(dir, "agents.md")))

	summary, err = ix.Build(ctx, dir, 1000, 200, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Removed)

	hits, err := ix.Search(ctx, "manufacturing", 5)
	require.NoError(t, err)
	assert.Empty(t, hits, "replaced chunks are no longer searchable")
	hits, err = ix.Search(ctx, "agents", 5)
	require.NoError(t, err)
	assert.Empty(t, hits, "removed documents are no longer searchable")
	hits, err = ix.Search(ctx, "parcels", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func buildIndex(t *testing.T) config.RetrievalConfig {
	t.Helper()
	cfg := config.Default().Retrieval
	cfg.DocumentsDir = writeDocs(t, corpus)
	cfg.IndexPath = filepath.Join(t.TempDir(), "index.db")
	ix, err := Open(cfg.IndexPath)
	require.NoError(t, err)
	_, err = ix.Build(context.Background(), cfg.DocumentsDir, cfg.ChunkSize, cfg.ChunkOverlap, nil)
	require.NoError(t, err)
	require.NoError(t, ix.Close())
	return cfg
}

func TestAnalyzer_Available(t *testing.T) {
	cfg := config.Default().Retrieval
	cfg.IndexPath = filepath.Join(t.TempDir(), "missing.db")
	assert.False(t, NewAnalyzer(cfg, nil, nil).Available(context.Background()))

	empty := filepath.Join(t.TempDir(), "empty.db")
	ix, err := Open(empty)
	require.NoError(t, err)
	require.NoError(t, ix.Close())
	cfg.IndexPath = empty
	assert.False(t, NewAnalyzer(cfg, nil, nil).Available(context.Background()), "an index without chunks is unavailable")

	assert.True(t, NewAnalyzer(buildIndex(t), nil, nil).Available(context.Background()))
}

func TestAnalyzer_AnswerFromChunksWithoutLLM(t *testing.T) {
	a := NewAnalyzer(buildIndex(t), nil, nil)
	result, err := a.Analyze(context.Background(), Question([]string{"agent"}))
	require.NoError(t, err)
	assert.True(t, result.OK)
	require.NotEmpty(t, result.Sources)
	assert.Equal(t, "agents.md", result.Sources[0].Source)
	assert.Contains(t, result.Answer, "Autonomous agents")
}

func TestAnalyzer_SynthesizesWithLLM(t *testing.T) {
	cfg := buildIndex(t)
	cfg.Synthesize = true
	var gotPrompt string
	var gotTier llm.ModelTier
	client := &MockLLMClient{
		GenerateContentFunc: func(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
			gotPrompt, gotTier = prompt, tier
			return "  Agents are moving into customer service [1].  ", nil
		},
	}

	result, err := NewAnalyzer(cfg, client, nil).Analyze(context.Background(), "agent adoption")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "Agents are moving into customer service [1].", result.Answer)
	assert.Equal(t, llm.TierLite, gotTier)
	assert.Contains(t, gotPrompt, "Question: agent adoption")
	assert.Contains(t, gotPrompt, "[1] (agents.md)")
	assert.NotContains(t, gotPrompt, "{{.")
}

func TestAnalyzer_SynthesisFailureFallsBack(t *testing.T) {
	cfg := buildIndex(t)
	cfg.Synthesize = true
	client := &MockLLMClient{
		GenerateContentFunc: func(context.Context, string, llm.ModelTier) (string, error) {
			return "", errors.New("quota exceeded")
		},
	}

	result, err := NewAnalyzer(cfg, client, nil).Analyze(context.Background(), "agent adoption")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Contains(t, result.Answer, "Autonomous agents")
}

func TestAnalyzer_NoMatchIsNotOK(t *testing.T) {
	result, err := NewAnalyzer(buildIndex(t), nil, nil).Analyze(context.Background(), "quantum blockchain")
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Empty(t, result.Answer)
	assert.Empty(t, result.Sources)
}

func TestQuestion(t *testing.T) {
	q := Question([]string{"a", "b", "c", "d", "e", "f"})
	assert.Contains(t, q, "a, b, c, d, e?")
	assert.NotContains(t, q, ", f")
	assert.Contains(t, Question(nil), "emerging AI technologies")
}
