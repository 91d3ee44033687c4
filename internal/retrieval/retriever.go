// Package retrieval grounds answers in indexed report passages instead of
// tool calls. Passages live in a chromem-go collection and are embedded with
// the OpenAI embeddings API.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/tjfontaine/propertychat/internal/config"
)

const (
	DefaultCollection = "documents"
	DefaultTopK       = 10
	DefaultThreshold  = 0.6
)

// Metadata keys stored alongside each passage.
const (
	metaSource     = "source"
	metaReportDate = "report_date"
	metaPage       = "page"
	metaSourceURL  = "source_url"
)

// ErrEmptyEmbedding is returned when the embeddings API answers with no vector.
var ErrEmptyEmbedding = errors.New("retrieval: empty embedding")

// Document is one indexed passage of a published report.
type Document struct {
	ID         string `json:"id,omitempty"`
	Source     string `json:"source"`
	ReportDate string `json:"report_date"`
	Page       int    `json:"page"`
	SourceURL  string `json:"source_url"`
	Content    string `json:"content"`
}

// Passage is a query hit.
type Passage struct {
	Document
	Similarity float32
}

// Format renders the passage the way it is placed in the system prompt.
func (p Passage) Format() string {
	return fmt.Sprintf("[Source: %s | Report date: %s | Page %d | Source url: %s]\n%s",
		p.Source, p.ReportDate, p.Page, p.SourceURL, p.Content)
}

// Retriever answers questions with the most similar passages.
type Retriever struct {
	mu        sync.RWMutex
	col       *chromem.Collection
	topK      int
	threshold float32
	logger    *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New opens the collection described by cfg. An empty cfg.Path keeps the
// collection in memory.
func New(cfg config.RetrievalConfig, embed chromem.EmbeddingFunc, opts ...Option) (*Retriever, error) {
	if embed == nil {
		return nil, errors.New("retrieval: embedding func is required")
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("open vector store %s: %w", cfg.Path, err)
		}
	}

	name := cfg.Collection
	if name == "" {
		name = DefaultCollection
	}
	col, err := db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}

	r := &Retriever{
		col:       col,
		topK:      cfg.TopK,
		threshold: cfg.ScoreThreshold,
		logger:    slog.Default(),
	}
	if r.topK <= 0 {
		r.topK = DefaultTopK
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Count reports how many passages are indexed.
func (r *Retriever) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.col.Count()
}

// Index embeds and stores docs. Documents with an existing ID are replaced.
func (r *Retriever) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make([]chromem.Document, 0, len(docs))
	for i, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			return fmt.Errorf("document %d: content is empty", i)
		}
		id := d.ID
		if id == "" {
			id = fmt.Sprintf("%s#%d#%d", d.Source, d.Page, i)
		}
		batch = append(batch, chromem.Document{
			ID:      id,
			Content: d.Content,
			Metadata: map[string]string{
				metaSource:     d.Source,
				metaReportDate: d.ReportDate,
				metaPage:       strconv.Itoa(d.Page),
				metaSourceURL:  d.SourceURL,
			},
		})
	}

	if err := r.col.AddDocuments(ctx, batch, 4); err != nil {
		return fmt.Errorf("index %d documents: %w", len(batch), err)
	}
	r.logger.InfoContext(ctx, "indexed passages", slog.Int("count", len(batch)))
	return nil
}

// Search returns up to topK passages whose similarity to question is at
// least the configured threshold, best first.
func (r *Retriever) Search(ctx context.Context, question string) ([]Passage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	k := min(r.topK, r.col.Count())
	if k == 0 {
		return nil, nil
	}

	results, err := r.col.Query(ctx, question, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	out := make([]Passage, 0, len(results))
	for _, res := range results {
		if res.Similarity < r.threshold {
			continue
		}
		page, _ := strconv.Atoi(res.Metadata[metaPage])
		out = append(out, Passage{
			Document: Document{
				ID:         res.ID,
				Source:     res.Metadata[metaSource],
				ReportDate: res.Metadata[metaReportDate],
				Page:       page,
				SourceURL:  res.Metadata[metaSourceURL],
				Content:    res.Content,
			},
			Similarity: res.Similarity,
		})
	}
	return out, nil
}

// Context returns the formatted passages for question joined by blank
// lines, or "" when nothing clears the threshold.
func (r *Retriever) Context(ctx context.Context, question string) (string, error) {
	passages, err := r.Search(ctx, question)
	if err != nil {
		return "", err
	}
	r.logger.DebugContext(ctx, "retrieved passages", slog.Int("count", len(passages)))

	blocks := make([]string, len(passages))
	for i, p := range passages {
		blocks[i] = p.Format()
	}
	return strings.Join(blocks, "\n\n"), nil
}

// NewOpenAIEmbedder returns an embedding func backed by the OpenAI
// embeddings endpoint.
func NewOpenAIEmbedder(client *openai.Client, model string) chromem.EmbeddingFunc {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return func(ctx context.Context, text string) ([]float32, error) {
		resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(model),
		})
		if err != nil {
			return nil, fmt.Errorf("create embedding: %w", err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return nil, ErrEmptyEmbedding
		}
		return resp.Data[0].Embedding, nil
	}
}

// NewOpenAIClient builds a go-openai client from the model settings.
func NewOpenAIClient(cfg config.ModelConfig) *openai.Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return openai.NewClientWithConfig(oc)
}
