package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"policyqa/model"
	"policyqa/pipeline"
	"policyqa/store"
	"policyqa/types"
)

var (
	askDocs string
	askTopK int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question against a policy corpus",
	Long: `Parses the question, retrieves the most similar policy clauses and
prints the decision as JSON. Evidence comes from the configured Postgres
store, or from an ephemeral index built out of the --docs directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askDocs, "docs", "", "directory with .txt/.md policy documents")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of clauses to retrieve")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	embedder := model.NewOllamaEmbedder(
		cfg.Embedder.URL, cfg.Embedder.Model, cfg.Embedder.Dimension, cfg.Embedder.Timeout())
	var completer model.Completer
	if cfg.LLM.URL != "" {
		completer = model.NewOllamaLLM(cfg.LLM.URL, cfg.LLM.Model, "", cfg.LLM.Timeout())
	}

	searcher, documentRef, err := buildSearcher(ctx, embedder)
	if err != nil {
		return err
	}

	retriever := pipeline.NewRetriever(embedder, searcher, cfg.Pipeline.MaxAttempts, cfg.Pipeline.Backoff())
	engine := pipeline.NewEngine(pipeline.DefaultRules(), completer, pipeline.EngineConfig{
		MinConfidence: cfg.Pipeline.MinRuleConfidence,
		MaxAttempts:   cfg.Pipeline.MaxAttempts,
		Backoff:       cfg.Pipeline.Backoff(),
		TokenBudget:   cfg.Pipeline.PromptTokenBudget,
	})
	pipe := pipeline.New(pipeline.NewParser(completer), retriever, engine, cfg.Pipeline.TopK)

	decision, err := pipe.AnswerTopK(ctx, documentRef, args[0], askTopK)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(types.NewDecisionResponse(decision), "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}

// buildSearcher picks the evidence source: the configured Postgres store when
// one is set, otherwise an in-memory index built from the --docs directory
// for the lifetime of this invocation.
func buildSearcher(ctx context.Context, embedder model.Embedder) (store.Searcher, string, error) {
	if cfg.Postgres.Host != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.PostgresDSN(), cfg.Embedder.Dimension)
		if err != nil {
			return nil, "", fmt.Errorf("connect to Postgres: %w", err)
		}
		return pg, cfg.Postgres.DBName, nil
	}

	if askDocs == "" {
		return nil, "", errors.New("provide --docs or configure a Postgres store")
	}

	chunks := store.NewChunkStore()
	index := store.NewVectorIndex(chunks)
	if err := loadDocsDir(ctx, chunks, index, embedder); err != nil {
		return nil, "", err
	}
	return index, filepath.Base(askDocs), nil
}

func loadDocsDir(ctx context.Context, chunks *store.ChunkStore, index *store.VectorIndex, embedder model.Embedder) error {
	entries, err := os.ReadDir(askDocs)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".txt" && ext != ".md" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(askDocs, entry.Name()))
		if err != nil {
			return err
		}
		batch := chunkWords(string(data), entry.Name(), 200, 20)
		if len(batch) == 0 {
			continue
		}
		if err := chunks.Append(entry.Name(), batch); err != nil {
			return err
		}
		if err := index.Extend(ctx, embedder, batch); err != nil {
			return err
		}
	}

	if chunks.Len() == 0 {
		return fmt.Errorf("no .txt/.md documents found in %s", askDocs)
	}
	return nil
}

// chunkWords word-chunks a document with overlap, ids keyed by file name so
// the same corpus always produces the same chunk ids.
func chunkWords(text, fileName string, size, overlap int) []types.Chunk {
	words := strings.Fields(text)
	if size <= 0 {
		size = 200
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []types.Chunk
	idx := 0
	for i := 0; i < len(words); i += size - overlap {
		end := i + size
		if end > len(words) {
			end = len(words)
		}

		chunks = append(chunks, types.Chunk{
			ID:     fmt.Sprintf("%s:%d", fileName, idx),
			Text:   strings.Join(words[i:end], " "),
			Source: fileName,
			Offset: i,
		})
		idx++

		if end == len(words) {
			break
		}
	}
	return chunks
}
