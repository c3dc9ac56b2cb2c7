package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/antoniostano/vibemate/internal/chat"
	"github.com/antoniostano/vibemate/internal/config"
	"github.com/antoniostano/vibemate/internal/httpapi"
	"github.com/antoniostano/vibemate/internal/media"
	"github.com/antoniostano/vibemate/internal/memory"
	"github.com/antoniostano/vibemate/internal/observability"
	"github.com/antoniostano/vibemate/internal/ollama"
	"github.com/antoniostano/vibemate/internal/profile"
	"github.com/antoniostano/vibemate/internal/retrieval"
)

type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Chat    *chat.Service
	Metrics *observability.Metrics

	// Cleanup should be called on shutdown to release external resources (DB pools, etc).
	Cleanup func() error
}

// Build wires the full pipeline. With DATABASE_URL set, memory and profiles
// are durable and retrieval runs against pgvector; without it, everything is
// in-process and retrieval is disabled.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	memoryStore, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.MaxMessages)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	profiles, err := profile.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = memoryStore.Close()
		return nil, fmt.Errorf("profile store init failed: %w", err)
	}

	var (
		retriever  retrieval.Retriever = retrieval.Disabled{}
		closeIndex func() error
	)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		embedder := retrieval.NewOllamaEmbedder(cfg.OllamaBaseURL, cfg.EmbedModel)
		index, err := retrieval.NewPgvectorIndex(ctx, cfg.DatabaseURL, embedder, cfg.RetrievalEmbedDim, cfg.RetrievalTopK)
		if err != nil {
			_ = profiles.Close()
			_ = memoryStore.Close()
			return nil, fmt.Errorf("retrieval index init failed: %w", err)
		}
		retriever = index
		closeIndex = index.Close
		log.Printf("retrieval: pgvector (top-k %d)", cfg.RetrievalTopK)
	} else {
		log.Printf("retrieval: disabled (no DATABASE_URL)")
	}

	model := ollama.NewClient(cfg.OllamaBaseURL, cfg.ModelTimeout)
	chatService := chat.NewService(
		memoryStore,
		profiles,
		retriever,
		media.NewDetector(),
		model,
		metrics,
		cfg.ChatModel,
		cfg.VisionModel,
	)

	api := httpapi.New(cfg, chatService, profiles, metrics)

	cleanup := func() error {
		var errs []string
		if closeIndex != nil {
			if err := closeIndex(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if err := profiles.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := memoryStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Chat:    chatService,
		Metrics: metrics,
		Cleanup: cleanup,
	}, nil
}
