package gateway

import (
	"testing"

	"github.com/ucpgw/ucpgw/internal/config"
)

func TestBuildEmbedderUnknownProvider(t *testing.T) {
	_, err := buildEmbedder(config.ToolZooSettings{EmbedderProvider: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown embedder provider")
	}
}

func TestBuildEmbedderOpenAIRequiresAPIKey(t *testing.T) {
	_, err := buildEmbedder(config.ToolZooSettings{EmbedderProvider: "openai"})
	if err == nil {
		t.Fatal("expected error when OpenAI API key is missing")
	}
}

func TestBuildEmbedderOllamaDefaults(t *testing.T) {
	provider, err := buildEmbedder(config.ToolZooSettings{})
	if err != nil {
		t.Fatalf("expected default provider to be ollama, got error: %v", err)
	}
	if provider == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestBuildVectorStoreUnknownBackend(t *testing.T) {
	_, err := buildVectorStore(config.ToolZooSettings{VectorStoreBackend: "dbase-iv"})
	if err == nil {
		t.Fatal("expected error for unknown vector store backend")
	}
}

func TestBuildVectorStoreSQLiteDefault(t *testing.T) {
	dir := t.TempDir()
	store, err := buildVectorStore(config.ToolZooSettings{SQLitePath: dir + "/vectors.db"})
	if err != nil {
		t.Fatalf("build sqlite vector store: %v", err)
	}
	defer store.Close()
}
