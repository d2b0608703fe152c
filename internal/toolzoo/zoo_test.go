package toolzoo

import (
	"context"
	"strings"
	"testing"
)

// fakeEmbedder produces a small bag-of-words vector over a fixed vocabulary
// so cosine similarity reflects lexical overlap deterministically, without
// depending on a real embedding backend in tests.
type fakeEmbedder struct {
	vocab []string
}

func newFakeEmbedder(vocab ...string) *fakeEmbedder {
	return &fakeEmbedder{vocab: vocab}
}

func (f *fakeEmbedder) Dimension() int { return len(f.vocab) }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, len(f.vocab))
	for i, term := range f.vocab {
		if strings.Contains(lower, term) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func newTestZoo(t *testing.T) *ToolZoo {
	t.Helper()
	vocab := []string{"email", "send", "calendar", "schedule", "pull request", "commit", "charge", "payment"}
	embedder := newFakeEmbedder(vocab...)
	store, err := NewSQLiteVectorStore(":memory:")
	if err != nil {
		t.Fatalf("new vector store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(embedder, store, DefaultConfig(), nil)
}

func seedTools() []*Tool {
	return []*Tool{
		{ID: "gmail.send_email", Name: "send_email", DisplayName: "Send Email", Description: "Send an email message to a recipient", ServerID: "gmail"},
		{ID: "calendar.create_event", Name: "create_event", DisplayName: "Create Event", Description: "Schedule a calendar event with attendees", ServerID: "calendar"},
		{ID: "github.create_pr", Name: "create_pr", DisplayName: "Create Pull Request", Description: "Open a pull request with a commit range", ServerID: "github"},
		{ID: "stripe.charge_card", Name: "charge_card", DisplayName: "Charge Card", Description: "Charge a payment to a customer's card", ServerID: "stripe"},
	}
}

func TestRegisterAndGet(t *testing.T) {
	z := newTestZoo(t)
	ctx := context.Background()
	tools := seedTools()

	if err := z.Register(ctx, tools); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, ok := z.Get("gmail.send_email")
	if !ok {
		t.Fatalf("expected tool to be registered")
	}
	if got.DisplayName != "Send Email" {
		t.Errorf("got display name %q", got.DisplayName)
	}

	if len(z.All()) != len(tools) {
		t.Errorf("expected %d tools, got %d", len(tools), len(z.All()))
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	z := newTestZoo(t)
	ctx := context.Background()
	tools := seedTools()[:1]

	if err := z.Register(ctx, tools); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := z.Register(ctx, tools); err != nil {
		t.Fatalf("second register: %v", err)
	}
	if len(z.All()) != 1 {
		t.Errorf("expected 1 tool after double register, got %d", len(z.All()))
	}
}

func TestSemanticSearchFindsEmailTool(t *testing.T) {
	z := newTestZoo(t)
	ctx := context.Background()
	if err := z.Register(ctx, seedTools()); err != nil {
		t.Fatalf("register: %v", err)
	}

	results, err := z.SemanticSearch(ctx, "Send an email to my boss", 3, SearchFilters{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one result")
	}
	if results[0].Tool.ID != "gmail.send_email" {
		t.Errorf("expected gmail.send_email top result, got %s", results[0].Tool.ID)
	}
}

func TestKeywordSearchMatchesExactTerm(t *testing.T) {
	z := newTestZoo(t)
	ctx := context.Background()
	if err := z.Register(ctx, seedTools()); err != nil {
		t.Fatalf("register: %v", err)
	}

	results := z.KeywordSearch("pull request commit", 3)
	if len(results) == 0 {
		t.Fatalf("expected at least one keyword match")
	}
	if results[0].Tool.ID != "github.create_pr" {
		t.Errorf("expected github.create_pr top result, got %s", results[0].Tool.ID)
	}
}

func TestHybridSearchCombinesScores(t *testing.T) {
	z := newTestZoo(t)
	ctx := context.Background()
	if err := z.Register(ctx, seedTools()); err != nil {
		t.Fatalf("register: %v", err)
	}

	results, err := z.HybridSearch(ctx, "charge a payment", 2, 0, 0)
	if err != nil {
		t.Fatalf("hybrid search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one result")
	}
	if results[0].Tool.ID != "stripe.charge_card" {
		t.Errorf("expected stripe.charge_card top result, got %s", results[0].Tool.ID)
	}
}

func TestGetByServer(t *testing.T) {
	z := newTestZoo(t)
	ctx := context.Background()
	if err := z.Register(ctx, seedTools()); err != nil {
		t.Fatalf("register: %v", err)
	}

	tools := z.GetByServer("stripe")
	if len(tools) != 1 || tools[0].ID != "stripe.charge_card" {
		t.Errorf("unexpected GetByServer result: %+v", tools)
	}
}

func TestRemove(t *testing.T) {
	z := newTestZoo(t)
	ctx := context.Background()
	if err := z.Register(ctx, seedTools()); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := z.Remove(ctx, []string{"gmail.send_email"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := z.Get("gmail.send_email"); ok {
		t.Errorf("expected tool to be removed")
	}
	if len(z.KeywordSearch("email", 5)) != 0 {
		t.Errorf("expected keyword index to drop removed tool")
	}
}

func TestClear(t *testing.T) {
	z := newTestZoo(t)
	ctx := context.Background()
	if err := z.Register(ctx, seedTools()); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := z.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(z.All()) != 0 {
		t.Errorf("expected empty catalog after clear")
	}
}

func TestDomainDetection(t *testing.T) {
	z := newTestZoo(t)
	ctx := context.Background()
	tools := []*Tool{
		{ID: "gmail.send_email", Name: "send_email", DisplayName: "Send Email", Description: "Send an email message", ServerID: "gmail"},
	}
	if err := z.Register(ctx, tools); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, _ := z.Get("gmail.send_email")
	if got.Domain != "email" {
		t.Errorf("expected domain 'email', got %q", got.Domain)
	}
}

func TestUpdateConfigAppliesImmediately(t *testing.T) {
	z := newTestZoo(t)

	updated := z.config()
	updated.TopK = 1
	z.UpdateConfig(updated)

	if got := z.config().TopK; got != 1 {
		t.Errorf("expected TopK 1 after UpdateConfig, got %d", got)
	}
}
