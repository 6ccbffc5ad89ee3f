package domain

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

type stubEmbedder struct {
	result EmbeddingResult
	err    error
	got    string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.got = text
	return s.result, s.err
}

func TestInstructionEmbedder_PrependsInstruction(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
	emb := NewInstructionEmbedder(inner, "query: ")

	result, err := emb.Embed(context.Background(), "largest payments")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.got != "query: largest payments" {
		t.Errorf("expected prepended text, got %q", inner.got)
	}
	if len(result.Embedding) != 3 {
		t.Errorf("expected 3-element vector, got %d", len(result.Embedding))
	}
}

func TestInstructionEmbedder_ErrorPropagation(t *testing.T) {
	innerErr := errors.New("provider down")
	emb := NewInstructionEmbedder(&stubEmbedder{err: innerErr}, "query: ")

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestSimilarity_BoundedAndMonotonic(t *testing.T) {
	distances := []float64{0, 0.05, 0.1, 0.5, 0.99, 1, 1.5, 2}
	prev := 2.0
	for _, d := range distances {
		s := Similarity(d)
		if s < 0 || s > 1 {
			t.Fatalf("Similarity(%v) = %v, out of [0,1]", d, s)
		}
		if s > prev {
			t.Errorf("Similarity not monotonic at %v: %v > %v", d, s, prev)
		}
		prev = s
	}
	if Similarity(0.25) != 0.75 {
		t.Errorf("Similarity(0.25) = %v, want 0.75", Similarity(0.25))
	}
	if Similarity(1.7) != 0 {
		t.Errorf("Similarity(1.7) = %v, want 0", Similarity(1.7))
	}
}

func TestSimilarity_Degenerate(t *testing.T) {
	if got := Similarity(-1e-9); got != 1 {
		t.Errorf("negative distance: got %v, want 1", got)
	}
	if got := Similarity(math.NaN()); got != 0 {
		t.Errorf("NaN distance: got %v, want 0", got)
	}
}

func TestEmbeddingColumn_Valid(t *testing.T) {
	for _, col := range EmbeddingColumns {
		if !col.Valid() {
			t.Errorf("%q should be valid", col)
		}
	}
	if EmbeddingColumn("id; DROP TABLE transactions").Valid() {
		t.Error("arbitrary column name must be rejected")
	}
}

func TestEmbeddingSet_Complete(t *testing.T) {
	var set EmbeddingSet
	vec := []float32{1, 2, 3}
	for i, col := range EmbeddingColumns {
		if set.Complete(3) {
			t.Fatalf("set reported complete after %d columns", i)
		}
		set.Set(col, vec)
	}
	if !set.Complete(3) {
		t.Error("expected complete set")
	}
	if set.Complete(4) {
		t.Error("dimension mismatch must not count as complete")
	}
}

func TestStoreError_Unwrap(t *testing.T) {
	cause := errors.New("conn reset")
	err := NewStoreError("select page", cause)
	if !errors.Is(err, ErrStore) {
		t.Error("expected ErrStore")
	}
	if !errors.Is(err, cause) {
		t.Error("expected driver error to be reachable")
	}
	if NewStoreError("noop", nil) != nil {
		t.Error("nil cause must produce nil error")
	}
}

func TestEmbeddingUsage_NilSafe(t *testing.T) {
	var u *EmbeddingUsage
	u.AddTokens(5)
	if u.Used() || u.TotalTokens() != 0 {
		t.Error("nil usage must stay empty")
	}

	ctx, usage := NewContextWithUsage(context.Background())
	UsageFromContext(ctx).AddTokens(7)
	UsageFromContext(ctx).AddTokens(0)
	if usage.TotalTokens() != 7 || !usage.Used() {
		t.Errorf("unexpected usage: tokens=%d used=%v", usage.TotalTokens(), usage.Used())
	}
}

func TestPeriod(t *testing.T) {
	p := YearPeriod(2024)
	if !p.Valid() {
		t.Fatal("year period must be valid")
	}
	if got := p.LastDay().Format("2006-01-02"); got != "2024-12-31" {
		t.Errorf("last day = %s", got)
	}
	now := time.Date(2025, 6, 15, 23, 0, 0, 0, time.FixedZone("X", -5*3600))
	if got := CurrentYear(now).From.Year(); got != 2025 {
		t.Errorf("current year = %d", got)
	}
	if (Period{}).Valid() {
		t.Error("zero period must be invalid")
	}
}
