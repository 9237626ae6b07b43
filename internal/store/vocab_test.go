package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/caseforge/caseforge/internal/models"
	"github.com/caseforge/caseforge/internal/store"
)

func TestCreateVocabValueIdempotent(t *testing.T) {
	base := setupTestBase(t)
	vs := store.NewVocabStore(base)
	ctx := context.Background()

	first, err := vs.CreateValue(ctx, models.VocabTag, "phishing")
	if err != nil {
		t.Fatalf("first CreateValue: %v", err)
	}

	second, err := vs.CreateValue(ctx, models.VocabTag, "phishing")
	if err != nil {
		t.Fatalf("second CreateValue: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second ID = %d, want existing %d", second.ID, first.ID)
	}
}

func TestCreateVocabValueEmpty(t *testing.T) {
	base := setupTestBase(t)
	vs := store.NewVocabStore(base)

	if _, err := vs.CreateValue(context.Background(), models.VocabTag, ""); !errors.Is(err, models.ErrMissingValue) {
		t.Errorf("CreateValue(\"\") = %v, want ErrMissingValue", err)
	}
}

func TestVocabKindsIsolated(t *testing.T) {
	base := setupTestBase(t)
	vs := store.NewVocabStore(base)
	ctx := context.Background()

	// The same value may exist in two vocabularies independently.
	if _, err := vs.CreateValue(ctx, models.VocabTag, "apt29"); err != nil {
		t.Fatalf("CreateValue tag: %v", err)
	}
	if _, err := vs.CreateValue(ctx, models.VocabThreatActor, "apt29"); err != nil {
		t.Fatalf("CreateValue threat_actor: %v", err)
	}

	tags, err := vs.ListValues(ctx, models.VocabTag)
	if err != nil {
		t.Fatalf("ListValues: %v", err)
	}
	if len(tags) != 1 || tags[0].Value != "apt29" {
		t.Errorf("tags = %+v, want exactly apt29", tags)
	}
}

func TestListVocabValuesSorted(t *testing.T) {
	base := setupTestBase(t)
	vs := store.NewVocabStore(base)
	ctx := context.Background()

	for _, v := range []string{"zeta", "alpha", "mike"} {
		if _, err := vs.CreateValue(ctx, models.VocabQueue, v); err != nil {
			t.Fatalf("CreateValue %q: %v", v, err)
		}
	}

	values, err := vs.ListValues(ctx, models.VocabQueue)
	if err != nil {
		t.Fatalf("ListValues: %v", err)
	}

	want := []string{"alpha", "mike", "zeta"}
	if len(values) != len(want) {
		t.Fatalf("values = %d, want %d", len(values), len(want))
	}
	for i, v := range values {
		if v.Value != want[i] {
			t.Errorf("values[%d] = %q, want %q", i, v.Value, want[i])
		}
	}
}
