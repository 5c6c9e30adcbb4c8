package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/louisbranch/gmloop/internal/services/narrator/storage"
)

type fakeSettingsStore struct {
	rec storage.SettingsRecord
	err error
	put []storage.SettingsRecord
}

func (f *fakeSettingsStore) GetSettings(context.Context, string) (storage.SettingsRecord, error) {
	return f.rec, f.err
}

func (f *fakeSettingsStore) PutSettings(_ context.Context, rec storage.SettingsRecord) error {
	f.put = append(f.put, rec)
	return nil
}

func TestParseFailurePolicy(t *testing.T) {
	tests := map[string]FailurePolicy{
		"best_effort":    BestEffort,
		"BestEffort":     BestEffort,
		"all_or_nothing": AllOrNothing,
		"":               AllOrNothing,
		"sometimes":      AllOrNothing,
	}
	for in, want := range tests {
		if got := ParseFailurePolicy(in); got != want {
			t.Fatalf("ParseFailurePolicy(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStoreProviderDefaultsWhenMissing(t *testing.T) {
	p := NewStoreProvider(&fakeSettingsStore{err: storage.ErrNotFound}, nil)
	got := p.WorldSettings(context.Background(), "w1")
	if got != Defaults("w1") {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

func TestStoreProviderDefaultsOnError(t *testing.T) {
	p := NewStoreProvider(&fakeSettingsStore{err: errors.New("boom")}, nil)
	if got := p.WorldSettings(context.Background(), "w1"); got.BranchCount != DefaultBranchCount {
		t.Fatalf("branch count = %d, want %d", got.BranchCount, DefaultBranchCount)
	}
}

func TestStoreProviderNormalizes(t *testing.T) {
	store := &fakeSettingsStore{rec: storage.SettingsRecord{BranchCount: 50, TokensPerBranch: 0, FailurePolicy: "weird"}}
	got := NewStoreProvider(store, nil).WorldSettings(context.Background(), "w1")
	if got.BranchCount != MaxBranchCount {
		t.Fatalf("branch count = %d, want %d", got.BranchCount, MaxBranchCount)
	}
	if got.TokensPerBranch != DefaultTokensPerBranch {
		t.Fatalf("tokens = %d, want %d", got.TokensPerBranch, DefaultTokensPerBranch)
	}
	if got.FailurePolicy != AllOrNothing {
		t.Fatalf("policy = %q, want %q", got.FailurePolicy, AllOrNothing)
	}
}

func TestStaticProvider(t *testing.T) {
	got := Static{BranchCount: 5, FailurePolicy: BestEffort}.WorldSettings(context.Background(), "w9")
	if got.WorldID != "w9" || got.BranchCount != 5 || got.FailurePolicy != BestEffort {
		t.Fatalf("settings = %+v", got)
	}
}
