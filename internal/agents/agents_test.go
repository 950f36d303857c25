package agents

import (
	"context"
	"errors"
	"testing"
)

func TestEnsureDefaultProvisionsPersona(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	agent, err := EnsureDefault(ctx, store, "u1")
	if err != nil {
		t.Fatalf("EnsureDefault() error = %v", err)
	}
	if agent.Name != "Meggy" {
		t.Fatalf("Name = %q, want Meggy", agent.Name)
	}
	if agent.Provider != ProviderOllama || agent.Model != "llama3.2:latest" {
		t.Fatalf("provider/model = %q/%q, want ollama/llama3.2:latest", agent.Provider, agent.Model)
	}
	if agent.Temperature != 0.7 || agent.MaxTokens != 2000 {
		t.Fatalf("temperature/max_tokens = %v/%d, want 0.7/2000", agent.Temperature, agent.MaxTokens)
	}
	if !agent.IsDefault || !agent.IsActive {
		t.Fatalf("IsDefault/IsActive = %v/%v, want true/true", agent.IsDefault, agent.IsActive)
	}
	if agent.SystemPrompt == "" {
		t.Fatalf("SystemPrompt empty, want persona prompt")
	}

	// Second call returns the same agent rather than provisioning again.
	again, err := EnsureDefault(ctx, store, "u1")
	if err != nil {
		t.Fatalf("EnsureDefault() error = %v", err)
	}
	if again.ID != agent.ID {
		t.Fatalf("EnsureDefault() provisioned twice: %q != %q", again.ID, agent.ID)
	}
}

func TestCreateFlipsPreviousDefault(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	first, err := store.Create(ctx, DefaultAgent("u1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	second := DefaultAgent("u1")
	second.Name = "Coach"
	created, err := store.Create(ctx, second)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !created.IsDefault {
		t.Fatalf("new agent IsDefault = false, want true")
	}

	old, err := store.GetByID(ctx, "u1", first.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if old.IsDefault {
		t.Fatalf("previous default still flagged default")
	}

	def, err := store.GetDefault(ctx, "u1")
	if err != nil {
		t.Fatalf("GetDefault() error = %v", err)
	}
	if def.ID != created.ID {
		t.Fatalf("GetDefault().ID = %q, want %q", def.ID, created.ID)
	}
}

func TestGetDefaultFallsBackToOldest(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	a := DefaultAgent("u1")
	a.IsDefault = false
	first, err := store.Create(ctx, a)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	b := DefaultAgent("u1")
	b.IsDefault = false
	b.Name = "Second"
	if _, err := store.Create(ctx, b); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	def, err := store.GetDefault(ctx, "u1")
	if err != nil {
		t.Fatalf("GetDefault() error = %v", err)
	}
	if def.ID != first.ID {
		t.Fatalf("GetDefault().ID = %q, want oldest %q", def.ID, first.ID)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Agent)
	}{
		{"empty name", func(a *Agent) { a.Name = " " }},
		{"bad provider", func(a *Agent) { a.Provider = "mainframe" }},
		{"empty model", func(a *Agent) { a.Model = "" }},
		{"temperature high", func(a *Agent) { a.Temperature = 2.5 }},
		{"temperature negative", func(a *Agent) { a.Temperature = -0.1 }},
		{"zero max tokens", func(a *Agent) { a.MaxTokens = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agent := DefaultAgent("u1")
			tc.mutate(&agent)
			if err := agent.Validate(); !errors.Is(err, ErrInvalidAgent) {
				t.Fatalf("Validate() error = %v, want ErrInvalidAgent", err)
			}
		})
	}
	if err := DefaultAgent("u1").Validate(); err != nil {
		t.Fatalf("Validate() on default persona error = %v", err)
	}
}

func TestUpdateAndDeleteScopedToOwner(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	agent, err := store.Create(ctx, DefaultAgent("u1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	agent.Name = "Renamed"
	updated, err := store.Update(ctx, agent)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != "Renamed" {
		t.Fatalf("Name = %q, want Renamed", updated.Name)
	}

	if err := store.Delete(ctx, "u2", agent.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user Delete() error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "u1", agent.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.GetByID(ctx, "u1", agent.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
}
