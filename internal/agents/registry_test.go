package agents

import (
	"slices"
	"testing"

	"github.com/plantia/plantia/internal/configstore"
	"github.com/plantia/plantia/internal/log"
)

func TestRegistry_BuiltinsRegistered(t *testing.T) {
	r := NewRegistry(log.NewNop())

	classes := r.Classes()
	for _, want := range []string{ClassGeneric, ClassPlants, ClassPathology, ClassEcoAgriculture} {
		if !slices.Contains(classes, want) {
			t.Errorf("built-in class %q not registered", want)
		}
	}
}

func TestRegistry_CreateKnownClass(t *testing.T) {
	r := NewRegistry(log.NewNop())
	cfg := baseAgentConfig("eco")
	cfg.ClassName = ClassEcoAgriculture

	agent, err := r.Create(cfg, &fakeRetrieval{}, log.NewNop())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if agent.Name() != "eco" {
		t.Errorf("Name() = %q", agent.Name())
	}
}

func TestRegistry_UnknownClassFallsBackToGeneric(t *testing.T) {
	r := NewRegistry(log.NewNop())
	cfg := baseAgentConfig("mystery")
	cfg.ClassName = "NoSuchAgent"

	agent, err := r.Create(cfg, &fakeRetrieval{}, log.NewNop())
	if err != nil {
		t.Fatalf("Create() error = %v, unknown class must degrade to generic", err)
	}
	if agent == nil {
		t.Fatal("Create() returned nil agent")
	}
}

func TestRegistry_CreateConstructorError(t *testing.T) {
	r := NewRegistry(log.NewNop())
	cfg := baseAgentConfig("broken")
	cfg.Patterns = []string{"(unclosed"}

	if _, err := r.Create(cfg, &fakeRetrieval{}, log.NewNop()); err == nil {
		t.Error("expected construction error for invalid pattern")
	}
}

func TestRegistry_CreateRecoversFromPanic(t *testing.T) {
	r := NewRegistry(log.NewNop())
	r.Register("Bomb", func(*configstore.AgentConfig, Retrieval, log.Logger) (Agent, error) {
		panic("constructor exploded")
	})

	cfg := baseAgentConfig("bomb")
	cfg.ClassName = "Bomb"

	agent, err := r.Create(cfg, &fakeRetrieval{}, log.NewNop())
	if err == nil {
		t.Error("expected error from panicking constructor")
	}
	if agent != nil {
		t.Error("expected nil agent from panicking constructor")
	}
}

func TestRegistry_LoadExternalMissingFile(t *testing.T) {
	r := NewRegistry(log.NewNop())

	if _, err := r.LoadExternal("/nonexistent/path/agent.so"); err == nil {
		t.Error("expected error for missing plugin file")
	}
}

func TestRegistry_CreateExternalFailureIsRecoverable(t *testing.T) {
	r := NewRegistry(log.NewNop())
	cfg := baseAgentConfig("plugin")
	cfg.ModulePath = "/nonexistent/plugin.so"

	agent, err := r.Create(cfg, &fakeRetrieval{}, log.NewNop())
	if err == nil {
		t.Error("expected error for unloadable plugin")
	}
	if agent != nil {
		t.Error("expected nil agent for unloadable plugin")
	}
}
