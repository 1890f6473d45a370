package agents

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/plantia/plantia/internal/config"
	"github.com/plantia/plantia/internal/configstore"
	"github.com/plantia/plantia/internal/log"
)

const testAgentsYAML = `
agents:
  plants:
    description: plant care
    class: PlantsAgent
    topics: [plants]
    priority: 1
    config:
      min_confidence: 0.0
      primary_keywords: [planta, riego, poda]
  pathology:
    description: diseases
    class: PathologyAgent
    topics: [pathology]
    priority: 1
    config:
      min_confidence: 0.0
      primary_keywords: [enfermedad, hongo, plaga]
  general:
    description: catch-all
    class: GenericRAGAgent
    topics: [plants]
    priority: 99
    fallback_enabled: true
    config:
      min_confidence: 0.0
      max_confidence: 0.5
`

func newServiceForTest(t *testing.T, retrieval Retrieval, agentsYAML string, reloadInterval time.Duration) (*Service, *configstore.Store) {
	t.Helper()

	store, err := configstore.New(t.TempDir(), log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if agentsYAML != "" {
		if err := os.WriteFile(filepath.Join(store.BaseDir(), "agents.yaml"), []byte(agentsYAML), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	appCfg := &config.Config{ReloadInterval: reloadInterval}
	svc, err := NewService(appCfg, store, NewRegistry(log.NewNop()), retrieval, log.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, store
}

func TestProcessQuestion_EmptyQuestion(t *testing.T) {
	svc, _ := newServiceForTest(t, &fakeRetrieval{answer: "ok"}, testAgentsYAML, time.Hour)

	_, err := svc.ProcessQuestion(context.Background(), ProcessRequest{Question: "   "})
	if !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("error = %v, want ErrEmptyQuestion", err)
	}
}

func TestProcessQuestion_UnknownOverride(t *testing.T) {
	svc, _ := newServiceForTest(t, &fakeRetrieval{answer: "ok"}, testAgentsYAML, time.Hour)

	_, err := svc.ProcessQuestion(context.Background(), ProcessRequest{
		Question:  "que riego necesita mi planta",
		AgentType: "nonexistent",
	})
	if !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("error = %v, want ErrAgentNotFound (never a fallback selection)", err)
	}
}

func TestProcessQuestion_ManualOverride(t *testing.T) {
	retrieval := &fakeRetrieval{answer: "respuesta"}
	svc, _ := newServiceForTest(t, retrieval, testAgentsYAML, time.Hour)

	res, err := svc.ProcessQuestion(context.Background(), ProcessRequest{
		Question:  "cualquier pregunta",
		SessionID: "s1",
		AgentType: "pathology",
	})
	if err != nil {
		t.Fatalf("ProcessQuestion() error = %v", err)
	}

	if res.Answer != "respuesta" {
		t.Errorf("Answer = %q", res.Answer)
	}
	if res.Metadata["agent"] != "pathology" {
		t.Errorf("metadata agent = %v, want pathology", res.Metadata["agent"])
	}
	if res.Metadata["selection_method"] != "manual" {
		t.Errorf("selection_method = %v, want manual", res.Metadata["selection_method"])
	}
	if res.Metadata["confidence"] != 1.0 {
		t.Errorf("confidence = %v, want 1.0 for manual override", res.Metadata["confidence"])
	}
}

func TestProcessQuestion_AutomaticSelection(t *testing.T) {
	retrieval := &fakeRetrieval{answer: "diagnostico"}
	svc, _ := newServiceForTest(t, retrieval, testAgentsYAML, time.Hour)

	res, err := svc.ProcessQuestion(context.Background(), ProcessRequest{
		Question:  "mi planta tiene una enfermedad con hongo",
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("ProcessQuestion() error = %v", err)
	}

	if res.Metadata["agent"] != "pathology" {
		t.Errorf("selected agent = %v, want pathology", res.Metadata["agent"])
	}
	if res.Metadata["selection_method"] != "automatic" {
		t.Errorf("selection_method = %v, want automatic", res.Metadata["selection_method"])
	}
	if _, ok := res.Metadata["processing_time_ms"]; !ok {
		t.Error("metadata missing processing_time_ms")
	}
	if res.Metadata["topic"] != "pathology" {
		t.Errorf("topic = %v, want pathology", res.Metadata["topic"])
	}
}

func TestProcessQuestion_FailurePathUpdatesStats(t *testing.T) {
	retrieval := &fakeRetrieval{err: errors.New("backend down")}
	svc, _ := newServiceForTest(t, retrieval, testAgentsYAML, time.Hour)

	_, err := svc.ProcessQuestion(context.Background(), ProcessRequest{
		Question:  "pregunta",
		AgentType: "plants",
	})
	if err == nil {
		t.Fatal("expected delegation error")
	}

	details, err := svc.AgentDetails("plants")
	if err != nil {
		t.Fatal(err)
	}
	if details.Stats.TotalQueries != 1 || details.Stats.FailedQueries != 1 {
		t.Errorf("stats = %+v, want one failed query", details.Stats)
	}
	if details.Stats.AverageConfidence != 0 {
		t.Errorf("AverageConfidence = %v, must be unchanged by failures", details.Stats.AverageConfidence)
	}
}

func TestStats_RunningAverage(t *testing.T) {
	a := mustAgent(t, baseAgentConfig("stats"))

	confidences := []float64{0.9, 0.5, 0.7, 0.3}
	sum := 0.0
	for _, c := range confidences {
		a.recordSuccess(c)
		sum += c
	}

	st := a.Stats()
	wantAvg := sum / float64(len(confidences))
	if math.Abs(st.AverageConfidence-wantAvg) > 1e-9 {
		t.Errorf("AverageConfidence = %v, want %v", st.AverageConfidence, wantAvg)
	}
	if st.TotalQueries != 4 || st.SuccessfulQueries != 4 {
		t.Errorf("counters = %+v", st)
	}

	// A failure increments totals but leaves the average untouched.
	a.recordFailure()
	st = a.Stats()
	if math.Abs(st.AverageConfidence-wantAvg) > 1e-9 {
		t.Errorf("AverageConfidence after failure = %v, want %v", st.AverageConfidence, wantAvg)
	}
	if st.TotalQueries != 5 || st.FailedQueries != 1 {
		t.Errorf("counters after failure = %+v", st)
	}
	if got := st.SuccessRate(); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("SuccessRate() = %v, want 0.8", got)
	}
}

func TestAvailableAgents_Ordering(t *testing.T) {
	svc, _ := newServiceForTest(t, &fakeRetrieval{}, testAgentsYAML, time.Hour)

	agents := svc.AvailableAgents()
	if len(agents) != 3 {
		t.Fatalf("len = %d, want 3", len(agents))
	}
	// priority 1 agents first (name-ordered), fallback last.
	if agents[0].Name != "pathology" || agents[1].Name != "plants" || agents[2].Name != "general" {
		t.Errorf("order = %s, %s, %s", agents[0].Name, agents[1].Name, agents[2].Name)
	}
}

func TestAddAgent(t *testing.T) {
	svc, _ := newServiceForTest(t, &fakeRetrieval{}, testAgentsYAML, time.Hour)

	err := svc.AddAgent("citrus", map[string]any{
		"description": "citrus specialist",
		"class":       ClassPlants,
		"topics":      []string{"plants"},
		"priority":    2,
		"config": map[string]any{
			"primary_keywords": []string{"naranjo", "limonero", "citrico"},
		},
	})
	if err != nil {
		t.Fatalf("AddAgent() error = %v", err)
	}

	if _, err := svc.AgentDetails("citrus"); err != nil {
		t.Errorf("added agent not live: %v", err)
	}
}

func TestAddAgent_InvalidIsNotPersisted(t *testing.T) {
	svc, store := newServiceForTest(t, &fakeRetrieval{}, testAgentsYAML, time.Hour)

	err := svc.AddAgent("broken", map[string]any{
		"description": "no topics",
		"class":       ClassGeneric,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}

	if _, err := store.LoadAgents(); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Agent("broken"); err == nil {
		t.Error("invalid agent was persisted")
	}
}

func TestReloadAgent(t *testing.T) {
	svc, _ := newServiceForTest(t, &fakeRetrieval{answer: "ok"}, testAgentsYAML, time.Hour)

	// Accumulate some statistics, then reload: the instance is replaced
	// and statistics restart from zero.
	if _, err := svc.ProcessQuestion(context.Background(), ProcessRequest{
		Question: "pregunta", AgentType: "plants",
	}); err != nil {
		t.Fatal(err)
	}
	if d, _ := svc.AgentDetails("plants"); d.Stats.TotalQueries != 1 {
		t.Fatalf("precondition: stats = %+v", d.Stats)
	}

	if err := svc.ReloadAgent("plants"); err != nil {
		t.Fatalf("ReloadAgent() error = %v", err)
	}
	d, err := svc.AgentDetails("plants")
	if err != nil {
		t.Fatal(err)
	}
	if d.Stats.TotalQueries != 0 {
		t.Errorf("stats after reload = %+v, want fresh instance", d.Stats)
	}

	// Unknown agent is a distinct not-found condition.
	if err := svc.ReloadAgent("ghost"); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("error = %v, want ErrAgentNotFound", err)
	}
}

func TestCheckAndReload_RateLimited(t *testing.T) {
	svc, store := newServiceForTest(t, &fakeRetrieval{answer: "ok"}, testAgentsYAML, 100*time.Millisecond)

	// Add a new agent behind the service's back.
	extended := testAgentsYAML + `
  citrus:
    description: citrus
    class: PlantsAgent
    topics: [plants]
`
	agentsPath := filepath.Join(store.BaseDir(), "agents.yaml")
	if err := os.WriteFile(agentsPath, []byte(extended), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(agentsPath, future, future); err != nil {
		t.Fatal(err)
	}

	// Inside the reload window: no rescan, the new agent stays invisible.
	svc.checkAndReload()
	if _, err := svc.AgentDetails("citrus"); err == nil {
		t.Fatal("reload ran inside the rate-limit window")
	}

	time.Sleep(120 * time.Millisecond)
	svc.checkAndReload()
	if _, err := svc.AgentDetails("citrus"); err != nil {
		t.Errorf("new agent not live after reload window elapsed: %v", err)
	}
}

func TestProcessQuestion_ConcurrentWithReload(t *testing.T) {
	retrieval := &fakeRetrieval{answer: "ok"}
	svc, _ := newServiceForTest(t, retrieval, testAgentsYAML, time.Hour)

	var wg sync.WaitGroup
	errCh := make(chan error, 64)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				_, err := svc.ProcessQuestion(context.Background(), ProcessRequest{
					Question:  "mi planta tiene hongo",
					SessionID: "s",
				})
				if err != nil {
					errCh <- err
					return
				}
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				svc.rebuildLive()
			}
		}()
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent ProcessQuestion failed: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		svc, _ := newServiceForTest(t, &fakeRetrieval{}, testAgentsYAML, time.Hour)

		h := svc.HealthCheck(context.Background())
		if h.Status != "healthy" {
			t.Errorf("Status = %q, want healthy", h.Status)
		}
		if h.EnabledAgents != 3 || h.TotalAgents != 3 {
			t.Errorf("agents = %d/%d, want 3/3", h.EnabledAgents, h.TotalAgents)
		}
		if _, ok := h.Agents["plants"]; !ok {
			t.Error("per-agent health missing plants entry")
		}
	})

	t.Run("degraded retrieval", func(t *testing.T) {
		svc, _ := newServiceForTest(t, &fakeRetrieval{status: "degraded"}, testAgentsYAML, time.Hour)

		if h := svc.HealthCheck(context.Background()); h.Status != "degraded" {
			t.Errorf("Status = %q, want degraded", h.Status)
		}
	})

	t.Run("unhealthy without agents", func(t *testing.T) {
		svc, _ := newServiceForTest(t, &fakeRetrieval{}, "", time.Hour)

		if h := svc.HealthCheck(context.Background()); h.Status != "unhealthy" {
			t.Errorf("Status = %q, want unhealthy", h.Status)
		}
	})
}
