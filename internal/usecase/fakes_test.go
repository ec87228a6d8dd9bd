package usecase

import (
	"context"
	"sync"

	"PerspectiveLens/internal/domain"
	"PerspectiveLens/internal/ports"
)

// fakeRunner answers each stage from a table; missing entries succeed with a canned result.
type fakeRunner struct {
	model        string
	errs         map[domain.StageID]error
	availability ports.Availability

	mu    sync.Mutex
	calls []domain.StageID
}

var _ ports.StageRunner = (*fakeRunner)(nil)

func newFakeRunner(model string) *fakeRunner {
	return &fakeRunner{model: model, errs: map[domain.StageID]error{}, availability: ports.AvailabilityReady}
}

func (f *fakeRunner) Provider() string { return "fake" }

func (f *fakeRunner) Model() string { return f.model }

func (f *fakeRunner) CheckAvailability(context.Context) ports.Availability { return f.availability }

func (f *fakeRunner) RunStage(_ context.Context, stage domain.StageID, _ []domain.Article) (domain.StageResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, stage)
	f.mu.Unlock()

	if err := f.errs[stage]; err != nil {
		return nil, err
	}
	return cannedResult(stage, f.model), nil
}

func (f *fakeRunner) Calls() []domain.StageID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.StageID(nil), f.calls...)
}

func cannedResult(stage domain.StageID, model string) domain.StageResult {
	switch stage {
	case domain.StageContextTrust:
		return domain.ContextTrust{StorySummary: "summary by " + model, TrustSignal: domain.TrustHighAgreement, ReaderAction: "read on"}
	case domain.StageConsensus:
		return domain.Consensus{Consensus: []domain.ConsensusFact{{Fact: "fact by " + model, Sources: []string{"BBC", "CNN"}}}}
	case domain.StageDisputes:
		return domain.Disputes{FactualDisputes: []domain.FactualDispute{{What: "toll", ClaimA: "10", ClaimB: "12", SourcesA: []string{"BBC"}, SourcesB: []string{"CNN"}}}}
	case domain.StagePerspectives:
		return domain.Perspectives{CoverageAngles: []domain.CoverageAngle{{Angle: "cause by " + model}}}
	}
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.StageEvent
	err    error
	panics bool
}

func (s *recordingSink) OnStageProgress(_ context.Context, event domain.StageEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	if s.panics {
		panic("sink exploded")
	}
	return s.err
}

func (s *recordingSink) Stages() []domain.StageID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.StageID, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Stage)
	}
	return out
}

func sampleArticles() []domain.Article {
	return []domain.Article{
		{Source: "BBC", Title: "Storm", Country: "GB", Language: "en", Content: "A storm made landfall."},
		{Source: "CNN", Title: "Hurricane", Country: "US", Language: "en", Content: "A hurricane hit the coast."},
	}
}
