package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeStageResultValid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		id   StageID
		raw  string
		want StageResult
	}{
		{
			name: "context trust",
			id:   StageContextTrust,
			raw:  `{"story_summary":"Storm hits coast","trust_signal":"high_agreement","reader_action":"Read any source"}`,
			want: ContextTrust{StorySummary: "Storm hits coast", TrustSignal: TrustHighAgreement, ReaderAction: "Read any source"},
		},
		{
			name: "consensus",
			id:   StageConsensus,
			raw:  `{"consensus":[{"fact":"Storm made landfall","sources":["BBC","CNN"]}]}`,
			want: Consensus{Consensus: []ConsensusFact{{Fact: "Storm made landfall", Sources: []string{"BBC", "CNN"}}}},
		},
		{
			name: "empty disputes",
			id:   StageDisputes,
			raw:  `{"factual_disputes":[]}`,
			want: Disputes{FactualDisputes: []FactualDispute{}},
		},
		{
			name: "perspectives",
			id:   StagePerspectives,
			raw:  `{"coverage_angles":[{"angle":"Cause","group1":"climate","group1_sources":["BBC"],"group2":"weather","group2_sources":["Fox"]}]}`,
			want: Perspectives{CoverageAngles: []CoverageAngle{{Angle: "Cause", Group1: "climate", Group1Sources: []string{"BBC"}, Group2: "weather", Group2Sources: []string{"Fox"}}}},
		},
	}

	for _, tc := range cases {
		got, err := DecodeStageResult(tc.id, []byte(tc.raw))
		if err != nil {
			t.Fatalf("%s: DecodeStageResult: %v", tc.name, err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("%s: mismatch (-want +got):\n%s", tc.name, diff)
		}
		if got.StageID() != tc.id {
			t.Fatalf("%s: stage id = %d", tc.name, got.StageID())
		}
	}
}

func TestDecodeStageResultRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		id   StageID
		raw  string
	}{
		{name: "not json", id: StageContextTrust, raw: `here is your analysis`},
		{name: "bad enum", id: StageContextTrust, raw: `{"story_summary":"s","trust_signal":"mostly_fine","reader_action":"r"}`},
		{name: "missing field", id: StageContextTrust, raw: `{"story_summary":"s","trust_signal":"high_agreement"}`},
		{name: "null array", id: StageConsensus, raw: `{"consensus":null}`},
		{name: "unknown field", id: StageConsensus, raw: `{"consensus":[],"extra":1}`},
		{name: "too many consensus", id: StageConsensus, raw: `{"consensus":[{"fact":"a","sources":[]},{"fact":"b","sources":[]},{"fact":"c","sources":[]},{"fact":"d","sources":[]},{"fact":"e","sources":[]}]}`},
		{name: "too many disputes", id: StageDisputes, raw: `{"factual_disputes":[{"what":"a"},{"what":"b"},{"what":"c"},{"what":"d"}]}`},
		{name: "too many angles", id: StagePerspectives, raw: `{"coverage_angles":[{"angle":"a"},{"angle":"b"},{"angle":"c"},{"angle":"d"}]}`},
		{name: "empty consensus item", id: StageConsensus, raw: `{"consensus":[{}]}`},
		{name: "null sources", id: StageConsensus, raw: `{"consensus":[{"fact":"a","sources":null}]}`},
		{name: "partial dispute", id: StageDisputes, raw: `{"factual_disputes":[{"what":"a"}]}`},
		{name: "null dispute item", id: StageDisputes, raw: `{"factual_disputes":[null]}`},
		{name: "partial angle", id: StagePerspectives, raw: `{"coverage_angles":[{"angle":"a","group1":"b"}]}`},
		{name: "wrong type", id: StageDisputes, raw: `{"factual_disputes":"none"}`},
		{name: "unknown stage", id: StageID(9), raw: `{}`},
	}

	for _, tc := range cases {
		if _, err := DecodeStageResult(tc.id, []byte(tc.raw)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestEmptyResultsSatisfyContract(t *testing.T) {
	t.Parallel()

	for _, def := range Stages() {
		empty := EmptyResult(def.ID)
		if empty == nil {
			t.Fatalf("no empty result for stage %d", def.ID)
		}
		if err := empty.Validate(); err != nil {
			t.Fatalf("empty result for stage %d is invalid: %v", def.ID, err)
		}
	}

	ct := EmptyResult(StageContextTrust).(ContextTrust)
	if ct.TrustSignal != TrustSomeConflicts || ct.ReaderAction != "Analysis incomplete" {
		t.Fatalf("unexpected stage 1 placeholder: %+v", ct)
	}
}

func TestStageTable(t *testing.T) {
	t.Parallel()

	want := []StageDefinition{
		{ID: StageContextTrust, Name: "context-trust", Critical: true},
		{ID: StageConsensus, Name: "consensus", Critical: true},
		{ID: StageDisputes, Name: "disputes", Critical: false},
		{ID: StagePerspectives, Name: "perspectives", Critical: false},
	}
	if diff := cmp.Diff(want, Stages()); diff != "" {
		t.Fatalf("stage table mismatch (-want +got):\n%s", diff)
	}
	if _, ok := Stage(0); ok {
		t.Fatalf("stage 0 should not exist")
	}
	if StageDisputes.Key() != "stage3" {
		t.Fatalf("key = %s", StageDisputes.Key())
	}
}
