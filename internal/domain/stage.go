package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StageID enumerates the four fixed analysis stages.
type StageID int

const (
	StageContextTrust StageID = 1
	StageConsensus    StageID = 2
	StageDisputes     StageID = 3
	StagePerspectives StageID = 4
)

// StageDefinition is an immutable row of the stage table.
type StageDefinition struct {
	ID       StageID
	Name     string
	Critical bool
}

var stages = [...]StageDefinition{
	{ID: StageContextTrust, Name: "context-trust", Critical: true},
	{ID: StageConsensus, Name: "consensus", Critical: true},
	{ID: StageDisputes, Name: "disputes", Critical: false},
	{ID: StagePerspectives, Name: "perspectives", Critical: false},
}

// Stages returns the stage table in execution order.
func Stages() []StageDefinition {
	out := make([]StageDefinition, len(stages))
	copy(out, stages[:])
	return out
}

// Stage looks up a stage definition.
func Stage(id StageID) (StageDefinition, bool) {
	if id < StageContextTrust || id > StagePerspectives {
		return StageDefinition{}, false
	}
	return stages[id-1], true
}

// Key is the report field the stage result is stored under.
func (id StageID) Key() string {
	return fmt.Sprintf("stage%d", int(id))
}

// TrustSignal is the stage 1 verdict on cross-source agreement.
type TrustSignal string

const (
	TrustHighAgreement TrustSignal = "high_agreement"
	TrustSomeConflicts TrustSignal = "some_conflicts"
	TrustMajorDisputes TrustSignal = "major_disputes"
)

// Valid reports whether the signal is one of the enumerated values.
func (t TrustSignal) Valid() bool {
	switch t {
	case TrustHighAgreement, TrustSomeConflicts, TrustMajorDisputes:
		return true
	}
	return false
}

// StageResult is the closed set of per-stage outputs.
type StageResult interface {
	StageID() StageID
	Validate() error
}

// ContextTrust is the stage 1 result.
type ContextTrust struct {
	StorySummary string      `json:"story_summary"`
	TrustSignal  TrustSignal `json:"trust_signal"`
	ReaderAction string      `json:"reader_action"`
}

// ConsensusFact is a fact every listed source agrees on.
type ConsensusFact struct {
	Fact    string   `json:"fact"`
	Sources []string `json:"sources"`
}

// Consensus is the stage 2 result.
type Consensus struct {
	Consensus []ConsensusFact `json:"consensus"`
}

// FactualDispute pairs two contradicting claims and their sources.
type FactualDispute struct {
	What     string   `json:"what"`
	ClaimA   string   `json:"claim_a"`
	ClaimB   string   `json:"claim_b"`
	SourcesA []string `json:"sources_a"`
	SourcesB []string `json:"sources_b"`
}

// Disputes is the stage 3 result.
type Disputes struct {
	FactualDisputes []FactualDispute `json:"factual_disputes"`
}

// CoverageAngle contrasts how two groups of outlets framed the story.
type CoverageAngle struct {
	Angle         string   `json:"angle"`
	Group1        string   `json:"group1"`
	Group1Sources []string `json:"group1_sources"`
	Group2        string   `json:"group2"`
	Group2Sources []string `json:"group2_sources"`
}

// Perspectives is the stage 4 result.
type Perspectives struct {
	CoverageAngles []CoverageAngle `json:"coverage_angles"`
}

const (
	maxConsensus = 4
	maxDisputes  = 3
	maxAngles    = 3
)

func (ContextTrust) StageID() StageID { return StageContextTrust }
func (Consensus) StageID() StageID    { return StageConsensus }
func (Disputes) StageID() StageID     { return StageDisputes }
func (Perspectives) StageID() StageID { return StagePerspectives }

func (r ContextTrust) Validate() error {
	if !r.TrustSignal.Valid() {
		return fmt.Errorf("trust_signal %q is not one of high_agreement, some_conflicts, major_disputes", r.TrustSignal)
	}
	return nil
}

func (r Consensus) Validate() error {
	if r.Consensus == nil {
		return fmt.Errorf("consensus is required")
	}
	if len(r.Consensus) > maxConsensus {
		return fmt.Errorf("consensus has %d entries, max %d", len(r.Consensus), maxConsensus)
	}
	return nil
}

func (r Disputes) Validate() error {
	if r.FactualDisputes == nil {
		return fmt.Errorf("factual_disputes is required")
	}
	if len(r.FactualDisputes) > maxDisputes {
		return fmt.Errorf("factual_disputes has %d entries, max %d", len(r.FactualDisputes), maxDisputes)
	}
	return nil
}

func (r Perspectives) Validate() error {
	if r.CoverageAngles == nil {
		return fmt.Errorf("coverage_angles is required")
	}
	if len(r.CoverageAngles) > maxAngles {
		return fmt.Errorf("coverage_angles has %d entries, max %d", len(r.CoverageAngles), maxAngles)
	}
	return nil
}

// EmptyResult is the placeholder substituted when a stage fails without aborting the run.
func EmptyResult(id StageID) StageResult {
	switch id {
	case StageContextTrust:
		return ContextTrust{StorySummary: "", TrustSignal: TrustSomeConflicts, ReaderAction: "Analysis incomplete"}
	case StageConsensus:
		return Consensus{Consensus: []ConsensusFact{}}
	case StageDisputes:
		return Disputes{FactualDisputes: []FactualDispute{}}
	case StagePerspectives:
		return Perspectives{CoverageAngles: []CoverageAngle{}}
	}
	return nil
}

var requiredFields = map[StageID][]string{
	StageContextTrust: {"story_summary", "trust_signal", "reader_action"},
	StageConsensus:    {"consensus"},
	StageDisputes:     {"factual_disputes"},
	StagePerspectives: {"coverage_angles"},
}

// itemFields lists the array field of each list-shaped stage and the keys every item must carry.
var itemFields = map[StageID]struct {
	list     string
	required []string
}{
	StageConsensus:    {list: "consensus", required: []string{"fact", "sources"}},
	StageDisputes:     {list: "factual_disputes", required: []string{"what", "claim_a", "claim_b", "sources_a", "sources_b"}},
	StagePerspectives: {list: "coverage_angles", required: []string{"angle", "group1", "group1_sources", "group2", "group2_sources"}},
}

// DecodeStageResult parses backend output for a stage and enforces its contract:
// required fields present, no unknown fields, enums and cardinalities respected.
func DecodeStageResult(id StageID, raw []byte) (StageResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	required, ok := requiredFields[id]
	if !ok {
		return nil, fmt.Errorf("unknown stage %d", id)
	}
	for _, name := range required {
		value, present := fields[name]
		if !present || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return nil, fmt.Errorf("missing required field %q", name)
		}
	}
	if spec, ok := itemFields[id]; ok {
		if err := checkItems(fields[spec.list], spec.list, spec.required); err != nil {
			return nil, err
		}
	}

	var result StageResult
	switch id {
	case StageContextTrust:
		var r ContextTrust
		if err := decodeStrict(raw, &r); err != nil {
			return nil, err
		}
		result = r
	case StageConsensus:
		var r Consensus
		if err := decodeStrict(raw, &r); err != nil {
			return nil, err
		}
		result = r
	case StageDisputes:
		var r Disputes
		if err := decodeStrict(raw, &r); err != nil {
			return nil, err
		}
		result = r
	case StagePerspectives:
		var r Perspectives
		if err := decodeStrict(raw, &r); err != nil {
			return nil, err
		}
		result = r
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

func checkItems(raw json.RawMessage, list string, required []string) error {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("decode %s: %w", list, err)
	}
	for i, item := range items {
		if item == nil {
			return fmt.Errorf("%s[%d] is null", list, i)
		}
		for _, name := range required {
			value, present := item[name]
			if !present || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
				return fmt.Errorf("%s[%d] missing required field %q", list, i, name)
			}
		}
	}
	return nil
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	return nil
}
