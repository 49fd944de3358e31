package conversation

import (
	"testing"
)

func sampleConversation() []Turn {
	return []Turn{
		NewTurn(KindSystem, "you are a travel agent"),
		NewTurn(KindHuman, "plan my trip to Kyoto"),
		toolCallTurn("c1"),
		toolResultTurn("c1"),
		NewTurn(KindAssistant, "booked"),
		NewTurn(KindHuman, "what about restaurants?"),
	}
}

func kinds(turns []Turn) []Kind {
	out := make([]Kind, len(turns))
	for i, turn := range turns {
		out[i] = turn.Kind
	}
	return out
}

func TestTrim_WithinBudgetUnchanged(t *testing.T) {
	tr := NewTrimmer(MetricMessages, nil)
	turns := sampleConversation()

	out, err := tr.Trim(turns, len(turns))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(turns) {
		t.Errorf("expected all %d turns, got %d", len(turns), len(out))
	}
}

func TestTrim_NeverSeparatesToolPair(t *testing.T) {
	tr := NewTrimmer(MetricMessages, nil)
	turns := sampleConversation()

	for budget := 1; budget <= len(turns); budget++ {
		out, err := tr.Trim(turns, budget)
		if err != nil {
			t.Fatal(err)
		}
		calls := make(map[string]bool)
		for _, turn := range out {
			for _, c := range turn.ToolCalls {
				calls[c.ID] = true
			}
		}
		for _, turn := range out {
			if turn.Kind == KindToolResult && !calls[turn.CallID] {
				t.Fatalf("budget %d: tool result %q survived without its call: %v",
					budget, turn.CallID, kinds(out))
			}
		}
		// The output must still be structurally valid.
		if err := Validate(out); err != nil {
			t.Fatalf("budget %d: trimmed output invalid: %v", budget, err)
		}
	}
}

func TestTrim_ProtectsLastHumanAndAfter(t *testing.T) {
	tr := NewTrimmer(MetricMessages, nil)
	turns := sampleConversation()
	lastHuman := turns[len(turns)-1]

	out, err := tr.Trim(turns, 2)
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, turn := range out {
		if turn.ID == lastHuman.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("last human turn must always survive, got %v", kinds(out))
	}
}

func TestTrim_KeepsSystemPrefix(t *testing.T) {
	tr := NewTrimmer(MetricMessages, nil)
	turns := sampleConversation()

	out, err := tr.Trim(turns, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 || out[0].Kind != KindSystem {
		t.Errorf("system prefix must survive, got %v", kinds(out))
	}
}

func TestTrim_EvictsOldestBlocksFirst(t *testing.T) {
	tr := NewTrimmer(MetricMessages, nil)
	turns := []Turn{
		NewTurn(KindSystem, "sys"),
		NewTurn(KindHuman, "h1"),
		NewTurn(KindAssistant, "a1"),
		NewTurn(KindHuman, "h2"),
		NewTurn(KindAssistant, "a2"),
		NewTurn(KindHuman, "h3"),
	}

	// Budget of 4: system + protected tail (h3) cost 2, leaving room for
	// two middle turns. The oldest (h1, a1) go first.
	out, err := tr.Trim(turns, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 turns, got %d: %v", len(out), kinds(out))
	}
	if out[1].Text != "h2" || out[2].Text != "a2" {
		t.Errorf("expected oldest turns evicted, kept %q %q", out[1].Text, out[2].Text)
	}
}

type capturingLogger struct {
	warned bool
}

func (c *capturingLogger) Warn(msg string, args ...any) { c.warned = true }

func TestTrim_OverflowKeepsProtectedAndWarns(t *testing.T) {
	log := &capturingLogger{}
	tr := NewTrimmer(MetricMessages, log)
	turns := sampleConversation()

	// Budget 1 cannot hold prefix + protected tail; both are kept anyway.
	out, err := tr.Trim(turns, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) < 2 {
		t.Fatalf("expected prefix and tail retained, got %v", kinds(out))
	}
	if !log.warned {
		t.Error("expected a capacity warning")
	}
}

func TestTrim_MalformedInputReported(t *testing.T) {
	tr := NewTrimmer(MetricMessages, nil)
	turns := []Turn{
		NewTurn(KindHuman, "hi"),
		toolResultTurn("nope"),
	}
	if _, err := tr.Trim(turns, 10); err == nil {
		t.Error("expected structural error for orphan tool result")
	}
}

func TestTrim_Deterministic(t *testing.T) {
	tr := NewTrimmer(MetricTokens, nil)
	turns := sampleConversation()

	a, err := tr.Trim(turns, 30)
	if err != nil {
		t.Fatal(err)
	}
	b, err := tr.Trim(turns, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("trim not deterministic: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("trim not deterministic at %d", i)
		}
	}
}

func TestTrim_TokenMetric(t *testing.T) {
	tr := NewTrimmer(MetricTokens, nil)
	turns := []Turn{
		NewTurn(KindSystem, "sys"),
		NewTurn(KindHuman, "short"),
		NewTurn(KindAssistant, "a long assistant reply that costs considerably more tokens than the rest"),
		NewTurn(KindHuman, "latest"),
	}

	total := 0
	for i := range turns {
		total += EstimateTokens(&turns[i])
	}
	out, err := tr.Trim(turns, total-1)
	if err != nil {
		t.Fatal(err)
	}
	// Something had to go, and it must be from the middle.
	if len(out) >= len(turns) {
		t.Errorf("expected eviction under token pressure, got %d turns", len(out))
	}
	if out[len(out)-1].Text != "latest" {
		t.Error("protected tail lost under token metric")
	}
}
