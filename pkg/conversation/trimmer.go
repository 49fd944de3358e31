package conversation

// Metric selects the budget unit for trimming.
const (
	MetricMessages = "messages"
	MetricTokens   = "tokens"
)

// trimLogger is the minimal logger interface used by the Trimmer.
type trimLogger interface {
	Warn(msg string, args ...any)
}

type nopTrimLogger struct{}

func (nopTrimLogger) Warn(msg string, args ...any) {}

// Trimmer shrinks a turn sequence to a budget while preserving structure:
// the system prefix always survives, the most recent human turn and
// everything after it always survive, and a tool invocation is never
// separated from its results. Trimming is deterministic and has no side
// effects beyond an overflow warning.
type Trimmer struct {
	metric string
	logger trimLogger
}

// NewTrimmer creates a trimmer using the given budget metric
// (MetricMessages or MetricTokens). logger may be nil.
func NewTrimmer(metric string, logger trimLogger) *Trimmer {
	if metric != MetricMessages && metric != MetricTokens {
		metric = MetricMessages
	}
	if logger == nil {
		logger = nopTrimLogger{}
	}
	return &Trimmer{metric: metric, logger: logger}
}

// block is an indivisible run of turns: either a lone turn, or a tool-call
// turn together with all of its paired results.
type block struct {
	start, end int // turns[start:end]
	cost       int
}

// Trim returns a subsequence of turns whose total cost fits the budget where
// possible. The input must be structurally valid; malformed input is
// reported, never repaired.
func (t *Trimmer) Trim(turns []Turn, budget int) ([]Turn, error) {
	if err := Validate(turns); err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, nil
	}

	// Protected prefix: the leading run of system turns.
	prefixEnd := 0
	for prefixEnd < len(turns) && turns[prefixEnd].Kind == KindSystem {
		prefixEnd++
	}

	// Protected tail: the most recent human turn and everything after it.
	tailStart := len(turns)
	for i := len(turns) - 1; i >= prefixEnd; i-- {
		if turns[i].Kind == KindHuman {
			tailStart = i
			break
		}
	}

	fixed := t.costOf(turns[:prefixEnd]) + t.costOf(turns[tailStart:])
	blocks := t.segment(turns, prefixEnd, tailStart)

	total := fixed
	for _, b := range blocks {
		total += b.cost
	}

	// Evict whole blocks from the oldest retained boundary forward.
	evict := 0
	for total > budget && evict < len(blocks) {
		total -= blocks[evict].cost
		evict++
	}

	if total > budget {
		// The protected prefix and tail alone exceed the budget. They are
		// retained in full regardless; the budget is advisory here.
		t.logger.Warn("context budget smaller than protected turns",
			"budget", budget,
			"protected_cost", total,
			"metric", t.metric,
		)
	}

	out := make([]Turn, 0, len(turns))
	out = append(out, turns[:prefixEnd]...)
	for _, b := range blocks[evict:] {
		out = append(out, turns[b.start:b.end]...)
	}
	out = append(out, turns[tailStart:]...)
	return out, nil
}

// segment splits turns[from:to] into atomic blocks. A tool-call turn absorbs
// the results that follow it; every other turn stands alone.
func (t *Trimmer) segment(turns []Turn, from, to int) []block {
	var blocks []block
	i := from
	for i < to {
		start := i
		if turns[i].Kind == KindToolCall {
			i++
			for i < to && turns[i].Kind == KindToolResult {
				i++
			}
		} else {
			i++
		}
		blocks = append(blocks, block{
			start: start,
			end:   i,
			cost:  t.costOf(turns[start:i]),
		})
	}
	return blocks
}

func (t *Trimmer) costOf(turns []Turn) int {
	total := 0
	for i := range turns {
		total += t.turnCost(&turns[i])
	}
	return total
}

func (t *Trimmer) turnCost(turn *Turn) int {
	if t.metric == MetricMessages {
		return 1
	}
	return EstimateTokens(turn)
}

// EstimateTokens approximates the token cost of a turn using the usual
// four-characters-per-token heuristic, plus a small per-message overhead.
func EstimateTokens(turn *Turn) int {
	chars := len(turn.Text) + len(turn.CallID)
	for _, call := range turn.ToolCalls {
		chars += len(call.Name) + len(call.Arguments)
	}
	return chars/4 + 4
}
