package promptctx

// safetyMarginRatio reserves a slice of the window for provider-side
// overhead (function-call scaffolding, provider-added tokens) that the
// orchestrator cannot measure directly.
const safetyMarginRatio = 0.05

// maxMemoryRatio caps how much of the window retrieved memories may
// consume, per spec.md §4.7 ("memories, measured, capped at a fraction
// of C"). The exact share is not documented upstream — see DESIGN.md's
// Open Questions resolution; 0.25 mirrors the teacher's
// BudgetAllocator.DefaultRetrievalRatio order of magnitude for the
// analogous "retrieval" share.
const maxMemoryRatio = 0.25

// TokenBudget is the allocation plan for one prompt assembly, generalized
// from the teacher's ai/context/budget.go TokenBudget: the teacher splits
// a window into systemPrompt/shortTermMemory/longTermMemory/retrieval;
// this spec's U-shaped layout instead needs persona+protocol (measured,
// not a ratio), the current message (measured), a capped memory share,
// a safety margin, and whatever remains for conversation history.
type TokenBudget struct {
	Total         int
	PersonaTokens int
	MessageTokens int
	MemoryTokens  int
	SafetyMargin  int
	HistoryBudget int
}

// Allocator computes a TokenBudget, keeping the teacher's "reserve fixed
// costs first, then split the remainder" shape (BudgetAllocator.Allocate)
// but replacing the teacher's ratio-based memory/shortTerm/longTerm split
// with spec.md §4.7's reserve-then-remainder-is-history rule.
type Allocator struct {
	counter *TokenCounter
}

// NewAllocator builds an Allocator using counter for every measurement.
func NewAllocator(counter *TokenCounter) *Allocator {
	return &Allocator{counter: counter}
}

// Allocate reserves persona+protocol, the current message (including any
// attachment descriptions already folded in), and a capped memory share,
// then assigns whatever remains above the safety margin to HistoryBudget.
// HistoryBudget is never negative — an over-budget personality still
// gets a valid (zero) history allowance rather than a failed assembly.
func (a *Allocator) Allocate(contextWindowTokens int, personaAndProtocol, currentMessage string, memoryBlock string) TokenBudget {
	total := contextWindowTokens
	personaTokens := a.counter.Count(personaAndProtocol)
	messageTokens := a.counter.Count(currentMessage)

	memoryTokens := a.counter.Count(memoryBlock)
	memoryCap := int(float64(total) * maxMemoryRatio)
	if memoryTokens > memoryCap {
		memoryTokens = memoryCap
	}

	safetyMargin := int(float64(total) * safetyMarginRatio)

	historyBudget := total - personaTokens - messageTokens - memoryTokens - safetyMargin
	if historyBudget < 0 {
		historyBudget = 0
	}

	return TokenBudget{
		Total:         total,
		PersonaTokens: personaTokens,
		MessageTokens: messageTokens,
		MemoryTokens:  memoryTokens,
		SafetyMargin:  safetyMargin,
		HistoryBudget: historyBudget,
	}
}
