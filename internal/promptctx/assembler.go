package promptctx

// Assembler builds the ordered U-shaped message list spec.md §4.7
// describes. It never talks to a store directly — memories, history and
// cross-channel history arrive as already-fetched slices on
// AssembleRequest, left empty when a request has none (e.g. a DM has no
// cross-channel history), passed in by internal/generation's worker.
type Assembler struct {
	counter   *TokenCounter
	allocator *Allocator
	directory UserDirectory
}

// NewAssembler builds an Assembler. directory may be nil, in which case
// mention resolution is skipped and mention markup passes through
// verbatim.
func NewAssembler(directory UserDirectory) *Assembler {
	counter := NewTokenCounter()
	return &Assembler{
		counter:   counter,
		allocator: NewAllocator(counter),
		directory: directory,
	}
}

// crossChannelBudgetRatio is the share of the post-reservation history
// budget set aside for other channels' history, leaving the rest for the
// active channel's own conversation history.
const crossChannelBudgetRatio = 0.3

// Assemble produces the final ordered message list for req.
func (a *Assembler) Assemble(req AssembleRequest) AssembleResult {
	personaBlock := BuildPersonaBlock(req.Personality)
	protocolBlock := BuildProtocolBlock(req.Personality.Protocol)
	memoryBlock := BuildMemoryBlock(req.Memories)
	referencedBlock := BuildReferencedMessagesBlock(req.ReferencedMessages)

	userText := req.UserMessage
	participants := []string(nil)
	if a.directory != nil {
		userText, participants = ResolveReferences(userText, a.directory, req.PersonaID)
	}
	_ = participants // not returned: AssembleResult carries no participants list

	body := FormatMessageBody(userText, req.AttachmentDescriptions)
	currentMessage := IdentifySpeaker(req.PersonaID, req.PersonaDisplayName, "", req.Personality.Name, body)
	if referencedBlock != "" {
		currentMessage = referencedBlock + "\n\n" + currentMessage
	}

	budget := a.allocator.Allocate(req.Personality.ContextWindowTokens, personaBlock+protocolBlock, currentMessage, memoryBlock)

	crossChannelBudget := 0
	if len(req.CrossChannel) > 0 {
		crossChannelBudget = int(float64(budget.HistoryBudget) * crossChannelBudgetRatio)
	}
	historyBudget := budget.HistoryBudget - crossChannelBudget

	crossChannelBlock := BuildCrossChannelBlock(req.CrossChannel, crossChannelBudget, a.counter)

	historyMessages, included, dropped := selectHistory(req.History, historyBudget, a.counter)

	var messages []Message
	if personaBlock != "" {
		messages = append(messages, Message{Role: "system", Content: personaBlock})
	}
	if crossChannelBlock != "" {
		messages = append(messages, Message{Role: "system", Content: crossChannelBlock})
	}
	if memoryBlock != "" {
		messages = append(messages, Message{Role: "system", Content: memoryBlock})
	}
	for _, m := range historyMessages {
		role := "user"
		if m.FromSelf {
			role = "assistant"
		}
		messages = append(messages, Message{Role: role, Content: m.Content})
	}
	messages = append(messages, Message{Role: "user", Content: currentMessage})
	if protocolBlock != "" {
		messages = append(messages, Message{Role: "system", Content: protocolBlock})
	}

	return AssembleResult{
		Messages:         messages,
		Budget:           budget,
		MessagesIncluded: included,
		MessagesDropped:  dropped,
	}
}

// selectHistory walks req's history newest-to-oldest, accumulating
// messages until the next one would exceed budget, per spec.md §4.7's
// recency-first rule, then restores chronological order for the caller.
func selectHistory(history []HistoryMessage, budget int, counter *TokenCounter) (selected []HistoryMessage, included, dropped int) {
	if budget <= 0 {
		return nil, 0, len(history)
	}

	var picked []HistoryMessage
	used := 0
	stopIdx := -1
	for i := len(history) - 1; i >= 0; i-- {
		cost := counter.Count(history[i].Content)
		if used+cost > budget {
			stopIdx = i
			break
		}
		used += cost
		picked = append(picked, history[i])
	}

	dropped = stopIdx + 1
	included = len(picked)

	// picked was built newest-first; reverse to chronological order.
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}

	return picked, included, dropped
}
