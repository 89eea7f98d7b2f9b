package promptctx

import (
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/divinesense/internal/model"
)

// crossChannelCharsPerToken is the overhead estimate spec.md §4.7
// specifies for per-group location/tag scaffolding when allocating the
// cross-channel sub-budget, independent of the main TokenCounter (the
// overhead text is never actually materialized ahead of time, so it is
// estimated rather than measured).
const crossChannelCharsPerToken = 4

// BuildPersonaBlock renders the identity/character half of the U-shaped
// layout. Protocol is deliberately excluded — it is rendered separately
// by BuildProtocolBlock and emitted at the opposite end of the prompt.
func BuildPersonaBlock(p *model.Personality) string {
	var b strings.Builder
	b.WriteString("## Persona\n")
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	if p.Character != "" {
		fmt.Fprintf(&b, "Character: %s\n", p.Character)
	}
	if p.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", p.Tone)
	}
	if p.Age != "" {
		fmt.Fprintf(&b, "Age: %s\n", p.Age)
	}
	if p.Appearance != "" {
		fmt.Fprintf(&b, "Appearance: %s\n", p.Appearance)
	}
	writeList(&b, "Traits", p.Traits)
	writeList(&b, "Likes", p.Likes)
	writeList(&b, "Dislikes", p.Dislikes)
	writeList(&b, "Goals", p.Goals)
	writeList(&b, "Examples", p.Examples)
	return strings.TrimRight(b.String(), "\n")
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, ", "))
}

// BuildProtocolBlock renders the behaviour-rule half, either verbatim
// (legacy markup) or assembled from the three structured arrays.
func BuildProtocolBlock(p model.Protocol) string {
	if !p.IsStructured() {
		return strings.TrimSpace(p.Legacy)
	}

	var b strings.Builder
	b.WriteString("## Protocol\n")
	writeList(&b, "Permissions", p.Permissions)
	writeList(&b, "Character directives", p.CharacterDirectives)
	writeList(&b, "Formatting rules", p.FormattingRules)
	return strings.TrimRight(b.String(), "\n")
}

// BuildMemoryBlock formats a ranked memory list under the documented
// header, per spec.md §4.7. An empty list emits nothing for this block.
func BuildMemoryBlock(memories []model.ScoredMemory) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Relevant Memories\n")
	for _, m := range memories {
		if !m.Memory.CreatedAt.IsZero() {
			fmt.Fprintf(&b, "- [%s] %s\n", m.Memory.CreatedAt.Format(time.RFC3339), m.Memory.Content)
		} else {
			fmt.Fprintf(&b, "- %s\n", m.Memory.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildReferencedMessagesBlock renders quoted/replied-to messages.
func BuildReferencedMessagesBlock(refs []model.ReferencedMessage) string {
	if len(refs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Referenced Messages\n")
	for _, r := range refs {
		fmt.Fprintf(&b, "- %s: %s\n", r.Author, r.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildCrossChannelBlock greedily packs groups, most-recent-channel
// first, into a sub-budget, per spec.md §4.7: a group's messages are
// picked chronologically until the next one would blow the sub-budget,
// at which point that group stops; if a group can't fit even its
// per-group overhead, the whole cross-channel block short-circuits
// rather than emitting a partially-truncated run of groups.
func BuildCrossChannelBlock(groups []ChannelHistoryGroup, subBudget int, counter *TokenCounter) string {
	if len(groups) == 0 || subBudget <= 0 {
		return ""
	}

	var rendered []string
	remaining := subBudget

	for _, g := range groups {
		overheadEstimate := (len(g.ChannelEnvironment) + len("<location></location><channel_history></channel_history>")) / crossChannelCharsPerToken
		if overheadEstimate > remaining {
			break
		}

		var body strings.Builder
		fmt.Fprintf(&body, "<location>%s</location>\n<channel_history>\n", g.ChannelEnvironment)
		used := overheadEstimate
		included := 0
		for _, m := range g.Messages {
			line := fmt.Sprintf("%s: %s\n", m.Author, m.Content)
			cost := counter.Count(line)
			if used+cost > remaining {
				break
			}
			body.WriteString(line)
			used += cost
			included++
		}
		body.WriteString("</channel_history>")

		if included == 0 && len(g.Messages) > 0 {
			break
		}

		rendered = append(rendered, body.String())
		remaining -= used
	}

	if len(rendered) == 0 {
		return ""
	}

	return "<prior_conversations>\n" + strings.Join(rendered, "\n") + "\n</prior_conversations>"
}
