package promptctx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense/internal/model"
)

func TestFormatMessageBody_VoiceOnly(t *testing.T) {
	assert.Equal(t, "a soft hum", FormatMessageBody("Hello", "a soft hum"))
}

func TestFormatMessageBody_TextAndAttachments(t *testing.T) {
	assert.Equal(t, "hi there\n\na photo of a cat", FormatMessageBody("hi there", "a photo of a cat"))
}

func TestFormatMessageBody_TextOnly(t *testing.T) {
	assert.Equal(t, "hi there", FormatMessageBody("hi there", ""))
}

func TestFormatMessageBody_AttachmentsOnly(t *testing.T) {
	assert.Equal(t, "a photo", FormatMessageBody("", "a photo"))
}

func TestIdentifySpeaker_Disambiguates(t *testing.T) {
	got := IdentifySpeaker("persona-1", "Luna", "luna_user", "Luna", "hi")
	assert.Contains(t, got, "Luna (@luna_user)")
}

func TestIdentifySpeaker_NoCollisionNoDisambiguation(t *testing.T) {
	got := IdentifySpeaker("persona-1", "Alex", "alex99", "Luna", "hi")
	assert.Contains(t, got, "<from id=\"persona-1\">Alex</from>")
	assert.NotContains(t, got, "@alex99")
}

type fakeDirectory struct {
	byUUID     map[string]ResolvedUser
	bySnowflake map[string]ResolvedUser
	byUsername map[string]ResolvedUser
}

func (d *fakeDirectory) ResolveByUUID(uuid string) (ResolvedUser, bool) {
	u, ok := d.byUUID[uuid]
	return u, ok
}
func (d *fakeDirectory) ResolveBySnowflake(sf string) (ResolvedUser, bool) {
	u, ok := d.bySnowflake[sf]
	return u, ok
}
func (d *fakeDirectory) ResolveByUsername(name string) (ResolvedUser, bool) {
	u, ok := d.byUsername[name]
	return u, ok
}

func TestResolveReferences_LegacyMarkdown(t *testing.T) {
	dir := &fakeDirectory{byUUID: map[string]ResolvedUser{
		"11111111-1111-1111-1111-111111111111": {PersonaID: "p2", DefaultPersonaName: "Mara"},
	}}
	resolved, participants := ResolveReferences("hi @[OldName](user:11111111-1111-1111-1111-111111111111)!", dir, "p1")
	assert.Equal(t, "hi Mara!", resolved)
	assert.Equal(t, []string{"p2"}, participants)
}

func TestResolveReferences_SnowflakeSelfReferenceOmitsParticipant(t *testing.T) {
	dir := &fakeDirectory{bySnowflake: map[string]ResolvedUser{
		"123456789012345678": {PersonaID: "p1", DefaultPersonaName: "Me"},
	}}
	resolved, participants := ResolveReferences("hey <@123456789012345678>", dir, "p1")
	assert.Equal(t, "hey Me", resolved)
	assert.Empty(t, participants)
}

func TestResolveReferences_SimpleMentionFallsBackWhenUnresolved(t *testing.T) {
	dir := &fakeDirectory{byUsername: map[string]ResolvedUser{}}
	resolved, participants := ResolveReferences("ping @ghost", dir, "p1")
	assert.Equal(t, "ping @ghost", resolved)
	assert.Empty(t, participants)
}

func TestBuildMemoryBlock_EmptyYieldsNothing(t *testing.T) {
	assert.Equal(t, "", BuildMemoryBlock(nil))
}

func TestBuildMemoryBlock_FormatsWithTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	block := BuildMemoryBlock([]model.ScoredMemory{{Memory: model.Memory{Content: "likes tea", CreatedAt: ts}}})
	assert.Contains(t, block, "## Relevant Memories")
	assert.Contains(t, block, "likes tea")
}

func TestBuildProtocolBlock_LegacyVsStructured(t *testing.T) {
	legacy := BuildProtocolBlock(model.Protocol{Legacy: "be nice"})
	assert.Equal(t, "be nice", legacy)

	structured := BuildProtocolBlock(model.Protocol{Permissions: []string{"no-nsfw"}})
	assert.Contains(t, structured, "Permissions: no-nsfw")
}

func TestAllocate_HistoryBudgetNeverNegative(t *testing.T) {
	counter := NewTokenCounter()
	alloc := NewAllocator(counter)
	huge := make([]byte, 100000)
	budget := alloc.Allocate(100, string(huge), "hi", "")
	assert.GreaterOrEqual(t, budget.HistoryBudget, 0)
}

func TestSelectHistory_RecencyFirst(t *testing.T) {
	counter := NewTokenCounter()
	history := []HistoryMessage{
		{Content: "oldest message here"},
		{Content: "middle message here"},
		{Content: "newest message here"},
	}
	selected, included, dropped := selectHistory(history, 3, counter)
	require.Len(t, selected, included)
	assert.Equal(t, included+dropped, len(history))
	if included > 0 {
		assert.Equal(t, "newest message here", selected[len(selected)-1].Content)
	}
}

func TestAssemble_RespectsContextWindowAndAccounting(t *testing.T) {
	a := NewAssembler(nil)
	personality := &model.Personality{
		Name:                "Luna",
		Character:           "playful",
		ContextWindowTokens: 2000,
		Protocol:            model.Protocol{Legacy: "stay in character"},
	}
	history := []HistoryMessage{
		{Content: "hi there", Author: "u1"},
		{Content: "hello!", Author: "Luna", FromSelf: true},
	}

	result := a.Assemble(AssembleRequest{
		Personality:        personality,
		UserMessage:        "what's up?",
		PersonaID:          "persona-1",
		PersonaDisplayName: "Alex",
		History:            history,
	})

	require.NotEmpty(t, result.Messages)
	assert.Equal(t, result.MessagesIncluded+result.MessagesDropped, len(history))
	assert.GreaterOrEqual(t, result.Budget.HistoryBudget, 0)

	last := result.Messages[len(result.Messages)-1]
	assert.Equal(t, "system", last.Role)
	assert.Contains(t, last.Content, "stay in character")

	first := result.Messages[0]
	assert.Equal(t, "system", first.Role)
	assert.Contains(t, first.Content, "Luna")
}
