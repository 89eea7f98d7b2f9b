package promptctx

import (
	"regexp"
	"strings"
)

// legacyMentionPattern matches @[<name>](user:<uuid>), the legacy
// markdown mention shape.
var legacyMentionPattern = regexp.MustCompile(`@\[([^\]]+)\]\(user:([0-9a-fA-F-]{36})\)`)

// snowflakeMentionPattern matches <@<snowflake>>, a 17-20 digit platform
// mention id.
var snowflakeMentionPattern = regexp.MustCompile(`<@(\d{17,20})>`)

// simpleMentionPattern matches a bare @word mention. Applied last, after
// resolved legacy and snowflake mentions have been substituted out; an
// unresolved snowflake mention is still in the text, so its "@<digits>"
// is also looked up as a username.
var simpleMentionPattern = regexp.MustCompile(`@(\w+)`)

// ResolveReferences scans text for the three mention patterns spec.md
// §4.7 documents, in order (legacy markdown, platform snowflake, simple
// @word), substituting each resolved match with the target's display
// name. activePersonaID is the persona currently speaking as the
// assistant: a self-reference (resolved persona == activePersonaID)
// substitutes the name but is not added to the returned participants
// list. An unresolved legacy mention falls back to its original <name>
// text; an unresolved snowflake or @word mention is left in the text as
// written, markup included.
func ResolveReferences(text string, dir UserDirectory, activePersonaID string) (resolved string, participants []string) {
	seen := map[string]bool{}

	resolved = legacyMentionPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := legacyMentionPattern.FindStringSubmatch(match)
		name, uuid := groups[1], groups[2]
		user, ok := dir.ResolveByUUID(uuid)
		if !ok {
			return name
		}
		return substitute(user, activePersonaID, seen, &participants)
	})

	resolved = snowflakeMentionPattern.ReplaceAllStringFunc(resolved, func(match string) string {
		groups := snowflakeMentionPattern.FindStringSubmatch(match)
		id := groups[1]
		user, ok := dir.ResolveBySnowflake(id)
		if !ok {
			return match
		}
		return substitute(user, activePersonaID, seen, &participants)
	})

	resolved = simpleMentionPattern.ReplaceAllStringFunc(resolved, func(match string) string {
		groups := simpleMentionPattern.FindStringSubmatch(match)
		username := groups[1]
		user, ok := dir.ResolveByUsername(username)
		if !ok {
			return match
		}
		return substitute(user, activePersonaID, seen, &participants)
	})

	return resolved, participants
}

func substitute(user ResolvedUser, activePersonaID string, seen map[string]bool, participants *[]string) string {
	name := user.DefaultPersonaName
	if name == "" {
		name = user.DisplayName
	}
	if user.PersonaID == activePersonaID {
		return name
	}
	key := strings.ToLower(user.PersonaID)
	if !seen[key] {
		seen[key] = true
		*participants = append(*participants, user.PersonaID)
	}
	return name
}
