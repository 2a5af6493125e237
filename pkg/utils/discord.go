package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxMessageLen keeps messages under Discord's 2000 character limit with room for formatting
const MaxMessageLen = 1990

// FormatUserMention formats a user ID as a Discord mention
func FormatUserMention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

// ExtractUserIDFromMention extracts user ID from Discord mention
func ExtractUserIDFromMention(mention string) string {
	userID := strings.TrimPrefix(mention, "<@")
	userID = strings.TrimSuffix(userID, ">")
	// nickname mentions carry a leading !
	userID = strings.TrimPrefix(userID, "!")
	return userID
}

// IsUserMention checks if a string is a valid user mention
func IsUserMention(text string) bool {
	return strings.HasPrefix(text, "<@") && strings.HasSuffix(text, ">")
}

// FormatLeaderboardEntry formats a leaderboard entry with rank, user, and duration
func FormatLeaderboardEntry(rank int, user, duration string) string {
	var medal string
	switch rank {
	case 1:
		medal = "🥇"
	case 2:
		medal = "🥈"
	case 3:
		medal = "🥉"
	default:
		medal = fmt.Sprintf("%d.", rank)
	}
	return fmt.Sprintf("%s %s - %s", medal, user, duration)
}

// JoinNames joins display names the way notifications read them: "A and B and C"
func JoinNames(names []string) string {
	return strings.Join(names, " and ")
}

// ChunkString splits s into pieces of at most maxLen bytes, cutting only on rune boundaries
func ChunkString(s string, maxLen int) []string {
	if maxLen <= 0 || len(s) <= maxLen {
		return []string{s}
	}
	chunks := make([]string, 0, len(s)/maxLen+1)
	for len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
