package categorize

import (
	"context"
	"sort"
	"strings"
)

// Categories the system recognizes. The LLM prompt is constrained to this set
// and the keyword matcher only ever produces names from it.
var Categories = []string{
	"personal", "technology", "learning", "work", "life", "health",
	"entertainment", "travel", "finance", "family", "social", "food",
	"preferences", "other",
}

var categoryKeywords = map[string][]string{
	"personal":      {"name", "phone", "email", "address", "birthday", "account", "password"},
	"technology":    {"programming", "code", "software", "python", "javascript", "golang", "api", "database", "server", "model", "ai"},
	"learning":      {"learn", "course", "exam", "study", "research", "paper", "book", "reading"},
	"work":          {"work", "company", "meeting", "project", "task", "deadline", "colleague", "boss", "client"},
	"life":          {"sleep", "shopping", "movie", "music", "exercise", "weather", "routine"},
	"food":          {"eat", "drink", "coffee", "tea", "breakfast", "lunch", "dinner", "snack", "pizza", "restaurant", "spicy", "sweet"},
	"preferences":   {"like", "likes", "love", "loves", "hate", "hates", "dislike", "prefer", "prefers", "favorite", "enjoy", "enjoys"},
	"health":        {"doctor", "hospital", "medicine", "workout", "weight", "diet", "sick", "illness"},
	"travel":        {"travel", "trip", "flight", "hotel", "itinerary", "vacation", "visa"},
	"finance":       {"money", "salary", "invest", "stock", "bank", "bill", "budget", "expense"},
	"family":        {"parents", "mother", "father", "wife", "husband", "son", "daughter", "family", "kids"},
	"social":        {"friend", "friends", "party", "chat", "community", "gathering"},
	"entertainment": {"game", "games", "play", "anime", "comic", "show", "series"},
}

// Keyword is the deterministic fallback categorizer. It never errors; content
// matching no category gets "other".
type Keyword struct{}

func (Keyword) Categorize(_ context.Context, content string) ([]string, error) {
	text := strings.ToLower(content)
	var out []string
	for category, words := range categoryKeywords {
		for _, w := range words {
			if strings.Contains(text, w) {
				out = append(out, category)
				break
			}
		}
	}
	if len(out) == 0 {
		return []string{"other"}, nil
	}
	sort.Strings(out)
	return out, nil
}
