// Package chat produces bot replies for the site chat widget. Replies
// come from a remote completion service when one is configured and
// reachable, and from a local keyword-matched response table otherwise.
// The dispatcher never surfaces an error to its caller: whatever goes
// wrong on the attempt path, the user gets a reply.
package chat

import (
	"context"
	"log"
	"regexp"
	"strings"

	"problinx/internal/domain"
)

const systemPrompt = `You are a helpful customer service AI assistant for a business platform.
You help customers with:
- General inquiries about services
- Pricing and cost questions
- Technical support
- Demo scheduling
- Partnership opportunities
- Contact information

Keep responses friendly, professional, and concise (under 150 words).
If asked about specific features, mention problem-solving tools, analytics, and partner programs.
For pricing, mention flexible plans starting from $29/month.
For contact, provide support@example.com and +1 (555) 123-4567.

Provide 2-3 relevant follow-up suggestions when appropriate.`

const maxSuggestions = 3

// Completer generates free-form text for a prompt. Implementations may
// fail; the dispatcher absorbs every failure.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Dispatcher turns a user utterance plus recent context into a BotReply.
// It is stateless per call; conversation history is owned by the caller.
type Dispatcher struct {
	Completer Completer
	Logger    *log.Logger
}

func (d *Dispatcher) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

// Respond builds the completion prompt from the utterance and the last
// few prior user turns, asks the completer, and falls back to the local
// rule table on any failure. It always returns a reply with non-empty
// text and never an error.
func (d *Dispatcher) Respond(ctx context.Context, utterance string, recentUserTexts []string) domain.BotReply {
	if d.Completer == nil {
		return FallbackReply(utterance)
	}
	prompt := BuildPrompt(utterance, recentUserTexts)
	raw, err := d.Completer.Complete(ctx, prompt)
	if err != nil {
		d.logger().Printf("chat: completion failed, using fallback: %v", err)
		return FallbackReply(utterance)
	}
	text, suggestions := ExtractSuggestions(strings.TrimSpace(raw))
	if text == "" {
		d.logger().Printf("chat: empty completion text, using fallback")
		return FallbackReply(utterance)
	}
	return domain.BotReply{Text: text, Suggestions: suggestions}
}

// BuildPrompt composes the fixed system instruction, the joined recent
// user context, and the new utterance.
func BuildPrompt(utterance string, recentUserTexts []string) string {
	if len(recentUserTexts) > HistoryWindow {
		recentUserTexts = recentUserTexts[len(recentUserTexts)-HistoryWindow:]
	}
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	if len(recentUserTexts) > 0 {
		b.WriteString("Previous conversation: ")
		b.WriteString(strings.Join(recentUserTexts, " | "))
		b.WriteString("\n\n")
	}
	b.WriteString("Customer: ")
	b.WriteString(utterance)
	b.WriteString("\n\nAssistant:")
	return b.String()
}

var (
	// suggestionsRe is line-bounded so only the marker's own line feeds
	// the suggestion list; suggestionsTailRe strips the marker and
	// everything after it from the display text.
	suggestionsRe     = regexp.MustCompile(`(?i)suggestions?:\s*(.+)`)
	suggestionsTailRe = regexp.MustCompile(`(?is)suggestions?:\s*.+$`)
	suggestionSep     = regexp.MustCompile(`[,;]`)
)

// ExtractSuggestions pulls a trailing "Suggestions: a, b, c" line out of
// a completion, returning the cleaned display text and at most three
// trimmed suggestions.
func ExtractSuggestions(text string) (string, []string) {
	m := suggestionsRe.FindStringSubmatch(text)
	if m == nil {
		return text, nil
	}
	var suggestions []string
	for _, part := range suggestionSep.Split(m[1], -1) {
		s := strings.TrimSpace(part)
		if s == "" {
			continue
		}
		suggestions = append(suggestions, s)
		if len(suggestions) == maxSuggestions {
			break
		}
	}
	clean := strings.TrimSpace(suggestionsTailRe.ReplaceAllString(text, ""))
	return clean, suggestions
}
