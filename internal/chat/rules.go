package chat

import (
	"strings"

	"problinx/internal/domain"
)

// Rule is one canned-response arm of the fallback responder. The first
// rule whose keywords match wins; keyword matching is case-insensitive
// substring, not tokenized.
type Rule struct {
	Name     string
	Keywords []string
	Reply    domain.BotReply
}

func (r Rule) matches(input string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(input, kw) {
			return true
		}
	}
	return false
}

// fallbackRules is evaluated in order; keep greeting first and the more
// specific arms above the generic ones.
var fallbackRules = []Rule{
	{
		Name:     "greeting",
		Keywords: []string{"hello", "hi", "hey"},
		Reply: domain.BotReply{
			Text:        "Hello! How can I help you today?",
			Suggestions: []string{"Tell me about your services", "What are your pricing options?", "How can I get support?"},
		},
	},
	{
		Name:     "help",
		Keywords: []string{"help", "support"},
		Reply: domain.BotReply{
			Text:        "I'm here to help! You can ask me about our services, pricing, or any general questions. What would you like to know?",
			Suggestions: []string{"Services overview", "Pricing information", "Contact details"},
		},
	},
	{
		Name:     "pricing",
		Keywords: []string{"pricing", "cost", "price", "how much"},
		Reply: domain.BotReply{
			Text:        "Our pricing varies based on your needs. We offer flexible plans starting from $29/month. You can check our pricing page for detailed information, or I can help you find the right plan for you.",
			Suggestions: []string{"View pricing plans", "Schedule a demo", "Contact sales"},
		},
	},
	{
		Name:     "contact",
		Keywords: []string{"contact", "email", "phone", "reach"},
		Reply: domain.BotReply{
			Text:        "You can reach us at support@example.com or call us at +1 (555) 123-4567. Our support team is available Monday-Friday, 9 AM - 6 PM EST. I can also help you schedule a call if needed.",
			Suggestions: []string{"Schedule a call", "Send email", "Live chat"},
		},
	},
	{
		Name:     "features",
		Keywords: []string{"feature", "service", "what do you do", "capabilities"},
		Reply: domain.BotReply{
			Text:        "We offer a comprehensive suite of services including problem-solving tools, analytics dashboards, partner programs, and custom integrations. Our platform helps businesses streamline their operations and improve efficiency.",
			Suggestions: []string{"Learn more about features", "Request a demo", "View case studies"},
		},
	},
	{
		Name:     "demo",
		Keywords: []string{"demo", "trial", "test"},
		Reply: domain.BotReply{
			Text:        "Great! I'd be happy to help you schedule a demo. Our team can show you how our platform works and answer any specific questions you have. When would be a good time for you?",
			Suggestions: []string{"Schedule demo", "Free trial", "Contact sales"},
		},
	},
	{
		Name:     "partnership",
		Keywords: []string{"partner", "affiliate", "reseller"},
		Reply: domain.BotReply{
			Text:        "We have excellent partnership opportunities! Our partner program offers competitive commissions, marketing support, and dedicated resources. Would you like to learn more about becoming a partner?",
			Suggestions: []string{"Partner program details", "Apply to be a partner", "Contact partner team"},
		},
	},
	{
		Name:     "technical",
		Keywords: []string{"technical", "integration", "api", "setup"},
		Reply: domain.BotReply{
			Text:        "For technical questions, our engineering team is here to help! We provide comprehensive documentation, API guides, and technical support. What specific technical aspect would you like to discuss?",
			Suggestions: []string{"View documentation", "API reference", "Technical support"},
		},
	},
}

// defaultReply is the explicit default arm when no rule matches.
var defaultReply = domain.BotReply{
	Text:        "Thank you for your message! I'm here to help with any questions about our services, pricing, support, or technical details. How can I assist you further?",
	Suggestions: []string{"Services overview", "Pricing information", "Get support", "Schedule demo"},
}

// FallbackReply runs the utterance through the ordered rule table and
// returns the first matching canned response, or the default arm.
func FallbackReply(utterance string) domain.BotReply {
	input := strings.ToLower(strings.TrimSpace(utterance))
	for _, rule := range fallbackRules {
		if rule.matches(input) {
			return rule.Reply
		}
	}
	return defaultReply
}

// QuickReplies is the fixed set of suggested opening utterances,
// independent of conversation state.
func QuickReplies() []string {
	return []string{
		"Tell me about your services",
		"What are your pricing options?",
		"How can I get support?",
		"Schedule a demo",
		"Become a partner",
	}
}
