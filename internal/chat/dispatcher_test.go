package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
)

type stubCompleter struct {
	text   string
	err    error
	prompt string
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.text, s.err
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRespondUsesCompletion(t *testing.T) {
	stub := &stubCompleter{text: "We can definitely help with that."}
	d := &Dispatcher{Completer: stub, Logger: quietLogger()}

	reply := d.Respond(context.Background(), "Can you build dashboards?", nil)
	if reply.Text != "We can definitely help with that." {
		t.Fatalf("unexpected reply text: %q", reply.Text)
	}
	if len(reply.Suggestions) != 0 {
		t.Fatalf("expected no suggestions, got %v", reply.Suggestions)
	}
	if !strings.Contains(stub.prompt, "Customer: Can you build dashboards?") {
		t.Errorf("prompt missing customer line: %q", stub.prompt)
	}
}

func TestRespondExtractsSuggestions(t *testing.T) {
	stub := &stubCompleter{text: "Sure, our plans start at $29/month.\nSuggestions: View pricing plans, Schedule a demo; Contact sales, One too many"}
	d := &Dispatcher{Completer: stub, Logger: quietLogger()}

	reply := d.Respond(context.Background(), "pricing?", nil)
	if strings.Contains(reply.Text, "Suggestions") {
		t.Errorf("suggestions line not stripped: %q", reply.Text)
	}
	want := []string{"View pricing plans", "Schedule a demo", "Contact sales"}
	if len(reply.Suggestions) != len(want) {
		t.Fatalf("expected %d suggestions, got %v", len(want), reply.Suggestions)
	}
	for i, s := range want {
		if reply.Suggestions[i] != s {
			t.Errorf("suggestion %d: expected %q, got %q", i, s, reply.Suggestions[i])
		}
	}
}

func TestRespondFallsBackOnError(t *testing.T) {
	stub := &stubCompleter{err: errors.New("connection refused")}
	d := &Dispatcher{Completer: stub, Logger: quietLogger()}

	reply := d.Respond(context.Background(), "hello", nil)
	if reply.Text != "Hello! How can I help you today?" {
		t.Fatalf("expected greeting fallback, got %q", reply.Text)
	}
	if len(reply.Suggestions) != 3 {
		t.Fatalf("expected greeting suggestions, got %v", reply.Suggestions)
	}
}

func TestRespondFallsBackOnEmptyText(t *testing.T) {
	stub := &stubCompleter{text: "   "}
	d := &Dispatcher{Completer: stub, Logger: quietLogger()}

	reply := d.Respond(context.Background(), "pricing please", nil)
	if !strings.Contains(reply.Text, "$29/month") {
		t.Fatalf("expected pricing fallback, got %q", reply.Text)
	}
}

func TestRespondNeverEmpty(t *testing.T) {
	cases := []struct {
		name string
		d    *Dispatcher
	}{
		{"no completer", &Dispatcher{Logger: quietLogger()}},
		{"failing completer", &Dispatcher{Completer: &stubCompleter{err: errors.New("boom")}, Logger: quietLogger()}},
		{"empty completion", &Dispatcher{Completer: &stubCompleter{}, Logger: quietLogger()}},
	}
	utterances := []string{"", "hello", "???", "tell me about the api", strings.Repeat("x", 2000)}
	for _, tc := range cases {
		for _, u := range utterances {
			reply := tc.d.Respond(context.Background(), u, []string{"earlier question"})
			if reply.Text == "" {
				t.Errorf("%s: empty reply text for utterance %q", tc.name, u)
			}
		}
	}
}

func TestBuildPromptContext(t *testing.T) {
	prompt := BuildPrompt("new question", []string{"one", "two", "three", "four"})
	if !strings.Contains(prompt, "Previous conversation: two | three | four") {
		t.Errorf("context not trimmed to last %d turns: %q", HistoryWindow, prompt)
	}
	if !strings.HasSuffix(prompt, "Assistant:") {
		t.Errorf("prompt should end with the assistant cue: %q", prompt)
	}

	bare := BuildPrompt("first question", nil)
	if strings.Contains(bare, "Previous conversation") {
		t.Errorf("empty history should omit the context block: %q", bare)
	}
}

func TestExtractSuggestionsNoTrailer(t *testing.T) {
	text, suggestions := ExtractSuggestions("Just a plain answer.")
	if text != "Just a plain answer." || suggestions != nil {
		t.Fatalf("unexpected result: %q %v", text, suggestions)
	}
}

func TestExtractSuggestionsLineBounded(t *testing.T) {
	text, suggestions := ExtractSuggestions("Here is the answer.\nSuggestions: One, Two\nUnrelated closing line.")
	want := []string{"One", "Two"}
	if len(suggestions) != len(want) {
		t.Fatalf("suggestions should stop at the line break, got %v", suggestions)
	}
	for i, s := range want {
		if suggestions[i] != s {
			t.Errorf("suggestion %d: expected %q, got %q", i, s, suggestions[i])
		}
	}
	if text != "Here is the answer." {
		t.Errorf("text should drop the marker and its tail, got %q", text)
	}
}
