package selection

import (
	"errors"
	"fmt"
)

// ActionID is one of the choices in the floating action menu.
type ActionID string

const (
	ActionChat       ActionID = "chat"
	ActionExplain    ActionID = "explain"
	ActionQuiz       ActionID = "quiz"
	ActionFlashcards ActionID = "flashcards"
	ActionCopy       ActionID = "copy"
)

// MenuActions lists the actions offered on a selection, in menu order.
var MenuActions = []ActionID{ActionChat, ActionExplain, ActionQuiz, ActionFlashcards}

// ErrUnknownAction is returned for an action id outside the menu.
var ErrUnknownAction = errors.New("unknown action")

// Request is the outbound payload handed to the AI collaborator.
// Context optionally carries page or document text for the model to ground on.
type Request struct {
	Action  ActionID `json:"action"`
	Text    string   `json:"text"`
	Context string   `json:"context,omitempty"`
}

// template pairs the prompt used with a selection and the whole-document
// prompt used when nothing is selected.
type template struct {
	selected string
	document string
}

var templates = map[ActionID]template{
	ActionExplain: {
		selected: `Please explain this text from the document: "%s"`,
		document: "Please explain the main concepts in this document",
	},
	ActionQuiz: {
		selected: `Create a quiz based on this text: "%s"`,
		document: "Create a quiz with 5 questions based on this document",
	},
	ActionFlashcards: {
		selected: `Create flashcards based on this text: "%s"`,
		document: "Create flashcards with key terms and concepts from this document",
	},
}

// Valid reports whether id is a known action.
func (id ActionID) Valid() bool {
	switch id {
	case ActionChat, ActionExplain, ActionQuiz, ActionFlashcards, ActionCopy:
		return true
	}
	return false
}

// BuildRequest maps an action and text to the outbound request.
// Chat and copy carry the text as is; the other actions wrap it in a
// template that quotes the text verbatim. Empty text selects the
// whole-document form of the template.
func BuildRequest(id ActionID, text string) (Request, error) {
	switch id {
	case ActionChat, ActionCopy:
		return Request{Action: id, Text: text}, nil
	}

	tmpl, ok := templates[id]
	if !ok {
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownAction, id)
	}
	if text == "" {
		return Request{Action: id, Text: tmpl.document}, nil
	}
	return Request{Action: id, Text: fmt.Sprintf(tmpl.selected, text)}, nil
}
