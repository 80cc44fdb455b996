package form

import "context"

// Answer is a user's reply to a prompt. The zero value means the prompt
// was dismissed and is treated like Cancel (or No, for confirmations).
type Answer int

const (
	AnswerNone Answer = iota
	AnswerYes
	AnswerNo
	AnswerCancel
)

func (a Answer) String() string {
	switch a {
	case AnswerYes:
		return "yes"
	case AnswerNo:
		return "no"
	case AnswerCancel:
		return "cancel"
	}
	return "none"
}

// Prompter is the user confirmation surface.
type Prompter interface {
	// AskSaveChanges asks whether unsaved changes should be saved (Yes),
	// discarded (No) or the pending operation abandoned (Cancel).
	AskSaveChanges(ctx context.Context, form string) Answer
	// AskConfirmDelete asks for destructive confirmation. Anything but Yes
	// declines.
	AskConfirmDelete(ctx context.Context, form string, key any) Answer
	// ShowError reports a failed operation to the user.
	ShowError(ctx context.Context, err error)
}
