package domain

// Choice is a one-tap quick-reply button offered alongside a message.
// Label is shown on the button; Text is sent back as the user's reply.
type Choice struct {
	Label string
	Text  string
}

// Message is one outbound unit: plain text plus optional quick-reply
// choices.
type Message struct {
	Text    string
	Choices []Choice
}

// Text returns a plain text message.
func Text(text string) Message {
	return Message{Text: text}
}

// TextWithChoices returns a text message carrying quick-reply buttons.
func TextWithChoices(text string, choices ...Choice) Message {
	return Message{Text: text, Choices: choices}
}

// Record is an immutable narrative content unit addressed by a
// canonical code.
type Record struct {
	Code  string
	Title string
	Body  string
	Hint  string
}
