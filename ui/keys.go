package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Toggle       key.Binding
	New          key.Binding
	Level        key.Binding
	Back         key.Binding
	Forward      key.Binding
	PrevLine     key.Binding
	NextLine     key.Binding
	Complete     key.Binding
	Stop         key.Binding
	Word         key.Binding
	Translations key.Binding
	History      key.Binding
	Vocabulary   key.Binding
	Dismiss      key.Binding
	Help         key.Binding
	Quit         key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "play/pause"),
		),
		New: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new dialogue"),
		),
		Level: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "change level"),
		),
		Back: key.NewBinding(
			key.WithKeys("left"),
			key.WithHelp("←", "back 5s"),
		),
		Forward: key.NewBinding(
			key.WithKeys("right"),
			key.WithHelp("→", "forward 5s"),
		),
		PrevLine: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "previous line"),
		),
		NextLine: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "next line"),
		),
		Complete: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "complete"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop"),
		),
		Word: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "look up a word"),
		),
		Translations: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "translations"),
		),
		History: key.NewBinding(
			key.WithKeys("h"),
			key.WithHelp("h", "history"),
		),
		Vocabulary: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "vocabulary"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("x", keyEsc),
			key.WithHelp("x", "dismiss error"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.New, k.Word, k.History, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Back, k.Forward, k.PrevLine, k.NextLine},
		{k.New, k.Level, k.Complete, k.Stop, k.Dismiss},
		{k.Word, k.Translations, k.History, k.Vocabulary, k.Quit},
	}
}
