package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/lingoplay/internal/session"
	"github.com/dgnsrekt/lingoplay/internal/store"
)

type (
	snapshotMsg   session.Snapshot
	historyMsg    []store.HistoryEntry
	vocabularyMsg []store.VocabularyEntry
)

// bridge turns subscription callbacks into Bubble Tea messages. Each channel
// holds at most one value; a newer value replaces an unread one, so slow
// rendering never blocks the publisher.
type bridge struct {
	snapshots  chan session.Snapshot
	history    chan []store.HistoryEntry
	vocabulary chan []store.VocabularyEntry
	unsubs     []func()
}

func newBridge(s Services) *bridge {
	b := &bridge{
		snapshots:  make(chan session.Snapshot, 1),
		history:    make(chan []store.HistoryEntry, 1),
		vocabulary: make(chan []store.VocabularyEntry, 1),
	}
	if s.Session != nil {
		b.unsubs = append(b.unsubs, s.Session.Subscribe(func(snap session.Snapshot) {
			offer(b.snapshots, snap)
		}))
	}
	if s.Library != nil {
		b.unsubs = append(b.unsubs,
			s.Library.SubscribeHistory(func(entries []store.HistoryEntry) {
				offer(b.history, entries)
			}),
			s.Library.SubscribeVocabulary(func(entries []store.VocabularyEntry) {
				offer(b.vocabulary, entries)
			}),
		)
	}
	return b
}

func (b *bridge) close() {
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
}

// offer sends v, dropping whatever value is still waiting in ch.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// COMMANDS

func waitForSnapshot(b *bridge) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-b.snapshots)
	}
}

func waitForHistory(b *bridge) tea.Cmd {
	return func() tea.Msg {
		return historyMsg(<-b.history)
	}
}

func waitForVocabulary(b *bridge) tea.Cmd {
	return func() tea.Msg {
		return vocabularyMsg(<-b.vocabulary)
	}
}
