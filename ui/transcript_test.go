package ui

import (
	"reflect"
	"strconv"
	"strings"
	"testing"
)

func TestRenderTranscript(t *testing.T) {
	tests := []struct {
		name         string
		opts         transcriptOptions
		wantRows     int
		wantStart    int
		wantEnd      int
		wantContains string
	}{
		{
			name:      "no active line",
			opts:      transcriptOptions{width: 80},
			wantRows:  5,
			wantStart: -1,
			wantEnd:   -1,
		},
		{
			name:      "second line active",
			opts:      transcriptOptions{width: 80, active: 2, hasActive: true},
			wantRows:  5,
			wantStart: 2,
			wantEnd:   3,
		},
		{
			name:         "translations",
			opts:         transcriptOptions{width: 80, active: 2, hasActive: true, translations: true},
			wantRows:     8,
			wantStart:    3,
			wantEnd:      5,
			wantContains: "Very well, thanks. And you?",
		},
		{
			name:      "unknown active id",
			opts:      transcriptOptions{width: 80, active: 42, hasActive: true},
			wantRows:  5,
			wantStart: -1,
			wantEnd:   -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, start, end := renderTranscript(dialogue(), tt.opts)
			if len(rows) != tt.wantRows {
				t.Errorf("rows = %d, want %d:\n%s", len(rows), tt.wantRows, strings.Join(rows, "\n"))
			}
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("active block = [%d, %d), want [%d, %d)", start, end, tt.wantStart, tt.wantEnd)
			}
			if tt.wantContains != "" && !strings.Contains(strings.Join(rows, "\n"), tt.wantContains) {
				t.Errorf("transcript missing %q", tt.wantContains)
			}
		})
	}
}

func TestRenderTranscriptWraps(t *testing.T) {
	s := dialogue()
	s.Lines[0].Text = strings.Repeat("palabra ", 12)

	rows, start, end := renderTranscript(s, transcriptOptions{width: 30, active: 1, hasActive: true})
	if start != 0 || end <= 1 {
		t.Fatalf("wrapped active block = [%d, %d)", start, end)
	}
	// continuation rows are indented past the speaker column
	if !strings.HasPrefix(rows[1], "      ") {
		t.Errorf("continuation row not indented: %q", rows[1])
	}
}

func TestWindow(t *testing.T) {
	rows := make([]string, 10)
	for i := range rows {
		rows[i] = strconv.Itoa(i)
	}
	span := func(from, to int) []string { return rows[from:to] }

	tests := []struct {
		name       string
		start, end int
		height     int
		want       []string
	}{
		{"fits", -1, -1, 20, rows},
		{"no active line", -1, -1, 4, span(0, 4)},
		{"top", 0, 1, 4, span(0, 4)},
		{"middle keeps context", 5, 6, 4, span(3, 7)},
		{"bottom", 9, 10, 4, span(6, 10)},
		{"block taller than window", 2, 8, 4, span(2, 6)},
		{"no room", 3, 4, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := window(rows, tt.start, tt.end, tt.height)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("window() = %v, want %v", got, tt.want)
			}
		})
	}
}
