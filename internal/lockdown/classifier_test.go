package lockdown

import (
	"errors"
	"testing"
	"time"
)

func TestClassifyKnownEvents(t *testing.T) {
	at := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		ev           RawEvent
		wantKind     Kind
		wantSeverity Severity
	}{
		{"page blur", RawEvent{Source: SourcePage, Type: EventBlur}, KindWindowBlur, SeverityLow},
		{"host blur", RawEvent{Source: SourceHost, Type: EventBlur}, KindWindowBlur, SeverityLow},
		{"tab hidden", RawEvent{Source: SourcePage, Type: EventVisibilityHide}, KindTabHidden, SeverityLow},
		{"fullscreen exit", RawEvent{Source: SourceHost, Type: EventLeaveFullscreen}, KindFullscreenExit, SeverityMedium},
		{"minimize", RawEvent{Source: SourceHost, Type: EventMinimize}, KindMinimizeAttempt, SeverityMedium},
		{"close attempt", RawEvent{Source: SourceHost, Type: EventCloseAttempt}, KindCloseAttempt, SeverityHigh},
		{"alt tab", RawEvent{Source: SourceHost, Type: EventKeyChord, Chord: "Alt+Tab"}, KindAltTab, SeverityHigh},
		{"meta key", RawEvent{Source: SourceHost, Type: EventKeyChord, Chord: "Meta"}, KindWindowsKey, SeverityHigh},
		{"super key", RawEvent{Source: SourceHost, Type: EventKeyChord, Chord: "Super"}, KindWindowsKey, SeverityHigh},
		{"f11", RawEvent{Source: SourcePage, Type: EventKeyChord, Chord: "F11"}, KindF11Key, SeverityMedium},
		{"escape", RawEvent{Source: SourcePage, Type: EventKeyChord, Chord: "Escape"}, KindEscapeKey, SeverityMedium},
		{"alt f4", RawEvent{Source: SourceHost, Type: EventKeyChord, Chord: "Alt+F4"}, KindAltF4, SeverityHigh},
		{"devtools", RawEvent{Source: SourcePage, Type: EventKeyChord, Chord: "Ctrl+Shift+I"}, KindDevtoolsShortcut, SeverityMedium},
		{"refresh", RawEvent{Source: SourcePage, Type: EventKeyChord, Chord: "Ctrl+R"}, KindRefreshShortcut, SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Classify(tt.ev, at)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if v.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", v.Kind, tt.wantKind)
			}
			if v.Severity != tt.wantSeverity {
				t.Errorf("Severity = %q, want %q", v.Severity, tt.wantSeverity)
			}
			if v.Message == "" {
				t.Error("Message is empty")
			}
			if !v.Timestamp.Equal(at) {
				t.Errorf("Timestamp = %v, want %v", v.Timestamp, at)
			}
		})
	}
}

func TestClassifyRejectsUnknown(t *testing.T) {
	at := time.Now()

	tests := []struct {
		name string
		ev   RawEvent
	}{
		{"unknown type", RawEvent{Source: SourcePage, Type: "mouse-moved"}},
		{"unknown chord", RawEvent{Source: SourceHost, Type: EventKeyChord, Chord: "Ctrl+C"}},
		{"empty chord", RawEvent{Source: SourcePage, Type: EventKeyChord}},
		{"visibility from host", RawEvent{Source: SourceHost, Type: EventVisibilityHide}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(tt.ev, at)
			if !errors.Is(err, ErrUnclassifiable) {
				t.Fatalf("Classify() error = %v, want ErrUnclassifiable", err)
			}
		})
	}
}

func TestClassifyNoDeduplication(t *testing.T) {
	// One Alt-Tab surfaces as both a host chord and a page blur. Both
	// classify independently; the counter bias is toward false positives.
	at := time.Now()

	v1, err := Classify(RawEvent{Source: SourceHost, Type: EventKeyChord, Chord: "Alt+Tab"}, at)
	if err != nil {
		t.Fatalf("host chord: %v", err)
	}
	v2, err := Classify(RawEvent{Source: SourcePage, Type: EventBlur}, at)
	if err != nil {
		t.Fatalf("page blur: %v", err)
	}

	if v1.Kind != KindAltTab || v2.Kind != KindWindowBlur {
		t.Errorf("kinds = %q, %q; want alt-tab and window-blur", v1.Kind, v2.Kind)
	}
}
