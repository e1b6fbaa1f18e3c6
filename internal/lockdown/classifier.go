package lockdown

import (
	"errors"
	"fmt"
	"time"
)

// Source distinguishes the two independent event layers feeding the
// classifier. Both may fire for logically the same user action (a host-level
// blur and a page-level blur for one Alt-Tab); the classifier does not
// deduplicate: each raw event yields one Violation and one counter
// increment, favoring false positives over missed detections.
type Source string

const (
	SourcePage Source = "page"
	SourceHost Source = "host"
)

// EventType is the raw signal category reported by either layer.
type EventType string

const (
	EventBlur            EventType = "blur"
	EventVisibilityHide  EventType = "visibility-hidden"
	EventLeaveFullscreen EventType = "leave-fullscreen"
	EventMinimize        EventType = "minimize"
	EventCloseAttempt    EventType = "close-attempt"
	EventKeyChord        EventType = "key-chord"
)

// RawEvent is one unclassified signal from the page or the host controller.
// Chord is set only for EventKeyChord.
type RawEvent struct {
	Source Source    `json:"source"`
	Type   EventType `json:"type"`
	Chord  string    `json:"chord,omitempty"`
}

// ErrUnclassifiable marks a malformed or unknown raw event. Callers drop
// these silently; they never reach the escalation path.
var ErrUnclassifiable = errors.New("raw event cannot be classified")

// chordTable maps the fixed set of forbidden key combinations to their
// violation kind. Chords outside this table are not violations.
var chordTable = map[string]Kind{
	"Alt+Tab":      KindAltTab,
	"Meta":         KindWindowsKey,
	"Super":        KindWindowsKey,
	"F11":          KindF11Key,
	"Escape":       KindEscapeKey,
	"Alt+F4":       KindAltF4,
	"Ctrl+Shift+I": KindDevtoolsShortcut,
	"Ctrl+R":       KindRefreshShortcut,
}

// Classify converts a raw signal into a typed Violation stamped at the given
// instant. Pure function: no side effects, no deduplication across sources.
func Classify(ev RawEvent, at time.Time) (Violation, error) {
	switch ev.Type {
	case EventBlur:
		return newViolation(KindWindowBlur, at), nil
	case EventVisibilityHide:
		if ev.Source != SourcePage {
			return Violation{}, fmt.Errorf("%w: %s event from %s layer", ErrUnclassifiable, ev.Type, ev.Source)
		}
		return newViolation(KindTabHidden, at), nil
	case EventLeaveFullscreen:
		return newViolation(KindFullscreenExit, at), nil
	case EventMinimize:
		return newViolation(KindMinimizeAttempt, at), nil
	case EventCloseAttempt:
		return newViolation(KindCloseAttempt, at), nil
	case EventKeyChord:
		kind, ok := chordTable[ev.Chord]
		if !ok {
			return Violation{}, fmt.Errorf("%w: chord %q", ErrUnclassifiable, ev.Chord)
		}
		return newViolation(kind, at), nil
	default:
		return Violation{}, fmt.Errorf("%w: type %q", ErrUnclassifiable, ev.Type)
	}
}
