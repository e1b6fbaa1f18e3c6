package lockdown

import "time"

// Kind identifies one category of detected cheating signal.
// The set is closed: classification of an unknown raw event fails
// instead of inventing a new kind.
type Kind string

const (
	KindWindowBlur       Kind = "window-blur"
	KindTabHidden        Kind = "tab-hidden"
	KindFullscreenExit   Kind = "fullscreen-exit"
	KindMinimizeAttempt  Kind = "minimize-attempt"
	KindCloseAttempt     Kind = "close-attempt"
	KindAltTab           Kind = "alt-tab"
	KindWindowsKey       Kind = "windows-key"
	KindF11Key           Kind = "f11-key"
	KindEscapeKey        Kind = "escape-key"
	KindAltF4            Kind = "alt-f4"
	KindDevtoolsShortcut Kind = "devtools-shortcut"
	KindRefreshShortcut  Kind = "refresh-shortcut"
)

// Severity grades how strongly a violation suggests intent to cheat.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Violation is an immutable record of one detected cheating signal.
// Created by Classify, appended to the attempt's violation log, never
// mutated or deleted afterwards.
type Violation struct {
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

type kindInfo struct {
	Message  string
	Severity Severity
}

// kindTable is the single source of truth for the message and severity of
// every violation kind. Taxonomy additions happen here and nowhere else.
var kindTable = map[Kind]kindInfo{
	KindWindowBlur:       {"Quiz window lost focus", SeverityLow},
	KindTabHidden:        {"Quiz tab was hidden", SeverityLow},
	KindFullscreenExit:   {"Fullscreen mode was exited", SeverityMedium},
	KindMinimizeAttempt:  {"Attempted to minimize the quiz window", SeverityMedium},
	KindCloseAttempt:     {"Attempted to close the quiz window", SeverityHigh},
	KindAltTab:           {"Attempted to switch windows (Alt+Tab)", SeverityHigh},
	KindWindowsKey:       {"Pressed the system key (Meta/Super)", SeverityHigh},
	KindF11Key:           {"Pressed F11", SeverityMedium},
	KindEscapeKey:        {"Pressed Escape", SeverityMedium},
	KindAltF4:            {"Attempted to close the window (Alt+F4)", SeverityHigh},
	KindDevtoolsShortcut: {"Attempted to open developer tools", SeverityMedium},
	KindRefreshShortcut:  {"Attempted to reload the page", SeverityMedium},
}

// newViolation builds the immutable record for a kind at the given instant.
func newViolation(kind Kind, at time.Time) Violation {
	info := kindTable[kind]
	return Violation{
		Kind:      kind,
		Message:   info.Message,
		Severity:  info.Severity,
		Timestamp: at,
	}
}
