package lockdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeHost records every command in order and pops scripted errors.
type fakeHost struct {
	mu          sync.Mutex
	sequence    []string
	releaseErrs []error
	closeErrs   []error
	unsubs      int
}

func (h *fakeHost) OpenRestrictedWindow(_ context.Context, _ string) error {
	h.record("open")
	return nil
}

func (h *fakeHost) ReleaseRestrictions(_ context.Context) error {
	h.record("release")
	return h.pop(&h.releaseErrs)
}

func (h *fakeHost) CloseRestrictedWindow(_ context.Context) error {
	h.record("close")
	return h.pop(&h.closeErrs)
}

func (h *fakeHost) OnBlur(func()) Subscription             { return h.sub() }
func (h *fakeHost) OnLeaveFullscreen(func()) Subscription  { return h.sub() }
func (h *fakeHost) OnMinimizeAttempt(func()) Subscription  { return h.sub() }
func (h *fakeHost) OnCloseAttempt(func()) Subscription     { return h.sub() }
func (h *fakeHost) OnForbiddenKeyChord(func(string)) Subscription {
	return h.sub()
}

func (h *fakeHost) sub() Subscription {
	return fakeSubscription{host: h}
}

func (h *fakeHost) record(cmd string) {
	h.mu.Lock()
	h.sequence = append(h.sequence, cmd)
	h.mu.Unlock()
}

func (h *fakeHost) pop(errs *[]error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (h *fakeHost) commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sequence...)
}

type fakeSubscription struct{ host *fakeHost }

func (s fakeSubscription) Unsubscribe() {
	s.host.mu.Lock()
	s.host.unsubs++
	s.host.mu.Unlock()
}

func newTestProtocol(host HostController) (*ReleaseProtocol, *[]time.Duration) {
	slept := []time.Duration{}
	p := NewReleaseProtocol(host, ConfirmDisplay, zerolog.Nop())
	p.sleep = func(d time.Duration) { slept = append(slept, d) }
	return p, &slept
}

func TestReleaseRunsBeforeClose(t *testing.T) {
	host := &fakeHost{}
	p, slept := newTestProtocol(host)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"release", "close"}
	got := host.commands()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("command order = %v, want %v", got, want)
	}
	if len(*slept) != 1 || (*slept)[0] != ConfirmDisplay {
		t.Errorf("slept %v, want one %v confirmation delay", *slept, ConfirmDisplay)
	}
}

func TestReleaseRetriesBeforeCloseRetry(t *testing.T) {
	host := &fakeHost{closeErrs: []error{errors.New("window still restricted")}}
	p, _ := newTestProtocol(host)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// A rejected close retriggers the release step before close is retried.
	want := []string{"release", "close", "release", "close"}
	got := host.commands()
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("commands = %v, want %v", got, want)
		}
	}
}

func TestReleaseRetriesTransientFailure(t *testing.T) {
	host := &fakeHost{releaseErrs: []error{errors.New("busy"), errors.New("busy")}}
	p, _ := newTestProtocol(host)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := host.commands()
	if got[len(got)-1] != "close" {
		t.Errorf("last command = %q, want close", got[len(got)-1])
	}
}

func TestReleaseGivesUpEventually(t *testing.T) {
	persistent := errors.New("kiosk wedged")
	host := &fakeHost{
		releaseErrs: []error{persistent, persistent, persistent},
	}
	p, _ := newTestProtocol(host)

	if err := p.Run(context.Background()); !errors.Is(err, persistent) {
		t.Fatalf("Run error = %v, want wrapped %v", err, persistent)
	}

	for _, cmd := range host.commands() {
		if cmd == "close" {
			t.Fatal("close was attempted while release never succeeded")
		}
	}
}
