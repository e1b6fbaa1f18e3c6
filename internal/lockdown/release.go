package lockdown

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// releaseAttempts bounds how often the protocol retries the
// release-then-close sequence before giving up.
const releaseAttempts = 3

// ReleaseProtocol unwinds the kiosk after a successful submission.
// Order is fixed: restrictions are lifted first, because a controller that
// is still enforcing closability rejects close requests; then a
// confirmation delay so the student sees the result; then the window is
// destroyed.
type ReleaseProtocol struct {
	host  HostController
	delay time.Duration
	log   zerolog.Logger
	sleep func(time.Duration)
}

// NewReleaseProtocol builds the protocol around a host controller.
// delay is the confirmation display time between release and close.
func NewReleaseProtocol(host HostController, delay time.Duration, log zerolog.Logger) *ReleaseProtocol {
	return &ReleaseProtocol{
		host:  host,
		delay: delay,
		log:   log.With().Str("component", "lockdown_release").Logger(),
		sleep: time.Sleep,
	}
}

// Run executes the release sequence. Host command failures never crash the
// session: a rejected close retriggers the release step before close is
// retried, up to releaseAttempts rounds.
func (p *ReleaseProtocol) Run(ctx context.Context) error {
	if err := p.release(ctx); err != nil {
		return err
	}

	p.sleep(p.delay)

	var lastErr error
	for attempt := 1; attempt <= releaseAttempts; attempt++ {
		if err := p.host.CloseRestrictedWindow(ctx); err == nil {
			return nil
		} else {
			lastErr = err
			p.log.Warn().Err(err).Int("attempt", attempt).Msg("Close rejected, re-releasing restrictions")
		}

		// Close was rejected, most likely the controller was still
		// enforcing closability. Release again before the next close.
		if err := p.release(ctx); err != nil {
			lastErr = err
		}
	}

	return fmt.Errorf("close restricted window after %d attempts: %w", releaseAttempts, lastErr)
}

func (p *ReleaseProtocol) release(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= releaseAttempts; attempt++ {
		if err := p.host.ReleaseRestrictions(ctx); err == nil {
			return nil
		} else {
			lastErr = err
			p.log.Warn().Err(err).Int("attempt", attempt).Msg("Release restrictions failed, retrying")
		}
	}
	return fmt.Errorf("release restrictions after %d attempts: %w", releaseAttempts, lastErr)
}
