package tui

import (
	"fmt"
	"io"

	tea "charm.land/bubbletea/v2"

	"github.com/go-lightwave/linkplus/lightwave"
)

// ReAuthHint tells the user how to recover from a rejected seed refresh token.
const ReAuthHint = "Generate a new refresh token in your LightwaveRF account settings " +
	"and pass it with --refresh-token or LINKPLUS_REFRESH_TOKEN."

// Displayer abstracts all progress output of a CLI command. It receives the
// token lifecycle events of the SDK as a lightwave.Observer.
type Displayer interface {
	lightwave.Observer

	Banner()
	Warning(msg string)
	Working(action string)
	ReAuthRequired()
	Done(summary string)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprintln(p.w, "=== LightwaveRF LinkPlus ===")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) Warning(msg string) {
	fmt.Fprintf(p.w, "⚠️  WARNING: %s\n", msg)
}

func (p *PlainDisplayer) SnapshotLoaded() {
	fmt.Fprintln(p.w, "Found saved tokens")
}

func (p *PlainDisplayer) Refreshing(fromSeed bool) {
	if fromSeed {
		fmt.Fprintln(p.w, "Refreshing access token with the configured refresh token...")
		return
	}
	fmt.Fprintln(p.w, "Refreshing access token...")
}

func (p *PlainDisplayer) Refreshed() {
	fmt.Fprintln(p.w, "Token refreshed successfully!")
}

func (p *PlainDisplayer) RefreshRejected(fromSeed bool) {
	if fromSeed {
		fmt.Fprintln(p.w, "Configured refresh token was rejected")
		return
	}
	fmt.Fprintln(p.w, "Saved refresh token was rejected, falling back to the configured one")
}

func (p *PlainDisplayer) SnapshotSaved() {
	fmt.Fprintln(p.w, "Tokens saved")
}

func (p *PlainDisplayer) SnapshotSaveFailed(err error) {
	fmt.Fprintf(p.w, "Warning: Failed to save tokens: %v\n", err)
}

func (p *PlainDisplayer) AccessTokenRejected() {
	fmt.Fprintln(p.w, "Access token rejected (401), refreshing...")
}

func (p *PlainDisplayer) Working(action string) {
	fmt.Fprintf(p.w, "%s...\n", action)
}

func (p *PlainDisplayer) ReAuthRequired() {
	fmt.Fprintln(p.w, "All refresh tokens were rejected.")
	fmt.Fprintln(p.w, ReAuthHint)
}

func (p *PlainDisplayer) Done(summary string) {
	if summary != "" {
		fmt.Fprintln(p.w, summary)
	}
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct {
	lightwave.NopObserver
}

func (NoopDisplayer) Banner()          {}
func (NoopDisplayer) Warning(_ string) {}
func (NoopDisplayer) Working(_ string) {}
func (NoopDisplayer) ReAuthRequired()  {}
func (NoopDisplayer) Done(_ string)    {}
func (NoopDisplayer) Fatal(_ error)    {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) Warning(msg string) {
	t.p.Send(MsgWarning{Text: msg})
}

func (t *ProgramDisplayer) SnapshotLoaded() {
	t.p.Send(MsgSnapshotLoaded{})
}

func (t *ProgramDisplayer) Refreshing(fromSeed bool) {
	t.p.Send(MsgRefreshing{FromSeed: fromSeed})
}

func (t *ProgramDisplayer) Refreshed() {
	t.p.Send(MsgRefreshOK{})
}

func (t *ProgramDisplayer) RefreshRejected(fromSeed bool) {
	t.p.Send(MsgRefreshRejected{FromSeed: fromSeed})
}

func (t *ProgramDisplayer) SnapshotSaved() {
	t.p.Send(MsgSnapshotSaved{})
}

func (t *ProgramDisplayer) SnapshotSaveFailed(err error) {
	t.p.Send(MsgSnapshotSaveFailed{Err: err})
}

func (t *ProgramDisplayer) AccessTokenRejected() {
	t.p.Send(MsgAccessTokenRejected{})
}

func (t *ProgramDisplayer) Working(action string) {
	t.p.Send(MsgWorking{Action: action})
}

func (t *ProgramDisplayer) ReAuthRequired() {
	t.p.Send(MsgReAuthRequired{})
}

func (t *ProgramDisplayer) Done(summary string) {
	t.p.Send(MsgDone{Summary: summary})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
