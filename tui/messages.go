package tui

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgWarning signals a non-fatal problem, e.g. an insecure server URL.
type MsgWarning struct{ Text string }

// MsgSnapshotLoaded signals that a persisted token snapshot was read.
type MsgSnapshotLoaded struct{}

// MsgRefreshing signals that a token refresh is in progress.
type MsgRefreshing struct{ FromSeed bool }

// MsgRefreshOK signals that the token was refreshed successfully.
type MsgRefreshOK struct{}

// MsgRefreshRejected signals that the token service rejected a refresh token.
type MsgRefreshRejected struct{ FromSeed bool }

// MsgSnapshotSaved signals that the rotated tokens were persisted.
type MsgSnapshotSaved struct{}

// MsgSnapshotSaveFailed signals that persisting the tokens failed.
type MsgSnapshotSaveFailed struct{ Err error }

// MsgAccessTokenRejected signals that the API rejected the access token (401).
type MsgAccessTokenRejected struct{}

// MsgWorking signals that a command started talking to the API.
type MsgWorking struct{ Action string }

// MsgReAuthRequired signals that every refresh token was rejected.
type MsgReAuthRequired struct{}

// MsgDone signals successful completion of the command.
type MsgDone struct{ Summary string }

// MsgFatal signals a fatal error that should terminate the command.
type MsgFatal struct{ Err error }
