package domain

import "time"

// StateKind enumerates assignment lifecycle states.
type StateKind string

const (
	StatePending  StateKind = "PENDING"
	StateSigned   StateKind = "SIGNED"
	StateDisputed StateKind = "DISPUTED"
	StateExpired  StateKind = "EXPIRED"
)

// Terminal reports whether no further transition is permitted.
func (k StateKind) Terminal() bool {
	return k == StateSigned || k == StateDisputed || k == StateExpired
}

// State is the tagged lifecycle variant of an assignment. Only the types in
// this file implement it.
type State interface {
	Kind() StateKind
	isState()
}

// Pending awaits a signature or dispute.
type Pending struct{}

// Signed carries the receipt acknowledgement.
type Signed struct {
	Data        string
	SignerEmail string
	At          time.Time
}

// Disputed carries the recipient's objection.
type Disputed struct {
	Reason string
	At     time.Time
}

// Expired marks a pending assignment whose deadline passed.
type Expired struct {
	At time.Time
}

func (Pending) Kind() StateKind  { return StatePending }
func (Signed) Kind() StateKind   { return StateSigned }
func (Disputed) Kind() StateKind { return StateDisputed }
func (Expired) Kind() StateKind  { return StateExpired }

func (Pending) isState()  {}
func (Signed) isState()   {}
func (Disputed) isState() {}
func (Expired) isState()  {}

// TransitionKind names a state machine edge.
type TransitionKind string

const (
	TransitionSign    TransitionKind = "sign"
	TransitionDispute TransitionKind = "dispute"
	TransitionExpire  TransitionKind = "expire"
)

// Transition is a requested change out of Pending evaluated at instant At.
type Transition struct {
	Kind          TransitionKind
	At            time.Time
	SignatureData string
	SignerEmail   string
	Reason        string
}

// SignTransition builds Pending -> Signed.
func SignTransition(signatureData, signerEmail string, at time.Time) Transition {
	return Transition{Kind: TransitionSign, At: at, SignatureData: signatureData, SignerEmail: signerEmail}
}

// DisputeTransition builds Pending -> Disputed.
func DisputeTransition(reason string, at time.Time) Transition {
	return Transition{Kind: TransitionDispute, At: at, Reason: reason}
}

// ExpireTransition builds Pending -> Expired.
func ExpireTransition(at time.Time) Transition {
	return Transition{Kind: TransitionExpire, At: at}
}

// Next returns the state the assignment enters when the transition commits.
func (t Transition) Next() State {
	switch t.Kind {
	case TransitionSign:
		return Signed{Data: t.SignatureData, SignerEmail: t.SignerEmail, At: t.At}
	case TransitionDispute:
		return Disputed{Reason: t.Reason, At: t.At}
	default:
		return Expired{At: t.At}
	}
}

// ExpiryCondition is the deadline precondition of a guard.
type ExpiryCondition int

const (
	// DeadlineNotPassed holds while At <= token_expires_at.
	DeadlineNotPassed ExpiryCondition = iota
	// DeadlinePassed holds once At > token_expires_at.
	DeadlinePassed
)

// Guard is the compare half of the compare-and-set every store applies.
// The assignment must be pending, carry a token, and satisfy Condition at At.
type Guard struct {
	Condition ExpiryCondition
	At        time.Time
}

// Guard returns the precondition the store must re-check atomically.
func (t Transition) Guard() Guard {
	if t.Kind == TransitionExpire {
		return Guard{Condition: DeadlinePassed, At: t.At}
	}
	return Guard{Condition: DeadlineNotPassed, At: t.At}
}

// Allows evaluates the guard against a snapshot.
func (g Guard) Allows(a *AssetAssignment) bool {
	if a == nil || a.Status() != StatePending || !a.HasToken() {
		return false
	}
	if g.Condition == DeadlinePassed {
		return g.At.After(a.TokenExpiresAt)
	}
	return !g.At.After(a.TokenExpiresAt)
}

// Check classifies why the transition is or is not legal for a snapshot.
// Sign and dispute on an expired assignment report ErrTokenExpired whether or
// not the reaper already ran; expire on an expired assignment reports
// ErrAlreadyFinalized, which sweepers treat as a no-op.
func (t Transition) Check(a *AssetAssignment) error {
	status := a.Status()
	switch t.Kind {
	case TransitionSign, TransitionDispute:
		if status == StateExpired {
			return ErrTokenExpired
		}
		if status.Terminal() {
			return ErrAlreadyFinalized
		}
		if !a.HasToken() {
			return ErrTokenNotFound
		}
		if t.At.After(a.TokenExpiresAt) {
			return ErrTokenExpired
		}
	case TransitionExpire:
		if status.Terminal() {
			return ErrAlreadyFinalized
		}
		if !a.HasToken() || !t.At.After(a.TokenExpiresAt) {
			return ErrNotYetExpired
		}
	default:
		return ErrValidation
	}
	return nil
}

// Apply checks the transition and moves the snapshot into the next state.
func (t Transition) Apply(a *AssetAssignment) error {
	if err := t.Check(a); err != nil {
		return err
	}
	a.State = t.Next()
	return nil
}

// ReminderPolicy decides when a pending assignment is owed a reminder.
type ReminderPolicy struct {
	MaxReminders int
	Spacing      time.Duration
}

// Due reports whether the assignment should receive a reminder at now.
func (p ReminderPolicy) Due(a *AssetAssignment, now time.Time) bool {
	if a == nil || a.Status() != StatePending || !a.HasToken() {
		return false
	}
	if now.After(a.TokenExpiresAt) {
		return false
	}
	if a.ReminderCount >= p.MaxReminders {
		return false
	}
	if a.LastReminderSent == nil {
		return true
	}
	return now.Sub(*a.LastReminderSent) >= p.Spacing
}

// Cutoff is the latest last_reminder_sent that still satisfies the spacing
// rule at now; stores compare against it.
func (p ReminderPolicy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.Spacing)
}
