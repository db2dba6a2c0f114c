// Package authform holds the sign-in / sign-up form: local validation, dispatch to
// the authentication provider, and the state the page renders from.
package authform

import (
	"context"
	"errors"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"finitefield.org/hanko-portal/internal/portal/authclient"
	"finitefield.org/hanko-portal/internal/portal/mutation"
)

// ErrSubmissionInFlight is returned when a submit arrives while the previous one is pending.
var ErrSubmissionInFlight = errors.New("authform: submission already in flight")

// State is the externally visible form state.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateInvalid
	StateSubmitting
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateInvalid:
		return "invalid"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type authMutation = mutation.Mutation[authclient.Credentials, *authclient.Session]

// Form is one form instance, owned by one browser session.
type Form struct {
	mode     Mode
	login    *authMutation
	register *authMutation
	logger   *zap.Logger
	now      func() time.Time

	mu           sync.Mutex
	showPassword bool
	email        string
	remember     bool
	fieldErrs    validation.Errors
	active       *authMutation
	submissionID string
	lastUsed     time.Time
}

// FormOption customises a Form.
type FormOption func(*Form)

// WithLogger sets the logger used for submission events.
func WithLogger(logger *zap.Logger) FormOption {
	return func(f *Form) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock overrides the clock used for idle tracking.
func WithClock(now func() time.Time) FormOption {
	return func(f *Form) {
		if now != nil {
			f.now = now
		}
	}
}

// NewForm constructs a form that submits through client.
func NewForm(mode Mode, client authclient.Client, opts ...FormOption) *Form {
	if client == nil {
		panic("authform: auth client is required")
	}
	f := &Form{
		mode:   mode,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	f.login = mutation.New(f.track(authclient.OperationLogin, client.Login))
	f.register = mutation.New(f.track(authclient.OperationRegister, client.Register))
	f.lastUsed = f.now()
	return f
}

type submissionKey struct{}

func (f *Form) track(op authclient.Operation, call mutation.Func[authclient.Credentials, *authclient.Session]) mutation.Func[authclient.Credentials, *authclient.Session] {
	return func(ctx context.Context, creds authclient.Credentials) (*authclient.Session, error) {
		id, _ := ctx.Value(submissionKey{}).(string)
		logger := f.logger.With(zap.String("submission", id), zap.String("operation", string(op)))

		sess, err := call(ctx, creds)
		if err != nil {
			logger.Info("auth submission failed", zap.String("kind", string(authclient.KindOf(err))), zap.Error(err))
			return nil, err
		}
		logger.Info("auth submission succeeded", zap.String("uid", sess.UserID))
		return sess, nil
	}
}

// Mode returns the form mode.
func (f *Form) Mode() Mode {
	return f.mode
}

// Submit validates the input and, when it passes, dispatches exactly one provider
// call for the form's mode. It returns without waiting for the provider. Invalid
// input is reported as validation.Errors and never reaches the provider.
func (f *Form) Submit(ctx context.Context, in Input) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastUsed = f.now()
	if f.Submitting() {
		return ErrSubmissionInFlight
	}

	f.email = in.Email
	if errs := Validate(in); len(errs) > 0 {
		f.fieldErrs = errs
		f.logger.Debug("auth form invalid", zap.String("mode", f.mode.Slug()), zap.Int("fields", len(errs)))
		return errs
	}
	f.fieldErrs = nil

	target := f.login
	if f.mode == SignUp {
		target = f.register
	}
	f.remember = in.Remember
	f.submissionID = ulid.Make().String()
	ctx = context.WithValue(ctx, submissionKey{}, f.submissionID)
	target.Mutate(ctx, authclient.Credentials{Email: in.Email, Password: in.Password})
	f.active = target
	return nil
}

// Submitting reports whether either provider operation is in flight. It is
// derived on every call and never stored.
func (f *Form) Submitting() bool {
	return f.login.IsLoading() || f.register.IsLoading()
}

// State returns the current form state.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.fieldErrs) > 0 {
		return StateInvalid
	}
	if f.active == nil {
		return StateIdle
	}
	switch f.active.Status() {
	case mutation.StatusLoading:
		return StateSubmitting
	case mutation.StatusError:
		return StateFailed
	case mutation.StatusSuccess:
		return StateSuccess
	default:
		return StateIdle
	}
}

// FieldErrors returns the messages from the last local validation, keyed by field.
func (f *Form) FieldErrors() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fieldErrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(f.fieldErrs))
	for field, err := range f.fieldErrs {
		out[field] = err.Error()
	}
	return out
}

// Email returns the last submitted email so the page can re-render it.
func (f *Form) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// Remember returns the remember-me choice of the last dispatched submission.
func (f *Form) Remember() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remember
}

// SubmissionID returns the identifier of the last dispatched submission.
func (f *Form) SubmissionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submissionID
}

// AuthFailed reports whether the last provider call failed.
func (f *Form) AuthFailed() bool {
	return f.AuthErr() != nil
}

// AuthErr returns the provider error of the last call, if any.
func (f *Form) AuthErr() error {
	f.mu.Lock()
	active := f.active
	f.mu.Unlock()
	if active == nil {
		return nil
	}
	return active.Err()
}

// ErrorFragment is the short error text shown under the password field.
// Only sign-in forms show it.
func (f *Form) ErrorFragment() string {
	if f.mode != SignIn {
		return ""
	}
	return Fragment(f.AuthErr())
}

// Session returns the provider session once the submission has succeeded.
func (f *Form) Session() *authclient.Session {
	f.mu.Lock()
	active := f.active
	f.mu.Unlock()
	if active == nil || active.Status() != mutation.StatusSuccess {
		return nil
	}
	return active.Data()
}

// Wait blocks until the last submission settles or ctx is done.
func (f *Form) Wait(ctx context.Context) error {
	f.mu.Lock()
	active := f.active
	f.mu.Unlock()
	if active == nil {
		return nil
	}
	return active.Wait(ctx)
}

// Reset returns the form to idle, keeping the visibility flag.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.login.Reset()
	f.register.Reset()
	f.active = nil
	f.fieldErrs = nil
	f.email = ""
	f.remember = false
	f.submissionID = ""
}

// TogglePassword flips password visibility and returns the new value.
func (f *Form) TogglePassword() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUsed = f.now()
	f.showPassword = !f.showPassword
	return f.showPassword
}

// PasswordVisible reports whether the password renders as plain text.
func (f *Form) PasswordVisible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.showPassword
}

// LastUsed returns when the form was last submitted or toggled.
func (f *Form) LastUsed() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUsed
}

// drain waits for background provider calls to return.
func (f *Form) drain() {
	f.login.Drain()
	f.register.Drain()
}
