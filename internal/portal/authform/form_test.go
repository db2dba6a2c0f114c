package authform

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/stretchr/testify/require"

	"finitefield.org/hanko-portal/internal/portal/authclient"
)

type call struct {
	op    authclient.Operation
	creds authclient.Credentials
}

// fakeClient records every provider call. When hold is set, calls block until release.
type fakeClient struct {
	mu      sync.Mutex
	calls   []call
	err     error
	hold    bool
	release chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{release: make(chan struct{})}
}

func (c *fakeClient) Login(ctx context.Context, creds authclient.Credentials) (*authclient.Session, error) {
	return c.do(authclient.OperationLogin, creds)
}

func (c *fakeClient) Register(ctx context.Context, creds authclient.Credentials) (*authclient.Session, error) {
	return c.do(authclient.OperationRegister, creds)
}

func (c *fakeClient) do(op authclient.Operation, creds authclient.Credentials) (*authclient.Session, error) {
	c.mu.Lock()
	c.calls = append(c.calls, call{op: op, creds: creds})
	hold, err := c.hold, c.err
	c.mu.Unlock()

	if hold {
		<-c.release
	}
	if err != nil {
		return nil, err
	}
	return &authclient.Session{UserID: "uid-" + creds.Email, Email: creds.Email, IDToken: "tok"}, nil
}

func (c *fakeClient) recorded() []call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]call(nil), c.calls...)
}

func TestSubmitRejectsEmptyFields(t *testing.T) {
	t.Parallel()

	inputs := []Input{
		{},
		{Email: "a@b.com"},
		{Password: "pw123"},
	}
	for _, mode := range []Mode{SignIn, SignUp} {
		for _, in := range inputs {
			client := newFakeClient()
			form := NewForm(mode, client)

			err := form.Submit(context.Background(), in)
			var verrs validation.Errors
			require.True(t, errors.As(err, &verrs), "expected validation errors for %+v", in)

			form.drain()
			require.Empty(t, client.recorded(), "no provider call for invalid input")
			require.Equal(t, StateInvalid, form.State())
			require.Equal(t, map[string]string{
				FieldEmail:    MessageEmailRequired,
				FieldPassword: MessagePasswordRequired,
			}, form.FieldErrors())
		}
	}
}

func TestSubmitRejectsLongPassword(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	form := NewForm(SignIn, client)

	err := form.Submit(context.Background(), Input{Email: "a@b.com", Password: "123456789"})
	require.Error(t, err)
	form.drain()
	require.Empty(t, client.recorded())
	require.Equal(t, map[string]string{FieldPassword: MessagePasswordTooLong}, form.FieldErrors())
}

func TestSubmitDispatchesOperationForMode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mode Mode
		want authclient.Operation
	}{
		{mode: SignIn, want: authclient.OperationLogin},
		{mode: SignUp, want: authclient.OperationRegister},
	}
	for _, tc := range cases {
		for _, password := range []string{"p", "pw123", "12345678", "はんこ"} {
			client := newFakeClient()
			form := NewForm(tc.mode, client)
			in := Input{Email: "a@b.com", Password: password}

			require.NoError(t, form.Submit(context.Background(), in))
			require.NoError(t, form.Wait(context.Background()))
			form.drain()

			calls := client.recorded()
			require.Len(t, calls, 1, "exactly one provider call")
			require.Equal(t, tc.want, calls[0].op)
			require.Equal(t, authclient.Credentials{Email: "a@b.com", Password: password}, calls[0].creds)
			require.Equal(t, StateSuccess, form.State())
			require.NotNil(t, form.Session())
			require.NotEmpty(t, form.SubmissionID())
		}
	}
}

func TestSubmittingWhileProviderPending(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.hold = true
	form := NewForm(SignIn, client)

	require.False(t, form.Submitting())
	require.NoError(t, form.Submit(context.Background(), Input{Email: "a@b.com", Password: "pw123"}))
	require.True(t, form.Submitting())
	require.Equal(t, StateSubmitting, form.State())

	err := form.Submit(context.Background(), Input{Email: "a@b.com", Password: "pw123"})
	require.ErrorIs(t, err, ErrSubmissionInFlight)

	close(client.release)
	require.NoError(t, form.Wait(context.Background()))
	form.drain()

	require.False(t, form.Submitting())
	require.Len(t, client.recorded(), 1)
}

func TestSignInFailureShowsFragment(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.err = errors.New("Error: invalid credentials now")
	form := NewForm(SignIn, client)

	require.NoError(t, form.Submit(context.Background(), Input{Email: "a@b.com", Password: "pw123"}))
	require.Error(t, form.Wait(context.Background()))
	form.drain()

	require.Equal(t, StateFailed, form.State())
	require.True(t, form.AuthFailed())
	require.Equal(t, "invalid", form.ErrorFragment())
	require.Nil(t, form.Session())
}

func TestSignUpFailureHidesFragment(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.err = errors.New("Error: invalid credentials now")
	form := NewForm(SignUp, client)

	require.NoError(t, form.Submit(context.Background(), Input{Email: "a@b.com", Password: "pw123"}))
	require.Error(t, form.Wait(context.Background()))
	form.drain()

	require.Equal(t, StateFailed, form.State())
	require.True(t, form.AuthFailed())
	require.Equal(t, "", form.ErrorFragment())
}

func TestResubmitAfterFailure(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.err = errors.New("Error: invalid credentials now")
	form := NewForm(SignIn, client)
	ctx := context.Background()

	require.NoError(t, form.Submit(ctx, Input{Email: "a@b.com", Password: "pw123"}))
	require.Error(t, form.Wait(ctx))

	client.mu.Lock()
	client.err = nil
	client.mu.Unlock()

	require.NoError(t, form.Submit(ctx, Input{Email: "a@b.com", Password: "pw123"}))
	require.NoError(t, form.Wait(ctx))
	form.drain()

	require.Equal(t, StateSuccess, form.State())
	require.Equal(t, "", form.ErrorFragment())

	form.Reset()
	require.Equal(t, StateIdle, form.State())
}

func TestTogglePasswordIsIndependent(t *testing.T) {
	t.Parallel()

	form := NewForm(SignIn, newFakeClient())
	initial := form.PasswordVisible()
	require.False(t, initial)

	for i := 1; i <= 6; i++ {
		got := form.TogglePassword()
		require.Equal(t, i%2 == 1, got)
		if i%2 == 0 {
			require.Equal(t, initial, form.PasswordVisible(), "even toggles restore the original state")
		}
	}

	_ = form.Submit(context.Background(), Input{})
	require.Equal(t, initial, form.PasswordVisible(), "validation does not touch visibility")
	require.Equal(t, StateInvalid, form.State())
}

func TestLastUsedFollowsClock(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	form := NewForm(SignIn, newFakeClient(), WithClock(func() time.Time { return now }))
	require.Equal(t, now, form.LastUsed())

	now = now.Add(time.Minute)
	form.TogglePassword()
	require.Equal(t, now, form.LastUsed())
}

func TestRememberOnlyRecordedForDispatchedSubmission(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	form := NewForm(SignIn, client)
	ctx := context.Background()

	err := form.Submit(ctx, Input{Email: "a@b.com", Password: "", Remember: true})
	require.Error(t, err)
	require.False(t, form.Remember())

	require.NoError(t, form.Submit(ctx, Input{Email: "a@b.com", Password: "pw123", Remember: true}))
	require.NoError(t, form.Wait(ctx))
	form.drain()
	require.True(t, form.Remember())

	form.Reset()
	require.False(t, form.Remember())
}
