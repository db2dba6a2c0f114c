package authclient

import (
	"context"

	"finitefield.org/hanko-portal/internal/portal/metrics"
)

type instrumented struct {
	next    Client
	metrics *metrics.Auth
}

// Instrument decorates a Client with provider call metrics.
func Instrument(next Client, m *metrics.Auth) Client {
	if m == nil {
		return next
	}
	return &instrumented{next: next, metrics: m}
}

func (c *instrumented) Login(ctx context.Context, creds Credentials) (*Session, error) {
	done := c.metrics.Begin(string(OperationLogin))
	sess, err := c.next.Login(ctx, creds)
	done(outcome(err))
	return sess, err
}

func (c *instrumented) Register(ctx context.Context, creds Credentials) (*Session, error) {
	done := c.metrics.Begin(string(OperationRegister))
	sess, err := c.next.Register(ctx, creds)
	done(outcome(err))
	return sess, err
}

type instrumentedRefresher struct {
	next    Refresher
	metrics *metrics.Auth
}

// InstrumentRefresher decorates a Refresher with provider call metrics.
func InstrumentRefresher(next Refresher, m *metrics.Auth) Refresher {
	if m == nil || next == nil {
		return next
	}
	return &instrumentedRefresher{next: next, metrics: m}
}

func (c *instrumentedRefresher) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	done := c.metrics.Begin(string(OperationRefresh))
	sess, err := c.next.Refresh(ctx, refreshToken)
	done(outcome(err))
	return sess, err
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(KindOf(err))
}
