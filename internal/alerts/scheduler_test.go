package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"stocksense/internal/risk"
	"stocksense/internal/store"
)

type fakeOrgs []store.Org

func (f fakeOrgs) ListOrgs(ctx context.Context) ([]store.Org, error) { return f, nil }

// recordingSink counts deliveries and can be forced to fail.
type recordingSink struct {
	name      string
	delivered int
	fail      bool
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Deliver(ctx context.Context, digest *risk.Digest) error {
	if r.fail {
		return errors.New("connection refused")
	}
	r.delivered++
	return nil
}

func digestWithItems(ctx context.Context, org store.Org, strategy risk.Strategy) (*risk.Digest, error) {
	days := 3.0
	return &risk.Digest{
		OrgID:     org.ID,
		OrgName:   org.Name,
		HighCount: 1,
		Items: []risk.Item{
			{SKU: "A", RiskLevel: risk.BandHigh, DaysToStockout: &days},
		},
	}, nil
}

func newTestScheduler(build DigestBuilder, sinks ...Sink) *Scheduler {
	s := NewScheduler(
		fakeOrgs{{ID: 1, Name: "Acme"}, {ID: 2, Name: "Globex"}},
		store.NewMemoryIdemStore(),
		func(ctx context.Context, org store.Org, strategy risk.Strategy) (*risk.Digest, error) {
			return build(ctx, org, strategy)
		},
		sinks...,
	)
	s.nowFunc = func() time.Time { return time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC) }
	return s
}

func TestRunDailyIsIdempotent(t *testing.T) {
	email := &recordingSink{name: "email"}
	webhook := &recordingSink{name: "webhook"}
	s := newTestScheduler(digestWithItems, email, webhook)

	ctx := context.Background()
	first, err := s.RunDaily(ctx, risk.StrategyLatest, []string{"email", "webhook"})
	if err != nil {
		t.Fatal(err)
	}
	if first.OrgsProcessed != 2 || first.AlreadyRan {
		t.Errorf("first run = %+v, want 2 orgs processed", first)
	}
	if first.AlertsSentTotal != 4 {
		t.Errorf("alerts_sent_total = %d, want 4 (2 orgs x 2 channels)", first.AlertsSentTotal)
	}

	second, err := s.RunDaily(ctx, risk.StrategyLatest, []string{"email", "webhook"})
	if err != nil {
		t.Fatal(err)
	}
	if second.OrgsProcessed != 0 || !second.AlreadyRan || second.AlertsSentTotal != 0 {
		t.Errorf("second run = %+v, want already_ran with zero deliveries", second)
	}
	if email.delivered != 2 || webhook.delivered != 2 {
		t.Errorf("deliveries = email %d, webhook %d; second run must not redeliver", email.delivered, webhook.delivered)
	}
}

func TestRunDailyRecordsChannelFailures(t *testing.T) {
	email := &recordingSink{name: "email", fail: true}
	webhook := &recordingSink{name: "webhook"}
	s := newTestScheduler(digestWithItems, email, webhook)

	report, err := s.RunDaily(context.Background(), risk.StrategyLatest, []string{"email", "webhook"})
	if err != nil {
		t.Fatal(err)
	}
	if report.AlertsSentTotal != 2 {
		t.Errorf("alerts_sent_total = %d, want 2 surviving webhook deliveries", report.AlertsSentTotal)
	}
	for _, org := range report.Orgs {
		for _, cr := range org.Channels {
			switch cr.Channel {
			case "email":
				if cr.Delivered || cr.Error == "" {
					t.Errorf("email result = %+v, want recorded failure", cr)
				}
			case "webhook":
				if !cr.Delivered {
					t.Errorf("webhook result = %+v, want delivered", cr)
				}
			}
		}
	}
}

func TestRunDailyRetriesAfterDigestFailure(t *testing.T) {
	email := &recordingSink{name: "email"}
	failing := map[int64]bool{1: true}
	s := newTestScheduler(func(ctx context.Context, org store.Org, strategy risk.Strategy) (*risk.Digest, error) {
		if failing[org.ID] {
			delete(failing, org.ID)
			return nil, errors.New("mart offline")
		}
		return digestWithItems(ctx, org, strategy)
	}, email)

	ctx := context.Background()
	first, err := s.RunDaily(ctx, risk.StrategyLatest, []string{"email"})
	if err != nil {
		t.Fatal(err)
	}
	if first.OrgsProcessed != 1 {
		t.Errorf("first run orgs_processed = %d, want 1 (org 1 failed)", first.OrgsProcessed)
	}

	// The failed org's mark was released, so a retry the same day picks it
	// up; the delivered org stays marked.
	second, err := s.RunDaily(ctx, risk.StrategyLatest, []string{"email"})
	if err != nil {
		t.Fatal(err)
	}
	if second.OrgsProcessed != 1 || second.AlreadyRan {
		t.Errorf("second run = %+v, want the failed org retried", second)
	}
	if len(second.Orgs) != 1 || second.Orgs[0].OrgID != 1 {
		t.Errorf("second run orgs = %+v, want org 1 only", second.Orgs)
	}
	if email.delivered != 2 {
		t.Errorf("deliveries = %d, want one per org across both runs", email.delivered)
	}
}

func TestRunDailySkipsCleanDigests(t *testing.T) {
	email := &recordingSink{name: "email"}
	s := newTestScheduler(func(ctx context.Context, org store.Org, strategy risk.Strategy) (*risk.Digest, error) {
		return &risk.Digest{OrgID: org.ID, OrgName: org.Name}, nil
	}, email)

	report, err := s.RunDaily(context.Background(), risk.StrategyLatest, []string{"email"})
	if err != nil {
		t.Fatal(err)
	}
	if report.OrgsProcessed != 2 {
		t.Errorf("orgs_processed = %d, want 2", report.OrgsProcessed)
	}
	if email.delivered != 0 {
		t.Errorf("empty digests must not be delivered, got %d", email.delivered)
	}
}

func TestRunDailyUnknownChannel(t *testing.T) {
	s := newTestScheduler(digestWithItems)

	report, err := s.RunDaily(context.Background(), risk.StrategyLatest, []string{"pager"})
	if err != nil {
		t.Fatal(err)
	}
	for _, org := range report.Orgs {
		for _, cr := range org.Channels {
			if cr.Channel != "pager" || cr.Delivered || cr.Error != "unknown channel" {
				t.Errorf("channel result = %+v, want unknown channel error", cr)
			}
		}
	}
	if report.AlertsSentTotal != 0 {
		t.Errorf("alerts_sent_total = %d, want 0", report.AlertsSentTotal)
	}
}

func TestIdemKeyShape(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	if got, want := IdemKey(7, now), "alerts:daily:7:20260310"; got != want {
		t.Errorf("IdemKey = %q, want %q", got, want)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	a := Sign([]byte(`{"org_id":1}`), "secret")
	b := Sign([]byte(`{"org_id":1}`), "secret")
	if a != b || len(a) != 64 {
		t.Errorf("Sign not a stable hex sha256 hmac: %q vs %q", a, b)
	}
	if Sign([]byte(`{"org_id":1}`), "other") == a {
		t.Error("different secrets must produce different signatures")
	}
}
