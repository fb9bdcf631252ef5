package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"stocksense/internal/risk"
	"stocksense/internal/store"
)

// Idempotency marks live at least 48 hours so a retried daily run on the
// same UTC date never redelivers.
const markTTL = 48 * time.Hour

// DigestBuilder computes one org's risk digest. Satisfied by risk.BuildDigest
// through the Scheduler wiring; faked in tests.
type DigestBuilder func(ctx context.Context, org store.Org, strategy risk.Strategy) (*risk.Digest, error)

// OrgLister enumerates tenants for the daily run.
type OrgLister interface {
	ListOrgs(ctx context.Context) ([]store.Org, error)
}

// ChannelResult is the delivery outcome of one channel for one org.
type ChannelResult struct {
	Channel   string `json:"channel"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// OrgReport summarizes one org's run.
type OrgReport struct {
	OrgID       int64           `json:"org_id"`
	OrgName     string          `json:"org_name"`
	HighCount   int             `json:"high_count"`
	MediumCount int             `json:"medium_count"`
	Channels    []ChannelResult `json:"channels"`
}

// Report is the summary document returned by the internal endpoint.
type Report struct {
	Date            string      `json:"date"`
	OrgsProcessed   int         `json:"orgs_processed"`
	AlreadyRan      bool        `json:"already_ran"`
	AlertsSentTotal int         `json:"alerts_sent_total"`
	Orgs            []OrgReport `json:"orgs"`
}

// Scheduler drives the daily digest run.
type Scheduler struct {
	orgs    OrgLister
	idem    store.IdemStore
	build   DigestBuilder
	sinks   map[string]Sink
	nowFunc func() time.Time
}

func NewScheduler(orgs OrgLister, idem store.IdemStore, build DigestBuilder, sinks ...Sink) *Scheduler {
	byName := make(map[string]Sink, len(sinks))
	for _, s := range sinks {
		byName[s.Name()] = s
	}
	return &Scheduler{orgs: orgs, idem: idem, build: build, sinks: byName, nowFunc: time.Now}
}

// IdemKey is the at-most-once mark for one org and UTC date.
func IdemKey(orgID int64, now time.Time) string {
	return fmt.Sprintf("alerts:daily:%d:%s", orgID, now.UTC().Format("20060102"))
}

// RunDaily walks every org, skips those already marked for today, builds a
// digest and fans out to the requested channels. A channel failure is
// recorded per org, never aborts the run.
func (s *Scheduler) RunDaily(ctx context.Context, strategy risk.Strategy, channels []string) (*Report, error) {
	now := s.nowFunc().UTC()
	report := &Report{Date: now.Format("2006-01-02")}

	orgs, err := s.orgs.ListOrgs(ctx)
	if err != nil {
		return nil, fmt.Errorf("daily alerts: %w", err)
	}

	for _, org := range orgs {
		first, err := s.idem.MarkOnce(ctx, IdemKey(org.ID, now), markTTL)
		if err != nil {
			return nil, fmt.Errorf("idempotency mark for org %d: %w", org.ID, err)
		}
		if !first {
			log.Info().Int64("org_id", org.ID).Msg("alerts: already ran today, skipping")
			continue
		}

		digest, err := s.build(ctx, org, strategy)
		if err != nil {
			log.Error().Err(err).Int64("org_id", org.ID).Msg("alerts: digest failed")
			// Nothing was sent, so give the mark back: the org stays eligible
			// for a retried run today.
			if rerr := s.idem.Release(ctx, IdemKey(org.ID, now)); rerr != nil {
				log.Warn().Err(rerr).Int64("org_id", org.ID).Msg("alerts: mark release failed")
			}
			continue
		}

		orgReport := OrgReport{
			OrgID:       org.ID,
			OrgName:     org.Name,
			HighCount:   digest.HighCount,
			MediumCount: digest.MediumCount,
		}
		if len(digest.Items) > 0 {
			orgReport.Channels = s.dispatch(ctx, digest, channels)
		}
		for _, cr := range orgReport.Channels {
			if cr.Delivered {
				report.AlertsSentTotal++
			}
		}
		report.Orgs = append(report.Orgs, orgReport)
		report.OrgsProcessed++
	}

	report.AlreadyRan = report.OrgsProcessed == 0 && len(orgs) > 0
	return report, nil
}

func (s *Scheduler) dispatch(ctx context.Context, digest *risk.Digest, channels []string) []ChannelResult {
	results := make([]ChannelResult, 0, len(channels))
	for _, name := range channels {
		sink, ok := s.sinks[name]
		if !ok {
			results = append(results, ChannelResult{Channel: name, Error: "unknown channel"})
			continue
		}
		if err := sink.Deliver(ctx, digest); err != nil {
			log.Warn().Err(err).Str("channel", name).Int64("org_id", digest.OrgID).Msg("alerts: delivery failed")
			results = append(results, ChannelResult{Channel: name, Error: err.Error()})
			continue
		}
		results = append(results, ChannelResult{Channel: name, Delivered: true})
	}
	return results
}
