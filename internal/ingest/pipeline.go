// Package ingest runs scans: list sources, fetch candidates, skip what was
// already delivered, extract text, summarize, deliver and commit.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/ppiankov/purefact/internal/deliver"
	"github.com/ppiankov/purefact/internal/extract"
	"github.com/ppiankov/purefact/internal/imagegen"
	"github.com/ppiankov/purefact/internal/seen"
	"github.com/ppiankov/purefact/internal/source"
	"github.com/ppiankov/purefact/internal/summarize"
)

// DefaultMinChars is the shortest extracted text worth summarizing.
const DefaultMinChars = 100

// Lister discovers candidates for one source.
type Lister interface {
	List(ctx context.Context, spec source.Spec) ([]source.Item, error)
}

// Fetcher retrieves remote files and feed entry links.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Redactor masks text before it leaves the process.
type Redactor interface {
	Redact(text string) (string, int)
}

// Config wires a Pipeline. Images, Redactor and Metrics are optional.
type Config struct {
	Lister     Lister
	Fetcher    Fetcher
	Summarizer summarize.Summarizer
	Images     imagegen.Generator
	Redactor   Redactor
	Metrics    *Metrics
	Logger     zerolog.Logger

	// CommitOnDeliveryFailure commits an item whose delivery failed, so a
	// flaky channel does not cause repeated near-duplicate sends.
	CommitOnDeliveryFailure bool
	MinChars                int
	Now                     func() time.Time
}

// Pipeline runs scans one at a time.
type Pipeline struct {
	cfg     Config
	sem     *semaphore.Weighted
	running atomic.Bool

	mu   sync.Mutex
	last *Report
}

func New(cfg Config) *Pipeline {
	if cfg.MinChars <= 0 {
		cfg.MinChars = DefaultMinChars
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{cfg: cfg, sem: semaphore.NewWeighted(1)}
}

// Running reports whether a scan is in progress.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// LastReport returns the most recent finished scan.
func (p *Pipeline) LastReport() (Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Report{}, false
	}
	return *p.last, true
}

// RunScan processes every source in order and every candidate within a
// source in order. Overlapping calls wait for the running scan to finish.
// Per-item and per-source failures are recorded in the report and never
// abort the scan; the returned error is non-nil only when ctx ends it.
func (p *Pipeline) RunScan(ctx context.Context, st *State, ch deliver.Channel) (Report, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Report{}, err
	}
	defer p.sem.Release(1)
	p.running.Store(true)
	defer p.running.Store(false)

	r := Report{ScanID: uuid.NewString(), Started: p.cfg.Now(), Sources: len(st.Sources)}
	log := p.cfg.Logger.With().Str("scan_id", r.ScanID).Logger()
	log.Info().Int("sources", len(st.Sources)).Int("seen", st.Seen.Len()).Msg("scan started")

	for _, spec := range st.Sources {
		if ctx.Err() != nil {
			break
		}
		srcLog := log.With().Str("source", spec.URL).Logger()

		items, err := p.list(ctx, spec)
		if err != nil {
			o := Outcome{Location: spec.URL, Status: StatusFailed, Err: stageErr(StageList, ErrSourceUnreachable, spec.URL, err)}
			srcLog.Warn().Err(err).Str("stage", string(StageList)).Msg("source skipped")
			r.add(o)
			p.cfg.Metrics.observeOutcome(o)
			continue
		}
		r.Listed += len(items)

		for _, it := range items {
			if ctx.Err() != nil {
				break
			}
			o := p.process(ctx, srcLog, r.ScanID, st, ch, it)
			r.add(o)
			p.cfg.Metrics.observeOutcome(o)
		}
	}

	r.Seen = st.Seen.Len()
	r.Finished = p.cfg.Now()
	p.cfg.Metrics.observeScan(r, r.Seen)
	log.Info().
		Int("committed", r.Committed).
		Int("delivered", r.Delivered).
		Int("skipped", r.Skipped).
		Int("failed", r.Failed).
		Dur("took", r.Finished.Sub(r.Started)).
		Msg("scan finished")

	p.mu.Lock()
	last := r
	p.last = &last
	p.mu.Unlock()

	return r, ctx.Err()
}

func (p *Pipeline) process(ctx context.Context, log zerolog.Logger, scanID string, st *State, ch deliver.Channel, it source.Item) Outcome {
	loc := it.Location
	if loc == "" {
		loc = it.Origin
	}
	log = log.With().Str("location", loc).Logger()
	o := Outcome{Location: loc}

	fail := func(stage Stage, kind error, err error) Outcome {
		o.Status = StatusFailed
		if kind == ErrExtraction || kind == ErrInsufficientContent {
			o.Status = StatusAbandoned
		}
		o.Err = stageErr(stage, kind, loc, err)
		log.Warn().Err(err).Str("stage", string(stage)).Str("kind", kind.Error()).Msg("item not committed")
		return o
	}

	// Fetched and IdentityComputed. A feed entry's identity comes from the
	// feed itself, so seen entries never cost a link fetch.
	var raw []byte
	switch it.Kind {
	case source.RemoteFile:
		body, err := p.cfg.Fetcher.Get(ctx, it.Location)
		if err != nil {
			return fail(StageFetch, ErrSourceUnreachable, err)
		}
		raw = body
		o.Identity = FileIdentity(raw)
	case source.FeedEntry:
		o.Identity = EntryIdentity(it)
	}
	if o.Identity == "" {
		return fail(StageFetch, ErrExtraction, nil)
	}

	if st.Seen.Contains(o.Identity) {
		o.Status = StatusSkippedSeen
		log.Debug().Str("identity", o.Identity).Msg("already delivered")
		return o
	}

	// Extracted.
	var text string
	if it.Kind == source.RemoteFile {
		text = extract.Extract(raw, it.Name)
	} else {
		t, err := p.feedText(ctx, it)
		if err != nil {
			return fail(StageFetch, ErrSourceUnreachable, err)
		}
		text = t
	}
	text = strings.TrimSpace(text)
	if text == "" || text == extract.Sentinel {
		return fail(StageExtract, ErrExtraction, nil)
	}
	if utf8.RuneCountInString(text) < p.cfg.MinChars {
		return fail(StageExtract, ErrInsufficientContent, nil)
	}
	if p.cfg.Redactor != nil {
		var n int
		if text, n = p.cfg.Redactor.Redact(text); n > 0 {
			log.Debug().Int("redacted", n).Msg("redacted text before summarizing")
		}
	}

	// Summarized. Failure degrades to a placeholder and still commits.
	article, err := p.cfg.Summarizer.Summarize(ctx, summarize.Request{Source: loc, Text: text})
	if err != nil {
		log.Warn().Err(err).Str("stage", string(StageSummarize)).Msg("summarizer failed, using placeholder")
		o.Warnings = append(o.Warnings, stageErr(StageSummarize, ErrSummarizer, loc, err))
		article = summarize.Placeholder()
	}
	o.Title = article.Title
	o.Degraded = article.Degraded

	var img []byte
	if p.cfg.Images != nil {
		if img, err = p.cfg.Images.Generate(ctx, article.Title); err != nil {
			log.Warn().Err(err).Str("stage", string(StageImage)).Msg("image generation failed, sending text only")
			o.Warnings = append(o.Warnings, stageErr(StageImage, ErrImage, loc, err))
			img = nil
		}
	}

	// Delivered.
	derr := ch.Deliver(ctx, deliver.Message{
		Title:  article.Title,
		Body:   article.Body,
		Source: loc,
		Image:  img,
		Date:   p.cfg.Now(),
	})
	p.record(ctx, log, st, scanID, ch, o, derr)
	if derr != nil {
		if ctx.Err() != nil || !p.cfg.CommitOnDeliveryFailure {
			return fail(StageDeliver, ErrDelivery, derr)
		}
		log.Error().Err(derr).Str("stage", string(StageDeliver)).Msg("delivery failed, committing anyway")
		o.Warnings = append(o.Warnings, stageErr(StageDeliver, ErrDelivery, loc, derr))
	} else {
		o.Delivered = true
	}

	// Committed. Persist before the next candidate is looked at; a shutdown
	// arriving now must not lose an identity that was already delivered.
	st.Seen.Add(o.Identity)
	if err := st.Store.Persist(context.WithoutCancel(ctx), st.Seen); err != nil {
		o.Status = StatusFailed
		o.Err = stageErr(StageCommit, ErrCommit, loc, err)
		log.Error().Err(err).Str("stage", string(StageCommit)).Msg("persist seen set")
		return o
	}
	o.Status = StatusCommitted
	log.Info().Str("identity", o.Identity).Bool("delivered", o.Delivered).Bool("degraded", o.Degraded).Msg("committed")
	return o
}

// feedText returns the entry's inline text when it is long enough, otherwise
// the readable text of the linked page.
// list isolates a source whose parser panics on malformed markup.
func (p *Pipeline) list(ctx context.Context, spec source.Spec) (items []source.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("lister panic: %v", r)
		}
	}()
	return p.cfg.Lister.List(ctx, spec)
}

func (p *Pipeline) feedText(ctx context.Context, it source.Item) (string, error) {
	inline := extract.MarkupString(it.FeedText)
	if utf8.RuneCountInString(inline) >= p.cfg.MinChars || it.Location == "" {
		return inline, nil
	}
	body, err := p.cfg.Fetcher.Get(ctx, it.Location)
	if err != nil {
		return "", err
	}
	return extract.Article(body, it.Location), nil
}

func (p *Pipeline) record(ctx context.Context, log zerolog.Logger, st *State, scanID string, ch deliver.Channel, o Outcome, derr error) {
	rec, ok := st.Store.(seen.Recorder)
	if !ok {
		return
	}
	d := seen.Delivery{
		ScanID:   scanID,
		Identity: o.Identity,
		Location: o.Location,
		Title:    o.Title,
		Channel:  ch.Name(),
		Status:   seen.DeliveryOK,
		Degraded: o.Degraded,
		At:       p.cfg.Now(),
	}
	if derr != nil {
		d.Status = seen.DeliveryFailed
		d.Error = derr.Error()
	}
	if err := rec.RecordDelivery(context.WithoutCancel(ctx), d); err != nil {
		log.Warn().Err(err).Msg("record delivery")
	}
}
