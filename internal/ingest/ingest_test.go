package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/ppiankov/purefact/internal/deliver"
	"github.com/ppiankov/purefact/internal/privacy"
	"github.com/ppiankov/purefact/internal/seen"
	"github.com/ppiankov/purefact/internal/source"
	"github.com/ppiankov/purefact/internal/summarize"
)

// --- fakes ---

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: map[string]string{}, calls: map[string]int{}}
}

func (f *fakeFetcher) set(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) Get(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("GET %s: unexpected status 404", url)
	}
	return []byte(body), nil
}

type fakeLister map[string][]source.Item

func (l fakeLister) List(_ context.Context, spec source.Spec) ([]source.Item, error) {
	items, ok := l[spec.URL]
	if !ok {
		return nil, errors.New("dial tcp: connection refused")
	}
	return items, nil
}

type stubSummarizer struct {
	mu   sync.Mutex
	err  error
	reqs []summarize.Request
}

func (s *stubSummarizer) Summarize(_ context.Context, req summarize.Request) (summarize.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return summarize.Article{}, s.err
	}
	return summarize.Article{Title: "Headline for " + req.Source, Body: "Body of the article."}, nil
}

type recChannel struct {
	mu        sync.Mutex
	msgs      []deliver.Message
	err       error
	onDeliver func(n int) error // n is the 1-based delivery count
}

func (c *recChannel) Name() string { return "test" }

func (c *recChannel) Deliver(_ context.Context, m deliver.Message) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	n := len(c.msgs)
	hook := c.onDeliver
	c.mu.Unlock()
	if hook != nil {
		if err := hook(n); err != nil {
			return err
		}
	}
	return c.err
}

func (c *recChannel) Notify(context.Context, string) error { return nil }

func (c *recChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

type memStore struct {
	ids         []string
	persists    int
	failPersist bool
	deliveries  []seen.Delivery
}

func (m *memStore) Load(context.Context) (*seen.Set, error) {
	return seen.NewSet(m.ids...), nil
}

func (m *memStore) Persist(_ context.Context, s *seen.Set) error {
	if m.failPersist {
		return errors.New("disk full")
	}
	m.persists++
	m.ids = s.IDs()
	return nil
}

func (m *memStore) RecordDelivery(_ context.Context, d seen.Delivery) error {
	m.deliveries = append(m.deliveries, d)
	return nil
}

type stubImages struct {
	img []byte
	err error
}

func (s stubImages) Generate(context.Context, string) ([]byte, error) { return s.img, s.err }

// --- helpers ---

func csvData(rows int) string {
	var b strings.Builder
	b.WriteString("week,region,cases\n")
	for i := range rows {
		fmt.Fprintf(&b, "%d,north,%d\n", i+1, 100+i)
	}
	return b.String()
}

func remoteItem(url string) source.Item {
	return source.Item{Location: url, Kind: source.RemoteFile, Name: url[strings.LastIndex(url, "/")+1:], Origin: "https://example.gov/"}
}

func feedItem(id, link, text string) source.Item {
	return source.Item{Location: link, Kind: source.FeedEntry, EntryID: id, FeedText: text, Origin: "https://news.example.org/feed"}
}

func pageSpec(url string) source.Spec { return source.Spec{Kind: source.KindPage, URL: url} }

func newPipeline(l Lister, f Fetcher, s summarize.Summarizer) *Pipeline {
	return New(Config{
		Lister:                  l,
		Fetcher:                 f,
		Summarizer:              s,
		Logger:                  zerolog.Nop(),
		CommitOnDeliveryFailure: true,
	})
}

func mustState(t *testing.T, specs []source.Spec, store seen.Store) *State {
	t.Helper()
	st, err := LoadState(context.Background(), specs, store)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	return st
}

func longText(n int) string {
	return strings.Repeat("x", n)
}

// --- tests ---

func TestRunScan_PageSourceIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.set("https://example.gov/stats", `<html><body><a href="/about">About</a><a href="data.csv">Weekly data</a></body></html>`)
	data := csvData(12)
	f.set("https://example.gov/data.csv", data)

	path := filepath.Join(t.TempDir(), "processed.txt")
	st := mustState(t, []source.Spec{pageSpec("https://example.gov/stats")}, seen.NewFileStore(path))
	p := newPipeline(source.NewLister(f, zerolog.Nop()), f, &stubSummarizer{})
	ch := &recChannel{}

	r1, err := p.RunScan(ctx, st, ch)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if r1.Committed != 1 || ch.count() != 1 {
		t.Fatalf("first scan committed=%d delivered=%d, want 1/1", r1.Committed, ch.count())
	}
	h1 := FileIdentity([]byte(data))
	if r1.Outcomes[0].Identity != h1 {
		t.Errorf("identity = %q, want %q", r1.Outcomes[0].Identity, h1)
	}
	if ch.msgs[0].Source != "https://example.gov/data.csv" {
		t.Errorf("source = %q", ch.msgs[0].Source)
	}

	onDisk, err := seen.NewFileStore(path).Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if onDisk.Len() != 1 || !onDisk.Contains(h1) {
		t.Errorf("seen file = %v, want [%s]", onDisk.IDs(), h1)
	}

	r2, err := p.RunScan(ctx, st, ch)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if r2.Committed != 0 || r2.Skipped != 1 || ch.count() != 1 {
		t.Errorf("second scan committed=%d skipped=%d delivered=%d", r2.Committed, r2.Skipped, ch.count())
	}
	if r1.ScanID == r2.ScanID || r1.ScanID == "" {
		t.Errorf("scan ids should be unique: %q %q", r1.ScanID, r2.ScanID)
	}
	if last, ok := p.LastReport(); !ok || last.ScanID != r2.ScanID {
		t.Errorf("LastReport = %v %v", last.ScanID, ok)
	}
}

func TestRunScan_FeedSkipsSeenEntries(t *testing.T) {
	f := newFakeFetcher()
	body := "<p>" + longText(150) + "</p>"
	l := fakeLister{"https://news.example.org/feed": {
		feedItem("entry-1", "https://news.example.org/1", body),
		feedItem("entry-2", "https://news.example.org/2", "short"),
		feedItem("entry-3", "https://news.example.org/3", body),
	}}
	store := &memStore{ids: []string{"entry-2"}}
	st := mustState(t, []source.Spec{{Kind: source.KindFeed, URL: "https://news.example.org/feed"}}, store)
	ch := &recChannel{}

	r, err := newPipeline(l, f, &stubSummarizer{}).RunScan(context.Background(), st, ch)
	if err != nil {
		t.Fatal(err)
	}
	if r.Committed != 2 || ch.count() != 2 || r.Skipped != 1 {
		t.Fatalf("committed=%d delivered=%d skipped=%d, want 2/2/1", r.Committed, ch.count(), r.Skipped)
	}
	if f.count("https://news.example.org/2") != 0 {
		t.Error("seen entry should not be fetched")
	}
	if got := store.ids; len(got) != 3 || got[1] != "entry-1" || got[2] != "entry-3" {
		t.Errorf("store ids = %v", got)
	}
	if store.persists != 2 {
		t.Errorf("persists = %d, want one per commit", store.persists)
	}
}

func TestRunScan_FeedFallsBackToLink(t *testing.T) {
	f := newFakeFetcher()
	f.set("https://news.example.org/a", "<html><head><title>A</title></head><body><article><p>"+
		strings.Repeat("Hospital admissions rose in the week to Sunday. ", 6)+"</p></article></body></html>")
	l := fakeLister{"https://news.example.org/feed": {
		feedItem("a", "https://news.example.org/a", "<p>Teaser only</p>"),
		feedItem("b", "", "<p>Teaser without link</p>"),
	}}
	st := mustState(t, []source.Spec{{Kind: source.KindFeed, URL: "https://news.example.org/feed"}}, &memStore{})
	s := &stubSummarizer{}

	r, err := newPipeline(l, f, s).RunScan(context.Background(), st, &recChannel{})
	if err != nil {
		t.Fatal(err)
	}
	if r.Committed != 1 {
		t.Fatalf("committed = %d, want 1", r.Committed)
	}
	if f.count("https://news.example.org/a") != 1 {
		t.Error("link should be fetched once")
	}
	if !strings.Contains(s.reqs[0].Text, "Hospital admissions") {
		t.Errorf("summarizer text = %q", s.reqs[0].Text)
	}
	if o := r.Outcomes[1]; o.Status != StatusAbandoned || !errors.Is(o.Err, ErrInsufficientContent) {
		t.Errorf("linkless teaser outcome = %+v", o)
	}
}

func TestRunScan_EmptyFileRetriedLater(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.set("https://example.gov/data.csv", "")
	l := fakeLister{"https://example.gov/": {remoteItem("https://example.gov/data.csv")}}
	store := &memStore{}
	st := mustState(t, []source.Spec{pageSpec("https://example.gov/")}, store)
	ch := &recChannel{}
	p := newPipeline(l, f, &stubSummarizer{})

	r, _ := p.RunScan(ctx, st, ch)
	if r.Committed != 0 || ch.count() != 0 {
		t.Fatalf("empty file committed=%d delivered=%d", r.Committed, ch.count())
	}
	o := r.Outcomes[0]
	if o.Status != StatusAbandoned || !errors.Is(o.Err, ErrExtraction) || o.Err.Stage != StageExtract {
		t.Errorf("outcome = %+v", o)
	}
	if st.Seen.Len() != 0 || store.persists != 0 {
		t.Error("abandoned item must not be committed")
	}

	f.set("https://example.gov/data.csv", csvData(10))
	r, _ = p.RunScan(ctx, st, ch)
	if r.Committed != 1 {
		t.Errorf("corrected file committed = %d, want 1", r.Committed)
	}
}

func TestRunScan_UsableThreshold(t *testing.T) {
	f := newFakeFetcher()
	f.set("https://example.gov/short.html", "<p>"+longText(99)+"</p>")
	f.set("https://example.gov/exact.html", "<p>"+longText(100)+"</p>")
	l := fakeLister{"https://example.gov/": {
		remoteItem("https://example.gov/short.html"),
		remoteItem("https://example.gov/exact.html"),
	}}
	s := &stubSummarizer{}
	st := mustState(t, []source.Spec{pageSpec("https://example.gov/")}, &memStore{})

	r, err := newPipeline(l, f, s).RunScan(context.Background(), st, &recChannel{})
	if err != nil {
		t.Fatal(err)
	}
	if o := r.Outcomes[0]; o.Status != StatusAbandoned || !errors.Is(o.Err, ErrInsufficientContent) {
		t.Errorf("99 chars: %+v", o)
	}
	if o := r.Outcomes[1]; o.Status != StatusCommitted {
		t.Errorf("100 chars: %+v", o)
	}
	if len(s.reqs) != 1 || len([]rune(s.reqs[0].Text)) != 100 {
		t.Errorf("summarizer requests = %d", len(s.reqs))
	}
}

func TestRunScan_SummarizerFailureDegrades(t *testing.T) {
	f := newFakeFetcher()
	f.set("https://example.gov/data.csv", csvData(10))
	l := fakeLister{"https://example.gov/": {remoteItem("https://example.gov/data.csv")}}
	st := mustState(t, []source.Spec{pageSpec("https://example.gov/")}, &memStore{})
	ch := &recChannel{}

	r, err := newPipeline(l, f, &stubSummarizer{err: errors.New("429 rate limited")}).RunScan(context.Background(), st, ch)
	if err != nil {
		t.Fatal(err)
	}
	if r.Committed != 1 || ch.count() != 1 {
		t.Fatalf("committed=%d delivered=%d", r.Committed, ch.count())
	}
	if ch.msgs[0].Title != summarize.Placeholder().Title {
		t.Errorf("title = %q, want placeholder", ch.msgs[0].Title)
	}
	o := r.Outcomes[0]
	if !o.Degraded || len(o.Warnings) != 1 || !errors.Is(o.Warnings[0], ErrSummarizer) {
		t.Errorf("outcome = %+v", o)
	}
}

func TestRunScan_DeliveryFailurePolicy(t *testing.T) {
	tests := []struct {
		name       string
		commit     bool
		wantCommit int
		wantSeen   int
	}{
		{"commit anyway", true, 1, 1},
		{"keep retryable", false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher()
			f.set("https://example.gov/data.csv", csvData(10))
			l := fakeLister{"https://example.gov/": {remoteItem("https://example.gov/data.csv")}}
			store := &memStore{}
			st := mustState(t, []source.Spec{pageSpec("https://example.gov/")}, store)

			p := newPipeline(l, f, &stubSummarizer{})
			p.cfg.CommitOnDeliveryFailure = tt.commit
			r, err := p.RunScan(context.Background(), st, &recChannel{err: errors.New("Bad Gateway")})
			if err != nil {
				t.Fatal(err)
			}
			if r.Committed != tt.wantCommit || st.Seen.Len() != tt.wantSeen || r.Delivered != 0 {
				t.Errorf("committed=%d seen=%d delivered=%d", r.Committed, st.Seen.Len(), r.Delivered)
			}
			if len(store.deliveries) != 1 || store.deliveries[0].Status != seen.DeliveryFailed {
				t.Errorf("deliveries = %+v", store.deliveries)
			}
			if !tt.commit && !errors.Is(r.Outcomes[0].Err, ErrDelivery) {
				t.Errorf("err = %v", r.Outcomes[0].Err)
			}
		})
	}
}

func TestRunScan_CrashRecovery(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.set("https://example.gov/a.csv", csvData(10))
	f.set("https://example.gov/b.csv", csvData(11))
	l := fakeLister{"https://example.gov/": {
		remoteItem("https://example.gov/a.csv"),
		remoteItem("https://example.gov/b.csv"),
	}}
	path := filepath.Join(t.TempDir(), "processed.txt")
	specs := []source.Spec{pageSpec("https://example.gov/")}
	idA := FileIdentity([]byte(csvData(10)))

	// The process "dies" while delivering B: A must already be on disk.
	ch := &recChannel{onDeliver: func(n int) error {
		if n != 2 {
			return nil
		}
		onDisk, err := seen.NewFileStore(path).Load(ctx)
		if err != nil || !onDisk.Contains(idA) {
			t.Errorf("A not durable before B: %v %v", onDisk.IDs(), err)
		}
		return errors.New("process killed")
	}}
	p := newPipeline(l, f, &stubSummarizer{})
	p.cfg.CommitOnDeliveryFailure = false
	if _, err := p.RunScan(ctx, mustState(t, specs, seen.NewFileStore(path)), ch); err != nil {
		t.Fatal(err)
	}

	// Restart with fresh state from disk.
	restarted := &recChannel{}
	r, err := newPipeline(l, f, &stubSummarizer{}).RunScan(ctx, mustState(t, specs, seen.NewFileStore(path)), restarted)
	if err != nil {
		t.Fatal(err)
	}
	if r.Committed != 1 || r.Skipped != 1 || restarted.count() != 1 {
		t.Fatalf("after restart committed=%d skipped=%d delivered=%d", r.Committed, r.Skipped, restarted.count())
	}
	if restarted.msgs[0].Source != "https://example.gov/b.csv" {
		t.Errorf("redelivered %q, want b.csv", restarted.msgs[0].Source)
	}
}

func TestRunScan_SourceUnreachableIsolated(t *testing.T) {
	f := newFakeFetcher()
	f.set("https://good.example/data.csv", csvData(10))
	l := fakeLister{"https://good.example/": {
		remoteItem("https://missing.example/gone.csv"),
		remoteItem("https://good.example/data.csv"),
	}}
	specs := []source.Spec{pageSpec("https://down.example/"), pageSpec("https://good.example/")}
	st := mustState(t, specs, &memStore{})

	r, err := newPipeline(l, f, &stubSummarizer{}).RunScan(context.Background(), st, &recChannel{})
	if err != nil {
		t.Fatal(err)
	}
	if r.Committed != 1 || r.Failed != 2 {
		t.Fatalf("committed=%d failed=%d", r.Committed, r.Failed)
	}
	errs := r.Errors()
	if len(errs) != 2 {
		t.Fatalf("errors = %v", errs)
	}
	if errs[0].Stage != StageList || !errors.Is(errs[0], ErrSourceUnreachable) || errs[0].Location != "https://down.example/" {
		t.Errorf("list error = %v", errs[0])
	}
	if errs[1].Stage != StageFetch || !errors.Is(errs[1], ErrSourceUnreachable) {
		t.Errorf("fetch error = %v", errs[1])
	}
}

type panicLister struct {
	bad  string
	next Lister
}

func (l panicLister) List(ctx context.Context, spec source.Spec) ([]source.Item, error) {
	if spec.URL == l.bad {
		panic("goquery: nil selection")
	}
	return l.next.List(ctx, spec)
}

func TestRunScan_ListerPanicIsolated(t *testing.T) {
	f := newFakeFetcher()
	f.set("https://good.example/data.csv", csvData(10))
	l := panicLister{
		bad:  "https://broken.example/",
		next: fakeLister{"https://good.example/": {remoteItem("https://good.example/data.csv")}},
	}
	specs := []source.Spec{pageSpec("https://broken.example/"), pageSpec("https://good.example/")}
	st := mustState(t, specs, &memStore{})

	r, err := newPipeline(l, f, &stubSummarizer{}).RunScan(context.Background(), st, &recChannel{})
	if err != nil {
		t.Fatal(err)
	}
	if r.Committed != 1 || r.Failed != 1 {
		t.Fatalf("committed=%d failed=%d", r.Committed, r.Failed)
	}
	errs := r.Errors()
	if len(errs) != 1 || errs[0].Stage != StageList || !errors.Is(errs[0], ErrSourceUnreachable) {
		t.Fatalf("errors = %v", errs)
	}
	if !strings.Contains(errs[0].Error(), "lister panic") {
		t.Errorf("error = %q", errs[0].Error())
	}
}

func TestRunScan_SingleFlight(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.set("https://example.gov/data.csv", csvData(10))
	l := fakeLister{"https://example.gov/": {remoteItem("https://example.gov/data.csv")}}
	st := mustState(t, []source.Spec{pageSpec("https://example.gov/")}, &memStore{})

	entered := make(chan struct{})
	release := make(chan struct{})
	ch := &recChannel{onDeliver: func(n int) error {
		if n == 1 {
			close(entered)
			<-release
		}
		return nil
	}}
	p := newPipeline(l, f, &stubSummarizer{})

	var r1, r2 Report
	done1 := make(chan struct{})
	done2 := make(chan struct{})
	go func() { r1, _ = p.RunScan(ctx, st, ch); close(done1) }()
	<-entered
	go func() { r2, _ = p.RunScan(ctx, st, ch); close(done2) }()

	select {
	case <-done2:
		t.Fatal("second scan ran while the first was in progress")
	case <-time.After(50 * time.Millisecond):
	}
	if !p.Running() {
		t.Error("Running() = false during scan")
	}

	close(release)
	<-done1
	<-done2

	if ch.count() != 1 {
		t.Fatalf("delivered %d times, want 1", ch.count())
	}
	if r1.Committed+r2.Committed != 1 || r2.Skipped != 1 {
		t.Errorf("r1=%d r2=%d skipped2=%d", r1.Committed, r2.Committed, r2.Skipped)
	}
}

func TestRunScan_Images(t *testing.T) {
	tests := []struct {
		name      string
		gen       stubImages
		wantImage bool
		wantWarn  bool
	}{
		{"image attached", stubImages{img: []byte("png")}, true, false},
		{"image failure", stubImages{err: errors.New("content policy")}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher()
			f.set("https://example.gov/data.csv", csvData(10))
			l := fakeLister{"https://example.gov/": {remoteItem("https://example.gov/data.csv")}}
			st := mustState(t, []source.Spec{pageSpec("https://example.gov/")}, &memStore{})
			ch := &recChannel{}

			p := newPipeline(l, f, &stubSummarizer{})
			p.cfg.Images = tt.gen
			r, err := p.RunScan(context.Background(), st, ch)
			if err != nil {
				t.Fatal(err)
			}
			if r.Committed != 1 {
				t.Fatalf("committed = %d", r.Committed)
			}
			if got := len(ch.msgs[0].Image) > 0; got != tt.wantImage {
				t.Errorf("image present = %v", got)
			}
			if got := len(r.Outcomes[0].Warnings) > 0 && errors.Is(r.Outcomes[0].Warnings[0], ErrImage); got != tt.wantWarn {
				t.Errorf("image warning = %v", got)
			}
		})
	}
}

func TestRunScan_RedactsBeforeSummarizing(t *testing.T) {
	f := newFakeFetcher()
	f.set("https://example.gov/contacts.csv", "name,email\n"+strings.Repeat("Analyst,analyst@example.gov\n", 8))
	l := fakeLister{"https://example.gov/": {remoteItem("https://example.gov/contacts.csv")}}
	st := mustState(t, []source.Spec{pageSpec("https://example.gov/")}, &memStore{})
	red, err := privacy.New([]string{privacy.EmailPattern})
	if err != nil {
		t.Fatal(err)
	}
	s := &stubSummarizer{}

	p := newPipeline(l, f, s)
	p.cfg.Redactor = red
	if _, err := p.RunScan(context.Background(), st, &recChannel{}); err != nil {
		t.Fatal(err)
	}
	if len(s.reqs) != 1 {
		t.Fatalf("summarizer calls = %d", len(s.reqs))
	}
	if strings.Contains(s.reqs[0].Text, "@example.gov") || !strings.Contains(s.reqs[0].Text, "[REDACTED]") {
		t.Errorf("text not redacted: %q", s.reqs[0].Text)
	}
}

func TestRunScan_CancelledDuringDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFakeFetcher()
	f.set("https://example.gov/data.csv", csvData(10))
	f.set("https://example.gov/more.csv", csvData(20))
	l := fakeLister{"https://example.gov/": {
		remoteItem("https://example.gov/data.csv"),
		remoteItem("https://example.gov/more.csv"),
	}}
	store := &memStore{}
	st := mustState(t, []source.Spec{pageSpec("https://example.gov/")}, store)
	ch := &recChannel{onDeliver: func(int) error {
		cancel()
		return context.Canceled
	}}

	r, err := newPipeline(l, f, &stubSummarizer{}).RunScan(ctx, st, ch)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if r.Committed != 0 || st.Seen.Len() != 0 || len(store.ids) != 0 {
		t.Errorf("in-flight item committed on shutdown: %+v", r)
	}
	if ch.count() != 1 {
		t.Errorf("scan continued after cancel: %d deliveries", ch.count())
	}
}

func TestRunScan_PersistFailure(t *testing.T) {
	f := newFakeFetcher()
	f.set("https://example.gov/data.csv", csvData(10))
	l := fakeLister{"https://example.gov/": {remoteItem("https://example.gov/data.csv")}}
	st := mustState(t, []source.Spec{pageSpec("https://example.gov/")}, &memStore{failPersist: true})

	r, err := newPipeline(l, f, &stubSummarizer{}).RunScan(context.Background(), st, &recChannel{})
	if err != nil {
		t.Fatal(err)
	}
	o := r.Outcomes[0]
	if o.Status != StatusFailed || !errors.Is(o.Err, ErrCommit) || r.Committed != 0 {
		t.Errorf("outcome = %+v", o)
	}
}

func TestRunScan_RecordsDeliveries(t *testing.T) {
	f := newFakeFetcher()
	f.set("https://example.gov/data.csv", csvData(10))
	l := fakeLister{"https://example.gov/": {remoteItem("https://example.gov/data.csv")}}
	store := &memStore{}
	st := mustState(t, []source.Spec{pageSpec("https://example.gov/")}, store)

	r, err := newPipeline(l, f, &stubSummarizer{}).RunScan(context.Background(), st, &recChannel{})
	if err != nil {
		t.Fatal(err)
	}
	if len(store.deliveries) != 1 {
		t.Fatalf("deliveries = %d", len(store.deliveries))
	}
	d := store.deliveries[0]
	if d.ScanID != r.ScanID || d.Channel != "test" || d.Status != seen.DeliveryOK || d.Identity != r.Outcomes[0].Identity {
		t.Errorf("delivery = %+v", d)
	}
}

func TestRunScan_Metrics(t *testing.T) {
	f := newFakeFetcher()
	f.set("https://example.gov/data.csv", csvData(10))
	f.set("https://example.gov/empty.csv", "")
	l := fakeLister{"https://example.gov/": {
		remoteItem("https://example.gov/data.csv"),
		remoteItem("https://example.gov/empty.csv"),
	}}
	st := mustState(t, []source.Spec{pageSpec("https://example.gov/")}, &memStore{})

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	p := newPipeline(l, f, &stubSummarizer{})
	p.cfg.Metrics = m
	if _, err := p.RunScan(context.Background(), st, &recChannel{}); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.ScansTotal); got != 1 {
		t.Errorf("scans = %v", got)
	}
	if got := testutil.ToFloat64(m.CommittedTotal); got != 1 {
		t.Errorf("committed = %v", got)
	}
	if got := testutil.ToFloat64(m.ItemsTotal.WithLabelValues(string(StatusAbandoned), string(StageExtract))); got != 1 {
		t.Errorf("abandoned at extract = %v", got)
	}
	if got := testutil.ToFloat64(m.SeenIdentities); got != 1 {
		t.Errorf("seen gauge = %v", got)
	}
}

func TestLoadState(t *testing.T) {
	ctx := context.Background()
	if _, err := LoadState(ctx, nil, &memStore{}); err == nil {
		t.Error("expected error for no sources")
	}
	if _, err := LoadState(ctx, []source.Spec{pageSpec("https://a.example/")}, nil); err == nil {
		t.Error("expected error for nil store")
	}
	st, err := LoadState(ctx, []source.Spec{pageSpec("https://a.example/")}, &memStore{ids: []string{"x"}})
	if err != nil || !st.Seen.Contains("x") {
		t.Errorf("LoadState = %v, %v", st, err)
	}
}

func TestFileIdentity(t *testing.T) {
	a := []byte("week,cases\n1,100\n")
	if FileIdentity(a) != FileIdentity([]byte("week,cases\n1,100\n")) {
		t.Error("identity not stable")
	}
	b := append([]byte(nil), a...)
	b[len(b)-2] = '1'
	if FileIdentity(a) == FileIdentity(b) {
		t.Error("single byte change should change identity")
	}
	if len(FileIdentity(nil)) != 64 {
		t.Errorf("identity length = %d", len(FileIdentity(nil)))
	}
}

func TestEntryIdentity(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"entry-1", "entry-1"},
		{"  https://news.example.org/a  ", "https://news.example.org/a"},
		{"multi\nline\r\nid", "multi line id"},
	}
	for _, tt := range tests {
		if got := EntryIdentity(source.Item{EntryID: tt.id}); got != tt.want {
			t.Errorf("EntryIdentity(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestStageError(t *testing.T) {
	cause := errors.New("timeout")
	err := fmt.Errorf("wrapped: %w", stageErr(StageFetch, ErrSourceUnreachable, "https://x.example/", cause))

	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageFetch {
		t.Fatalf("errors.As failed: %v", err)
	}
	if !errors.Is(err, ErrSourceUnreachable) || !errors.Is(err, cause) {
		t.Error("errors.Is should match kind and cause")
	}
	if errors.Is(err, ErrDelivery) {
		t.Error("unexpected kind match")
	}
	if !strings.Contains(se.Error(), "fetch https://x.example/") {
		t.Errorf("message = %q", se.Error())
	}
}
