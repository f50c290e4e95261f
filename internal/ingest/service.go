package ingest

import (
	"context"
	"sync/atomic"

	"github.com/ppiankov/purefact/internal/deliver"
)

// Service binds a Pipeline to the State it scans. The bot, the scheduler
// and the scan command all go through it.
type Service struct {
	pipe *Pipeline
	st   *State
	seen atomic.Int64
}

func NewService(p *Pipeline, st *State) *Service {
	s := &Service{pipe: p, st: st}
	s.seen.Store(int64(st.Seen.Len()))
	return s
}

// Scan runs one scan delivering to ch, then sends the completion notice
// to ch. A failed notice is logged and does not fail the scan.
func (s *Service) Scan(ctx context.Context, ch deliver.Channel) (Report, error) {
	r, err := s.pipe.RunScan(ctx, s.st, ch)
	if r.ScanID == "" {
		return r, err
	}
	s.seen.Store(int64(r.Seen))
	if ctx.Err() != nil {
		return r, err
	}
	if nerr := ch.Notify(ctx, r.Notice()); nerr != nil {
		s.pipe.cfg.Logger.Warn().Err(nerr).Str("scan_id", r.ScanID).Str("channel", ch.Name()).Msg("completion notice failed")
	}
	return r, err
}

func (s *Service) Running() bool { return s.pipe.Running() }

func (s *Service) LastReport() (Report, bool) { return s.pipe.LastReport() }

// SeenCount is the seen-set size as of the last finished scan.
func (s *Service) SeenCount() int { return int(s.seen.Load()) }

func (s *Service) Sources() int { return len(s.st.Sources) }
