package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"affsync/internal/amqp"
	"affsync/internal/core"
	"affsync/internal/log"
	"affsync/internal/sheets"
	"affsync/internal/storage"
)

// Scope limits a pass to one or both feeds.
type Scope string

const (
	ScopeAll         Scope = "all"
	ScopeEntrants    Scope = "entrants"
	ScopeCommissions Scope = "commissions"
)

// ParseScope maps "" to ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeEntrants, ScopeCommissions:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown scope %q: must be entrants or commissions", s)
}

func (s Scope) includes(feed Scope) bool {
	return s == ScopeAll || s == feed
}

// RecordFetcher returns every normalized record of a feed.
type RecordFetcher interface {
	Commissions(ctx context.Context) ([]*core.Record, error)
	Entrants(ctx context.Context) ([]*core.Record, error)
}

// RunRecorder keeps a history of passes.
type RunRecorder interface {
	StartRun(ctx context.Context, run storage.Run) error
	FinishRun(ctx context.Context, run storage.Run) error
	RecordTabWrite(ctx context.Context, w storage.TabWrite) error
	SetMarker(ctx context.Context, m storage.Marker) error
}

// RunPublisher announces finished passes.
type RunPublisher interface {
	PublishRunCompleted(ctx context.Context, msg *amqp.RunCompletedMessage) error
}

type SyncOptions struct {
	// EntrantsTab is the single tab entrants are written to.
	EntrantsTab string
	// TabLayout formats a commission's month into its tab name.
	TabLayout string
	Scope     Scope
}

// SyncResult summarises one pass.
type SyncResult struct {
	RunID       string
	Scope       Scope
	Entrants    int
	Commissions int
	Tabs        []string
	// Marker is the last body row of the entrants tab before the pass.
	Marker     []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// SyncService copies both feeds into the spreadsheet.
type SyncService struct {
	sheet     sheets.Spreadsheet
	fetcher   RecordFetcher
	recorder  RunRecorder
	publisher RunPublisher
	opts      SyncOptions
	logger    *log.Logger

	now   func() time.Time
	newID func() string
}

// NewSyncService wires a pass. recorder and publisher may be nil.
func NewSyncService(sheet sheets.Spreadsheet, fetcher RecordFetcher, recorder RunRecorder, publisher RunPublisher, opts SyncOptions, logger *log.Logger) *SyncService {
	if logger == nil {
		logger = log.Discard()
	}
	if opts.EntrantsTab == "" {
		opts.EntrantsTab = "Contestants"
	}
	if opts.TabLayout == "" {
		opts.TabLayout = core.MonthOnlyLayout
	}
	if opts.Scope == "" {
		opts.Scope = ScopeAll
	}
	return &SyncService{
		sheet:     sheet,
		fetcher:   fetcher,
		recorder:  recorder,
		publisher: publisher,
		opts:      opts,
		logger:    logger.WithComponent(log.ComponentSync),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

type runState struct {
	id     string
	tabs   []string
	result *SyncResult
}

// Run performs one pass: entrants first, then commissions. The first error
// stops the pass; tabs already written stay written.
func (s *SyncService) Run(ctx context.Context) (*SyncResult, error) {
	run := &runState{id: s.newID()}
	run.result = &SyncResult{RunID: run.id, Scope: s.opts.Scope, StartedAt: s.now()}

	s.startRun(ctx, run.result)

	err := s.pass(ctx, run)

	run.result.Tabs = run.tabs
	run.result.FinishedAt = s.now()
	// An interrupted pass is still recorded.
	s.finishRun(context.WithoutCancel(ctx), run.result, err)

	if err != nil {
		return run.result, err
	}

	s.logger.InfoContext(ctx, "Sync complete",
		log.FieldRunID, run.id,
		log.FieldDuration, run.result.FinishedAt.Sub(run.result.StartedAt),
		log.FieldRecords, run.result.Entrants+run.result.Commissions)
	return run.result, nil
}

func (s *SyncService) pass(ctx context.Context, run *runState) error {
	reg, err := s.loadTabs(ctx)
	if err != nil {
		return err
	}

	if s.opts.Scope.includes(ScopeEntrants) {
		if err := s.syncEntrants(ctx, run, reg); err != nil {
			return fmt.Errorf("sync entrants: %w", err)
		}
	}
	if s.opts.Scope.includes(ScopeCommissions) {
		if err := s.syncCommissions(ctx, run, reg); err != nil {
			return fmt.Errorf("sync commissions: %w", err)
		}
	}
	return nil
}

func (s *SyncService) loadTabs(ctx context.Context) (*TabRegistry, error) {
	names, err := s.sheet.ListTabs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	s.logger.DebugContext(ctx, "Loaded tabs", "count", len(names))
	return NewTabRegistry(names), nil
}

// SyncEntrants writes every entrant to the entrants tab.
func (s *SyncService) SyncEntrants(ctx context.Context, reg *TabRegistry) (*SyncResult, error) {
	run := s.adhocRun()
	err := s.syncEntrants(ctx, run, reg)
	run.result.Tabs = run.tabs
	return run.result, err
}

// SyncCommissions writes commissions into one tab per month.
func (s *SyncService) SyncCommissions(ctx context.Context, reg *TabRegistry) (*SyncResult, error) {
	run := s.adhocRun()
	err := s.syncCommissions(ctx, run, reg)
	run.result.Tabs = run.tabs
	return run.result, err
}

// adhocRun tracks a single-feed call made outside Run. It has no id, so
// nothing is recorded for it.
func (s *SyncService) adhocRun() *runState {
	return &runState{result: &SyncResult{Scope: s.opts.Scope, StartedAt: s.now()}}
}

func (s *SyncService) syncEntrants(ctx context.Context, run *runState, reg *TabRegistry) error {
	records, err := s.fetcher.Entrants(ctx)
	if err != nil {
		return err
	}
	run.result.Entrants = len(records)

	tab := s.opts.EntrantsTab
	if reg.Has(tab) {
		marker, err := s.lastSyncedEntrant(ctx, tab)
		if err != nil {
			return err
		}
		run.result.Marker = marker
		s.recordMarker(ctx, run.id, marker)
	}

	return s.writeTab(ctx, run, reg, tab, records)
}

// lastSyncedEntrant returns the last body row of tab, or nil for an empty
// body. It is informational: every pass still rewrites the full feed.
func (s *SyncService) lastSyncedEntrant(ctx context.Context, tab string) ([]string, error) {
	body, err := s.sheet.ReadRange(ctx, tab, fmt.Sprintf("A%d:Z", sheets.BodyStartRow))
	if err != nil {
		return nil, fmt.Errorf("read body of %q: %w", tab, err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	last := body[len(body)-1]
	s.logger.DebugContext(ctx, "Last synced entrant", log.FieldTab, tab, log.FieldMarker, last)
	return last, nil
}

func (s *SyncService) syncCommissions(ctx context.Context, run *runState, reg *TabRegistry) error {
	records, err := s.fetcher.Commissions(ctx)
	if err != nil {
		return err
	}
	run.result.Commissions = len(records)

	buckets, err := core.PartitionByMonth(records, s.opts.TabLayout)
	if err != nil {
		return err
	}

	for _, label := range buckets.Labels() {
		if err := s.writeTab(ctx, run, reg, label, buckets.Records(label)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SyncService) startRun(ctx context.Context, r *SyncResult) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.StartRun(ctx, storage.Run{ID: r.RunID, Scope: string(r.Scope), StartedAt: r.StartedAt})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to record run start", log.FieldRunID, r.RunID, log.FieldError, err)
	}
}

func (s *SyncService) finishRun(ctx context.Context, r *SyncResult, runErr error) {
	status, errText := storage.StatusSucceeded, ""
	if runErr != nil {
		status, errText = storage.StatusFailed, runErr.Error()
	}

	if s.recorder != nil {
		err := s.recorder.FinishRun(ctx, storage.Run{
			ID:          r.RunID,
			Status:      status,
			FinishedAt:  sql.NullTime{Time: r.FinishedAt, Valid: true},
			Entrants:    r.Entrants,
			Commissions: r.Commissions,
			Error:       errText,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to record run finish", log.FieldRunID, r.RunID, log.FieldError, err)
		}
	}

	if s.publisher != nil {
		err := s.publisher.PublishRunCompleted(ctx, &amqp.RunCompletedMessage{
			RunID:       r.RunID,
			Scope:       string(r.Scope),
			Status:      status,
			Error:       errText,
			Entrants:    r.Entrants,
			Commissions: r.Commissions,
			Tabs:        r.Tabs,
			StartedAt:   r.StartedAt,
			FinishedAt:  r.FinishedAt,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to publish run completed", log.FieldRunID, r.RunID, log.FieldError, err)
		}
	}
}

func (s *SyncService) recordTabWrite(ctx context.Context, runID, tab string, rows int, state TabState) {
	if s.recorder == nil || runID == "" {
		return
	}
	err := s.recorder.RecordTabWrite(ctx, storage.TabWrite{
		RunID:         runID,
		Tab:           tab,
		Rows:          rows,
		Created:       state.Created,
		HeaderWritten: state.HeaderWritten,
		WrittenAt:     s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to record tab write", log.FieldTab, tab, log.FieldError, err)
	}
}

func (s *SyncService) recordMarker(ctx context.Context, runID string, marker []string) {
	if s.recorder == nil || runID == "" || marker == nil {
		return
	}
	value, err := json.Marshal(marker)
	if err == nil {
		err = s.recorder.SetMarker(ctx, storage.Marker{
			Source:    log.SourceEntrants,
			Value:     string(value),
			RunID:     runID,
			UpdatedAt: s.now(),
		})
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to record entrant marker", log.FieldError, err)
	}
}
