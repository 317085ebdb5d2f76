package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tartampluch/go-musicbot/internal/config"
)

// SubjectKind distinguishes the two kinds of date-gated content.
type SubjectKind string

const (
	SubjectAlbum    SubjectKind = config.SubjectAlbum
	SubjectBirthday SubjectKind = config.SubjectBirthday
)

// ApprovalRecord proves that a verification call confirmed a date match.
// Records are immutable once stored.
type ApprovalRecord struct {
	ApprovalID       string      `json:"approvalId"`
	SubjectKind      SubjectKind `json:"subjectKind"`
	SubjectName      string      `json:"subjectName"`
	CounterpartyName string      `json:"counterpartyName,omitempty"`
	OriginalDateText string      `json:"originalDateText"`
	YearsSince       int         `json:"yearsSince"`
	Approved         bool        `json:"approved"`
}

// Ledger stores approval records keyed by approval id. The whole ledger is
// wiped on a fixed interval instead of expiring records individually.
type Ledger struct {
	Clock Clock

	// SweepInterval is the period of RunSweeper. Zero means
	// config.DefaultLedgerSweepInterval. Use SetSweepInterval once the
	// sweeper runs.
	SweepInterval time.Duration

	mu      sync.Mutex
	records map[string]ApprovalRecord
	seq     uint64
}

// NewLedger creates an empty ledger driven by clock.
func NewLedger(clock Clock) *Ledger {
	return &Ledger{
		Clock:         clock,
		SweepInterval: config.DefaultLedgerSweepInterval,
		records:       make(map[string]ApprovalRecord),
	}
}

var nonIDChars = regexp.MustCompile(`[^A-Za-z0-9]+`)

// sanitizeSubject turns a free-form name into an id-safe fragment.
func sanitizeSubject(name string) string {
	s := strings.Trim(nonIDChars.ReplaceAllString(name, "-"), "-")
	if len(s) > config.ApprovalIDMaxSubject {
		s = strings.TrimRight(s[:config.ApprovalIDMaxSubject], "-")
	}
	if s == "" {
		s = config.FallbackName
	}
	return s
}

// Store assigns a fresh approval id to rec, marks it approved and keeps it.
func (l *Ledger) Store(rec ApprovalRecord) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	id := fmt.Sprintf(config.FormatApprovalID,
		rec.SubjectKind, sanitizeSubject(rec.SubjectName), l.Clock.Now().UnixNano(), l.seq)

	rec.ApprovalID = id
	rec.Approved = true
	if l.records == nil {
		l.records = make(map[string]ApprovalRecord)
	}
	l.records[id] = rec
	return id
}

// Lookup returns the record for id. Unknown and swept ids both report false.
func (l *Ledger) Lookup(id string) (ApprovalRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	return rec, ok
}

// Len returns the number of stored approvals.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Clear wipes every approval.
func (l *Ledger) Clear() {
	l.mu.Lock()
	n := len(l.records)
	l.records = make(map[string]ApprovalRecord)
	l.mu.Unlock()

	slog.Info(config.MsgLedgerCleared,
		config.LogKeyComponent, config.CompLedger,
		config.LogKeyCount, n)
}

// SetSweepInterval changes the sweep period. A running sweeper applies it
// after its current wait.
func (l *Ledger) SetSweepInterval(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.SweepInterval = d
}

// Interval returns the effective sweep period.
func (l *Ledger) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SweepInterval <= 0 {
		return config.DefaultLedgerSweepInterval
	}
	return l.SweepInterval
}

// RunSweeper clears the ledger every Interval until ctx is cancelled.
// A sweep may land in the middle of a cycle; lookups after it simply miss.
func (l *Ledger) RunSweeper(ctx context.Context) error {
	slog.Info(config.MsgSweeperStart,
		config.LogKeyComponent, config.CompLedger,
		config.LogKeyInterval, l.Interval())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.Clock.After(l.Interval()):
			l.Clear()
		}
	}
}
