package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tartampluch/go-musicbot/internal/config"
)

// AnniversaryResult is the outcome of comparing a claim with today.
type AnniversaryResult struct {
	IsMatch    bool   `json:"isMatch"`
	YearsSince *int   `json:"yearsSince,omitempty"`
	Ordinal    string `json:"ordinal,omitempty"`
}

// evaluate is the only place where a claim is matched against a calendar day.
// Every public operation of the Verifier goes through it.
func evaluate(claim DateClaim, today time.Time) AnniversaryResult {
	if claim.Month != int(today.Month()) || claim.Day != today.Day() {
		return AnniversaryResult{}
	}
	years := today.Year() - claim.Year
	return AnniversaryResult{IsMatch: true, YearsSince: &years, Ordinal: Ordinal(years)}
}

// VerificationRequest describes a date-based claim to check.
type VerificationRequest struct {
	Kind     SubjectKind
	DateText string

	// Subject is the album title or the musician name.
	Subject string

	// Counterparty is the artist of an album.
	Counterparty string

	// Info is free text about a musician (genre, band), used in image prompts.
	Info string
}

// VerificationOutcome is returned to the agent verbatim as JSON.
type VerificationOutcome struct {
	Approved             bool   `json:"approved"`
	ApprovalID           string `json:"approvalId,omitempty"`
	YearsSince           *int   `json:"yearsSince,omitempty"`
	Ordinal              string `json:"ordinal,omitempty"`
	Reason               string `json:"reason"`
	MatchedDate          string `json:"matchedDate,omitempty"`
	TodayDate            string `json:"todayDate,omitempty"`
	SuggestedImagePrompt string `json:"suggestedImagePrompt,omitempty"`
}

// Verifier gates anniversary and birthday content behind an exact date match.
type Verifier struct {
	Clock  Clock
	Ledger *Ledger

	// Catalog is an optional reference dataset. When it knows the subject
	// under a different date the request is rejected.
	Catalog *Catalog

	// Location defines "today". Nil means time.Local. Use SetLocation once
	// the verifier is shared.
	Location *time.Location

	mu sync.RWMutex
}

// NewVerifier wires a verifier to its ledger.
func NewVerifier(clock Clock, ledger *Ledger) *Verifier {
	return &Verifier{Clock: clock, Ledger: ledger}
}

// SetLocation changes the timezone that defines "today".
func (v *Verifier) SetLocation(loc *time.Location) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Location = loc
}

// TimeZone returns the timezone that defines "today".
func (v *Verifier) TimeZone() *time.Location {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.Location == nil {
		return time.Local
	}
	return v.Location
}

func (v *Verifier) today() time.Time {
	return v.Clock.Now().In(v.TimeZone())
}

// Verify runs the shared check. With record set, a match is stored in the
// ledger and an approval id is issued; without it nothing is written.
func (v *Verifier) Verify(req VerificationRequest, record bool) VerificationOutcome {
	if strings.TrimSpace(req.DateText) == "" {
		return v.deny(req, VerificationOutcome{Reason: config.ReasonMissingDate})
	}
	if record {
		switch req.Kind {
		case SubjectAlbum:
			if req.Subject == "" || req.Counterparty == "" {
				return v.deny(req, VerificationOutcome{Reason: config.ReasonMissingAlbum})
			}
		case SubjectBirthday:
			if req.Subject == "" {
				return v.deny(req, VerificationOutcome{Reason: config.ReasonMissingBirthday})
			}
		}
	}

	claim, err := ParseDateClaim(strings.TrimSpace(req.DateText))
	if err != nil {
		return v.deny(req, VerificationOutcome{Reason: config.ReasonUnparseable})
	}

	today := v.today()
	todayText := today.Format(config.DateFormatFullDash)
	result := evaluate(claim, today)
	if !result.IsMatch {
		return v.deny(req, VerificationOutcome{
			Reason:      config.ReasonNotMatch,
			MatchedDate: claim.String(),
			TodayDate:   todayText,
		})
	}

	if req.Subject != "" {
		if ref, ok := v.Catalog.Lookup(req.Kind, req.Subject, req.Counterparty); ok && !evaluate(ref.Date, today).IsMatch {
			return v.deny(req, VerificationOutcome{
				Reason:      config.ReasonReferenceMismatch,
				MatchedDate: ref.Date.String(),
				TodayDate:   todayText,
			})
		}
	}

	out := VerificationOutcome{
		Approved:    true,
		YearsSince:  result.YearsSince,
		Ordinal:     result.Ordinal,
		Reason:      config.ReasonMatch,
		MatchedDate: claim.String(),
		TodayDate:   todayText,
	}
	if !record {
		return out
	}

	out.ApprovalID = v.Ledger.Store(ApprovalRecord{
		SubjectKind:      req.Kind,
		SubjectName:      req.Subject,
		CounterpartyName: req.Counterparty,
		OriginalDateText: req.DateText,
		YearsSince:       *result.YearsSince,
	})
	out.Reason = config.ReasonApproved
	out.SuggestedImagePrompt = imagePrompt(req)

	slog.Info(config.MsgApprovalGranted,
		config.LogKeyComponent, config.CompEngine,
		config.LogKeyKind, req.Kind,
		config.LogKeySubject, req.Subject,
		config.LogKeyApproval, out.ApprovalID,
		config.LogKeyValue, out.Ordinal)
	return out
}

func (v *Verifier) deny(req VerificationRequest, out VerificationOutcome) VerificationOutcome {
	slog.Info(config.MsgApprovalDenied,
		config.LogKeyComponent, config.CompEngine,
		config.LogKeyKind, req.Kind,
		config.LogKeySubject, req.Subject,
		config.LogKeyDate, req.DateText,
		config.LogKeyReason, out.Reason)
	return out
}

func imagePrompt(req VerificationRequest) string {
	switch req.Kind {
	case SubjectAlbum:
		return fmt.Sprintf(config.FormatAlbumPrompt, req.Subject, req.Counterparty)
	case SubjectBirthday:
		info := req.Info
		if info == "" {
			info = config.FallbackMusician
		}
		return fmt.Sprintf(config.FormatBirthdayPrompt, req.Subject, info)
	}
	return ""
}

// -----------------------------------------------------------------------------
// Agent-facing operations
// -----------------------------------------------------------------------------

// RequestAnniversaryApproval issues an approval id when today is the release
// anniversary of the album.
func (v *Verifier) RequestAnniversaryApproval(releaseDate, album, artist string) VerificationOutcome {
	return v.Verify(VerificationRequest{
		Kind:         SubjectAlbum,
		DateText:     releaseDate,
		Subject:      album,
		Counterparty: artist,
	}, true)
}

// RequestBirthdayApproval issues an approval id when today is the musician's
// birthday.
func (v *Verifier) RequestBirthdayApproval(birthDate, musician, info string) VerificationOutcome {
	return v.Verify(VerificationRequest{
		Kind:     SubjectBirthday,
		DateText: birthDate,
		Subject:  musician,
		Info:     info,
	}, true)
}

// ApprovalCheck answers whether a previously issued approval may be used.
type ApprovalCheck struct {
	CanPost          bool        `json:"canPost"`
	ApprovalID       string      `json:"approvalId,omitempty"`
	SubjectKind      SubjectKind `json:"subjectKind,omitempty"`
	SubjectName      string      `json:"subjectName,omitempty"`
	CounterpartyName string      `json:"counterpartyName,omitempty"`
	YearsSince       *int        `json:"yearsSince,omitempty"`
	Ordinal          string      `json:"ordinal,omitempty"`
	Reason           string      `json:"reason"`
}

// VerifyApproval looks an approval id up. Unknown and swept ids are both
// reported as not postable.
func (v *Verifier) VerifyApproval(approvalID string) ApprovalCheck {
	if strings.TrimSpace(approvalID) == "" {
		return ApprovalCheck{Reason: config.ReasonMissingApprovalID}
	}
	rec, ok := v.Ledger.Lookup(approvalID)

	slog.Debug(config.MsgApprovalLookup,
		config.LogKeyComponent, config.CompEngine,
		config.LogKeyApproval, approvalID,
		config.LogKeyOutcome, ok)

	if !ok || !rec.Approved {
		return ApprovalCheck{ApprovalID: approvalID, Reason: config.ReasonUnknownApproval}
	}
	years := rec.YearsSince
	return ApprovalCheck{
		CanPost:          true,
		ApprovalID:       rec.ApprovalID,
		SubjectKind:      rec.SubjectKind,
		SubjectName:      rec.SubjectName,
		CounterpartyName: rec.CounterpartyName,
		YearsSince:       &years,
		Ordinal:          Ordinal(years),
		Reason:           config.ReasonApproved,
	}
}

// DateCheck is the read-only answer of CheckDate.
type DateCheck struct {
	AnniversaryResult
	Reason    string `json:"reason"`
	TodayDate string `json:"todayDate,omitempty"`
}

// CheckDate reports whether dateText falls on today without touching the
// ledger.
func (v *Verifier) CheckDate(dateText string) DateCheck {
	out := v.Verify(VerificationRequest{DateText: dateText}, false)
	return DateCheck{
		AnniversaryResult: AnniversaryResult{
			IsMatch:    out.Approved,
			YearsSince: out.YearsSince,
			Ordinal:    out.Ordinal,
		},
		Reason:    out.Reason,
		TodayDate: out.TodayDate,
	}
}

// BatchItem is one album submitted to CheckBatch.
type BatchItem struct {
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	ReleaseDate string `json:"releaseDate"`
}

// BatchMatch is an album whose anniversary is today.
type BatchMatch struct {
	BatchItem
	YearsSince int    `json:"yearsSince"`
	Ordinal    string `json:"ordinal"`
}

// BatchInvalid reports an item that could not be checked at all.
type BatchInvalid struct {
	Index  int    `json:"index"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// BatchRejected is an album dated today by the caller but known to the
// reference catalog under another date.
type BatchRejected struct {
	Index         int    `json:"index"`
	Name          string `json:"name"`
	Reason        string `json:"reason"`
	ReferenceDate string `json:"referenceDate"`
}

// BatchResult groups the outcome of CheckBatch.
type BatchResult struct {
	TodayDate  string          `json:"todayDate"`
	Total      int             `json:"total"`
	MatchCount int             `json:"matchCount"`
	Matches    []BatchMatch    `json:"matches"`
	Invalid    []BatchInvalid  `json:"invalid,omitempty"`
	Rejected   []BatchRejected `json:"rejected,omitempty"`
}

// CheckBatch returns the albums whose release anniversary is today. Items
// with missing fields or unparseable dates are listed as invalid, items the
// reference catalog contradicts as rejected. Nothing is written to the ledger.
func (v *Verifier) CheckBatch(items []BatchItem) BatchResult {
	res := BatchResult{
		TodayDate: v.today().Format(config.DateFormatFullDash),
		Total:     len(items),
		Matches:   []BatchMatch{},
	}
	for i, item := range items {
		if item.Name == "" || strings.TrimSpace(item.ReleaseDate) == "" {
			res.Invalid = append(res.Invalid, BatchInvalid{Index: i, Name: item.Name, Reason: config.ReasonMissingBatchField})
			continue
		}
		out := v.Verify(VerificationRequest{
			Kind:         SubjectAlbum,
			DateText:     item.ReleaseDate,
			Subject:      item.Name,
			Counterparty: item.Artist,
		}, false)

		switch {
		case out.Approved:
			res.Matches = append(res.Matches, BatchMatch{BatchItem: item, YearsSince: *out.YearsSince, Ordinal: out.Ordinal})
		case out.Reason == config.ReasonUnparseable:
			res.Invalid = append(res.Invalid, BatchInvalid{Index: i, Name: item.Name, Reason: out.Reason})
		case out.Reason == config.ReasonReferenceMismatch:
			res.Rejected = append(res.Rejected, BatchRejected{
				Index:         i,
				Name:          item.Name,
				Reason:        out.Reason,
				ReferenceDate: out.MatchedDate,
			})
		}
	}
	res.MatchCount = len(res.Matches)
	return res
}
