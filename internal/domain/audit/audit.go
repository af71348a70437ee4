// Package audit produces the tamper-evident record of a closed calibration
// session and verifies records handed back to it.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/perfcal/internal/domain/model"
)

const defaultMarker = "…"

// Generator builds artifacts. The zero value is not usable; call New.
type Generator struct {
	baseURL string
	marker  string
}

// New returns a generator with the given options.
func New(opts ...Option) *Generator {
	g := &Generator{
		baseURL: "https://perfcal.local/artifacts",
		marker:  defaultMarker,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Input is everything an artifact captures. Names maps rating ids to
// employee names; a missing name leaves the row with the ids only.
type Input struct {
	Session      *model.CalibrationSession
	Entries      []model.CalibrationAdjustment
	Names        map[string]string
	BonusFactor  *float64
	Version      int
	DisplayLimit int
	GeneratedAt  time.Time
}

// Generate builds the artifact for a closed session.
func (g *Generator) Generate(in Input) (*model.AuditArtifact, error) {
	s := in.Session
	if s == nil || s.Status != model.SessionClosed {
		return nil, ErrSessionNotClosed
	}
	if in.Version < 1 {
		return nil, model.Invalid("version", in.Version, "must be at least 1")
	}

	entries := append([]model.CalibrationAdjustment(nil), in.Entries...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	at := in.GeneratedAt.UTC()
	a := &model.AuditArtifact{
		ID:            ID(s.ID, at),
		Version:       in.Version,
		SessionID:     s.ID,
		SessionName:   s.Name,
		CycleID:       s.CycleID,
		TenantID:      s.TenantID,
		FacilitatorID: s.FacilitatorID,
		Panelists:     s.Clone().Panelists,
		ScheduledAt:   utc(s.ScheduledAt),
		StartedAt:     utc(s.StartedAt),
		ClosedAt:      utc(s.ClosedAt),
		GeneratedAt:   at,
		Rows:          make([]model.ArtifactRow, 0, len(entries)),
		BonusFactor:   in.BonusFactor,
	}
	for i := range a.Panelists {
		a.Panelists[i].SignedOffAt = utc(a.Panelists[i].SignedOffAt)
	}
	for _, e := range entries {
		text, cut := g.truncate(e.Justification, in.DisplayLimit)
		a.Rows = append(a.Rows, model.ArtifactRow{
			Seq:           e.Seq,
			Kind:          e.Kind,
			RatingID:      e.RatingID,
			EmployeeID:    e.EmployeeID,
			EmployeeName:  in.Names[e.RatingID],
			OriginalScore: e.OriginalScore,
			OriginalLevel: e.OriginalLevel,
			FinalScore:    e.FinalScore,
			FinalLevel:    e.FinalLevel,
			Justification: text,
			Truncated:     cut,
			AuthorID:      e.AuthorID,
			At:            e.CreatedAt.UTC(),
		})
	}

	digest, err := Digest(a)
	if err != nil {
		return nil, err
	}
	a.ContentDigest = digest
	a.VerificationURL = g.baseURL + "/" + a.ID
	return a, nil
}

func (g *Generator) truncate(text string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	keep := limit - utf8.RuneCountInString(g.marker)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:keep]), " ") + g.marker, true
}

// ID derives the artifact identifier from the session and generation time.
func ID(sessionID string, generatedAt time.Time) string {
	sum := sha256.Sum256([]byte(sessionID + "|" + generatedAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}

// Digest hashes the canonical JSON encoding of a with the digest and link blanked.
func Digest(a *model.AuditArtifact) (string, error) {
	c := *a
	c.ContentDigest = ""
	c.VerificationURL = ""
	// YAML cannot tell an empty list from a missing one.
	if c.Panelists == nil {
		c.Panelists = []model.Panelist{}
	}
	if c.Rows == nil {
		c.Rows = []model.ArtifactRow{}
	}
	b, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the identifier and content digest and reports any
// mismatch as an IntegrityError.
func Verify(a *model.AuditArtifact) error {
	if a == nil {
		return model.Invalid("artifact", nil, "missing")
	}
	if want := ID(a.SessionID, a.GeneratedAt); want != a.ID {
		return model.Integrity("artifact", a.ID, "identifier does not match session and generation time")
	}
	digest, err := Digest(a)
	if err != nil {
		return err
	}
	if digest != a.ContentDigest {
		return model.Integrity("artifact", a.ID, "content digest mismatch")
	}
	if a.VerificationURL != "" && !strings.HasSuffix(a.VerificationURL, "/"+a.ID) {
		return model.Integrity("artifact", a.ID, "verification link does not point at this artifact")
	}
	return nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
