package model

import (
	"slices"
	"strings"
)

// Status represents the review state of a portfolio record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// ExperienceLevel is the self-declared seniority attached to a portfolio.
type ExperienceLevel string

const (
	LevelBeginner     ExperienceLevel = "Beginner"
	LevelIntermediate ExperienceLevel = "Intermediate"
	LevelAdvanced     ExperienceLevel = "Advanced"
	LevelExpert       ExperienceLevel = "Expert"
)

// ExperienceLevels lists the accepted levels in ascending order.
var ExperienceLevels = []ExperienceLevel{LevelBeginner, LevelIntermediate, LevelAdvanced, LevelExpert}

// ParseExperienceLevel matches s case-insensitively against ExperienceLevels.
func ParseExperienceLevel(s string) (ExperienceLevel, bool) {
	for _, l := range ExperienceLevels {
		if strings.EqualFold(string(l), strings.TrimSpace(s)) {
			return l, true
		}
	}
	return "", false
}

// Record is one portfolio entry as stored at ledger key portfolio_<id>.
//
// The JSON field names match the blobs written by the original web client so
// both can share one ledger.
type Record struct {
	ID              string          `json:"id,omitempty"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Skills          []string        `json:"skills"`
	ExperienceLevel ExperienceLevel `json:"experienceLevel"`
	Payload         string          `json:"data"`
	CreatedAt       int64           `json:"timestamp"` // seconds since epoch
	Owner           string          `json:"owner"`
	Status          Status          `json:"status"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Skills = slices.Clone(r.Skills)
	return &cp
}

// OwnedBy reports whether account is the record owner. Wallet addresses are
// compared case-insensitively because checksummed and lowercase hex forms
// name the same account.
func (r *Record) OwnedBy(account string) bool {
	account = strings.TrimSpace(account)
	return account != "" && strings.EqualFold(r.Owner, account)
}

// Matches reports whether q occurs, case-insensitively, in the title, the
// description or any skill. An empty q matches everything.
func (r *Record) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(r.Title), q) ||
		strings.Contains(strings.ToLower(r.Description), q) {
		return true
	}
	for _, s := range r.Skills {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

// Draft is the caller-supplied content of a new portfolio.
type Draft struct {
	Title           string          `json:"title"            binding:"required"`
	Description     string          `json:"description"`
	Skills          []string        `json:"skills"`
	ExperienceLevel ExperienceLevel `json:"experienceLevel"`
}

// Normalize canonicalizes the experience level ("expert" becomes "Expert"),
// defaulting an empty level to Intermediate. Unknown levels are left as given
// so Validate can report them. A nil skill list becomes an empty one. Title,
// description and skill strings are stored exactly as supplied; only the
// level is rewritten.
func (d *Draft) Normalize() {
	if d.Skills == nil {
		d.Skills = []string{}
	}
	if strings.TrimSpace(string(d.ExperienceLevel)) == "" {
		d.ExperienceLevel = LevelIntermediate
	} else if l, ok := ParseExperienceLevel(string(d.ExperienceLevel)); ok {
		d.ExperienceLevel = l
	}
}

// Validate checks a normalized draft.
func (d *Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return &ErrValidation{Msg: "title is required"}
	}
	if len(d.Title) > MaxTitleLength {
		return &ErrValidation{Msg: "title is too long"}
	}
	if len(d.Description) > MaxDescriptionLength {
		return &ErrValidation{Msg: "description is too long"}
	}
	if len(d.Skills) > MaxSkills {
		return &ErrValidation{Msg: "too many skills"}
	}
	if _, ok := ParseExperienceLevel(string(d.ExperienceLevel)); !ok {
		return &ErrValidation{Msg: "experienceLevel must be one of Beginner, Intermediate, Advanced, Expert"}
	}
	return nil
}

// Input limits for drafts.
const (
	MaxTitleLength       = 256
	MaxDescriptionLength = 4096
	MaxSkills            = 50
)

// Stats summarises the registry by review status.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Verified int `json:"verified"`
	Rejected int `json:"rejected"`
}

// Add counts r into s.
func (s *Stats) Add(r *Record) {
	s.Total++
	switch r.Status {
	case StatusVerified:
		s.Verified++
	case StatusRejected:
		s.Rejected++
	default:
		s.Pending++
	}
}
