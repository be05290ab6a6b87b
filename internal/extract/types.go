// Package extract derives structured recruiting data from interview
// conversations and CV text. Extraction is deferred and best-effort: it runs
// after enough turns have accumulated and never fails the call loop.
package extract

import (
	"encoding/json"
)

// FlexString accepts a JSON string or number. Models are inconsistent about
// fields like years of experience, returning "5 years" one turn and 5 the
// next.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// JobBrief is the structured hiring request extracted from a recruiter
// intake conversation.
type JobBrief struct {
	RoleTitle       string     `json:"role_title,omitempty"`
	Seniority       string     `json:"seniority,omitempty"`
	YearsExperience FlexString `json:"years_experience,omitempty"`
	Skills          []string   `json:"skills,omitempty"`
	Tools           []string   `json:"tools,omitempty"`
	Industry        string     `json:"industry,omitempty"`
	Language        string     `json:"language,omitempty"`
}

// Empty reports whether nothing was extracted.
func (b JobBrief) Empty() bool {
	return b.RoleTitle == "" && b.Seniority == "" && b.YearsExperience == "" &&
		len(b.Skills) == 0 && len(b.Tools) == 0 && b.Industry == "" && b.Language == ""
}

// Merge overlays incoming onto b: non-empty scalars override, list fields
// take the set union with first-seen order preserved.
func (b JobBrief) Merge(incoming JobBrief) JobBrief {
	out := b
	if incoming.RoleTitle != "" {
		out.RoleTitle = incoming.RoleTitle
	}
	if incoming.Seniority != "" {
		out.Seniority = incoming.Seniority
	}
	if incoming.YearsExperience != "" {
		out.YearsExperience = incoming.YearsExperience
	}
	if incoming.Industry != "" {
		out.Industry = incoming.Industry
	}
	if incoming.Language != "" {
		out.Language = incoming.Language
	}
	out.Skills = unionStrings(b.Skills, incoming.Skills)
	out.Tools = unionStrings(b.Tools, incoming.Tools)
	return out
}

// CandidateProfile is the structured candidate record extracted from a
// screening conversation or a CV.
type CandidateProfile struct {
	Name              string     `json:"name,omitempty"`
	Email             string     `json:"email,omitempty"`
	MobileNumber      string     `json:"mobile_number,omitempty"`
	CurrentRole       string     `json:"current_role,omitempty"`
	YearsExperience   FlexString `json:"years_experience,omitempty"`
	Skills            []string   `json:"skills,omitempty"`
	PreferredRoles    []string   `json:"preferred_roles,omitempty"`
	SalaryExpectation string     `json:"salary_expectation,omitempty"`
	Availability      string     `json:"availability,omitempty"`
	Language          string     `json:"language,omitempty"`
	PreviousRoles     []string   `json:"previous_roles,omitempty"`
	Industries        []string   `json:"industries,omitempty"`
	Education         []string   `json:"education,omitempty"`

	// Raw holds the model output verbatim when it was not valid JSON.
	Raw string `json:"raw,omitempty"`
}

// Merge overlays incoming onto p with the same semantics as JobBrief.Merge.
func (p CandidateProfile) Merge(incoming CandidateProfile) CandidateProfile {
	out := p
	if incoming.Name != "" {
		out.Name = incoming.Name
	}
	if incoming.Email != "" {
		out.Email = incoming.Email
	}
	if incoming.MobileNumber != "" {
		out.MobileNumber = incoming.MobileNumber
	}
	if incoming.CurrentRole != "" {
		out.CurrentRole = incoming.CurrentRole
	}
	if incoming.YearsExperience != "" {
		out.YearsExperience = incoming.YearsExperience
	}
	if incoming.SalaryExpectation != "" {
		out.SalaryExpectation = incoming.SalaryExpectation
	}
	if incoming.Availability != "" {
		out.Availability = incoming.Availability
	}
	if incoming.Language != "" {
		out.Language = incoming.Language
	}
	if incoming.Raw != "" {
		out.Raw = incoming.Raw
	}
	out.Skills = unionStrings(p.Skills, incoming.Skills)
	out.PreferredRoles = unionStrings(p.PreferredRoles, incoming.PreferredRoles)
	out.PreviousRoles = unionStrings(p.PreviousRoles, incoming.PreviousRoles)
	out.Industries = unionStrings(p.Industries, incoming.Industries)
	out.Education = unionStrings(p.Education, incoming.Education)
	return out
}

func unionStrings(base, incoming []string) []string {
	if len(base) == 0 && len(incoming) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(base)+len(incoming))
	out := make([]string, 0, len(base)+len(incoming))
	for _, s := range base {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range incoming {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
