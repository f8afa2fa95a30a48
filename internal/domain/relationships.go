package domain

import "sort"

// RelationshipType is the STIX relationship_type of a link
type RelationshipType string

const (
	RelationshipMitigates      RelationshipType = "mitigates"
	RelationshipUses           RelationshipType = "uses"
	RelationshipAttributedTo   RelationshipType = "attributed-to"
	RelationshipDetects        RelationshipType = "detects"
	RelationshipSubtechniqueOf RelationshipType = "subtechnique-of"
	RelationshipRevokedBy      RelationshipType = "revoked-by"
)

// Relationships holds the read-only adjacency indices of a domain.
// All keys and values are STIX ids.
type Relationships struct {
	// SubtechniquesOf maps a parent technique to its sub-techniques
	SubtechniquesOf map[string][]string `json:"subtechniques_of"`
	// ParentOf maps a sub-technique to its parent technique
	ParentOf map[string]string `json:"parent_of"`
	// Mitigates maps a mitigation to the techniques it mitigates
	Mitigates map[string][]string `json:"mitigates"`
	// TechniquesUsed maps an actor (group, software, campaign) to techniques
	TechniquesUsed map[string][]string `json:"techniques_used"`
	// SoftwareUsed maps a group or campaign to software
	SoftwareUsed map[string][]string `json:"software_used"`
	// AttributedTo maps a campaign to the groups it is attributed to
	AttributedTo map[string][]string `json:"attributed_to"`
	// TechniquesViaCampaigns maps a group to techniques used by its campaigns
	TechniquesViaCampaigns map[string][]string `json:"techniques_via_campaigns"`
	// Detects maps a data component to the techniques it detects
	Detects map[string][]string `json:"detects"`
	// NotesAbout maps any object to the notes referencing it
	NotesAbout map[string][]string `json:"notes_about"`
}

// NewRelationships creates empty indices
func NewRelationships() *Relationships {
	return &Relationships{
		SubtechniquesOf:        make(map[string][]string),
		ParentOf:               make(map[string]string),
		Mitigates:              make(map[string][]string),
		TechniquesUsed:         make(map[string][]string),
		SoftwareUsed:           make(map[string][]string),
		AttributedTo:           make(map[string][]string),
		TechniquesViaCampaigns: make(map[string][]string),
		Detects:                make(map[string][]string),
		NotesAbout:             make(map[string][]string),
	}
}

func appendUnique(index map[string][]string, from, to string) {
	for _, existing := range index[from] {
		if existing == to {
			return
		}
	}
	index[from] = append(index[from], to)
}

// deriveCampaignIndex fills TechniquesViaCampaigns from AttributedTo and
// TechniquesUsed. Must run after all direct links are recorded.
func (r *Relationships) deriveCampaignIndex() {
	for campaign, groups := range r.AttributedTo {
		for _, group := range groups {
			for _, technique := range r.TechniquesUsed[campaign] {
				appendUnique(r.TechniquesViaCampaigns, group, technique)
			}
		}
	}
}

// sortValues makes every adjacency list deterministic
func (r *Relationships) sortValues() {
	for _, index := range []map[string][]string{
		r.SubtechniquesOf, r.Mitigates, r.TechniquesUsed, r.SoftwareUsed,
		r.AttributedTo, r.TechniquesViaCampaigns, r.Detects, r.NotesAbout,
	} {
		for _, values := range index {
			sort.Strings(values)
		}
	}
}
