// Package chain derives attack chains: for a technique, the groups known to
// use it and the ordered path of everything else each group does.
package chain

import (
	"errors"
	"fmt"
	"sort"

	"attacknav/internal/domain"
)

// ErrUnknownTechnique is returned for ATT&CK ids absent from the domain
var ErrUnknownTechnique = errors.New("unknown technique")

// Step is one technique on a group's path
type Step struct {
	AttackID string `json:"attack_id"`
	Name     string `json:"name"`
	Tactic   string `json:"tactic"`
	Order    int    `json:"order"`
	// Focus marks the technique the chain was requested for
	Focus bool `json:"focus,omitempty"`
	// ViaCampaign marks techniques known only from attributed campaigns
	ViaCampaign bool `json:"via_campaign,omitempty"`
}

// CampaignRef names a campaign that used the focus technique
type CampaignRef struct {
	AttackID  string `json:"attack_id"`
	Name      string `json:"name"`
	FirstSeen string `json:"first_seen,omitempty"`
	LastSeen  string `json:"last_seen,omitempty"`
}

// Chain is the path of one group
type Chain struct {
	GroupID   string        `json:"group_id"`
	GroupName string        `json:"group_name"`
	Campaigns []CampaignRef `json:"campaigns"`
	Steps     []Step        `json:"steps"`
}

// Result lists every chain through a technique
type Result struct {
	AttackID string  `json:"attack_id"`
	Name     string  `json:"name"`
	Chains   []Chain `json:"chains"`
}

// Build returns the chains through the technique with the given ATT&CK id
func Build(d *domain.Domain, attackID string) (*Result, error) {
	focus, ok := d.TechniqueByAttackID(attackID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTechnique, attackID)
	}

	result := &Result{AttackID: focus.AttackID, Name: focus.Name, Chains: []Chain{}}
	for _, g := range d.Groups {
		direct := contains(d.Used(g.StixID), focus.StixID)
		viaCampaign := contains(d.CampaignsUsed(g.StixID), focus.StixID)
		if !direct && !viaCampaign {
			continue
		}
		result.Chains = append(result.Chains, Chain{
			GroupID:   g.AttackID,
			GroupName: g.Name,
			Campaigns: campaignsUsing(d, g, focus),
			Steps:     steps(d, g, focus),
		})
	}
	return result, nil
}

// Index returns the ATT&CK ids of every technique with at least one chain,
// sorted
func Index(d *domain.Domain) []string {
	seen := make(map[string]bool)
	for _, g := range d.Groups {
		for _, ids := range [][]string{d.Used(g.StixID), d.CampaignsUsed(g.StixID)} {
			for _, id := range ids {
				if t, ok := d.TechniqueByStixID(id); ok {
					seen[t.AttackID] = true
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func campaignsUsing(d *domain.Domain, g *domain.Group, focus *domain.Technique) []CampaignRef {
	refs := []CampaignRef{}
	for _, c := range d.CampaignsAttributedTo(g.StixID) {
		if !contains(d.Used(c.StixID), focus.StixID) {
			continue
		}
		refs = append(refs, CampaignRef{AttackID: c.AttackID, Name: c.Name, FirstSeen: c.FirstSeen, LastSeen: c.LastSeen})
	}
	return refs
}

func steps(d *domain.Domain, g *domain.Group, focus *domain.Technique) []Step {
	direct := d.Used(g.StixID)
	seen := make(map[string]bool)
	var out []Step
	add := func(id string, viaCampaign bool) {
		if seen[id] {
			return
		}
		t, ok := d.TechniqueByStixID(id)
		if !ok {
			return
		}
		seen[id] = true
		step := Step{
			AttackID:    t.AttackID,
			Name:        t.Name,
			Order:       domain.UnknownTacticOrder,
			Focus:       t.StixID == focus.StixID,
			ViaCampaign: viaCampaign,
		}
		if m, ok := t.PrimaryTactic(); ok {
			step.Tactic = m.Shortname
			step.Order = m.Order
		}
		out = append(out, step)
	}
	for _, id := range direct {
		add(id, false)
	}
	for _, id := range d.CampaignsUsed(g.StixID) {
		add(id, true)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].AttackID < out[j].AttackID
	})
	return out
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
