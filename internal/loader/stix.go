package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"attacknav/internal/domain"
)

// attackSourceName is the external_references source that carries ATT&CK ids
const attackSourceName = "mitre-attack"

// Options controls what the parser keeps
type Options struct {
	// IncludeInactive keeps revoked and deprecated objects. Only comparison
	// snapshots should set this; the live model excludes them.
	IncludeInactive bool
}

// Report summarizes one Parse call
type Report struct {
	Objects     int                         `json:"objects"`
	Undecodable int                         `json:"undecodable"`
	Inactive    int                         `json:"inactive"`
	Ignored     int                         `json:"ignored"`
	Malformed   []*MalformedObjectError     `json:"-"`
	Unresolved  []*UnresolvedReferenceError `json:"-"`
}

// MalformedCount returns the number of rejected objects
func (r *Report) MalformedCount() int { return len(r.Malformed) }

// UnresolvedCount returns the number of dropped relationships
func (r *Report) UnresolvedCount() int { return len(r.Unresolved) }

// Parser turns STIX bundles into a domain.Domain
type Parser struct {
	opts   Options
	logger *slog.Logger
}

// NewParser creates a parser. A nil logger uses slog.Default().
func NewParser(opts Options, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{opts: opts, logger: logger.With("component", "loader")}
}

type externalReference struct {
	SourceName string `json:"source_name"`
	ExternalID string `json:"external_id"`
	URL        string `json:"url"`
}

type killChainPhase struct {
	KillChainName string `json:"kill_chain_name"`
	PhaseName     string `json:"phase_name"`
}

// stixObject is the union of every field the parser reads
type stixObject struct {
	Type               string              `json:"type"`
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	Created            string              `json:"created"`
	Modified           string              `json:"modified"`
	Revoked            bool                `json:"revoked"`
	Deprecated         bool                `json:"x_mitre_deprecated"`
	Version            string              `json:"x_mitre_version"`
	ExternalReferences []externalReference `json:"external_references"`

	KillChainPhases []killChainPhase `json:"kill_chain_phases"`
	Platforms       []string         `json:"x_mitre_platforms"`
	IsSubtechnique  bool             `json:"x_mitre_is_subtechnique"`

	Shortname  string   `json:"x_mitre_shortname"`
	TacticRefs []string `json:"tactic_refs"`

	Aliases      []string `json:"aliases"`
	MitreAliases []string `json:"x_mitre_aliases"`
	FirstSeen    string   `json:"first_seen"`
	LastSeen     string   `json:"last_seen"`

	DataSourceRef string `json:"x_mitre_data_source_ref"`

	RelationshipType string `json:"relationship_type"`
	SourceRef        string `json:"source_ref"`
	TargetRef        string `json:"target_ref"`

	Abstract   string   `json:"abstract"`
	Content    string   `json:"content"`
	ObjectRefs []string `json:"object_refs"`
}

type bundle struct {
	Type    string            `json:"type"`
	ID      string            `json:"id"`
	Objects []json.RawMessage `json:"objects"`
}

// ParseFiles reads bundles from disk and parses them
func (p *Parser) ParseFiles(meta domain.Meta, paths ...string) (*domain.Domain, *Report, error) {
	bundles := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read bundle %s: %w", path, err)
		}
		bundles = append(bundles, data)
	}
	return p.Parse(meta, bundles...)
}

// Parse merges the given bundles into one Domain. Each bundle is either a
// STIX bundle object or a bare array of objects. Individual objects that
// cannot be decoded or lack required data are skipped and counted in the
// Report; only a bundle that is not JSON at all fails the call.
func (p *Parser) Parse(meta domain.Meta, bundles ...[]byte) (*domain.Domain, *Report, error) {
	report := &Report{}
	builder := domain.NewBuilder(meta)
	var relationships []*stixObject

	for i, data := range bundles {
		raw, err := splitBundle(data)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse bundle %d: %w", i, err)
		}
		for _, msg := range raw {
			report.Objects++
			var obj stixObject
			if err := json.Unmarshal(msg, &obj); err != nil {
				report.Undecodable++
				p.logger.Debug("skipping undecodable object", "bundle", i, "error", err)
				continue
			}
			if !p.opts.IncludeInactive && (obj.Revoked || obj.Deprecated) {
				report.Inactive++
				continue
			}
			if obj.Type == "relationship" {
				relationships = append(relationships, &obj)
				continue
			}
			if err := p.addEntity(builder, &obj); err != nil {
				var malformed *MalformedObjectError
				if errors.As(err, &malformed) {
					report.Malformed = append(report.Malformed, malformed)
					p.logger.Warn("skipping malformed object", "id", obj.ID, "type", obj.Type, "reason", malformed.Reason)
					continue
				}
				report.Ignored++
			}
		}
	}

	for _, rel := range relationships {
		p.link(builder, rel, report)
	}

	d := builder.Build()
	p.logger.Info("parsed domain",
		"domain", d.ID,
		"techniques", len(d.Techniques),
		"subtechniques", len(d.Subtechniques),
		"objects", report.Objects,
		"malformed", report.MalformedCount(),
		"unresolved", report.UnresolvedCount())
	return d, report, nil
}

func splitBundle(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var objects []json.RawMessage
		if err := json.Unmarshal(trimmed, &objects); err != nil {
			return nil, err
		}
		return objects, nil
	}
	var b bundle
	if err := json.Unmarshal(trimmed, &b); err != nil {
		return nil, err
	}
	return b.Objects, nil
}

// errIgnored marks object types the model does not represent
type errIgnored string

func (e errIgnored) Error() string { return "ignored object type " + string(e) }

func (p *Parser) addEntity(b *domain.Builder, obj *stixObject) error {
	if obj.ID == "" {
		return &MalformedObjectError{Type: obj.Type, Reason: "missing id"}
	}
	switch obj.Type {
	case "attack-pattern":
		base, err := requireAttackBase(obj)
		if err != nil {
			return err
		}
		b.AddTechnique(&domain.Technique{
			Base:           base,
			Platforms:      obj.Platforms,
			Tactics:        memberships(obj.KillChainPhases),
			IsSubtechnique: obj.IsSubtechnique,
		})
	case "x-mitre-tactic":
		base, err := requireAttackBase(obj)
		if err != nil {
			return err
		}
		if obj.Shortname == "" {
			return &MalformedObjectError{StixID: obj.ID, Type: obj.Type, Reason: "missing x_mitre_shortname"}
		}
		b.AddTactic(&domain.Tactic{Base: base, Shortname: obj.Shortname})
	case "x-mitre-matrix":
		base, err := requireAttackBase(obj)
		if err != nil {
			return err
		}
		b.AddMatrix(&domain.Matrix{Base: base, TacticRefs: obj.TacticRefs})
	case "course-of-action":
		base, err := requireAttackBase(obj)
		if err != nil {
			return err
		}
		b.AddMitigation(&domain.Mitigation{Base: base})
	case "intrusion-set":
		base, err := requireAttackBase(obj)
		if err != nil {
			return err
		}
		b.AddGroup(&domain.Group{Base: base, Aliases: obj.Aliases})
	case "malware", "tool":
		base, err := requireAttackBase(obj)
		if err != nil {
			return err
		}
		aliases := obj.MitreAliases
		if len(aliases) == 0 {
			aliases = obj.Aliases
		}
		b.AddSoftware(&domain.Software{
			Base:      base,
			Type:      domain.SoftwareType(obj.Type),
			Platforms: obj.Platforms,
			Aliases:   aliases,
		})
	case "campaign":
		base, err := requireAttackBase(obj)
		if err != nil {
			return err
		}
		b.AddCampaign(&domain.Campaign{Base: base, FirstSeen: obj.FirstSeen, LastSeen: obj.LastSeen})
	case "x-mitre-data-source":
		b.AddDataSource(&domain.DataSource{Base: baseOf(obj)})
	case "x-mitre-data-component":
		b.AddDataComponent(&domain.DataComponent{Base: baseOf(obj), DataSourceRef: obj.DataSourceRef})
	case "note":
		b.AddNote(&domain.Note{StixID: obj.ID, Abstract: obj.Abstract, Content: obj.Content, ObjectRefs: obj.ObjectRefs})
	default:
		return errIgnored(obj.Type)
	}
	return nil
}

func (p *Parser) link(b *domain.Builder, rel *stixObject, report *Report) {
	for _, ref := range []string{rel.SourceRef, rel.TargetRef} {
		if b.Kind(ref) == domain.KindUnknown {
			err := &UnresolvedReferenceError{RelationshipID: rel.ID, Ref: ref}
			report.Unresolved = append(report.Unresolved, err)
			p.logger.Debug("dropping relationship", "error", err)
			return
		}
	}
	if !b.Link(domain.RelationshipType(rel.RelationshipType), rel.SourceRef, rel.TargetRef) {
		report.Ignored++
	}
}

func baseOf(obj *stixObject) domain.Base {
	base := domain.Base{
		StixID:      obj.ID,
		Name:        obj.Name,
		Description: obj.Description,
		Created:     obj.Created,
		Modified:    obj.Modified,
		Version:     obj.Version,
		Revoked:     obj.Revoked,
		Deprecated:  obj.Deprecated,
	}
	for _, ref := range obj.ExternalReferences {
		if ref.SourceName == attackSourceName {
			base.AttackID = ref.ExternalID
			base.URL = ref.URL
			break
		}
	}
	return base
}

func requireAttackBase(obj *stixObject) (domain.Base, error) {
	base := baseOf(obj)
	if base.AttackID == "" {
		return base, &MalformedObjectError{StixID: obj.ID, Type: obj.Type, Reason: "missing mitre-attack external id"}
	}
	return base, nil
}

// memberships keeps the ATT&CK kill chains (mitre-attack, mitre-mobile-attack,
// mitre-ics-attack) and drops duplicates
func memberships(phases []killChainPhase) []domain.TacticMembership {
	var out []domain.TacticMembership
	seen := make(map[string]bool)
	for _, phase := range phases {
		if !strings.HasPrefix(phase.KillChainName, "mitre-") || !strings.HasSuffix(phase.KillChainName, "attack") {
			continue
		}
		if phase.PhaseName == "" || seen[phase.PhaseName] {
			continue
		}
		seen[phase.PhaseName] = true
		out = append(out, domain.TacticMembership{Shortname: phase.PhaseName})
	}
	return out
}
