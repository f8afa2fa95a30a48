package domain

// PreAttackMatrixName is the display name of the PRE-ATT&CK matrix
const PreAttackMatrixName = "PRE-ATT&CK"

// PreAttackMatrixID is the external id of the PRE-ATT&CK matrix
const PreAttackMatrixID = "pre-attack-matrix"

// UnknownTacticOrder sorts tactics with no known position last
const UnknownTacticOrder = 999

// enterpriseTacticOrder is the standard Enterprise kill chain, used when no
// matrix in the bundle orders a tactic
var enterpriseTacticOrder = map[string]int{
	"reconnaissance":       1,
	"resource-development": 2,
	"initial-access":       3,
	"execution":            4,
	"persistence":          5,
	"privilege-escalation": 6,
	"defense-evasion":      7,
	"credential-access":    8,
	"discovery":            9,
	"lateral-movement":     10,
	"collection":           11,
	"command-and-control":  12,
	"exfiltration":         13,
	"impact":               14,
}

// StandardTacticOrder returns the Enterprise kill chain position of a tactic
func StandardTacticOrder(shortname string) int {
	if order, ok := enterpriseTacticOrder[shortname]; ok {
		return order
	}
	return UnknownTacticOrder
}

// Tactic is an ATT&CK tactic (a matrix column)
type Tactic struct {
	Base
	Shortname string `json:"shortname"`
}

// Matrix is an ordered list of tactics
type Matrix struct {
	Base
	TacticRefs []string `json:"tactic_refs"`
}

// IsPreAttack reports whether this is the PRE-ATT&CK matrix, which carries
// no platform semantics
func (m *Matrix) IsPreAttack() bool {
	return m.Name == PreAttackMatrixName || m.AttackID == PreAttackMatrixID
}
