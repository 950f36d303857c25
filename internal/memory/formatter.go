package memory

import "strings"

const (
	contextHeader = "=== What I Remember About You ==="
	contextFooter = "=== End of Memories ==="
)

// typeLabels maps each memory type to its section heading in the context
// block. This table is a stable contract: downstream prompts and tests key
// off these exact strings.
var typeLabels = map[Type]string{
	TypePersonal:     "Personal",
	TypePreference:   "Preferences",
	TypeRelationship: "Relationships",
	TypeGoal:         "Goals",
	TypeExperience:   "Experiences",
	TypeSkill:        "Skills",
	TypeFact:         "Facts",
}

// FormatContext renders memories into the text block prepended to the model
// prompt. It is a pure function of its argument: no clock, no store. Groups
// follow the order types first appear in the input; memories keep input
// order within a group; only values are rendered. Empty input yields an
// empty string so callers can omit the block entirely.
func FormatContext(memories []Memory) string {
	if len(memories) == 0 {
		return ""
	}

	var typeOrder []Type
	byType := make(map[Type][]Memory)
	for _, m := range memories {
		if _, seen := byType[m.Type]; !seen {
			typeOrder = append(typeOrder, m.Type)
		}
		byType[m.Type] = append(byType[m.Type], m)
	}

	lines := []string{contextHeader}
	for _, t := range typeOrder {
		label, ok := typeLabels[t]
		if !ok {
			label = titleCase(string(t))
		}
		lines = append(lines, "\n"+label+":")
		for _, m := range byType[t] {
			lines = append(lines, "  • "+m.Value)
		}
	}
	lines = append(lines, "\n"+contextFooter+"\n")

	return strings.Join(lines, "\n")
}
