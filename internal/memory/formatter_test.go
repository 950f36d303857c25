package memory

import (
	"strings"
	"testing"
)

func TestFormatContextEmpty(t *testing.T) {
	if got := FormatContext(nil); got != "" {
		t.Fatalf("FormatContext(nil) = %q, want empty", got)
	}
	if got := FormatContext([]Memory{}); got != "" {
		t.Fatalf("FormatContext(empty) = %q, want empty", got)
	}
}

func TestFormatContextGroupsByTypeInFirstSeenOrder(t *testing.T) {
	memories := []Memory{
		{Type: TypePersonal, Key: "user_name", Value: "Alex"},
		{Type: TypePreference, Key: "likes_hiking", Value: "Likes hiking"},
		{Type: TypePersonal, Key: "location", Value: "Boston"},
		{Type: TypeGoal, Key: "goal_run", Value: "Wants to run a marathon"},
	}

	want := "=== What I Remember About You ===\n" +
		"\nPersonal:\n" +
		"  • Alex\n" +
		"  • Boston\n" +
		"\nPreferences:\n" +
		"  • Likes hiking\n" +
		"\nGoals:\n" +
		"  • Wants to run a marathon\n" +
		"\n=== End of Memories ===\n"

	if got := FormatContext(memories); got != want {
		t.Fatalf("FormatContext() =\n%q\nwant\n%q", got, want)
	}
}

func TestFormatContextAllTypeLabels(t *testing.T) {
	labels := map[Type]string{
		TypePersonal:     "Personal",
		TypePreference:   "Preferences",
		TypeRelationship: "Relationships",
		TypeGoal:         "Goals",
		TypeExperience:   "Experiences",
		TypeSkill:        "Skills",
		TypeFact:         "Facts",
	}
	for typ, label := range labels {
		got := FormatContext([]Memory{{Type: typ, Value: "v"}})
		want := "\n" + label + ":\n"
		if !strings.Contains(got, want) {
			t.Fatalf("FormatContext(%s) = %q, missing section %q", typ, got, want)
		}
	}
}
