package memory

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/meggy-ai/meggy/internal/observability"
)

// Extraction is one saved memory plus whether the upsert created a new row.
type Extraction struct {
	Memory  Memory `json:"memory"`
	Created bool   `json:"created"`
}

// Extractor scans conversation text for known patterns and upserts the
// facts it finds. It is stateless; the store and user directory are its
// only dependencies.
type Extractor struct {
	store   Store
	users   UserDirectory
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewExtractor(store Store, users UserDirectory, logger *slog.Logger, metrics *observability.Metrics) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{store: store, users: users, logger: logger, metrics: metrics}
}

// Extract runs every rule against the lower-cased text and upserts each
// candidate fact. Rules are independent: a rule that fails to evaluate or
// to save is logged and skipped, never aborting the rest. Text that matches
// nothing yields an empty result and leaves the store untouched.
func (e *Extractor) Extract(ctx context.Context, userID, text, sourceMessageID string) ([]Extraction, error) {
	if err := checkUser(ctx, e.users, userID); err != nil {
		return nil, err
	}

	lower := strings.ToLower(text)
	out := []Extraction{}
	for _, rule := range extractionRules {
		key, fields, matched := e.evalRule(rule, lower)
		if !matched {
			continue
		}
		fields.SourceMessageID = sourceMessageID

		mem, created, err := e.store.Upsert(ctx, userID, key, fields)
		if err != nil {
			e.logger.Error("memory upsert failed, skipping rule",
				"rule", rule.name, "user_id", userID, "key", key, "error", err)
			if e.metrics != nil {
				e.metrics.ExtractionFailures.WithLabelValues(rule.name).Inc()
			}
			continue
		}

		if e.metrics != nil {
			status := "updated"
			if created {
				status = "created"
			}
			e.metrics.MemoriesExtracted.WithLabelValues(rule.name, status).Inc()
		}
		out = append(out, Extraction{Memory: mem, Created: created})
	}

	if len(out) > 0 {
		e.logger.Info("extracted memories", "user_id", userID, "count", len(out))
	}
	return out, nil
}

// evalRule isolates a single rule evaluation so a buggy rule cannot take the
// other rules down with it.
func (e *Extractor) evalRule(r extractionRule, text string) (key string, fields Fields, matched bool) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("extraction rule panicked, skipping", "rule", r.name, "panic", rec)
			if e.metrics != nil {
				e.metrics.ExtractionFailures.WithLabelValues(r.name).Inc()
			}
			matched = false
		}
	}()

	m := r.re.FindStringSubmatch(text)
	if m == nil {
		return "", Fields{}, false
	}
	return r.apply(m)
}

type extractionRule struct {
	name string
	re   *regexp.Regexp
	// apply derives the key and fields from the submatches. ok=false drops
	// the match (used by the profession vocabulary filter).
	apply func(m []string) (key string, fields Fields, ok bool)
}

// professionWords is the fixed vocabulary the profession rule accepts.
// Captures of "i am ..." that mention none of these are dropped silently
// rather than stored as noise.
var professionWords = []string{"developer", "designer", "engineer", "teacher", "student", "artist"}

// extractionRules is the fixed, ordered rule table. Each rule fires at most
// once per call (single search, not find-all); importances are hand-tuned
// per rule and carry no cross-rule meaning.
var extractionRules = []extractionRule{
	{
		name: "name",
		re:   regexp.MustCompile(`my name is (\w+)`),
		apply: func(m []string) (string, Fields, bool) {
			return "user_name", Fields{
				Type:       TypePersonal,
				Value:      titleCase(m[1]),
				Confidence: 1.0,
				Importance: 10,
			}, true
		},
	},
	{
		name: "location",
		re:   regexp.MustCompile(`i live in ([\w\s]+?)(?:\.|,|$)`),
		apply: func(m []string) (string, Fields, bool) {
			return "location", Fields{
				Type:       TypePersonal,
				Value:      titleCase(strings.TrimSpace(m[1])),
				Confidence: 1.0,
				Importance: 8,
			}, true
		},
	},
	{
		name: "age",
		re:   regexp.MustCompile(`i am (\d+) years old`),
		apply: func(m []string) (string, Fields, bool) {
			return "age", Fields{
				Type:       TypePersonal,
				Value:      m[1],
				Confidence: 1.0,
				Importance: 7,
			}, true
		},
	},
	{
		name: "likes",
		re:   regexp.MustCompile(`i (?:love|like|enjoy) ([\w\s]+?)(?:\.|,|$)`),
		apply: func(m []string) (string, Fields, bool) {
			liked := strings.TrimSpace(m[1])
			return "likes_" + underscored(liked), Fields{
				Type:       TypePreference,
				Value:      "Likes " + liked,
				Confidence: 1.0,
				Importance: 6,
			}, true
		},
	},
	{
		name: "dislikes",
		re:   regexp.MustCompile(`i (?:hate|dislike|don't like) ([\w\s]+?)(?:\.|,|$)`),
		apply: func(m []string) (string, Fields, bool) {
			disliked := strings.TrimSpace(m[1])
			return "dislikes_" + underscored(disliked), Fields{
				Type:       TypePreference,
				Value:      "Dislikes " + disliked,
				Confidence: 1.0,
				Importance: 6,
			}, true
		},
	},
	{
		name: "favorite",
		re:   regexp.MustCompile(`my favorite ([\w\s]+?) is ([\w\s]+?)(?:\.|,|$)`),
		apply: func(m []string) (string, Fields, bool) {
			category := strings.TrimSpace(m[1])
			favorite := strings.TrimSpace(m[2])
			return "favorite_" + underscored(category), Fields{
				Type:       TypePreference,
				Value:      titleCase(favorite),
				Confidence: 1.0,
				Importance: 7,
			}, true
		},
	},
	{
		name: "want_to",
		re:   regexp.MustCompile(`i want to ([\w\s]+?)(?:\.|,|$)`),
		apply: func(m []string) (string, Fields, bool) {
			goal := strings.TrimSpace(m[1])
			return "goal_" + underscored(truncateRunes(goal, 30)), Fields{
				Type:       TypeGoal,
				Value:      "Wants to " + goal,
				Confidence: 1.0,
				Importance: 8,
			}, true
		},
	},
	{
		name: "goal",
		re:   regexp.MustCompile(`my goal is to ([\w\s]+?)(?:\.|,|$)`),
		apply: func(m []string) (string, Fields, bool) {
			goal := strings.TrimSpace(m[1])
			return "goal_" + underscored(truncateRunes(goal, 30)), Fields{
				Type:       TypeGoal,
				Value:      "Goal: " + goal,
				Confidence: 1.0,
				Importance: 9,
			}, true
		},
	},
	{
		name: "profession",
		re:   regexp.MustCompile(`i (?:am|am a) ([\w\s]+?)(?:\.|,|$)`),
		apply: func(m []string) (string, Fields, bool) {
			role := strings.TrimSpace(m[1])
			if !containsAny(role, professionWords) {
				return "", Fields{}, false
			}
			return "profession", Fields{
				Type:       TypeSkill,
				Value:      titleCase(role),
				Confidence: 1.0,
				Importance: 8,
			}, true
		},
	},
	{
		name: "partner",
		re:   regexp.MustCompile(`my (?:wife|husband|partner|spouse) is ([\w\s]+?)(?:\.|,|$)`),
		apply: func(m []string) (string, Fields, bool) {
			return "partner_name", Fields{
				Type:       TypeRelationship,
				Value:      titleCase(strings.TrimSpace(m[1])),
				Confidence: 1.0,
				Importance: 10,
			}, true
		},
	},
}

func checkUser(ctx context.Context, users UserDirectory, userID string) error {
	ok, err := users.Exists(ctx, userID)
	if err != nil {
		return unavailable("check user", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

// titleCase capitalizes the first letter of each space-separated word.
// Inputs are already lower-cased by the extractor.
func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func underscored(s string) string {
	return strings.ReplaceAll(s, " ", "_")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
