// Package prompt builds the system instruction for a child's conversation.
package prompt

import (
	"fmt"
	"strings"
)

const (
	MinAge = 5
	MaxAge = 10
)

// Tier clauses, exactly one of which is appended to every prompt.
const (
	ClauseSimplest   = "- Verwende sehr einfache Sprache und kurze Sätze"
	ClauseExamples   = "- Erkläre Konzepte mit einfachen Beispielen"
	ClauseAutonomous = "- Fördere selbstständiges Denken mit altersgerechter Sprache"
)

// Greeting is the nudge that makes the assistant speak first.
const Greeting = "Begrüße das Kind freundlich auf Deutsch."

const baseTemplate = `Du bist Checky, ein freundlicher Assistent für ein %d-jähriges Kind.

Regeln:
- Sprich immer auf Deutsch
- Verwende einfache Wörter für ein %d-jähriges Kind
- Sei freundlich und geduldig
- Gib kurze, klare Antworten
- Halte die Unterhaltung kinderfreundlich
- Keine persönlichen Informationen über das Kind verwenden`

// Build returns the age-tiered system prompt. Ages outside [MinAge, MaxAge]
// are clamped.
func Build(age int) string {
	age = Clamp(age)
	var b strings.Builder
	fmt.Fprintf(&b, baseTemplate, age, age)
	b.WriteString("\n")
	b.WriteString(TierClause(age))
	return b.String()
}

// TierClause selects the clause for an age: up to 6 the simplest language,
// 7 and 8 example driven, 9 and above autonomous reasoning.
func TierClause(age int) string {
	switch age = Clamp(age); {
	case age <= 6:
		return ClauseSimplest
	case age <= 8:
		return ClauseExamples
	default:
		return ClauseAutonomous
	}
}

func Clamp(age int) int {
	if age < MinAge {
		return MinAge
	}
	if age > MaxAge {
		return MaxAge
	}
	return age
}
