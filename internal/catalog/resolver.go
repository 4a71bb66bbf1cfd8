package catalog

import (
	"context"
	"strings"
)

// Kind — тип позиции каталога
type Kind string

const (
	KindFood     Kind = "food"
	KindExercise Kind = "exercise"
)

// Entry is a catalog hit. Food entries carry macros per 100 g,
// exercise entries carry the muscle group.
type Entry struct {
	ID              string
	Kind            Kind
	Name            string
	KcalPer100g     float64
	ProteinGPer100g float64
	FatGPer100g     float64
	CarbsGPer100g   float64
	MuscleGroup     string
}

// Resolver maps a free-text name to a catalog entry.
// A miss is (nil, false, nil); errors are reserved for lookup failures.
type Resolver interface {
	Resolve(ctx context.Context, kind Kind, name string) (*Entry, bool, error)
}

// NormalizeName lowercases, trims and collapses inner whitespace.
// "  Жим   Лёжа " → "жим лёжа"
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
