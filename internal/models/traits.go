// Package models defines data structures for Nutriome
package models

import (
	"fmt"
	"math"
	"strings"
)

// Trait identifies one of the six functional trait slots.
type Trait string

const (
	TraitSCFA        Trait = "scfa"
	TraitPHReduction Trait = "ph_reduction"
	TraitBarrier     Trait = "barrier_support"
	TraitVitamin     Trait = "vitamin_biosynthesis"
	TraitSiderophore Trait = "siderophore"
	// TraitDiversity is derived from the abundance vector itself at
	// aggregation time. It never appears in the trait table but is
	// addressable by coefficient tables.
	TraitDiversity Trait = "diversity"
)

// Traits returns all trait slots in canonical order.
func Traits() []Trait {
	return []Trait{
		TraitSCFA,
		TraitPHReduction,
		TraitBarrier,
		TraitVitamin,
		TraitSiderophore,
		TraitDiversity,
	}
}

// TableTraits returns the five traits carried by the trait table
// (everything except the derived diversity slot).
func TableTraits() []Trait {
	return []Trait{
		TraitSCFA,
		TraitPHReduction,
		TraitBarrier,
		TraitVitamin,
		TraitSiderophore,
	}
}

// IsTrait reports whether name is a known trait slot.
func IsTrait(name string) bool {
	switch Trait(name) {
	case TraitSCFA, TraitPHReduction, TraitBarrier, TraitVitamin, TraitSiderophore, TraitDiversity:
		return true
	}
	return false
}

// TraitWeights is one species' (genus') stored trait-weight row.
// Each weight is in [0,1].
type TraitWeights struct {
	SCFA                float64 `json:"scfa" toml:"scfa"`
	PHReduction         float64 `json:"ph_reduction" toml:"ph_reduction"`
	BarrierSupport      float64 `json:"barrier_support" toml:"barrier_support"`
	VitaminBiosynthesis float64 `json:"vitamin_biosynthesis" toml:"vitamin_biosynthesis"`
	Siderophore         float64 `json:"siderophore" toml:"siderophore"`
}

// Get returns the weight for a table trait; zero for the derived slot.
func (w TraitWeights) Get(t Trait) float64 {
	switch t {
	case TraitSCFA:
		return w.SCFA
	case TraitPHReduction:
		return w.PHReduction
	case TraitBarrier:
		return w.BarrierSupport
	case TraitVitamin:
		return w.VitaminBiosynthesis
	case TraitSiderophore:
		return w.Siderophore
	}
	return 0
}

// Validate checks every weight is finite and in [0,1].
func (w TraitWeights) Validate() error {
	for _, t := range TableTraits() {
		v := w.Get(t)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			return fmt.Errorf("trait %s weight %g outside [0,1]", t, v)
		}
	}
	return nil
}

// TraitVector is the community-level trait contribution vector.
// Every value is in [0,1] when derived from a valid abundance vector.
type TraitVector struct {
	SCFA                float64 `json:"scfa"`
	PHReduction         float64 `json:"ph_reduction"`
	BarrierSupport      float64 `json:"barrier_support"`
	VitaminBiosynthesis float64 `json:"vitamin_biosynthesis"`
	Siderophore         float64 `json:"siderophore"`
	Diversity           float64 `json:"diversity"`
}

// Get returns the value for a trait slot.
func (v TraitVector) Get(t Trait) float64 {
	switch t {
	case TraitSCFA:
		return v.SCFA
	case TraitPHReduction:
		return v.PHReduction
	case TraitBarrier:
		return v.BarrierSupport
	case TraitVitamin:
		return v.VitaminBiosynthesis
	case TraitSiderophore:
		return v.Siderophore
	case TraitDiversity:
		return v.Diversity
	}
	return 0
}

// Set assigns the value for a trait slot.
func (v *TraitVector) Set(t Trait, val float64) {
	switch t {
	case TraitSCFA:
		v.SCFA = val
	case TraitPHReduction:
		v.PHReduction = val
	case TraitBarrier:
		v.BarrierSupport = val
	case TraitVitamin:
		v.VitaminBiosynthesis = val
	case TraitSiderophore:
		v.Siderophore = val
	case TraitDiversity:
		v.Diversity = val
	}
}

// UnknownPolicy controls how species absent from the trait table are treated.
type UnknownPolicy string

const (
	// UnknownNeutral treats unknown species as contributing zero to every
	// trait while keeping their abundance mass. The default.
	UnknownNeutral UnknownPolicy = "neutral"
	// UnknownReject fails aggregation when a sample contains a species
	// absent from the trait table.
	UnknownReject UnknownPolicy = "reject"
)

// TraitTable maps species to trait-weight rows. Rows are keyed by
// lowercase genus; species names of the form "Genus_species" resolve
// through GenusOf. Read-only after construction.
type TraitTable struct {
	genera     map[string]TraitWeights
	defaultRow *TraitWeights
}

// GenusOf extracts the lowercase genus from a species name
// ("Lactobacillus_rhamnosus" -> "lactobacillus").
func GenusOf(species string) string {
	name := strings.TrimSpace(species)
	if name == "" {
		return ""
	}
	if idx := strings.IndexAny(name, "_ "); idx >= 0 {
		name = name[:idx]
	}
	return strings.ToLower(name)
}

// NewTraitTable builds a trait table from genus rows and an optional
// fallback row for unmapped genera. The fallback reproduces reference
// datasets that assign a conservative prior to every species; leave it
// nil to keep unknown species trait-neutral.
func NewTraitTable(genera map[string]TraitWeights, defaultRow *TraitWeights) (*TraitTable, error) {
	table := &TraitTable{genera: make(map[string]TraitWeights, len(genera))}
	for genus, row := range genera {
		if err := row.Validate(); err != nil {
			return nil, fmt.Errorf("genus %s: %w", genus, err)
		}
		table.genera[strings.ToLower(genus)] = row
	}
	if defaultRow != nil {
		if err := defaultRow.Validate(); err != nil {
			return nil, fmt.Errorf("default row: %w", err)
		}
		row := *defaultRow
		table.defaultRow = &row
	}
	return table, nil
}

// Lookup resolves the trait-weight row for a species. The second return
// is false when the species is unknown to the table (and no fallback row
// is configured).
func (t *TraitTable) Lookup(species string) (TraitWeights, bool) {
	if row, ok := t.genera[GenusOf(species)]; ok {
		return row, true
	}
	if t.defaultRow != nil {
		return *t.defaultRow, true
	}
	return TraitWeights{}, false
}

// Genera returns the genus keys of the table.
func (t *TraitTable) Genera() []string {
	out := make([]string, 0, len(t.genera))
	for g := range t.genera {
		out = append(out, g)
	}
	return out
}

// Rows returns a copy of the genus -> weights mapping.
func (t *TraitTable) Rows() map[string]TraitWeights {
	out := make(map[string]TraitWeights, len(t.genera))
	for g, row := range t.genera {
		out[g] = row
	}
	return out
}

// DefaultRow returns a copy of the fallback row, or nil when unmapped
// genera are trait-neutral.
func (t *TraitTable) DefaultRow() *TraitWeights {
	if t.defaultRow == nil {
		return nil
	}
	row := *t.defaultRow
	return &row
}

// DefaultTraitTable returns the built-in genus-level reference table.
// Weights are literature-derived priors for the five table traits.
func DefaultTraitTable() *TraitTable {
	table, err := NewTraitTable(defaultGenusTraits(), nil)
	if err != nil {
		// built-in rows are all within range
		panic(err)
	}
	return table
}

func defaultGenusTraits() map[string]TraitWeights {
	return map[string]TraitWeights{
		"lactobacillus":    {SCFA: 0.9, PHReduction: 0.9, BarrierSupport: 0.8, VitaminBiosynthesis: 0.6, Siderophore: 0.0},
		"bifidobacterium":  {SCFA: 0.8, PHReduction: 0.7, BarrierSupport: 0.8, VitaminBiosynthesis: 0.7, Siderophore: 0.0},
		"faecalibacterium": {SCFA: 0.95, PHReduction: 0.9, BarrierSupport: 0.9, VitaminBiosynthesis: 0.4, Siderophore: 0.0},
		"roseburia":        {SCFA: 0.9, PHReduction: 0.8, BarrierSupport: 0.7, VitaminBiosynthesis: 0.2, Siderophore: 0.0},
		"bacteroides":      {SCFA: 0.6, PHReduction: 0.3, BarrierSupport: 0.5, VitaminBiosynthesis: 0.5, Siderophore: 0.1},
		"prevotella":       {SCFA: 0.7, PHReduction: 0.4, BarrierSupport: 0.6, VitaminBiosynthesis: 0.3, Siderophore: 0.0},
		"streptococcus":    {SCFA: 0.3, PHReduction: 0.5, BarrierSupport: 0.3, VitaminBiosynthesis: 0.3, Siderophore: 0.0},
		"clostridium":      {SCFA: 0.8, PHReduction: 0.6, BarrierSupport: 0.4, VitaminBiosynthesis: 0.2, Siderophore: 0.0},
		"ruminococcus":     {SCFA: 0.85, PHReduction: 0.7, BarrierSupport: 0.6, VitaminBiosynthesis: 0.3, Siderophore: 0.0},
		"escherichia":      {SCFA: 0.1, PHReduction: 0.0, BarrierSupport: 0.1, VitaminBiosynthesis: 0.1, Siderophore: 0.9},
		"enterobacter":     {SCFA: 0.1, PHReduction: 0.0, BarrierSupport: 0.1, VitaminBiosynthesis: 0.1, Siderophore: 0.8},
		"eubacterium":      {SCFA: 0.5, PHReduction: 0.4, BarrierSupport: 0.3, VitaminBiosynthesis: 0.2, Siderophore: 0.0},
		"haemophilus":      {SCFA: 0.2, PHReduction: 0.2, BarrierSupport: 0.2, VitaminBiosynthesis: 0.2, Siderophore: 0.3},
		"megasphaera":      {SCFA: 0.7, PHReduction: 0.5, BarrierSupport: 0.4, VitaminBiosynthesis: 0.1, Siderophore: 0.0},
		"parasutterella":   {SCFA: 0.3, PHReduction: 0.2, BarrierSupport: 0.2, VitaminBiosynthesis: 0.2, Siderophore: 0.2},
		"gemmiger":         {SCFA: 0.6, PHReduction: 0.4, BarrierSupport: 0.5, VitaminBiosynthesis: 0.3, Siderophore: 0.0},
	}
}
