package scenario

import (
	"fmt"
	"math"

	"github.com/nathoo/agentsim/engine/builder"
	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/types"
	opensimplex "github.com/ojrac/opensimplex-go"
)

const (
	// grassThreshold is the noise level below which no patch grows.
	grassThreshold = 0.45
	// maxGrass caps a patch's grass, both at generation and when regrowing.
	maxGrass = 5
	// noiseFrequency scales grid coordinates into noise space.
	noiseFrequency = 0.18
)

// Forage builds a size x size field of grass patches laid out by simplex
// noise and a herd of grazers that eat nearby grass, tire every tick and
// starve at zero energy.
func Forage(seed int64, size, grazers int) Source {
	return sourceFunc{
		name:  "forage",
		ticks: 30,
		build: func() (*world.World, error) {
			def, err := ForageDef(seed, size, grazers)
			if err != nil {
				return nil, err
			}
			return builder.Build(def)
		},
	}
}

// ForageDef is the declarative form of the forage scenario.
func ForageDef(seed int64, size, grazers int) (*types.ScenarioDef, error) {
	if size <= 0 || grazers < 0 {
		return nil, fmt.Errorf("forage needs a positive size and non-negative herd, got %d and %d", size, grazers)
	}

	noise := opensimplex.NewNormalized(seed)
	field := types.AgentDef{Name: "field", Traits: []types.TraitDef{
		{Name: "size", Value: float64(size)},
	}}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			n := octaveNoise(noise, float64(x), float64(y), 3, noiseFrequency, 0.5)
			if n < grassThreshold {
				continue
			}
			grass := math.Ceil((n - grassThreshold) / (1 - grassThreshold) * maxGrass)
			field.Children = append(field.Children, types.AgentDef{Name: "patch", Traits: []types.TraitDef{
				{Name: "grass", Value: grass},
				{Name: "regrow", Ability: regrowAbility()},
				{Name: "x", Value: float64(x)},
				{Name: "y", Value: float64(y)},
			}})
		}
	}

	herd := types.AgentDef{Name: "herd"}
	for i := range grazers {
		x := float64((2*i + 1) * size / (2 * grazers))
		herd.Children = append(herd.Children, types.AgentDef{Name: "grazer", Traits: []types.TraitDef{
			{Name: "energy", Value: 5.0},
			{Name: "graze", Ability: grazeAbility()},
			{Name: "starve", Ability: starveAbility()},
			{Name: "tire", Ability: tireAbility()},
			{Name: "x", Value: x},
			{Name: "y", Value: float64(size / 2)},
		}})
	}

	return &types.ScenarioDef{
		Title:       "Forage",
		Description: "Grazers eat simplex-noise grass until the field runs dry.",
		Seed:        seed,
		Ticks:       30,
		Agents:      []types.AgentDef{field, herd},
	}, nil
}

func grazeAbility() *types.AbilityDef {
	return &types.AbilityDef{
		Targets: types.Selector{Type: "within_range", Params: map[string]any{"range": 1.5}},
		Conditions: []types.Condition{
			{Type: "has_trait", Params: map[string]any{"trait": "grass"}},
			{Type: "trait_ge", Params: map[string]any{"trait": "grass", "value": 1.0}},
		},
		Effects: []types.Effect{
			{Type: "adjust", Params: map[string]any{"trait": "grass", "amount": -1.0}},
			{Type: "adjust", Params: map[string]any{"who": "caster", "trait": "energy", "amount": 1.0}},
		},
	}
}

func tireAbility() *types.AbilityDef {
	return &types.AbilityDef{
		Effects: []types.Effect{
			{Type: "adjust", Params: map[string]any{"trait": "energy", "amount": -2.0}},
		},
	}
}

func starveAbility() *types.AbilityDef {
	return &types.AbilityDef{
		Conditions: []types.Condition{
			{Type: "trait_le", Params: map[string]any{"trait": "energy", "value": 0.0}},
		},
		Effects: []types.Effect{{Type: "remove"}},
	}
}

func regrowAbility() *types.AbilityDef {
	return &types.AbilityDef{
		Conditions: []types.Condition{
			{Type: "trait_lt", Params: map[string]any{"trait": "grass", "value": float64(maxGrass)}},
		},
		Effects: []types.Effect{
			{Type: "adjust", Params: map[string]any{"trait": "grass", "amount": 0.25}},
		},
	}
}

// octaveNoise layers several noise frequencies into a value in [0, 1).
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for range octaves {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}
