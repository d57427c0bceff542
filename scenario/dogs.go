package scenario

import (
	"fmt"

	"github.com/nathoo/agentsim/engine/selectors"
	"github.com/nathoo/agentsim/engine/world"
)

// DogAndApple is the smallest interesting world: a dog that eats every
// edible sibling and gains its calories.
func DogAndApple() Source {
	return sourceFunc{name: "dogs", ticks: 3, build: buildDogs}
}

func buildDogs() (*world.World, error) {
	w := world.New()

	eat := &world.Ability{
		Targets: selectors.Siblings(),
		Condition: func(_, target *world.Agent, _ *world.Snapshot) (bool, error) {
			v, ok := target.LookupTrait("edible")
			if !ok {
				return false, nil
			}
			edible, _ := v.AsBool()
			return edible, nil
		},
		Effect: func(caster, target *world.Agent, rec *world.Recorder) error {
			cal, err := target.Number("calories")
			if err != nil {
				return err
			}
			rec.Adjust(caster.ID(), "calories", cal)
			rec.Remove(target.ID())
			return nil
		},
	}

	dog := w.NewAgent("dog")
	apple := w.NewAgent("apple")
	steps := []error{
		dog.SetTrait("calories", world.Number(0)),
		dog.SetTrait("eat", world.AbilityRef(eat)),
		apple.SetTrait("calories", world.Number(10)),
		apple.SetTrait("edible", world.Bool(true)),
		w.Root().AddChild(dog),
		w.Root().AddChild(apple),
	}
	for _, err := range steps {
		if err != nil {
			return nil, fmt.Errorf("building dogs: %w", err)
		}
	}
	return w, nil
}
