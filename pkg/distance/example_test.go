package distance_test

import (
	"context"
	"fmt"

	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/distance"
)

func ExampleBuild() {
	same := distance.MetricFunc(func(_ context.Context, a, b diagram.Diagram) (float64, error) {
		if len(a) == len(b) {
			return 0, nil
		}
		return 1, nil
	})

	dgms := []diagram.Diagram{
		{{Birth: 0, Death: 1}},
		{{Birth: 0, Death: 1}},
	}
	m, err := distance.Build(context.Background(), dgms, same)
	if err != nil {
		panic(err)
	}
	fmt.Println(m.Rows())
	// Output: [[0 0] [0 0]]
}
