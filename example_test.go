package vecquant_test

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/hupe1980/vecquant"
)

func Example() {
	ctx := context.Background()
	r := rand.New(rand.NewSource(1))

	const dim = 32
	vectors := make([][]float32, 200)
	for i := range vectors {
		v := make([]float32, dim)
		for d := range v {
			v[d] = r.Float32()
		}
		vectors[i] = v
	}

	idx, err := vecquant.Scalar(dim).SquaredL2().Build()
	if err != nil {
		panic(err)
	}
	defer idx.Close()

	if err := idx.Train(ctx, vectors); err != nil {
		panic(err)
	}
	if _, err := idx.Add(ctx, vectors); err != nil {
		panic(err)
	}

	results, err := idx.Search(ctx, vectors[42], 3)
	if err != nil {
		panic(err)
	}

	fmt.Println(results[0].Ordinal)
	// Output: 42
}
