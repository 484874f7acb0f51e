package sigtree_test

import (
	"fmt"

	"github.com/AnatoleLucet/sigtree"
)

func ExampleWatch() {
	count := sigtree.NewObservable(1)

	sigtree.Watch(func() int { return count.Get() * 2 }, func(double int) {
		fmt.Println("double:", double)
	})

	count.Set(2)
	count.Set(3)
	sigtree.Flush()

	// Output:
	// double: 2
	// double: 6
}

func ExampleStore_Dispatch() {
	root := sigtree.NewStore(sigtree.WithMiddleware(func(_ *sigtree.Store, action any, _ []any, next sigtree.Next) (any, error) {
		fmt.Println("dispatch:", action)
		return next(nil)
	}))

	counter := sigtree.NewStore(sigtree.WithSetup(func(s *sigtree.Store) {
		count := sigtree.DefineState[float64](s, "count", sigtree.ByNumber, 0)

		s.RegisterAction("INCR", func(*sigtree.Store, ...any) (any, error) {
			return nil, count.Set(count.Get() + 1)
		})
	}))

	if err := root.Link("counter", counter); err != nil {
		panic(err)
	}

	if _, err := counter.Dispatch("INCR"); err != nil {
		panic(err)
	}
	fmt.Println("count:", counter.Get("count"))

	// Output:
	// dispatch: counter/INCR
	// count: 1
}
