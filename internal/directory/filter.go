package directory

import (
	"github.com/hashicorp/go-bexpr"
	lru "github.com/hashicorp/golang-lru/v2"
)

const filterCacheSize = 128

// filterCache keeps compiled list filters keyed by expression text.
type filterCache struct {
	cache *lru.Cache[string, *bexpr.Evaluator]
}

func newFilterCache(size int) *filterCache {
	cache, err := lru.New[string, *bexpr.Evaluator](size)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &filterCache{cache: cache}
}

func (c *filterCache) evaluator(expr string) (*bexpr.Evaluator, error) {
	if ev, ok := c.cache.Get(expr); ok {
		return ev, nil
	}
	ev, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, err
	}
	c.cache.Add(expr, ev)
	return ev, nil
}
