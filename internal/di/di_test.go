package di

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type greeter struct{ name string }

func TestContainer_LazySingleton(t *testing.T) {
	c := NewContainer()
	var builds atomic.Int32

	tok := NewToken[*greeter]("greeter")
	RegisterToken(c, tok, func(ServiceRegistry) *greeter {
		builds.Add(1)
		return &greeter{name: "risk"}
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = GetToken(c, tok)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	assert.Same(t, GetToken(c, tok), GetToken(c, tok))
}

func TestContainer_FactoryResolvesDependencies(t *testing.T) {
	c := NewContainer()
	c.Register("name", "settlement")
	tok := NewToken[*greeter]("greeter")
	RegisterToken(c, tok, func(sr ServiceRegistry) *greeter {
		return &greeter{name: sr.Get("name").(string)}
	})

	assert.Equal(t, "settlement", GetToken(c, tok).name)
	assert.True(t, c.Has("name"))
	assert.False(t, c.Has("missing"))
}

func TestContainer_UnknownKeyPanics(t *testing.T) {
	c := NewContainer()
	assert.Panics(t, func() { c.Get("missing") })
}
