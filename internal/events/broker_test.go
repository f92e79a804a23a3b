package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetforge/internal/paths"
)

func TestReloadFor(t *testing.T) {
	assert.Equal(t, ReloadCSS, ReloadFor(paths.Styles))
	for _, c := range []paths.Category{paths.Templates, paths.Scripts, paths.Images, paths.Sprites, paths.Fonts} {
		assert.Equal(t, ReloadFull, ReloadFor(c), c)
	}
}

func TestPublishSubscribe(t *testing.T) {
	b := NewBroker()
	first, cancelFirst := b.Subscribe(4)
	second, cancelSecond := b.Subscribe(4)
	defer cancelSecond()

	n := b.Publish(Event{Category: paths.Styles, Paths: []string{"assets/styles/css/styles.css"}})
	assert.Equal(t, 2, n)

	e := <-first
	assert.Equal(t, paths.Styles, e.Category)
	assert.False(t, e.Failed())
	e = <-second
	assert.Equal(t, []string{"assets/styles/css/styles.css"}, e.Paths)

	cancelFirst()
	cancelFirst()
	_, open := <-first
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers())

	assert.True(t, Event{Err: errors.New("boom")}.Failed())
}

func TestPublishDoesNotBlock(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	assert.Equal(t, 1, b.Publish(Event{Category: paths.Images}))
	assert.Equal(t, 0, b.Publish(Event{Category: paths.Fonts}))

	e := <-ch
	assert.Equal(t, paths.Images, e.Category)
}

func TestClose(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(1)
	b.Close()
	b.Close()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Publish(Event{}))

	late, _ := b.Subscribe(1)
	_, open = <-late
	assert.False(t, open)
}

func TestConcurrentPublish(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(100)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Publish(Event{Category: paths.Scripts})
			}
		}()
	}
	wg.Wait()

	require.Len(t, ch, 100)
}
