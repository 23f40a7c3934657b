package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/access-control/acs-core/internal/domain/entity"
)

type fakeSource struct {
	principals map[int64]*entity.Principal
	loads      int
}

func (f *fakeSource) GetAny(id int64) (*entity.Principal, error) {
	f.loads++

	p, ok := f.principals[id]
	if !ok {
		return nil, entity.NewNotFound("Principal", id)
	}

	return p, nil
}

type fakeMirror struct {
	sets        int
	invalidated []int64
	failSet     bool
}

func (m *fakeMirror) Set(p *entity.Principal, ttl time.Duration) error {
	m.sets++

	if m.failSet {
		return errors.New("mirror unreachable")
	}

	return nil
}

func (m *fakeMirror) Invalidate(id int64) error {
	m.invalidated = append(m.invalidated, id)
	return nil
}

func TestGetLoadsThroughOnMiss(t *testing.T) {
	user := entity.NewPrincipal(1, "alice", entity.KindUser)
	src := &fakeSource{principals: map[int64]*entity.Principal{1: user}}
	c := New(src, time.Minute, nil)

	p, err := c.Get(1)
	assert.NoError(t, err)
	assert.Equal(t, "alice", p.Name)
	assert.Equal(t, 1, src.loads)

	// Second read should hit the cache, not the source.
	_, err = c.Get(1)
	assert.NoError(t, err)
	assert.Equal(t, 1, src.loads)
}

func TestGetReloadsAfterExpiry(t *testing.T) {
	user := entity.NewPrincipal(1, "alice", entity.KindUser)
	src := &fakeSource{principals: map[int64]*entity.Principal{1: user}}
	c := New(src, time.Millisecond, nil)

	_, err := c.Get(1)
	assert.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = c.Get(1)
	assert.NoError(t, err)
	assert.Equal(t, 2, src.loads)
}

func TestGetPropagatesSourceError(t *testing.T) {
	src := &fakeSource{principals: map[int64]*entity.Principal{}}
	c := New(src, time.Minute, nil)

	_, err := c.Get(42)
	assert.Error(t, err)
}

func TestSetClonesPrincipalSoLaterMutationDoesNotLeak(t *testing.T) {
	user := entity.NewPrincipal(1, "alice", entity.KindUser)
	src := &fakeSource{principals: map[int64]*entity.Principal{1: user}}
	c := New(src, time.Minute, nil)

	cached, err := c.Get(1)
	assert.NoError(t, err)

	user.Name = "alice-renamed"

	assert.Equal(t, "alice", cached.Name)
}

func TestInvalidateRemovesEntryAndMirrorsBestEffort(t *testing.T) {
	user := entity.NewPrincipal(1, "alice", entity.KindUser)
	src := &fakeSource{principals: map[int64]*entity.Principal{1: user}}
	mirror := &fakeMirror{}
	c := New(src, time.Minute, mirror)

	_, err := c.Get(1)
	assert.NoError(t, err)
	assert.Equal(t, 1, mirror.sets)

	c.Invalidate(1)
	assert.Equal(t, []int64{1}, mirror.invalidated)

	_, err = c.Get(1)
	assert.NoError(t, err)
	assert.Equal(t, 2, src.loads)
}

func TestInvalidateAllInvalidatesEveryID(t *testing.T) {
	src := &fakeSource{principals: map[int64]*entity.Principal{}}
	mirror := &fakeMirror{}
	c := New(src, time.Minute, mirror)

	c.InvalidateAll(1, 2, 3)
	assert.ElementsMatch(t, []int64{1, 2, 3}, mirror.invalidated)
}

func TestMirrorFailureNeverPropagatesFromSet(t *testing.T) {
	user := entity.NewPrincipal(1, "alice", entity.KindUser)
	src := &fakeSource{principals: map[int64]*entity.Principal{1: user}}
	mirror := &fakeMirror{failSet: true}
	c := New(src, time.Minute, mirror)

	assert.NotPanics(t, func() {
		c.Set(user)
	})
}

func TestWarmupPrimesEveryPrincipal(t *testing.T) {
	src := &fakeSource{principals: map[int64]*entity.Principal{}}
	c := New(src, time.Minute, nil)

	users := []*entity.Principal{
		entity.NewPrincipal(1, "a", entity.KindUser),
		entity.NewPrincipal(2, "b", entity.KindUser),
	}

	c.Warmup(users)

	p, err := c.Get(1)
	assert.NoError(t, err)
	assert.Equal(t, "a", p.Name)
	assert.Equal(t, 0, src.loads, "warmup should have populated the cache without a source load")
}
