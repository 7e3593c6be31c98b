package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexflow.io/internal/model"
)

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()

	s := &model.Strategy{ID: 1, Kind: model.KindLimitOrder, Name: "one"}
	r.Add(s)

	got, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, "one", got.Name)

	// Get 返回副本，改动不应写回注册表
	got.Name = "mutated"
	again, _ := r.Get(1)
	assert.Equal(t, "one", again.Name)

	r.Remove(1)
	_, ok = r.Get(1)
	assert.False(t, ok)

	// 重复移除无害
	r.Remove(1)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryTryAcquireRelease(t *testing.T) {
	r := NewRegistry()
	r.Add(&model.Strategy{ID: 7})

	require.True(t, r.TryAcquire(7))
	// 第二次取锁必须失败
	assert.False(t, r.TryAcquire(7))

	r.Release(7)
	assert.True(t, r.TryAcquire(7))

	// 未注册的 ID 取不到锁
	assert.False(t, r.TryAcquire(99))
	// 释放已移除的条目是空操作
	r.Remove(7)
	r.Release(7)
}

func TestRegistryUpdatePreservesLock(t *testing.T) {
	r := NewRegistry()
	r.Add(&model.Strategy{ID: 3, Name: "before"})
	require.True(t, r.TryAcquire(3))

	r.Update(&model.Strategy{ID: 3, Name: "after"})

	got, ok := r.Get(3)
	require.True(t, ok)
	assert.Equal(t, "after", got.Name)
	// 更新不得覆盖运行时执行锁
	assert.False(t, r.TryAcquire(3))

	// 未注册的策略 Update 被忽略
	r.Update(&model.Strategy{ID: 42})
	_, ok = r.Get(42)
	assert.False(t, ok)
}

func TestRegistrySnapshotIsolation(t *testing.T) {
	r := NewRegistry()
	r.Add(&model.Strategy{ID: 1, Name: "a"})
	r.Add(&model.Strategy{ID: 2, Name: "b"})

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	for _, s := range snap {
		s.Name = "overwritten"
	}
	got, _ := r.Get(1)
	assert.Equal(t, "a", got.Name)
}

func TestRegistryMutate(t *testing.T) {
	r := NewRegistry()
	r.Add(&model.Strategy{ID: 5})

	r.Mutate(5, func(s *model.Strategy) { s.ExecutedIntervals = 3 })

	got, _ := r.Get(5)
	assert.Equal(t, 3, got.ExecutedIntervals)

	// 不存在的条目不调用回调
	called := false
	r.Mutate(6, func(s *model.Strategy) { called = true })
	assert.False(t, called)
}
