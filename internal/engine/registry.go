package engine

import (
	"sync"

	"dexflow.io/internal/model"
)

// Registry 是调度器迭代的活跃策略工作集。
// 只保存普通的策略快照，绝不持有持久层的活动句柄。
type Registry struct {
	mu         sync.RWMutex
	strategies map[uint]*model.Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[uint]*model.Strategy)}
}

// Add 注册一个策略快照（覆盖同 ID 旧值）
func (r *Registry) Add(s *model.Strategy) {
	snapshot := *s
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.ID] = &snapshot
}

// Remove 移除策略，重复移除是无害的空操作
func (r *Registry) Remove(id uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.strategies, id)
}

// Get 返回策略快照副本
func (r *Registry) Get(id uint) (*model.Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	if !ok {
		return nil, false
	}
	snapshot := *s
	return &snapshot, true
}

// Update 更新已注册策略的快照，未注册则忽略
func (r *Registry) Update(s *model.Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strategies[s.ID]; !ok {
		return
	}
	snapshot := *s
	// 保留运行时互斥标记
	snapshot.IsExecuting = r.strategies[s.ID].IsExecuting
	r.strategies[s.ID] = &snapshot
}

// Mutate 在锁内原地修改条目，用于处理器回写进度字段
func (r *Registry) Mutate(id uint, fn func(*model.Strategy)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.strategies[id]; ok {
		fn(s)
	}
}

// TryAcquire 尝试取得策略的执行锁 (check-and-set isExecuting)。
// 返回 false 表示上一轮处理仍在进行，本轮跳过。
func (r *Registry) TryAcquire(id uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.strategies[id]
	if !ok || s.IsExecuting {
		return false
	}
	s.IsExecuting = true
	return true
}

// Release 释放执行锁。条目可能已在处理期间被移除，此时为空操作。
func (r *Registry) Release(id uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.strategies[id]; ok {
		s.IsExecuting = false
	}
}

// Snapshot 返回当前所有条目的副本，供一次 tick 迭代
func (r *Registry) Snapshot() []*model.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		snapshot := *s
		out = append(out, &snapshot)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}

func (r *Registry) IDs() []uint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	return ids
}
