package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/seatcore/internal/lock"
	"github.com/iliyamo/seatcore/internal/model"
)

type LockCoordinator struct {
	mock.Mock
}

func NewLockCoordinator(t testingT) *LockCoordinator {
	m := &LockCoordinator{}
	register(t, &m.Mock)
	return m
}

func (m *LockCoordinator) Acquire(ctx context.Context, performanceID string, seatIDs []string, holder string, ttl time.Duration) (*lock.Grant, error) {
	ret := m.Called(ctx, performanceID, seatIDs, holder, ttl)
	var g *lock.Grant
	if v := ret.Get(0); v != nil {
		g = v.(*lock.Grant)
	}
	return g, errAt(ret, 1)
}

func (m *LockCoordinator) Extend(ctx context.Context, holdID, holder string, additional time.Duration) (time.Time, error) {
	ret := m.Called(ctx, holdID, holder, additional)
	return ret.Get(0).(time.Time), errAt(ret, 1)
}

func (m *LockCoordinator) Release(ctx context.Context, performanceID string, seatIDs []string, holder string) (int, error) {
	ret := m.Called(ctx, performanceID, seatIDs, holder)
	return ret.Int(0), errAt(ret, 1)
}

func (m *LockCoordinator) ReleaseHold(ctx context.Context, holdID, holder string) (int, error) {
	ret := m.Called(ctx, holdID, holder)
	return ret.Int(0), errAt(ret, 1)
}

func (m *LockCoordinator) Verify(ctx context.Context, performanceID, seatID, holder string) (int64, bool, error) {
	ret := m.Called(ctx, performanceID, seatID, holder)
	return ret.Get(0).(int64), ret.Bool(1), errAt(ret, 2)
}

func (m *LockCoordinator) Hold(ctx context.Context, holdID string) (*model.Hold, error) {
	ret := m.Called(ctx, holdID)
	var h *model.Hold
	if v := ret.Get(0); v != nil {
		h = v.(*model.Hold)
	}
	return h, errAt(ret, 1)
}

func (m *LockCoordinator) LiveLocks(ctx context.Context, performanceID string, seatIDs []string) (map[string]bool, error) {
	ret := m.Called(ctx, performanceID, seatIDs)
	var live map[string]bool
	if v := ret.Get(0); v != nil {
		live = v.(map[string]bool)
	}
	return live, errAt(ret, 1)
}
