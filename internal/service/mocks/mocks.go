// Package mocks holds testify mocks of the service and worker collaborators.
package mocks

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

func register(t testingT, m *mock.Mock) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

func errAt(ret mock.Arguments, i int) error {
	if v := ret.Get(i); v != nil {
		return v.(error)
	}
	return nil
}

// TxRunner runs fn with a nil transaction. Repository mocks ignore the tx.
type TxRunner struct {
	Calls int
	// Err, when set, is returned instead of running fn.
	Err error
}

func (r *TxRunner) WithTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	r.Calls++
	if r.Err != nil {
		return r.Err
	}
	return fn(nil)
}
