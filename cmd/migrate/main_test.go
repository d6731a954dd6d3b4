package main

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

type fakeMigrator struct {
	upErr      error
	steps      []int
	version    uint
	versionErr error
	forced     int
}

func (f *fakeMigrator) Up() error { return f.upErr }

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, false, f.versionErr }

func (f *fakeMigrator) Force(version int) error {
	f.forced = version
	return nil
}

func TestRunCommands(t *testing.T) {
	logger := logging.New("error")

	m := &fakeMigrator{upErr: migrate.ErrNoChange}
	require.NoError(t, run(m, nil, logger), "no change is not an error")

	m = &fakeMigrator{upErr: errors.New("dirty database")}
	require.Error(t, run(m, []string{"up"}, logger))

	m = &fakeMigrator{}
	require.NoError(t, run(m, []string{"down"}, logger))
	assert.Equal(t, []int{-1}, m.steps)

	require.NoError(t, run(m, []string{"force", "3"}, logger))
	assert.Equal(t, 3, m.forced)

	require.NoError(t, run(&fakeMigrator{versionErr: migrate.ErrNilVersion}, []string{"version"}, logger))
	require.NoError(t, run(&fakeMigrator{version: 1}, []string{"version"}, logger))
}

func TestRunRejectsBadArguments(t *testing.T) {
	logger := logging.New("error")
	m := &fakeMigrator{}

	require.Error(t, run(m, []string{"force"}, logger))
	require.Error(t, run(m, []string{"force", "abc"}, logger))
	require.Error(t, run(m, []string{"sideways"}, logger))
	assert.Zero(t, m.forced)
}
