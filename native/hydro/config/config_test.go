package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"

	"hydro/native/hydro/decimal"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constants.toml")

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(12), c.MaxDeploymentDuration)
	require.Equal(t, uint32(1), c.TopNProposals)
	require.Equal(t, "Hydro Lockups", c.Collection.Name)
	require.Len(t, c.RoundLockPowerSchedule, 1)
	require.Equal(t, "1", c.RoundLockPowerSchedule[0].Multiplier.String())

	// A second load reads the file just written rather than recreating it.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, c.RoundLengthNanos, again.RoundLengthNanos)
}

func TestLoadRoundTripsExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constants.toml")
	one, err := decimal.FromString("1")
	require.NoError(t, err)
	half, err := decimal.FromString("1.5")
	require.NoError(t, err)
	file := ConstantsFile{
		ActivationTimestamp:   "2020-01-01T00:00:00Z",
		RoundLength:           "720h",
		LockEpochLength:       "720h",
		FirstRoundStart:       "2020-01-01T00:00:00Z",
		MaxLockedTokens:       1_000_000,
		KnownUsersCap:         500,
		MaxDeploymentDuration: 3,
		RoundLockPowerSchedule: []PowerStep{
			{LockEpochsThreshold: 1, Multiplier: one},
			{LockEpochsThreshold: 3, Multiplier: half},
		},
		TopNProposals:   2,
		CommunityTaxBps: 250,
	}
	writeFile(t, path, file)

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), c.MaxLockedTokens)
	require.Equal(t, uint32(250), c.CommunityTaxBps)
	require.Equal(t, uint64(3), c.MaxDeploymentDuration)
	require.Len(t, c.RoundLockPowerSchedule, 2)
	require.Equal(t, "1.5", c.RoundLockPowerSchedule[1].Multiplier.String())
}

func TestLoadRejectsMalformedTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constants.toml")
	writeFile(t, path, ConstantsFile{
		ActivationTimestamp: "not-a-timestamp",
		RoundLength:         "720h",
		LockEpochLength:     "720h",
		FirstRoundStart:     "2020-01-01T00:00:00Z",
	})

	_, err := Load(path)
	require.Error(t, err)
}

func writeFile(t *testing.T, path string, file ConstantsFile) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, toml.NewEncoder(f).Encode(file))
}
