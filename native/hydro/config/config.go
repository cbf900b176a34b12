// Package config loads Hydro's time-versioned Constants records from TOML,
// the same BurntSushi/toml convention the rest of the stack uses for its
// on-disk configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"hydro/native/hydro"
	"hydro/native/hydro/decimal"
)

// PowerStep is one (threshold, multiplier) entry of a RoundLockPowerSchedule.
type PowerStep struct {
	LockEpochsThreshold uint64      `toml:"LockEpochsThreshold"`
	Multiplier          decimal.Dec `toml:"Multiplier"`
}

// Collection mirrors the cw721 collection metadata.
type Collection struct {
	Name    string `toml:"Name"`
	Symbol  string `toml:"Symbol"`
	BaseURI string `toml:"BaseURI"`
}

// ConstantsFile is the on-disk TOML shape of one Constants record.
// Durations are Go duration strings ("720h", "30m"); ActivationTimestamp
// and FirstRoundStart are RFC3339 timestamps.
type ConstantsFile struct {
	ActivationTimestamp            string      `toml:"ActivationTimestamp"`
	RoundLength                    string      `toml:"RoundLength"`
	LockEpochLength                string      `toml:"LockEpochLength"`
	FirstRoundStart                string      `toml:"FirstRoundStart"`
	MaxLockedTokens                uint64      `toml:"MaxLockedTokens"`
	KnownUsersCap                   uint64      `toml:"KnownUsersCap"`
	MaxValidatorSharesParticipating uint32      `toml:"MaxValidatorSharesParticipating"`
	HubConnectionID                string      `toml:"HubConnectionID"`
	HubTransferChannelID            string      `toml:"HubTransferChannelID"`
	ICQUpdatePeriod                 string      `toml:"ICQUpdatePeriod"`
	Paused                          bool        `toml:"Paused"`
	MaxDeploymentDuration           uint64      `toml:"MaxDeploymentDuration"`
	RoundLockPowerSchedule          []PowerStep `toml:"RoundLockPowerSchedule"`
	Collection                      Collection  `toml:"Collection"`
	LockDepthLimit                  uint32      `toml:"LockDepthLimit"`
	LockExpiryDuration              string      `toml:"LockExpiryDuration"`
	SlashPercentageThresholdBPS     uint32      `toml:"SlashPercentageThresholdBPS"`
	SlashTokensReceiverAddr         string      `toml:"SlashTokensReceiverAddr"`
	TopNProposals                   uint32      `toml:"TopNProposals"`
	CommunityTaxBps                 uint32      `toml:"CommunityTaxBps"`
	CommunityPoolBucket             string      `toml:"CommunityPoolBucket"`
}

// Load reads a Constants record from path, creating a default file (30-day
// rounds, a flat 1.0 power schedule, zero community tax) if none exists yet.
func Load(path string) (hydro.Constants, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	var file ConstantsFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return hydro.Constants{}, err
	}
	return file.toConstants()
}

func createDefault(path string) (hydro.Constants, error) {
	file := ConstantsFile{
		ActivationTimestamp:    time.Unix(0, 0).UTC().Format(time.RFC3339),
		RoundLength:            "720h",
		LockEpochLength:        "720h",
		FirstRoundStart:        time.Unix(0, 0).UTC().Format(time.RFC3339),
		MaxLockedTokens:        0,
		KnownUsersCap:          0,
		MaxDeploymentDuration:  12,
		RoundLockPowerSchedule: []PowerStep{{LockEpochsThreshold: 1, Multiplier: decimal.One}},
		Collection:             Collection{Name: "Hydro Lockups", Symbol: "HYDROLOCK"},
		LockDepthLimit:         16,
		LockExpiryDuration:     "0s",
		TopNProposals:          1,
	}
	f, err := os.Create(path)
	if err != nil {
		return hydro.Constants{}, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(file); err != nil {
		return hydro.Constants{}, err
	}
	return file.toConstants()
}

func (f ConstantsFile) toConstants() (hydro.Constants, error) {
	activation, err := time.Parse(time.RFC3339, f.ActivationTimestamp)
	if err != nil {
		return hydro.Constants{}, fmt.Errorf("config: ActivationTimestamp: %w", err)
	}
	firstRoundStart, err := time.Parse(time.RFC3339, f.FirstRoundStart)
	if err != nil {
		return hydro.Constants{}, fmt.Errorf("config: FirstRoundStart: %w", err)
	}
	roundLength, err := time.ParseDuration(f.RoundLength)
	if err != nil {
		return hydro.Constants{}, fmt.Errorf("config: RoundLength: %w", err)
	}
	lockEpochLength, err := time.ParseDuration(f.LockEpochLength)
	if err != nil {
		return hydro.Constants{}, fmt.Errorf("config: LockEpochLength: %w", err)
	}
	var icqPeriod time.Duration
	if f.ICQUpdatePeriod != "" {
		icqPeriod, err = time.ParseDuration(f.ICQUpdatePeriod)
		if err != nil {
			return hydro.Constants{}, fmt.Errorf("config: ICQUpdatePeriod: %w", err)
		}
	}
	var lockExpiry time.Duration
	if f.LockExpiryDuration != "" {
		lockExpiry, err = time.ParseDuration(f.LockExpiryDuration)
		if err != nil {
			return hydro.Constants{}, fmt.Errorf("config: LockExpiryDuration: %w", err)
		}
	}

	schedule := make([]hydro.RoundLockPowerStep, len(f.RoundLockPowerSchedule))
	for i, step := range f.RoundLockPowerSchedule {
		schedule[i] = hydro.RoundLockPowerStep{LockEpochsThreshold: step.LockEpochsThreshold, Multiplier: step.Multiplier}
	}

	return hydro.Constants{
		ActivationTimestamp:             activation.UnixNano(),
		RoundLengthNanos:                roundLength.Nanoseconds(),
		LockEpochLengthNanos:            lockEpochLength.Nanoseconds(),
		FirstRoundStartNanos:            firstRoundStart.UnixNano(),
		MaxLockedTokens:                 f.MaxLockedTokens,
		KnownUsersCap:                   f.KnownUsersCap,
		MaxValidatorSharesParticipating: f.MaxValidatorSharesParticipating,
		HubConnectionID:                 f.HubConnectionID,
		HubTransferChannelID:            f.HubTransferChannelID,
		ICQUpdatePeriod:                 icqPeriod.Nanoseconds(),
		Paused:                          f.Paused,
		MaxDeploymentDuration:           f.MaxDeploymentDuration,
		RoundLockPowerSchedule:          schedule,
		Collection:                      hydro.CollectionInfo{Name: f.Collection.Name, Symbol: f.Collection.Symbol, BaseURI: f.Collection.BaseURI},
		LockDepthLimit:                  f.LockDepthLimit,
		LockExpiryDurationSeconds:       int64(lockExpiry.Seconds()),
		SlashPercentageThresholdBPS:     f.SlashPercentageThresholdBPS,
		SlashTokensReceiverAddr:         f.SlashTokensReceiverAddr,
		TopNProposals:                   f.TopNProposals,
		CommunityTaxBps:                 f.CommunityTaxBps,
		CommunityPoolBucket:             f.CommunityPoolBucket,
	}, nil
}
