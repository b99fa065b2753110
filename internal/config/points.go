package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// PointsProfile is the immutable scoring configuration. Console commands and
// admin tooling change it by writing the yaml file and calling
// ProfileRef.Reload; the gameplay core only ever reads a snapshot.
type PointsProfile struct {
	RankingEnabled     bool    `yaml:"ranking_enabled"`
	StylePointsEnabled bool    `yaml:"style_points_enabled"`
	FreeCompletions    int32   `yaml:"free_completions"`
	TierPoolFactor     float64 `yaml:"tier_pool_factor"`
	BonusMultiplier    float64 `yaml:"bonus_multiplier"`

	// One baseline per map tier 1..8.
	TierBaselines [8]float64 `yaml:"tier_baselines"`

	// Fraction of the map pool for leaderboard ranks 1..10, non-increasing.
	RankWeights [10]float64 `yaml:"rank_weights"`

	// Percentile thresholds (ascending, in percent of record holders) and the
	// pool fraction awarded to finishers inside each group.
	GroupPercentiles [5]float64 `yaml:"group_percentiles"`
	GroupWeights     [5]float64 `yaml:"group_weights"`

	// Multiplier per movement style; style 0 is the default ruleset.
	StyleMultipliers map[int]float64 `yaml:"style_multipliers"`
}

// DefaultPointsProfile mirrors commonly published server defaults.
func DefaultPointsProfile() *PointsProfile {
	return &PointsProfile{
		RankingEnabled:     true,
		StylePointsEnabled: true,
		FreeCompletions:    3,
		TierPoolFactor:     1.5,
		BonusMultiplier:    0.25,
		TierBaselines:      [8]float64{25, 50, 100, 200, 400, 800, 1600, 4000},
		RankWeights:        [10]float64{1.0, 0.8, 0.75, 0.7, 0.65, 0.6, 0.55, 0.5, 0.45, 0.25},
		GroupPercentiles:   [5]float64{3.125, 6.25, 12.5, 25, 50},
		GroupWeights:       [5]float64{0.25, 0.125, 0.0625, 0.03125, 0.015625},
		StyleMultipliers:   map[int]float64{0: 1.0},
	}
}

// Validate rejects profiles that would break ranking invariants.
func (p *PointsProfile) Validate() error {
	for i := 1; i < len(p.RankWeights); i++ {
		if p.RankWeights[i] > p.RankWeights[i-1] {
			return fmt.Errorf("rank_weights must be non-increasing (index %d)", i)
		}
	}
	for i, b := range p.TierBaselines {
		if b < 0 {
			return fmt.Errorf("tier_baselines[%d] is negative", i)
		}
	}
	for i := 1; i < len(p.GroupPercentiles); i++ {
		if p.GroupPercentiles[i] <= p.GroupPercentiles[i-1] {
			return fmt.Errorf("group_percentiles must be ascending (index %d)", i)
		}
		if p.GroupWeights[i] > p.GroupWeights[i-1] {
			return fmt.Errorf("group_weights must be non-increasing (index %d)", i)
		}
	}
	if p.TierPoolFactor <= 0 {
		return fmt.Errorf("tier_pool_factor must be positive")
	}
	if p.BonusMultiplier < 0 {
		return fmt.Errorf("bonus_multiplier must not be negative")
	}
	return nil
}

// Baseline returns the configured baseline for a tier, clamping out-of-range
// tiers to the nearest configured one.
func (p *PointsProfile) Baseline(tier int) float64 {
	if tier < 1 {
		tier = 1
	}
	if tier > len(p.TierBaselines) {
		tier = len(p.TierBaselines)
	}
	return p.TierBaselines[tier-1]
}

// StyleMultiplier returns the multiplier for a style, 0 when the style is
// unknown so unconfigured styles never earn points by accident.
func (p *PointsProfile) StyleMultiplier(style int) float64 {
	if m, ok := p.StyleMultipliers[style]; ok {
		return m
	}
	if style == 0 {
		return 1.0
	}
	return 0
}

// ProfileRef hands out the current PointsProfile snapshot. Reload swaps the
// whole profile atomically so a finish being scored sees one coherent config.
type ProfileRef struct {
	cur atomic.Pointer[PointsProfile]
}

func NewProfileRef(p *PointsProfile) *ProfileRef {
	if p == nil {
		p = DefaultPointsProfile()
	}
	r := &ProfileRef{}
	r.cur.Store(p)
	return r
}

// Current returns the active snapshot. Never nil.
func (r *ProfileRef) Current() *PointsProfile { return r.cur.Load() }

// Reload parses the yaml profile at path and swaps it in if valid.
func (r *ProfileRef) Reload(path string) error {
	p, err := LoadPointsProfile(path)
	if err != nil {
		return err
	}
	r.cur.Store(p)
	return nil
}

// LoadPointsProfile reads a yaml points profile, filling unset fields from
// the defaults before validating.
func LoadPointsProfile(path string) (*PointsProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read points profile: %w", err)
	}
	p := DefaultPointsProfile()
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("parse points profile: %w", err)
	}
	if p.StyleMultipliers == nil {
		p.StyleMultipliers = map[int]float64{0: 1.0}
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid points profile: %w", err)
	}
	return p, nil
}
