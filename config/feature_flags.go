package config

import (
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles of the API surface.
// Supports gradual rollout by account and per-account overrides.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	accountOverrides map[string]map[string]bool // accountID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Accounts are assigned based on hash of their ID
	RolloutPercent int
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	AccountID string
	IsAdmin   bool
}

// Predefined feature flag names.
const (
	FeatureRedemptions = "economy.redemptions" // Reward catalog and redemptions
	FeatureLeaderboard = "economy.leaderboard" // Top accounts by XP
	FeatureConnections = "social.connections"  // Peer connections
	FeatureGroups      = "social.groups"       // Group memberships
	FeaturePresence    = "social.presence"     // Online presence channels
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	ff.loadFromEnvironment()
	return ff
}

// NewFeatureFlags returns flags with every feature fully enabled.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		accountOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	for name, desc := range map[string]string{
		FeatureRedemptions: "Redeem XP for catalog rewards",
		FeatureLeaderboard: "Show the XP leaderboard",
		FeatureConnections: "Request and accept peer connections",
		FeatureGroups:      "Join and manage groups",
		FeaturePresence:    "Publish and read online presence",
	} {
		ff.features[name] = &Feature{Name: name, Description: desc, Enabled: true, RolloutPercent: 100}
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_SOCIAL_GROUPS=false
// Example: FEATURE_ECONOMY_REDEMPTIONS=25 (25% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "social.groups" -> "FEATURE_SOCIAL_GROUPS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
// Unknown features are disabled; admins see every known feature.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.AccountID != "" {
		if overrides, ok := ff.accountOverrides[ctx.AccountID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	if ctx != nil && ctx.IsAdmin {
		return true
	}

	if !feature.Enabled {
		return false
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.AccountID != "" {
		return isInRollout(ctx.AccountID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout uses consistent hashing so accounts stay in their bucket.
func isInRollout(accountID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(accountID))
	return int(h.Sum32()%100) < percent
}

// SetAccountOverride sets a feature override for a specific account.
func (ff *FeatureFlags) SetAccountOverride(accountID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.accountOverrides[accountID]; !ok {
		ff.accountOverrides[accountID] = make(map[string]bool)
	}
	ff.accountOverrides[accountID][featureName] = enabled
}

// ClearAccountOverrides removes all overrides for an account.
func (ff *FeatureFlags) ClearAccountOverrides(accountID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.accountOverrides, accountID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// Disabled lists features that are switched off for everyone, sorted by name.
func (ff *FeatureFlags) Disabled() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	var out []string
	for name, f := range ff.features {
		if !f.Enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
