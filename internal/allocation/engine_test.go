package allocation

import (
	"testing"
	"time"

	"github.com/Logarithm-Labs/curator-agent/internal/vault"

	"github.com/stretchr/testify/assert"
)

var testTime = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		DefaultMaxWeight:   1.0,
		MaxUtilization:     0.95,
		RebalanceThreshold: 0.02,
		RiskPenalty:        0,
	}
}

func obs(id string, yield, util, capacity, risk float64) vault.VaultObservation {
	return vault.VaultObservation{
		VaultID:     id,
		Timestamp:   testTime,
		YieldRate:   yield,
		Utilization: util,
		Capacity:    capacity,
		RiskScore:   risk,
		Available:   true,
	}
}

func snapOf(observations ...vault.VaultObservation) vault.ObservationSnapshot {
	vaults := make(map[string]vault.VaultObservation, len(observations))
	for _, o := range observations {
		vaults[o.VaultID] = o
	}
	return vault.ObservationSnapshot{Timestamp: testTime, Vaults: vaults}
}

func TestDecide_Deterministic(t *testing.T) {
	state := vault.NewPortfolioState(testTime, 10000)
	state.Deposits["beta"] = 2000
	state.Cash = 8000
	snap := snapOf(
		obs("alpha", 0.10, 0.40, 1e9, 0.2),
		obs("beta", 0.07, 0.30, 1e9, 0.1),
		obs("gamma", 0.03, 0.10, 1e9, 0),
	)
	cfg := testConfig()
	cfg.DefaultMaxWeight = 0.5
	cfg.RiskPenalty = 0.5

	first, err := Decide(state, snap, cfg)
	assert.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Decide(state.Clone(), snap, cfg)
		assert.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDecide_BudgetStopHoldsResidualAsCash(t *testing.T) {
	// Once the top vault hits its max-weight cap the remainder stays in
	// cash instead of flowing to the next-ranked vault.
	state := vault.NewPortfolioState(testTime, 10000)
	snap := snapOf(
		obs("alpha", 0.10, 0.50, 1e9, 0),
		obs("beta", 0.05, 0.50, 1e9, 0),
	)
	cfg := testConfig()
	cfg.DefaultMaxWeight = 0.8

	target, err := Decide(state, snap, cfg)
	assert.NoError(t, err)
	assert.Equal(t, vault.AllocationTarget{"alpha": 0.8}, target)
}

func TestDecide_CapacityExhaustionSpills(t *testing.T) {
	// Capacity is a physical limit, so leftover budget moves to the next
	// vault in the ranking.
	state := vault.NewPortfolioState(testTime, 10000)
	snap := snapOf(
		obs("alpha", 0.10, 0.50, 5000, 0),
		obs("beta", 0.05, 0.50, 1e9, 0),
	)
	cfg := testConfig()

	target, err := Decide(state, snap, cfg)
	assert.NoError(t, err)
	assert.InDelta(t, 0.5, target["alpha"], 1e-9)
	assert.InDelta(t, 0.5, target["beta"], 1e-9)
}

func TestDecide_UtilizationBlocksNewMoney(t *testing.T) {
	state := vault.NewPortfolioState(testTime, 0)
	state.Deposits["alpha"] = 3000
	state.Cash = 7000
	snap := snapOf(
		obs("alpha", 0.10, 0.97, 1e9, 0),
		obs("beta", 0.05, 0.50, 1e9, 0),
	)
	cfg := testConfig()

	target, err := Decide(state, snap, cfg)
	assert.NoError(t, err)
	// Existing alpha position is kept, no new money added; beta absorbs
	// the rest.
	assert.InDelta(t, 0.3, target["alpha"], 1e-9)
	assert.InDelta(t, 0.7, target["beta"], 1e-9)
}

func TestDecide_HysteresisSuppressesSmallMoves(t *testing.T) {
	state := vault.NewPortfolioState(testTime, 0)
	state.Deposits["alpha"] = 5000
	state.Cash = 5000
	snap := snapOf(obs("alpha", 0.10, 0.50, 1e9, 0))
	cfg := testConfig()
	cfg.MaxWeight = map[string]float64{"alpha": 0.51}

	target, err := Decide(state, snap, cfg)
	assert.NoError(t, err)
	// Candidate 0.51 is within the 0.02 band of the held 0.50, so the
	// weight does not move.
	assert.InDelta(t, 0.50, target["alpha"], 1e-9)
}

func TestDecide_NonPositiveScoreSellsDown(t *testing.T) {
	state := vault.NewPortfolioState(testTime, 0)
	state.Deposits["alpha"] = 4000
	state.Cash = 6000
	snap := snapOf(obs("alpha", 0, 0.50, 1e9, 0))
	cfg := testConfig()

	target, err := Decide(state, snap, cfg)
	assert.NoError(t, err)
	assert.Empty(t, target)
}

func TestDecide_RiskPenaltyReordersRanking(t *testing.T) {
	state := vault.NewPortfolioState(testTime, 10000)
	snap := snapOf(
		obs("alpha", 0.10, 0.50, 1e9, 0.8),
		obs("beta", 0.08, 0.50, 1e9, 0),
	)
	cfg := testConfig()
	cfg.DefaultMaxWeight = 0.6
	cfg.RiskPenalty = 1.0

	// alpha's penalized score is 0.10*(1-0.8)=0.02, below beta's 0.08.
	target, err := Decide(state, snap, cfg)
	assert.NoError(t, err)
	assert.Equal(t, vault.AllocationTarget{"beta": 0.6}, target)
}

func TestDecide_TieBreakByVaultID(t *testing.T) {
	state := vault.NewPortfolioState(testTime, 10000)
	snap := snapOf(
		obs("beta", 0.05, 0.50, 1e9, 0),
		obs("alpha", 0.05, 0.50, 1e9, 0),
	)
	cfg := testConfig()
	cfg.DefaultMaxWeight = 0.6

	target, err := Decide(state, snap, cfg)
	assert.NoError(t, err)
	assert.Equal(t, vault.AllocationTarget{"alpha": 0.6}, target)
}

func TestDecide_MissingObservationForHeldVault(t *testing.T) {
	state := vault.NewPortfolioState(testTime, 0)
	state.Deposits["alpha"] = 4000
	state.Cash = 6000
	snap := snapOf(obs("beta", 0.05, 0.50, 1e9, 0))

	_, err := Decide(state, snap, testConfig())
	assert.Error(t, err)
	var missing *vault.MissingObservationError
	assert.ErrorAs(t, err, &missing)
	assert.Equal(t, "alpha", missing.VaultID)
}

func TestDecide_UnavailableHeldVaultIsMissing(t *testing.T) {
	state := vault.NewPortfolioState(testTime, 0)
	state.Deposits["alpha"] = 4000
	state.Cash = 6000
	down := obs("alpha", 0, 0, 0, 0)
	down.Available = false
	snap := snapOf(down, obs("beta", 0.05, 0.50, 1e9, 0))

	_, err := Decide(state, snap, testConfig())
	var missing *vault.MissingObservationError
	assert.ErrorAs(t, err, &missing)
}

func TestDecide_InvalidConfig(t *testing.T) {
	state := vault.NewPortfolioState(testTime, 10000)
	snap := snapOf(obs("alpha", 0.05, 0.50, 1e9, 0))

	cfg := testConfig()
	cfg.DefaultMaxWeight = 1.5
	_, err := Decide(state, snap, cfg)
	var invalid *vault.InvalidConfigError
	assert.ErrorAs(t, err, &invalid)

	cfg = testConfig()
	cfg.MaxUtilization = 0
	_, err = Decide(state, snap, cfg)
	assert.ErrorAs(t, err, &invalid)

	cfg = testConfig()
	cfg.DiversificationFloor = 0.5
	cfg.MaxWeight = map[string]float64{"alpha": 0.1}
	_, err = Decide(state, snap, cfg)
	assert.ErrorAs(t, err, &invalid)
}

func TestConfig_CapFor(t *testing.T) {
	cfg := Config{DefaultMaxWeight: 0.4, MaxWeight: map[string]float64{"alpha": 0.9}}
	assert.Equal(t, 0.9, cfg.CapFor("alpha"))
	assert.Equal(t, 0.4, cfg.CapFor("beta"))
}
