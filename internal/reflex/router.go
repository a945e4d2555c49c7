package reflex

// #region router

// Tier names one of the three dispatcher actors.
type Tier string

const (
	TierStabilization Tier = "stabilization"
	TierEscalation    Tier = "escalation"
	TierDelegation    Tier = "delegation"
)

// routes is the static trigger partition. Each trigger belongs to
// exactly one tier.
var routes = map[Trigger]Tier{
	TriggerLowStability:      TierStabilization,
	TriggerTrustBoost:        TierStabilization,
	TriggerRecovery:          TierStabilization,
	TriggerStabilize:         TierStabilization,
	TriggerChaosSpike:        TierEscalation,
	TriggerCriticalThreshold: TierEscalation,
	TriggerEvolutionNeeded:   TierEscalation,
	TriggerCascadeRisk:       TierEscalation,
	TriggerComplexDecision:   TierDelegation,
	TriggerCrossDomain:       TierDelegation,
	TriggerSagaRequired:      TierDelegation,
	TriggerQuarantineNeeded:  TierDelegation,
}

// Route maps a trigger to its handling tier. Unrecognized or missing
// triggers fall through to Stabilization.
func Route(t Trigger) Tier {
	if tier, ok := routes[t]; ok {
		return tier
	}
	return TierStabilization
}

// #endregion router
