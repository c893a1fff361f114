package runner

// PolicyExecution describes one finished policy run.
type PolicyExecution struct {
	ExecutionID    string
	PolicyID       string
	PolicyType     string
	RealmID        string
	CallerDID      string
	Passed         bool
	GasUsed        uint64
	ManaUsed       uint64
	DurationMicros uint64
	// Err is the run failure, if any.
	Err error
}

// CrossingEvaluation describes a realm crossing decision.
type CrossingEvaluation struct {
	FromRealm  string
	ToRealm    string
	EntityID   string
	Allowed    bool
	TrustScore float64
	PolicyID   string
	// Err is set when the crossing could not be evaluated, e.g. rate
	// limited or misconfigured. Allowed is false then.
	Err error
}

// Observer receives execution events, typically to feed metrics.
// Implementations must be safe for concurrent use.
type Observer interface {
	OnPolicyExecuted(PolicyExecution)
	OnCrossingEvaluated(CrossingEvaluation)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) OnPolicyExecuted(e PolicyExecution) {
	for _, obs := range o {
		obs.OnPolicyExecuted(e)
	}
}

func (o Observers) OnCrossingEvaluated(e CrossingEvaluation) {
	for _, obs := range o {
		obs.OnCrossingEvaluated(e)
	}
}
