package audit

import (
	"errors"

	"erynoa/eclvm/pkg/ecl/mana"
	"erynoa/eclvm/pkg/ecl/vm"
)

// OutcomeRateLimited marks requests refused by mana admission before the
// policy ran.
const OutcomeRateLimited Outcome = "rate_limited"

// ClassifyOutcome maps a run result to an Outcome. passed is ignored when
// err is non-nil.
func ClassifyOutcome(passed bool, err error) Outcome {
	if err == nil {
		if passed {
			return OutcomeAllowed
		}
		return OutcomeDenied
	}

	var (
		rejected *vm.PolicyRejectedError
		gas      *vm.OutOfGasError
		manaErr  *vm.OutOfManaError
		timeout  *vm.TimeoutError
		overflow *vm.StackOverflowError
		typeErr  *vm.TypeError
		hostErr  *vm.HostError
		limited  *mana.RateLimitedError
	)
	switch {
	case errors.As(err, &rejected):
		return OutcomeRejected
	case errors.As(err, &gas):
		return OutcomeOutOfGas
	case errors.As(err, &manaErr):
		return OutcomeOutOfMana
	case errors.As(err, &limited):
		return OutcomeRateLimited
	case errors.As(err, &timeout):
		return OutcomeTimeout
	case errors.As(err, &overflow):
		return OutcomeStackOverflow
	case errors.As(err, &typeErr), errors.Is(err, vm.ErrStackUnderflow):
		return OutcomeTypeError
	case errors.Is(err, vm.ErrAborted):
		return OutcomeAborted
	case errors.As(err, &hostErr):
		return OutcomeHostError
	}
	return OutcomeError
}
