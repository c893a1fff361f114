package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on ECL spans.
const (
	AttrExecutionID = "ecl.execution_id"
	AttrPolicyID    = "ecl.policy.id"
	AttrPolicyType  = "ecl.policy.type"
	AttrRealm       = "ecl.realm"
	AttrCaller      = "ecl.caller"
	AttrProgramLen  = "ecl.program.len"
	AttrGasUsed     = "ecl.gas_used"
	AttrManaUsed    = "ecl.mana_used"
	AttrPassed      = "ecl.passed"

	AttrHTTPMethod = "http.request.method"
	AttrHTTPPath   = "url.path"

	AttrErrorMessage = "error.message"
)

// RunAttributes returns the attributes identifying a policy run.
func RunAttributes(executionID, policyID, policyType, realm, caller string, programLen int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrExecutionID, executionID),
		attribute.String(AttrPolicyID, policyID),
		attribute.String(AttrPolicyType, policyType),
		attribute.String(AttrRealm, realm),
		attribute.String(AttrCaller, caller),
		attribute.Int(AttrProgramLen, programLen),
	}
}

// SetUsage records gas and mana consumption.
func SetUsage(span trace.Span, gas, mana uint64) {
	span.SetAttributes(
		attribute.Int64(AttrGasUsed, int64(gas)),
		attribute.Int64(AttrManaUsed, int64(mana)),
	)
}

// SetError marks the span as failed and records the error.
func SetError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.SetAttributes(
		attribute.Bool("error", true),
		attribute.String(AttrErrorMessage, err.Error()),
	)
	span.RecordError(err)
}

// SetStatus sets the span status based on an error.
func SetStatus(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
}
