package vm

import (
	"context"
	"errors"
	"testing"

	"erynoa/eclvm/pkg/ecl/budget"
	bc "erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/compiler"
	"erynoa/eclvm/pkg/ecl/host"
	"erynoa/eclvm/pkg/ecl/optimizer"
	"erynoa/eclvm/pkg/ecl/parser"
)

var propertySources = []string{
	`policy "threshold" { require sender.trust.R >= 0.5 }`,
	`policy "kyc" { require sender.trust.R >= 0.7 && credential(sender, "KYC"), "needs KYC" }`,
	`policy "arith" { return (2 + 3) * 4 - 10 / 5 }`,
	"policy \"branches\" {\n let t = sender.trust\n if t.R > 0.5 {\n return t.I\n } else if t.C > 0.2 {\n return 2\n } else {\n return 3\n }\n}",
	"policy \"lets\" {\n let a = 1 + 1\n let b = a * 3\n require !(b == 7)\n return b - a + 0\n}",
	`policy "balance" { require balance(sender) >= 100 }`,
	`policy "dead" { return 1 }`,
	`policy "emit" { emit "checked"
 return max(norm(sender.trust), 0.1) }`,
}

func compilePolicy(t *testing.T, src string) bc.Program {
	t.Helper()
	f, diags := parser.ParseFile("prop.ecl", src)
	if diags.HasErrors() {
		t.Fatalf("ParseFile failed: %v", diags.Err())
	}
	units, diags := compiler.Compile(f, compiler.PolicyOptions())
	if diags.HasErrors() {
		t.Fatalf("Compile failed: %v", diags.Err())
	}
	return units[0].Program
}

func propertyHosts() map[string]*host.StubHost {
	return map[string]*host.StubHost{
		"trusted": host.NewStubHost().
			WithTrust("did:alice", bc.TrustVector{0.9, 0.8, 0.7, 0.6, 0.5, 0.4}).
			WithCredential("did:alice", "KYC").
			WithBalance("did:alice", 500),
		"newcomer": host.NewStubHost(),
	}
}

type outcome struct {
	value bc.Value
	err   string
}

func execute(p bc.Program, h host.Host) (outcome, uint64) {
	b := budget.WithGasLimit(100_000)
	res, err := Run(context.Background(), p, b, h, bc.DID("did:alice"))
	if err != nil {
		var rejected *PolicyRejectedError
		if errors.As(err, &rejected) {
			return outcome{err: "rejected"}, b.GasUsed()
		}
		return outcome{err: err.Error()}, b.GasUsed()
	}
	return outcome{value: res.Value}, res.GasUsed
}

// TestOptimize_PreservesBehavior tests that optimized programs produce the same outcome.
func TestOptimize_PreservesBehavior(t *testing.T) {
	for _, src := range propertySources {
		p := compilePolicy(t, src)
		opt := optimizer.Optimize(p)
		for name, h := range propertyHosts() {
			want, gas := execute(p, h)
			got, optGas := execute(opt, h)
			if want.err != got.err || !want.value.Equal(got.value) {
				t.Errorf("%s/%s: outcome changed: %+v -> %+v\n%s", src, name, want, got, opt)
			}
			if optGas > gas {
				t.Errorf("%s/%s: optimized gas %d exceeds original %d", src, name, optGas, gas)
			}
		}
	}
}

// TestOptimize_ShortStackKeepsUnderflow tests that stack-neutral pairs
// are not removed when they would underflow.
func TestOptimize_ShortStackKeepsUnderflow(t *testing.T) {
	programs := []bc.Program{
		{bc.Simple(bc.OpSwap), bc.Simple(bc.OpSwap), bc.Simple(bc.OpReturn)},
		{bc.Simple(bc.OpPop), bc.Simple(bc.OpDup), bc.Simple(bc.OpPop), bc.Simple(bc.OpReturn)},
	}
	h := host.NewStubHost()
	for i, p := range programs {
		want, _ := execute(p, h)
		if want.err == "" {
			t.Fatalf("program %d: expected the original to fail", i)
		}
		got, _ := execute(optimizer.Optimize(p), h)
		if got.err != want.err {
			t.Errorf("program %d: outcome changed: %+v -> %+v", i, want, got)
		}
	}
}

// TestRun_Deterministic tests that identical runs use identical gas.
func TestRun_Deterministic(t *testing.T) {
	for _, src := range propertySources {
		p := compilePolicy(t, src)
		for name, h := range propertyHosts() {
			first, gas1 := execute(p, h)
			second, gas2 := execute(p, h)
			if gas1 != gas2 || first.err != second.err || !first.value.Equal(second.value) {
				t.Errorf("%s/%s: runs differ: %+v/%d vs %+v/%d", src, name, first, gas1, second, gas2)
			}
		}
	}
}

// TestRun_GasNeverExceedsLimit tests exhaustion across every limit below the true cost.
func TestRun_GasNeverExceedsLimit(t *testing.T) {
	p := compilePolicy(t, propertySources[3])
	h := propertyHosts()["trusted"]
	_, need := execute(p, h)
	for limit := uint64(0); limit < need; limit++ {
		b := budget.WithGasLimit(limit)
		_, err := Run(context.Background(), p, b, h, bc.DID("did:alice"))
		var oog *OutOfGasError
		if !errors.As(err, &oog) {
			t.Fatalf("limit %d: expected OutOfGasError, got %v", limit, err)
		}
		if b.GasUsed() > limit {
			t.Fatalf("limit %d: gas used %d", limit, b.GasUsed())
		}
	}
}

// TestCodec_PreservesBehavior tests that decoded bytecode runs like the original.
func TestCodec_PreservesBehavior(t *testing.T) {
	for _, src := range propertySources {
		p := compilePolicy(t, src)
		data, err := bc.Encode(p, bc.EncodeOptions{Compress: true})
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		decoded, err := bc.Decode(data)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		h := propertyHosts()["trusted"]
		want, gas := execute(p, h)
		got, gotGas := execute(decoded, h)
		if want.err != got.err || !want.value.Equal(got.value) || gas != gotGas {
			t.Errorf("%s: decoded program differs: %+v/%d vs %+v/%d", src, want, gas, got, gotGas)
		}
	}
}
