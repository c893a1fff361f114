// Command ecl compiles, inspects and runs ECL policies, and serves a realm
// gateway over HTTP.
//
// Usage:
//
//	# Evaluate an expression against the stub host
//	ecl eval 'trust(sender).R >= 0.5'
//
//	# Check every policy under a directory
//	ecl check policies/
//
//	# Compile a policy to a bytecode blob
//	ecl compile policies/finance.ecl --policy finance_entry -O -o finance.eclb
//
//	# Run a policy with caller facts from a JSON file
//	ecl run finance.eclb --context alice.json --trace
//
//	# Serve the gateway with metrics and health endpoints
//	ecl serve --config ecl.yaml
package main

func main() {
	Execute()
}
