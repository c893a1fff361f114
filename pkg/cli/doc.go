/*
Package cli provides helpers shared by the ecl command.

Output Formatting:

Commands that accept --format print results through a Formatter:

	format, err := cli.ParseOutputFormat(flags.format)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), result)

Parse and compile diagnostics are printed with PrintDiagnostics, or
converted with DiagnosticsJSON for machine-readable output.

Exit Codes:

ExitCode maps the error returned by a command to the process exit status:
0 success, 1 generic failure, 2 policy denied, 3 compile diagnostics and
4 resource exhaustion.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
