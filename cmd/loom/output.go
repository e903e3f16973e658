package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/loomhq/loom/internal/tools"
)

// outputJSON outputs data as pretty-printed JSON to stdout.
func outputJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// fatalf reports a fatal error and exits with code 1. In JSON mode the error
// goes to stderr as a parseable object so scripts never have to scrape text.
func fatalf(format string, args ...any) {
	if jsonOutput {
		encoder := json.NewEncoder(os.Stderr)
		encoder.SetIndent("", "  ")
		_ = encoder.Encode(map[string]string{"error": fmt.Sprintf(format, args...)})
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// finishEnvelope handles the shared tail of service-backed commands: JSON
// mode prints the raw envelope and stops; failures abort with the tool's
// message and error code. The returned data is non-nil exactly when the
// caller should render a human view.
func finishEnvelope(env *tools.Envelope) map[string]any {
	if jsonOutput {
		outputJSON(env)
		if !env.Success {
			os.Exit(1)
		}
		return nil
	}
	if !env.Success {
		if env.Error != nil {
			fatalf("%s (%s)", env.Error.Message, env.Error.Code)
		}
		fatalf("%s", env.Message)
	}
	data, _ := env.Data.(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return data
}

// shortID abbreviates a UUID for display. Full ids stay available via --json.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
