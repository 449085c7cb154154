package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand executes the given Cobra command with the provided args
// and captures its stdout/stderr.
func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	t.Cleanup(func() { Version, GitSHA = "", "" })

	cases := map[string]struct {
		version, sha string
		wantErr      string
	}{
		"success":         {version: "v0.1.0-test", sha: "abcdef123test"},
		"missing version": {sha: "abcdef123test", wantErr: "version not set"},
		"missing git sha": {version: "v0.1.0-test", wantErr: "git SHA not set"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			Version, GitSHA = tc.version, tc.sha

			output, err := executeCommand(VersionCmd)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, output, "evreg version:")
			assert.Contains(t, output, tc.version)
			assert.Contains(t, output, tc.sha)
		})
	}
}
