package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionStrings(t *testing.T) {
	require.NotEmpty(t, Short())
	require.Contains(t, Full(), Short())
	require.Contains(t, Full(), Commit)
}

func TestCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := Command()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	require.Equal(t, Full()+"\n", out.String())
}
