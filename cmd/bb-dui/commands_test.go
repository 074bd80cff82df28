package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRootCommands(t *testing.T) {
	root := buildRoot()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "status", "start", "stop", "reconcile", "proxy", "config"} {
		assert.Contains(t, names, want)
	}

	f := root.PersistentFlags().Lookup("api-url")
	require.NotNil(t, f)
	assert.Equal(t, defaultAPIURL, f.DefValue)
}

func TestProxySubcommands(t *testing.T) {
	root := buildRoot()
	proxyCmd, _, err := root.Find([]string{"proxy", "target"})
	require.NoError(t, err)
	assert.Equal(t, "target", proxyCmd.Name())

	debugCmd, _, err := root.Find([]string{"proxy", "debug"})
	require.NoError(t, err)
	assert.NotNil(t, debugCmd.RunE)
}

func TestUnreachableServerErrors(t *testing.T) {
	root := buildRoot()
	root.SetArgs([]string{"status", "api", "--api-url", "http://127.0.0.1:1/api/v1", "--timeout", "1s"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}
