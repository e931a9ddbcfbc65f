package main

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistentPreRun_ReleaseModeOutsideProduction(t *testing.T) {
	t.Setenv("BEACON_APP_ENV", "development")
	t.Setenv("BEACON_SYNC_ENABLED", "false")

	gin.SetMode(gin.DebugMode)
	t.Cleanup(func() { gin.SetMode(gin.TestMode) })

	require.NoError(t, rootCmd.PersistentPreRunE(serveCmd, nil))

	assert.Equal(t, gin.ReleaseMode, gin.Mode())
	assert.Equal(t, "development", cfg.App.Env)
	require.NotNil(t, app)
	assert.Nil(t, app.syncer)
}
