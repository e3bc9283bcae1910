package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/dealflow-backend/internal/adapter/presenter"
	"github.com/simaogato/dealflow-backend/internal/auth"
	"github.com/simaogato/dealflow-backend/internal/usecase/seeder"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DEALFLOW_STORE_DRIVER", "sqlite")
	t.Setenv("DEALFLOW_STORE_SQLITE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("DEALFLOW_LOG_LEVEL", "error")
	t.Setenv("DEALFLOW_REDIS_ADDR", "")
	t.Setenv("DEALFLOW_AUTH_JWT_SECRET", "cli-secret")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func executeJSON(t *testing.T, args ...string) presenter.RecomputeResponse {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, out)
	var resp presenter.RecomputeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestCLI_SeedRecomputeOverride(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite")

	out, err = execute(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded demo deal")

	out, err = execute(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "already present")

	demo := seeder.DemoDealID.String()
	recomputed := executeJSON(t, "recompute", "--deal", demo, "--fields", "fee")
	assert.Equal(t, demo, recomputed.DealID)
	require.Len(t, recomputed.Payments, 2)
	assert.Equal(t, "5000.00", recomputed.Payments[0].Amount)
	assert.Equal(t, "2700.00", recomputed.Payments[0].AGCI)

	paymentID := recomputed.Payments[0].ID
	overridden := executeJSON(t, "override", "--payment", paymentID, "--amount", "9812", "--actor", "ana")
	require.Len(t, overridden.Payments, 1)
	assert.Equal(t, "9812.00", overridden.Payments[0].Amount)
	assert.Equal(t, "5298.48", overridden.Payments[0].AGCI)
	assert.Equal(t, "ana", overridden.Payments[0].OverriddenBy)

	cleared := executeJSON(t, "clear-override", "--payment", paymentID)
	require.Len(t, cleared.Payments, 1)
	assert.Equal(t, "5000.00", cleared.Payments[0].Amount)
	assert.Equal(t, "TEMPLATED", cleared.Payments[0].OverrideMode)
}

func TestCLI_Errors(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "recompute", "--deal", "nope")
	assert.Error(t, err)

	_, err = execute(t, "recompute", "--deal", seeder.DemoDealID.String(), "--fields", "color")
	assert.Error(t, err)

	_, err = execute(t, "recompute", "--deal", seeder.DemoDealID.String())
	assert.Error(t, err, "deal was never seeded")

	_, err = execute(t, "override", "--payment", seeder.DemoDealID.String(), "--amount", "10")
	assert.Error(t, err, "actor is required")
}

func TestCLI_Token(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "token", "--subject", "ana@example.com")
	require.NoError(t, err)

	claims, err := auth.NewJWTManager("cli-secret", time.Hour).Validate(string(bytes.TrimSpace([]byte(out))))
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", claims.Subject)
}
