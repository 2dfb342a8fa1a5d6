package integrationtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syepes/hubitat-exporter/pkg/hub"
	"github.com/yalp/jsonpath"
)

// fakeHub reports whether the tests run against the built-in fake hub.
func fakeHub() bool {
	return iTest.hubURI == ""
}

// hubArgs returns the flags pointing the binary at the hub for test, starting a populated fake
// hub when no real hub was given.
func hubArgs(t *testing.T) []string {
	t.Helper()
	if !fakeHub() {
		args := []string{
			"--hubitat-ip", iTest.hubURI,
			"--hubitat-api-id", iTest.apiID,
			"--hubitat-api-access-token", iTest.apiToken,
		}
		if iTest.user != "" {
			args = append(args, "--hubitat-auth-usr", iTest.user, "--hubitat-auth-pwd", iTest.password)
		}
		return args
	}
	th := hub.NewTestHub(t).
		RequireCredentials("admin", "hunter2").
		SetInventory(json.RawMessage(`[
			{"id": "10", "hubName": "Home", "locationName": "House", "deviceNetworkId": "5F2A", "deviceTypeName": "Generic Zigbee Contact Sensor"},
			{"id": "11", "hubName": "Home", "locationName": "House", "deviceNetworkId": "7C01", "deviceTypeName": "Generic Zigbee Outlet"}
		]`)).
		SetDeviceList(json.RawMessage(`[
			{"id": "10", "name": "Contact", "label": "Front Door"},
			{"id": "11", "name": "Outlet", "label": "Kettle"}
		]`)).
		AddDevice("10", json.RawMessage(`{"id": "10", "name": "Contact", "label": "Front Door", "type": "Generic Zigbee Contact Sensor", "attributes": [
			{"name": "contact", "currentValue": "closed", "dataType": "ENUM", "values": ["closed", "open"]},
			{"name": "battery", "currentValue": 87, "dataType": "NUMBER"},
			{"name": "temperature", "currentValue": 20.5, "dataType": "NUMBER"}
		]}`)).
		AddDevice("11", json.RawMessage(`{"id": "11", "name": "Outlet", "label": "Kettle", "type": "Generic Zigbee Outlet", "attributes": [
			{"name": "switch", "currentValue": "on", "dataType": "ENUM"},
			{"name": "power", "currentValue": "1850.2", "dataType": "NUMBER"},
			{"name": "healthStatus", "currentValue": "online", "dataType": "ENUM"}
		]}`))
	return []string{
		"--hubitat-ip", th.URL(),
		"--hubitat-api-id", th.APIID,
		"--hubitat-api-access-token", th.Token,
		"--hubitat-auth-usr", "admin",
		"--hubitat-auth-pwd", "hunter2",
	}
}

// cleanEnv drops any exporter configuration from the test's environment.
func cleanEnv() []string {
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "HE_") || strings.HasPrefix(kv, "LISTENER=") || strings.HasPrefix(kv, "TELEMETRY_LISTENER=") {
			continue
		}
		env = append(env, kv)
	}
	return env
}

func command(ctx context.Context, t *testing.T, args ...string) *exec.Cmd {
	t.Logf("Running: %s %s", iTest.binPath, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, iTest.binPath, args...)
	cmd.Env = cleanEnv()
	return cmd
}

func run(ctx context.Context, t *testing.T, args ...string) (out, logs string, exitCode int) {
	cmd := command(ctx, t, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var eErr *exec.ExitError
		if errors.As(err, &eErr) {
			return stdout.String(), stderr.String(), eErr.ExitCode()
		}
		t.Fatalf("cmd %s %s err: %v", iTest.binPath, strings.Join(args, " "), err)
	}
	return stdout.String(), stderr.String(), 0
}

func jsonGet(t *testing.T, actual, path string) any {
	t.Helper()
	var data any
	err := json.Unmarshal([]byte(actual), &data)
	require.NoError(t, err)
	v, err := jsonpath.Read(data, path)
	require.NoError(t, err)
	return v
}

func jsonAssertEqual(t *testing.T, actual, path string, expect any, msg ...any) {
	t.Helper()
	v := jsonGet(t, actual, path)
	assert.Equal(t, expect, v, msg...)
}

func jsonAssertExists(t *testing.T, actual, path string, msg ...any) {
	t.Helper()
	v := jsonGet(t, actual, path)
	assert.NotNil(t, v, msg...)
}
