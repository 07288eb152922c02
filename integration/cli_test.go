package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIConfigInitGeneratesValidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "generated-config.json")

	cmd := exec.Command(binaryPath, "-config-init", configPath)
	output, err := cmd.CombinedOutput()
	t.Logf("config-init output: %s", output)

	require.NoError(t, err, "config-init should succeed")
	assert.Contains(t, string(output), "Generated default config at:")

	fi, err := os.Stat(configPath)
	require.NoError(t, err, "config file should exist")
	require.Greater(t, fi.Size(), int64(0), "config file should not be empty")

	cmd = exec.Command(binaryPath, "-config", configPath, "-validate")
	output, err = cmd.CombinedOutput()
	t.Logf("validate output: %s", output)

	require.NoError(t, err, "validate should succeed for config-init generated file")
	assert.Contains(t, string(output), "Result: PASS")
}

func TestCLIValidateReportsErrors(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad-config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{
		"version": "cdsso/v1",
		"server": {"addr": ":8080"},
		"sso": {"canonicalHost": "https://network.example.com", "secret": "plain-text"}
	}`), 0600))

	cmd := exec.Command(binaryPath, "-config", configPath, "-validate")
	output, err := cmd.CombinedOutput()
	t.Logf("validate output: %s", output)

	require.Error(t, err)
	assert.Contains(t, string(output), "sso.canonicalHost")
	assert.Contains(t, string(output), "sso.secret")
	assert.Contains(t, string(output), "Result: FAIL")
}

func TestCLIRequiresConfig(t *testing.T) {
	output, err := exec.Command(binaryPath).CombinedOutput()
	require.Error(t, err)
	assert.Contains(t, string(output), "-config flag is required")

	output, err = exec.Command(binaryPath, "-version").CombinedOutput()
	require.NoError(t, err)
	assert.Equal(t, "dev\n", string(output))
}

func TestCLIMaintainsDomainRegistry(t *testing.T) {
	configPath := writeTestConfig(t, nil)
	startCDSSO(t, configPath)

	run := func(args ...string) string {
		t.Helper()
		cmd := exec.Command(binaryPath, append([]string{"-config", configPath}, args...)...)
		cmd.Env = append(os.Environ(), "CDSSO_SECRET="+testSecret, "ALICE_PASSWORD="+testPassword)
		output, err := cmd.CombinedOutput()
		require.NoError(t, err, "output: %s", output)
		return string(output)
	}

	out := run("-list-domains")
	assert.Regexp(t, `shop\.example\s+2\s+false\s+true`, out)
	assert.Regexp(t, `blog\.example\s+3\s+false\s+false`, out)

	out = run("-set-ssl", shopHost+"=true", "-list-domains")
	assert.Contains(t, out, "Set https for shop.example to true")
	assert.Regexp(t, `shop\.example\s+2\s+true\s+true`, out)

	out = run("-remove-domain", blogHost, "-list-domains")
	assert.Contains(t, out, "Removed blog.example")
	assert.NotRegexp(t, `blog\.example\s+3`, out)

	cmd := exec.Command(binaryPath, "-config", configPath, "-set-ssl", "nowhere.example=true")
	cmd.Env = append(os.Environ(), "CDSSO_SECRET="+testSecret, "ALICE_PASSWORD="+testPassword)
	output, err := cmd.CombinedOutput()
	require.Error(t, err)
	assert.Contains(t, string(output), "nowhere.example is not mapped")
}
