package procutil

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildChildEnvExtendsLibraryPath(t *testing.T) {
	key := LibraryPathVar()
	old, had := os.LookupEnv(key)
	defer func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	}()
	os.Setenv(key, "/existing/path")

	env := BuildChildEnv("/worker/dir", "/engine/dir", map[string]string{"SLIMLO_HEADLESS": "1"})

	var libPath, headless string
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			libPath = strings.TrimPrefix(kv, key+"=")
		}
		if strings.HasPrefix(kv, "SLIMLO_HEADLESS=") {
			headless = strings.TrimPrefix(kv, "SLIMLO_HEADLESS=")
		}
	}

	assert.Contains(t, libPath, "/worker/dir")
	assert.Contains(t, libPath, "/engine/dir")
	assert.Contains(t, libPath, "/existing/path")
	assert.Equal(t, "1", headless)
}

func TestBuildChildEnvOverridesExistingKey(t *testing.T) {
	env := []string{"FOO=old"}
	env = setEnv(env, "FOO", "new")
	assert.Equal(t, []string{"FOO=new"}, env)

	env = setEnv(env, "BAR", "baz")
	assert.Equal(t, []string{"FOO=new", "BAR=baz"}, env)
}
