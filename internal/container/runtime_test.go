// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package container

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecutor records calls and returns configured responses.
type mockExecutor struct {
	availableBins map[string]bool // binary -> whether LookPath succeeds
	runnableCmds  map[string]bool // "bin arg1 arg2" -> whether RunSilent succeeds
	runPipedFunc  func(name string, args []string, stdin io.Reader, stdout, stderr io.Writer) error
}

func (m *mockExecutor) LookPath(file string) (string, error) {
	if m.availableBins[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found: " + file)
}

func (m *mockExecutor) RunSilent(_ context.Context, name string, args ...string) error {
	key := name + " " + strings.Join(args, " ")
	if m.runnableCmds[key] {
		return nil
	}
	return errors.New("command failed: " + key)
}

func (m *mockExecutor) RunPiped(_ context.Context, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if m.runPipedFunc != nil {
		return m.runPipedFunc(name, args, stdin, stdout, stderr)
	}
	return nil
}

func TestDetectRuntime(t *testing.T) {
	tests := []struct {
		name     string
		exec     *mockExecutor
		wantName string
		wantErr  bool
	}{
		{
			name: "docker available",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true},
				runnableCmds:  map[string]bool{"docker info": true},
			},
			wantName: "docker",
		},
		{
			name: "podman fallback when docker missing",
			exec: &mockExecutor{
				availableBins: map[string]bool{"podman": true},
				runnableCmds:  map[string]bool{"podman info": true},
			},
			wantName: "podman",
		},
		{
			name:    "neither available",
			exec:    &mockExecutor{},
			wantErr: true,
		},
		{
			name: "docker on PATH but info fails",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true, "podman": true},
				runnableCmds:  map[string]bool{"podman info": true},
			},
			wantName: "podman",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := detectRuntime(context.Background(), tt.exec)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "no container runtime available")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, rt.Name())
		})
	}
}

func TestImageExists(t *testing.T) {
	tests := []struct {
		name    string
		mkRT    func(*mockExecutor) Runtime
		cmds    map[string]bool
		wantErr bool
	}{
		{
			name: "docker image exists",
			mkRT: func(e *mockExecutor) Runtime { return newDockerRuntime(e) },
			cmds: map[string]bool{"docker image inspect scitldr:latest": true},
		},
		{
			name:    "docker image missing",
			mkRT:    func(e *mockExecutor) Runtime { return newDockerRuntime(e) },
			wantErr: true,
		},
		{
			name: "podman image exists",
			mkRT: func(e *mockExecutor) Runtime { return newPodmanRuntime(e) },
			cmds: map[string]bool{"podman image exists scitldr:latest": true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := tt.mkRT(&mockExecutor{runnableCmds: tt.cmds})
			err := rt.ImageExists(context.Background(), "scitldr:latest")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "scitldr:latest")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRun(t *testing.T) {
	echo := func(name string, args []string, stdin io.Reader, stdout, _ io.Writer) error {
		data, _ := io.ReadAll(stdin)
		_, _ = stdout.Write([]byte(name + ": " + string(data)))
		return nil
	}

	t.Run("pipes stdin to stdout", func(t *testing.T) {
		var gotArgs []string
		rt := newDockerRuntime(&mockExecutor{runPipedFunc: func(name string, args []string, in io.Reader, out, errw io.Writer) error {
			gotArgs = args
			return echo(name, args, in, out, errw)
		}})
		var out bytes.Buffer
		require.NoError(t, rt.Run(context.Background(), "simplifier:latest", strings.NewReader(`{"id":1}`), &out))
		assert.Equal(t, `docker: {"id":1}`, out.String())
		assert.Equal(t, []string{"run", "--rm", "-i", "simplifier:latest"}, gotArgs)
	})

	t.Run("failure carries stderr", func(t *testing.T) {
		rt := newPodmanRuntime(&mockExecutor{runPipedFunc: func(_ string, _ []string, _ io.Reader, _, stderr io.Writer) error {
			_, _ = stderr.Write([]byte("model not found\n"))
			return errors.New("exit status 1")
		}})
		err := rt.Run(context.Background(), "simplifier:latest", strings.NewReader(""), io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "podman")
		assert.Contains(t, err.Error(), "model not found")
	})
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 4}
	n, err := tb.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "cdef", tb.String())
	_, _ = tb.Write([]byte("gh"))
	assert.Equal(t, "efgh", tb.String())
}
