// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package collectors_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antimetal/ringbuffer/pkg/performance"
)

// fakeProc writes files (name -> content) into a temporary proc directory.
// Empty content means the file is not created.
func fakeProc(t *testing.T, files map[string]string) performance.CollectionConfig {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if content == "" {
			continue
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return performance.CollectionConfig{HostProcPath: dir}
}

func writeProcFile(t *testing.T, config performance.CollectionConfig, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(config.HostProcPath, name), []byte(content), 0644))
}
