package context

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	ctx := context.Background()
	require.Equal(t, defaultLogger, Logger(ctx))
	require.NotNil(t, Registry(ctx))
	require.IsType(t, &afero.OsFs{}, Fs(ctx))
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLogfmtLogger(&buf)
	reg := prometheus.NewRegistry()
	fs := afero.NewMemMapFs()

	ctx := WithFs(WithRegistry(WithLogger(context.Background(), logger), reg), fs)
	require.NoError(t, Logger(ctx).Log("msg", "hello"))
	require.Equal(t, "msg=hello\n", buf.String())
	require.Equal(t, reg, Registry(ctx))
	require.Equal(t, fs, Fs(ctx))
}
