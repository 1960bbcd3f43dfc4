package analysis_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/domain-profiler/internal/analysis"
	"github.com/jonesrussell/domain-profiler/internal/config"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

func TestBrowserRenderer_ExpiredContextStopsBeforeOpeningTab(t *testing.T) {
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no local Chrome")
	}

	r := analysis.NewBrowserRenderer(config.BrowserConfig{BinPath: bin, Timeout: time.Minute}, logger.NewNop())
	t.Cleanup(func() { _ = r.Close() })

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := r.Render(ctx, "about:blank")
	require.Error(t, err)
	if strings.Contains(err.Error(), "launch chrome") {
		t.Skipf("chrome did not start: %v", err)
	}

	var fe *analysis.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, analysis.KindTimeout, fe.Kind)
}
