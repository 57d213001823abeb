package cmd

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/udptool/internal/config"
	"firestige.xyz/udptool/internal/core"
	"firestige.xyz/udptool/internal/pacer"
)

// MockTask records the contexts runTask hands to a task.
type MockTask struct {
	mock.Mock
}

func (m *MockTask) Run(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestDistributionList(t *testing.T) {
	var d distributionList
	require.NoError(t, d.Set("100"))
	require.NoError(t, d.Set("uniform:1,2"))
	assert.Equal(t, []pacer.Distribution{pacer.Dirac(100), pacer.Uniform(1, 2)}, d.values)
	assert.Equal(t, "[dirac:100 uniform:1,2]", d.String())
	assert.Equal(t, "distribution", d.Type())

	assert.ErrorIs(t, d.Set("uniform:5,1"), core.ErrConfigInvalid)
	assert.Len(t, d.values, 2)
}

func TestApplyPacingFlags(t *testing.T) {
	var sizes, delays distributionList
	fs := pflag.NewFlagSet("tx", pflag.ContinueOnError)
	addPacingFlags(fs, &sizes, &delays)
	require.NoError(t, fs.Parse([]string{"--size", "64", "--size", "uniform:100,200"}))

	cfg := &config.Config{}
	cfg.Tx.Delays = []pacer.Distribution{pacer.Dirac(3)}
	applyPacingFlags(fs, cfg, &sizes, &delays)

	assert.Equal(t, []pacer.Distribution{pacer.Dirac(64), pacer.Uniform(100, 200)}, cfg.Tx.Sizes)
	assert.Equal(t, []pacer.Distribution{pacer.Dirac(3)}, cfg.Tx.Delays)
}

func TestRunPlan(t *testing.T) {
	p, err := pacer.New(pacer.Config{
		Sizes:     []pacer.Distribution{pacer.Dirac(1000)},
		Bandwidth: 8e6,
	}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, runPlan(&buf, p, 3))

	out := buf.String()
	assert.Contains(t, out, "mode: size+bandwidth")
	assert.Contains(t, out, "bandwidth: 8.000 Mbit/s")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	for _, line := range lines[len(lines)-3:] {
		assert.Equal(t, []string{"1000", "1.000"}, strings.Fields(line)[1:])
	}
}

func TestRunPlanSkip(t *testing.T) {
	p, err := pacer.New(pacer.Config{
		Sizes:  []pacer.Distribution{pacer.Dirac(0)},
		Delays: []pacer.Distribution{pacer.Dirac(2)},
	}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, runPlan(&buf, p, 1))
	assert.Contains(t, buf.String(), "skip")
}

func TestRunTaskWithoutMetrics(t *testing.T) {
	task := new(MockTask)
	task.On("Run", mock.Anything).Return(nil)

	err := runTask(context.Background(), config.MetricsConfig{}, task.Run)

	assert.NoError(t, err)
	task.AssertExpectations(t)
}

func TestRunTaskStopsMetricsServer(t *testing.T) {
	boom := errors.New("boom")
	task := new(MockTask)
	task.On("Run", mock.Anything).Return(boom)

	err := runTask(context.Background(), config.MetricsConfig{Listen: "127.0.0.1:0", Path: "/metrics"}, task.Run)

	assert.ErrorIs(t, err, boom)
	task.AssertExpectations(t)
}
