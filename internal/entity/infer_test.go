package entity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInferencer(t *testing.T) *Inferencer {
	t.Helper()
	inf, err := NewInferencer(Target)
	require.NoError(t, err)
	return inf
}

func TestNewInferencer_InvalidDefault(t *testing.T) {
	_, err := NewInferencer(Entity("neither"))
	require.Error(t, err)
}

func TestInfer_NoMatchReturnsDefaultAtFloor(t *testing.T) {
	inf := newTestInferencer(t)

	e, conf := inf.Infer("quarterly revenue grew four percent year over year")
	assert.Equal(t, Target, e)
	assert.Equal(t, ConfidenceFloor, conf)
}

func TestInfer_AlwaysReturnsValueOnEmptyInput(t *testing.T) {
	inf := newTestInferencer(t)

	e, conf := inf.Infer("")
	assert.True(t, e.Valid())
	assert.Equal(t, ConfidenceFloor, conf)
}

func TestInfer_BuyerIndicator(t *testing.T) {
	inf := newTestInferencer(t)

	e, conf := inf.Infer("systems operated by the acquirer")
	assert.Equal(t, Buyer, e)
	assert.InDelta(t, 0.60, conf, 1e-9)
}

func TestInfer_TargetIndicator(t *testing.T) {
	inf := newTestInferencer(t)

	e, conf := inf.Infer("the seller maintains three data centers")
	assert.Equal(t, Target, e)
	assert.InDelta(t, 0.60, conf, 1e-9)
}

func TestInfer_MultipleIndicatorsRaiseConfidence(t *testing.T) {
	inf := newTestInferencer(t)

	one, confOne := inf.Infer("the purchaser")
	two, confTwo := inf.Infer("the purchaser, a private equity sponsor")
	assert.Equal(t, Buyer, one)
	assert.Equal(t, Buyer, two)
	assert.Greater(t, confTwo, confOne)
}

func TestInfer_RepeatedIndicatorCountsOnce(t *testing.T) {
	inf := newTestInferencer(t)

	_, once := inf.Infer("the buyer")
	_, thrice := inf.Infer("buyer buyer buyer")
	assert.Equal(t, once, thrice)
}

func TestInfer_OverlapPullsTowardMidpoint(t *testing.T) {
	inf := newTestInferencer(t)

	// Two buyer hits vs two buyer hits + one target hit: the target match
	// must reduce confidence, not be ignored.
	_, clean := inf.Infer("the acquirer and its sponsor")
	mixed, mixedConf := inf.Infer("the acquirer and its sponsor will integrate the seller")
	assert.Equal(t, Buyer, mixed)
	assert.Less(t, mixedConf, clean)
	assert.GreaterOrEqual(t, mixedConf, ConfidenceWeak)
}

func TestInfer_TieReturnsDefaultAtMidpoint(t *testing.T) {
	inf := newTestInferencer(t)

	e, conf := inf.Infer("the buyer will assume contracts held by the seller")
	assert.Equal(t, Target, e) // configured default
	assert.Equal(t, ConfidenceWeak, conf)
}

func TestInfer_ConfidenceCapped(t *testing.T) {
	inf := newTestInferencer(t)

	_, conf := inf.Infer("buyer acquirer purchaser bidder bidco newco holdco offeror sponsor")
	assert.LessOrEqual(t, conf, confidenceCap)
}

func TestAddIndicators_ExtendsSets(t *testing.T) {
	inf := newTestInferencer(t)
	inf.AddBuyerIndicators("the consortium")

	e, conf := inf.Infer("licenses held by the consortium")
	assert.Equal(t, Buyer, e)
	assert.InDelta(t, 0.60, conf, 1e-9)
}

func TestAddIndicators_IgnoresEmpty(t *testing.T) {
	inf := newTestInferencer(t)
	before := len(inf.targetIndicators)
	inf.AddTargetIndicators("", "   ")
	assert.Len(t, inf.targetIndicators, before)
}

func TestLoadIndicatorFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indicators.yaml")
	content := "buyer:\n  - \"the consortium\"\ntarget:\n  - \"opco\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	inf := newTestInferencer(t)
	require.NoError(t, inf.LoadIndicatorFile(path))

	e, _ := inf.Infer("opco payroll runs on a mainframe")
	assert.Equal(t, Target, e)

	e, _ = inf.Infer("the consortium uses workday")
	assert.Equal(t, Buyer, e)
}

func TestLoadIndicatorFile_Missing(t *testing.T) {
	inf := newTestInferencer(t)
	err := inf.LoadIndicatorFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadIndicatorFile_BadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("buyer: [unclosed"), 0o644))

	inf := newTestInferencer(t)
	err := inf.LoadIndicatorFile(path)
	require.Error(t, err)
}
