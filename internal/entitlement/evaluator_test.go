package entitlement

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stencil/internal/models"
	apperrors "stencil/internal/pkg/errors"
	"stencil/internal/pkg/logger"
)

type fakeProvider struct {
	resp     *ServicesResponse
	err      error
	calls    int
	gotOrgID string
	gotCodes string
}

func (f *fakeProvider) Services(_ context.Context, orgID, codes string) (*ServicesResponse, error) {
	f.calls++
	f.gotOrgID = orgID
	f.gotCodes = codes
	return f.resp, f.err
}

type fakePending struct {
	ids   map[string]struct{}
	err   error
	calls int
}

func (f *fakePending) PendingAppIDs(_ context.Context, _, _ string) (map[string]struct{}, error) {
	f.calls++
	return f.ids, f.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "json", Output: io.Discard})
}

func newEvaluator(p Provider, pc PendingChecker) *Evaluator {
	return New(p, pc, testLogger())
}

func service(code string, enabled bool) Service {
	return Service{Code: code, Enabled: enabled, EntitledForOrg: true, CanRequestAccess: false}
}

func templateWithAPIs(name string, codes ...string) models.Template {
	t := models.Template{Name: name}
	for _, c := range codes {
		t.APIs = append(t.APIs, models.TemplateAPI{Code: c})
	}
	return t
}

func TestEvaluateSkipsWithoutOrgID(t *testing.T) {
	provider := &fakeProvider{}
	ev := newEvaluator(provider, &fakePending{})

	in := []models.Template{templateWithAPIs("x", "A")}
	out, err := ev.Evaluate(context.Background(), in, "", "token")
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Zero(t, provider.calls)

	// The skip applies even with no templates at all.
	out, err = ev.Evaluate(context.Background(), nil, "", "")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestEvaluateRejectsMissingTokenOrTemplates(t *testing.T) {
	ev := newEvaluator(&fakeProvider{}, &fakePending{})

	_, err := ev.Evaluate(context.Background(), []models.Template{templateWithAPIs("x", "A")}, "org1", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	assert.Contains(t, err.Error(), "invalid user token or templates")

	_, err = ev.Evaluate(context.Background(), nil, "org1", "token")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestEvaluateBatchesCodesInOneCall(t *testing.T) {
	provider := &fakeProvider{resp: &ServicesResponse{Services: []Service{
		service("A", true), service("B", true), service("C", true),
	}}}
	ev := newEvaluator(provider, &fakePending{})

	in := []models.Template{
		templateWithAPIs("x", "A", "B"),
		templateWithAPIs("y", "B", "C", "A"),
	}
	_, err := ev.Evaluate(context.Background(), in, "org1", "token")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, "org1", provider.gotOrgID)
	assert.Equal(t, "A,B,C", provider.gotCodes, "codes are deduplicated in first-seen order")
}

func TestEvaluateUserEntitledIsConjunction(t *testing.T) {
	provider := &fakeProvider{resp: &ServicesResponse{Services: []Service{
		service("A", true),
		service("B", false),
	}}}
	ev := newEvaluator(provider, &fakePending{})

	out, err := ev.Evaluate(context.Background(), []models.Template{templateWithAPIs("x", "A", "B")}, "org1", "token")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].UserEntitled)
	assert.False(t, *out[0].UserEntitled)
}

func TestEvaluateOrgFlagsAndReasons(t *testing.T) {
	provider := &fakeProvider{resp: &ServicesResponse{Services: []Service{
		{Code: "A", Enabled: true, EntitledForOrg: true, CanRequestAccess: true, DisabledReasons: []string{"TRIAL_EXPIRED"}},
		{Code: "B", Enabled: true, EntitledForOrg: false, CanRequestAccess: true, DisabledReasons: []string{"TRIAL_EXPIRED", "NOT_PURCHASED"}},
	}}}
	ev := newEvaluator(provider, &fakePending{})

	out, err := ev.Evaluate(context.Background(), []models.Template{templateWithAPIs("x", "A", "B")}, "org1", "token")
	require.NoError(t, err)
	assert.True(t, *out[0].UserEntitled)
	assert.False(t, *out[0].OrgEntitled)
	assert.True(t, *out[0].CanRequestAccess)
	assert.Equal(t, []string{"TRIAL_EXPIRED", "NOT_PURCHASED"}, out[0].DisEntitledReasons, "reasons are a deduplicated union")
}

func TestEvaluateCopiesLicenseConfigsWithoutMutatingInput(t *testing.T) {
	configs := []models.LicenseConfig{{ID: "lc1", Name: "Basic", ProductID: "p1"}}
	provider := &fakeProvider{resp: &ServicesResponse{Services: []Service{
		{Code: "A", Enabled: true, EntitledForOrg: true, Properties: &ServiceProperties{LicenseConfigs: configs}},
	}}}
	ev := newEvaluator(provider, &fakePending{})

	in := []models.Template{templateWithAPIs("x", "A")}
	out, err := ev.Evaluate(context.Background(), in, "org1", "token")
	require.NoError(t, err)

	assert.Equal(t, configs, out[0].APIs[0].LicenseConfigs)
	assert.Nil(t, in[0].APIs[0].LicenseConfigs, "input record must stay untouched")
}

func TestEvaluateEmptyServicesIsProviderError(t *testing.T) {
	provider := &fakeProvider{resp: &ServicesResponse{Raw: []byte(`{"error":"upstream"}`)}}
	ev := newEvaluator(provider, &fakePending{})

	_, err := ev.Evaluate(context.Background(), []models.Template{templateWithAPIs("x", "A")}, "org1", "token")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeProvider))
	assert.Equal(t, `{"error":"upstream"}`, apperrors.GetFields(err)["payload"])
}

func TestEvaluateMissingServicesNamesCodes(t *testing.T) {
	provider := &fakeProvider{resp: &ServicesResponse{Services: []Service{
		service("A", true), service("B", true),
	}}}
	ev := newEvaluator(provider, &fakePending{})

	_, err := ev.Evaluate(context.Background(), []models.Template{templateWithAPIs("x", "A", "B", "C")}, "org1", "token")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeMissingServices))
	assert.Contains(t, err.Error(), "C")
	assert.NotContains(t, err.Error(), "A,")
}

func TestEvaluatePendingRequestFlag(t *testing.T) {
	provider := &fakeProvider{resp: &ServicesResponse{Services: []Service{
		{Code: "A", Enabled: false, EntitledForOrg: false, CanRequestAccess: true},
	}}}

	tmpl := templateWithAPIs("x", "A")
	tmpl.RequestAccessAppID = "X"

	t.Run("pending", func(t *testing.T) {
		pending := &fakePending{ids: map[string]struct{}{"X": {}}}
		ev := newEvaluator(provider, pending)

		out, err := ev.Evaluate(context.Background(), []models.Template{tmpl}, "org1", "token")
		require.NoError(t, err)
		assert.Equal(t, 1, pending.calls)
		require.NotNil(t, out[0].IsRequestPending)
		assert.True(t, *out[0].IsRequestPending)
	})

	t.Run("not pending", func(t *testing.T) {
		pending := &fakePending{ids: map[string]struct{}{"Y": {}}}
		ev := newEvaluator(provider, pending)

		out, err := ev.Evaluate(context.Background(), []models.Template{tmpl}, "org1", "token")
		require.NoError(t, err)
		require.NotNil(t, out[0].IsRequestPending)
		assert.False(t, *out[0].IsRequestPending)
	})
}

func TestEvaluateSkipsPendingLookupWhenNotNeeded(t *testing.T) {
	provider := &fakeProvider{resp: &ServicesResponse{Services: []Service{
		{Code: "A", Enabled: true, EntitledForOrg: true, CanRequestAccess: true},
	}}}
	pending := &fakePending{}
	ev := newEvaluator(provider, pending)

	// canRequestAccess is true but there is no requestAccessAppId, so the
	// second round-trip never happens.
	out, err := ev.Evaluate(context.Background(), []models.Template{templateWithAPIs("x", "A")}, "org1", "token")
	require.NoError(t, err)
	assert.Zero(t, pending.calls)
	assert.Nil(t, out[0].IsRequestPending)
}

func TestEvaluatePendingLookupErrorsPropagate(t *testing.T) {
	provider := &fakeProvider{resp: &ServicesResponse{Services: []Service{
		{Code: "A", Enabled: false, EntitledForOrg: false, CanRequestAccess: true},
	}}}
	pending := &fakePending{err: apperrors.New(apperrors.CodeUnavailable, "console unreachable")}
	ev := newEvaluator(provider, pending)

	tmpl := templateWithAPIs("x", "A")
	tmpl.RequestAccessAppID = "X"

	_, err := ev.Evaluate(context.Background(), []models.Template{tmpl}, "org1", "token")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnavailable))
}

func TestEvaluatePreservesOrderAndFields(t *testing.T) {
	provider := &fakeProvider{resp: &ServicesResponse{Services: []Service{
		service("A", true),
	}}}
	ev := newEvaluator(provider, &fakePending{})

	a := templateWithAPIs("a", "A")
	a.Description = "first"
	b := templateWithAPIs("b", "A")
	b.Description = "second"

	out, err := ev.Evaluate(context.Background(), []models.Template{a, b}, "org1", "token")
	require.NoError(t, err)
	assert.Equal(t, "a", out[0].Name)
	assert.Equal(t, "b", out[1].Name)
	assert.Equal(t, "first", out[0].Description)
	assert.Equal(t, "second", out[1].Description)
}
