package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBounds() Bounds {
	return Bounds{
		DefaultTimeoutSec: 5,
		MaxTimeoutSec:     300,
		DefaultMemoryMB:   128,
		MaxMemoryMB:       2048,
		AllowDirect:       false,
	}
}

func intPtr(v int) *int {
	return &v
}

func TestValidatorAcceptsValidRequest(t *testing.T) {
	v := NewValidator(testBounds())

	req, err := v.Validate(RawRequest{
		Language:   "python",
		Source:     "print(2+2)",
		TimeoutSec: intPtr(5),
		MemoryMB:   intPtr(128),
		Isolation:  "sandboxed",
	})
	require.NoError(t, err)
	assert.Equal(t, LanguagePython, req.Language)
	assert.Equal(t, "print(2+2)", req.Source)
	assert.Equal(t, 5, req.TimeoutSec)
	assert.Equal(t, 128, req.MemoryMB)
	assert.Equal(t, IsolationSandboxed, req.Isolation)
}

func TestValidatorAppliesDefaults(t *testing.T) {
	v := NewValidator(testBounds())

	req, err := v.Validate(RawRequest{Language: "python", Source: "print('hi')"})
	require.NoError(t, err)
	assert.Equal(t, 5, req.TimeoutSec)
	assert.Equal(t, 128, req.MemoryMB)
	assert.Equal(t, IsolationSandboxed, req.Isolation)
}

func TestValidatorNormalizesLanguageCase(t *testing.T) {
	v := NewValidator(testBounds())

	req, err := v.Validate(RawRequest{Language: "  Python ", Source: "pass"})
	require.NoError(t, err)
	assert.Equal(t, LanguagePython, req.Language)
}

func TestValidatorRejections(t *testing.T) {
	v := NewValidator(testBounds())

	tests := []struct {
		name   string
		raw    RawRequest
		reason ValidationReason
	}{
		{
			name:   "EmptySource",
			raw:    RawRequest{Language: "python", Source: ""},
			reason: ReasonEmptySource,
		},
		{
			name:   "WhitespaceSource",
			raw:    RawRequest{Language: "python", Source: "  \n\t  "},
			reason: ReasonEmptySource,
		},
		{
			name:   "UnsupportedLanguage",
			raw:    RawRequest{Language: "ruby", Source: "puts 4"},
			reason: ReasonUnsupportedLanguage,
		},
		{
			name:   "ZeroTimeout",
			raw:    RawRequest{Language: "python", Source: "pass", TimeoutSec: intPtr(0)},
			reason: ReasonTimeoutOutOfBounds,
		},
		{
			name:   "NegativeTimeout",
			raw:    RawRequest{Language: "python", Source: "pass", TimeoutSec: intPtr(-1)},
			reason: ReasonTimeoutOutOfBounds,
		},
		{
			name:   "TimeoutAboveCeiling",
			raw:    RawRequest{Language: "python", Source: "pass", TimeoutSec: intPtr(301)},
			reason: ReasonTimeoutOutOfBounds,
		},
		{
			name:   "ZeroMemory",
			raw:    RawRequest{Language: "python", Source: "pass", MemoryMB: intPtr(0)},
			reason: ReasonMemoryOutOfBounds,
		},
		{
			name:   "NegativeMemory",
			raw:    RawRequest{Language: "python", Source: "pass", MemoryMB: intPtr(-5)},
			reason: ReasonMemoryOutOfBounds,
		},
		{
			name:   "MemoryAboveCeiling",
			raw:    RawRequest{Language: "python", Source: "pass", MemoryMB: intPtr(4096)},
			reason: ReasonMemoryOutOfBounds,
		},
		{
			name:   "DirectDisabled",
			raw:    RawRequest{Language: "python", Source: "pass", Isolation: "direct"},
			reason: ReasonIsolationDisallowed,
		},
		{
			name:   "UnknownIsolation",
			raw:    RawRequest{Language: "python", Source: "pass", Isolation: "chroot"},
			reason: ReasonIsolationDisallowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.raw)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.reason, verr.Reason)
		})
	}
}

func TestValidatorCeilingIsRejectedNotClamped(t *testing.T) {
	v := NewValidator(testBounds())

	// A request above the ceiling must fail outright; handing back a
	// weaker limit than asked for would misstate the guarantee.
	_, err := v.Validate(RawRequest{Language: "python", Source: "pass", TimeoutSec: intPtr(10000)})
	require.Error(t, err)

	_, err = v.Validate(RawRequest{Language: "python", Source: "pass", MemoryMB: intPtr(100000)})
	require.Error(t, err)
}

func TestValidatorDefaultsOnlyForOmittedLimits(t *testing.T) {
	v := NewValidator(testBounds())

	// Omitted fields take the configured defaults.
	req, err := v.Validate(RawRequest{Language: "python", Source: "pass"})
	require.NoError(t, err)
	assert.Equal(t, 5, req.TimeoutSec)
	assert.Equal(t, 128, req.MemoryMB)

	// A supplied zero is out of bounds, never promoted to the default.
	_, err = v.Validate(RawRequest{Language: "python", Source: "pass", TimeoutSec: intPtr(0)})
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ReasonTimeoutOutOfBounds, verr.Reason)

	_, err = v.Validate(RawRequest{Language: "python", Source: "pass", MemoryMB: intPtr(0)})
	require.Error(t, err)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ReasonMemoryOutOfBounds, verr.Reason)
}

func TestValidatorAllowsDirectWhenEnabled(t *testing.T) {
	bounds := testBounds()
	bounds.AllowDirect = true
	v := NewValidator(bounds)

	req, err := v.Validate(RawRequest{Language: "python", Source: "pass", Isolation: "direct"})
	require.NoError(t, err)
	assert.Equal(t, IsolationDirect, req.Isolation)
}

func TestValidatorIsIdempotent(t *testing.T) {
	v := NewValidator(testBounds())
	raw := RawRequest{Language: "python", Source: "print(1)", TimeoutSec: intPtr(7), MemoryMB: intPtr(64)}

	first, err1 := v.Validate(raw)
	second, err2 := v.Validate(raw)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)

	bad := RawRequest{Language: "python", Source: ""}
	_, errA := v.Validate(bad)
	_, errB := v.Validate(bad)
	require.Error(t, errA)
	require.Error(t, errB)
	assert.Equal(t, errA.Error(), errB.Error())
}

func TestParseLanguage(t *testing.T) {
	lang, ok := ParseLanguage("python")
	require.True(t, ok)
	assert.Equal(t, LanguagePython, lang)

	_, ok = ParseLanguage("nodejs")
	assert.False(t, ok)

	spec := LanguagePython.Spec()
	assert.Equal(t, "script.py", spec.FileName)
	assert.Equal(t, []string{"python3", "script.py"}, spec.Command)
}
