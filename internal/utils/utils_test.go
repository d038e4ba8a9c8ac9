package utils

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmailAddress(t *testing.T) {
	assert.Equal(t, "jane@example.com", NormalizeEmailAddress("  Jane Doe <Jane@Example.COM> "))
	assert.Equal(t, "bob@example.com", NormalizeEmailAddress("BOB@example.com"))
	assert.Equal(t, "", NormalizeEmailAddress("   "))
}

func TestExtractDomainFromEmail(t *testing.T) {
	assert.Equal(t, "example.com", ExtractDomainFromEmail("Jane <jane@EXAMPLE.com>"))
	assert.Equal(t, "", ExtractDomainFromEmail("not-an-email"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", TruncateRunes("héllo", 4))
	assert.Equal(t, "héllo", TruncateRunes("héllo", 0))
	assert.Equal(t, "héllo", TruncateRunes("héllo", 10))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a \n\t b   c "))
}

func TestToMicros(t *testing.T) {
	assert.Equal(t, int64(30000), ToMicros(0.01)*3)
	assert.Equal(t, int64(30000), ToMicros(0.03))
	assert.InDelta(t, 0.03, FromMicros(30000), 1e-12)
}

func TestGenerateNanoIDWithPrefix(t *testing.T) {
	id := GenerateNanoIDWithPrefix("msg", 12)
	assert.True(t, strings.HasPrefix(id, "msg_"))
	assert.Len(t, id, 16)
	assert.NotEqual(t, id, GenerateNanoIDWithPrefix("msg", 12))
}

func TestContextValues(t *testing.T) {
	ctx := SetTenantInContext(context.Background(), "acme")
	child := SetCycleIdInContext(ctx, "cycle-1")

	assert.Equal(t, "acme", GetTenantFromContext(child))
	assert.Equal(t, "cycle-1", GetCycleIdFromContext(child))
	assert.Equal(t, "", GetCycleIdFromContext(ctx))
	assert.NoError(t, ValidateTenant(ctx))
	assert.Error(t, ValidateTenant(context.Background()))
}
