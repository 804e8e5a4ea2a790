package kferrors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategorySeverityRetryable(t *testing.T) {
	err := New(ErrCodeModelUnavailable, "clip backend down", nil)
	assert.Equal(t, CategoryQuery, err.Category)
	assert.Equal(t, SeverityError, err.Severity)
	assert.False(t, err.Retryable)

	err = New(ErrCodeBadIndexFile, "truncated gob header", nil)
	assert.Equal(t, CategoryConfig, err.Category)
	assert.Equal(t, SeverityFatal, err.Severity)

	err = New(ErrCodeUnknownVideo, "no such video", nil)
	assert.Equal(t, CategoryDataGap, err.Category)
	assert.Equal(t, SeverityInfo, err.Severity)

	err = New(ErrCodeHTTPFetchFailed, "dial tcp: timeout", nil)
	assert.Equal(t, CategoryTransient, err.Category)
	assert.True(t, err.Retryable)
}

func TestErrorIsMatchesByCode(t *testing.T) {
	a := UnknownID("id 99 not found", nil)
	b := UnknownID("id 12 not found", nil)
	assert.True(t, errors.Is(a, b))

	c := UnknownVideo("video_7 not found", nil)
	assert.False(t, errors.Is(a, c))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeHTTPFetchFailed, nil))
}

func TestWithDetail(t *testing.T) {
	err := InvalidQueryVector("bad shape", nil).WithDetail("dim", "512")
	require.NotNil(t, err.Details)
	assert.Equal(t, "512", err.Details["dim"])
}

func TestFromContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.Nil(t, FromContext(ctx))
	cancel()
	err := FromContext(ctx)
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeCancelled, err.Code)
	assert.Equal(t, CategoryCancellation, err.Category)
}

func TestIsRetryableIsFatalIsDataGap(t *testing.T) {
	assert.True(t, IsRetryable(TranslatorUnavailable("down", nil)))
	assert.False(t, IsRetryable(ModelUnavailable("down", nil)))
	assert.True(t, IsFatal(SizeMismatch("N != |IAM|", nil)))
	assert.False(t, IsFatal(UnknownID("nope", nil)))
	assert.True(t, IsDataGap(UnknownVideo("nope", nil)))
	assert.False(t, IsDataGap(ModelUnavailable("down", nil)))
}

func TestCodeAndCategoryOfNonKFError(t *testing.T) {
	plain := errors.New("boom")
	assert.Equal(t, "", Code(plain))
	assert.Equal(t, Category(""), CategoryOf(plain))
}
