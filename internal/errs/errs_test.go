package errs_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beccauwu/bones-api/internal/errs"
)

func TestFieldInvalidRedactsLongValues(t *testing.T) {
	long := fmt.Sprintf("%0100d", 0)
	e := errs.FieldInvalid(errs.InvalidMaximum, "widgets", "label", long)
	assert.Less(t, len(e.Value), len(long))
	assert.Contains(t, e.Error(), "widgets.label")
}

func TestIsMatchesKind(t *testing.T) {
	err := errs.UnknownTable("ghosts")
	assert.True(t, errs.Is(err, errs.KindUnknownTable))
	assert.False(t, errs.Is(err, errs.KindFieldNotFound))
}

func TestFetchFailedWrapsUnderlyingError(t *testing.T) {
	underlying := fmt.Errorf("network down")
	err := errs.FetchFailed(underlying)
	assert.ErrorIs(t, err, underlying)
}

func TestDeleteConstraintMessageFormat(t *testing.T) {
	e := errs.DeleteConstraint("posts", "10", "author", "1")
	assert.Equal(t, "posts.#10.author -> #1", e.Error())
}
