package nats

import (
	"testing"

	"food-search-be/pkg/events"

	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "events.search.completed", Subject(events.SearchCompleted))
	assert.Equal(t, "events.search.failed", Subject(events.SearchFailed))
}
