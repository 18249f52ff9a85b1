package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamedInsert(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO workflow_signals (id, run_id, name) VALUES (:id, :run_id, :name)",
		NamedInsert("workflow_signals", []string{"id", "run_id", "name"}))
}

func TestAssignList(t *testing.T) {
	assert.Equal(t, "status = excluded.status, attempts = excluded.attempts",
		AssignList([]string{"status", "attempts"}, "%[1]s = excluded.%[1]s"))
	assert.Empty(t, AssignList(nil, "%[1]s"))
}
