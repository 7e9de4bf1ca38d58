package runner

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wentf9/xops-underlay/pkg/models"
)

func TestSaltFailedPredicate(t *testing.T) {
	p := SaltFailedPredicate()
	tests := []struct {
		name   string
		stdout []string
		fail   bool
	}{
		{"no summary", []string{"local:"}, false},
		{"zero failed", []string{"Succeeded: 3", "Failed:    0"}, false},
		{"one failed", []string{"Failed:    1"}, true},
		{"summed", []string{"Failed: 0", "Failed: 2"}, true},
		{"indented line ignored", []string{"  Failed: 1"}, false},
		{"garbage count", []string{"Failed: many"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p(models.Result{Stdout: tt.stdout})
			assert.Equal(t, tt.fail, err != nil, "%v", err)
		})
	}
}

func TestMarkerPredicate(t *testing.T) {
	p := All(nil, MarkerPredicate(regexp.MustCompile(`^ERROR`)))
	assert.NoError(t, p(models.Result{Stdout: []string{"ok"}}))
	assert.Error(t, p(models.Result{Stderr: []string{"ERROR: nope"}}))
}

func TestServiceCheckCommands(t *testing.T) {
	c := ServiceCheck{Service: "salt-minion", RunningState: "active (running)"}
	assert.Equal(t, "service salt-minion status | grep -q 'active (running)'", c.statusCmd())
	assert.Equal(t, 2, strings.Count(c.restartCmd(), "sleep"))
	assert.Contains(t, c.restartCmd(), "killall -9 salt-minion")

	require.Error(t, ServiceCheck{}.Check(context.Background(), nil))
}

func TestRetryPolicy(t *testing.T) {
	assert.Equal(t, DefaultRetry, Step{}.retry())
	assert.Equal(t, Retry{Count: 1}, Step{Retry: &Retry{Count: 0, Delay: -1}}.retry())
}
