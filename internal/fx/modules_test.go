package fx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/leetbuddy/challenge-tracker/config"
	"github.com/leetbuddy/challenge-tracker/internal/infrastructure/scheduler"
	apihttp "github.com/leetbuddy/challenge-tracker/internal/interface/http"
)

func TestModule_GraphIsComplete(t *testing.T) {
	err := fx.ValidateApp(
		Module,
		fx.Invoke(func(*scheduler.DailyTrigger, *apihttp.Server) {}),
	)
	require.NoError(t, err)
}

func TestPostgresConfig(t *testing.T) {
	pc := postgresConfig(config.DatabaseConfig{
		URL:          "postgres://u:p@db:5432/tracker",
		MaxConns:     4,
		QueryTimeout: 3 * time.Second,
	})

	assert.Equal(t, "postgres://u:p@db:5432/tracker", pc.URL)
	assert.Equal(t, int32(4), pc.MaxConns)
	assert.Equal(t, int32(0), pc.MinConns)
	assert.Equal(t, 3*time.Second, pc.QueryTimeout)
	assert.Equal(t, 30*time.Minute, pc.MaxConnLifetime)
}
