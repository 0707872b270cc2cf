// Command tracker runs the daily challenge tracker: the scheduled sweep,
// the report hook and the JSON API.
package main

import (
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/leetbuddy/challenge-tracker/config"
	fxmodules "github.com/leetbuddy/challenge-tracker/internal/fx"
	"github.com/leetbuddy/challenge-tracker/internal/infrastructure/scheduler"
	apihttp "github.com/leetbuddy/challenge-tracker/internal/interface/http"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.StopTimeout(stopTimeout()),
		fx.Invoke(run),
	).Run()
}

// run pulls the outer surfaces into the graph so their lifecycle hooks are
// registered.
func run(cfg *config.Config, trigger *scheduler.DailyTrigger, srv *apihttp.Server, log zerolog.Logger) {
	ev := log.Info().
		Str("env", string(cfg.App.Environment)).
		Str("timezone", cfg.App.Timezone).
		Str("store", cfg.Store.Driver).
		Bool("scheduler", cfg.Scheduler.Enabled)
	if cfg.Scheduler.Enabled {
		ev = ev.Time("next_sweep", trigger.NextFire(time.Now()))
	}
	if cfg.HTTP.Enabled {
		ev = ev.Str("http_addr", srv.Addr())
	}
	ev.Msg("challenge tracker configured")
}
