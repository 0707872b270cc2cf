// Package fx assembles the tracker from its parts.
package fx

import (
	"go.uber.org/fx"
)

// Module provides every component of the tracker.
var Module = fx.Options(
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLogger),
	fx.Provide(ProvideHealthChecker),
	// storage
	fx.Provide(ProvideStorage),
	fx.Provide(ProvideStore),
	// leetcode
	fx.Provide(ProvideFetcher),
	// reporting
	fx.Provide(ProvideLeaderboardCache),
	fx.Provide(ProvidePublisher),
	fx.Provide(ProvideNotifier),
	fx.Provide(ProvideSweepCompletedHandler),
	// svc
	fx.Provide(ProvideRunner),
	fx.Provide(ProvideEngine),
	fx.Provide(ProvideCommands),
	fx.Provide(ProvideQueries),
	// outer surfaces
	fx.Provide(ProvideScheduler),
	fx.Provide(ProvideHTTPServer),
)
