// Package driver selects and configures the SDK player implementation.
package driver

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/pefelippe/spotify-player/internal/infra/config"
	"github.com/pefelippe/spotify-player/internal/infra/poller"
	"github.com/pefelippe/spotify-player/internal/infra/spotify"
	"github.com/pefelippe/spotify-player/internal/sdk"
)

// NewFactoryFromConfig builds an SDK player factory from configuration.
// Settings are decoded and validated here, at startup, so a bad driver
// block fails fast instead of at the first token handoff.
func NewFactoryFromConfig(cfg *config.Config, client *spotify.Client) (sdk.Factory, error) {
	dcfg := cfg.Player.Driver
	zlog.Debug().Msgf("creating player driver: type=%s settings=%+v", dcfg.Type, dcfg.Settings)

	switch dcfg.Type {
	case "poller":
		pcfg, err := poller.ParseConfig(dcfg.Settings)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to configure driver (type %s)", dcfg.Type)
		}
		zlog.Info().Msgf("registered player driver: type=%s", dcfg.Type)
		return func(opts sdk.Options) sdk.Player {
			return poller.New(client, pcfg, opts)
		}, nil

	default:
		return nil, errors.Newf("unsupported driver type: %s", dcfg.Type)
	}
}
