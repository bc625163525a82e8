package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"taskpoint/pkg/config"
)

// Module provides the process-wide snowflake node used for entity IDs.
var Module = fx.Module("gen",
	fx.Provide(NewNode),
)

func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.Snowflake.NodeID)
}
