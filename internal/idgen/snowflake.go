package idgen

import (
	"github.com/bwmarrin/snowflake"
)

// Generator hands out time-ordered int64 ids for history rows.
type Generator struct {
	node *snowflake.Node
}

// New creates a generator for the given node id (0-1023).
// Each replica must use a distinct node id.
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &Generator{node: node}, nil
}

// Next returns a new unique id.
func (g *Generator) Next() int64 {
	return g.node.Generate().Int64()
}
