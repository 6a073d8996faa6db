package utilities

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake ids for database rows. Safe for concurrent use.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator builds a generator for the given node (0-1023). Every running
// instance of the service needs its own node id.
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// Next returns a new positive, time-ordered id.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}
