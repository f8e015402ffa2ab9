package invoicing

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/saas/backend/internal/domain/billing"
)

// SnowflakeNumberGenerator issues numbers of the form PREFIX-yyyymmdd-<snowflake id>.
// Ids are unique per node, so every process needs its own node id.
type SnowflakeNumberGenerator struct {
	node   *snowflake.Node
	prefix string
}

// NewSnowflakeNumberGenerator creates a generator for node (0-1023)
func NewSnowflakeNumberGenerator(prefix string, node int64) (*SnowflakeNumberGenerator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("invoicing: invalid snowflake node %d: %w", node, err)
	}
	if prefix == "" {
		prefix = "INV"
	}
	return &SnowflakeNumberGenerator{node: n, prefix: prefix}, nil
}

// Next returns a new invoice number dated issueDate (UTC)
func (g *SnowflakeNumberGenerator) Next(issueDate time.Time) string {
	return g.prefix + "-" + issueDate.UTC().Format("20060102") + "-" + g.node.Generate().String()
}

var _ billing.InvoiceNumberGenerator = (*SnowflakeNumberGenerator)(nil)
