package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/devgraph/devgraph-go/internal/errs"
)

// Client wraps the Neo4j driver. All writes go through idempotent MERGE
// queries so concurrent re-ingestion of the same input is safe; reads
// route to replicas in cluster deployments.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *logrus.Logger
}

// NewClient connects to the graph store and verifies connectivity.
func NewClient(ctx context.Context, uri, username, password, database string, logger *logrus.Logger) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, errs.Wrap(err, errs.KindStorePermanent, "failed to create graph driver")
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, errs.Wrapf(err, errs.KindStoreTransient, "graph store unreachable at %s", uri)
	}

	return &Client{driver: driver, database: database, logger: logger}, nil
}

// Read executes a read query with readers routing.
func (c *Client) Read(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, c.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, classify(err, "read query failed")
	}
	return result, nil
}

// Write executes a single write query.
func (c *Client) Write(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, c.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database))
	if err != nil {
		return nil, classify(err, "write query failed")
	}
	return result, nil
}

// WriteTx runs fn inside one managed write transaction. Used where a
// group of writes must be atomic, e.g. all TOUCHED edges of a commit.
func (c *Client) WriteTx(ctx context.Context, fn func(tx neo4j.ManagedTransaction) error) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	if err != nil {
		return classify(err, "write transaction failed")
	}
	return nil
}

// DryRunTx runs fn inside an explicit transaction that is always rolled
// back. The derivation dry-run executes every query through this path.
func (c *Client) DryRunTx(ctx context.Context, fn func(tx neo4j.ExplicitTransaction) error) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return classify(err, "failed to begin dry-run transaction")
	}
	defer tx.Rollback(ctx)

	return fn(tx)
}

// ReadInt runs a query expected to return a single integer column.
func (c *Client) ReadInt(ctx context.Context, query string, params map[string]any) (int64, error) {
	result, err := c.Read(ctx, query, params)
	if err != nil {
		return 0, err
	}
	if len(result.Records) == 0 {
		return 0, nil
	}
	for _, key := range result.Records[0].Keys {
		if v, ok := result.Records[0].Get(key); ok {
			if n, ok := v.(int64); ok {
				return n, nil
			}
		}
	}
	return 0, nil
}

// ResetGraph deletes all nodes and edges in batched transactions, then
// leaves the caller to re-apply the schema. This is the only operation
// that deletes nodes.
func (c *Client) ResetGraph(ctx context.Context) error {
	c.logger.Warn("resetting graph: deleting all nodes and edges")
	query := `
		MATCH (n)
		CALL {
			WITH n
			DETACH DELETE n
		} IN TRANSACTIONS OF 10000 ROWS
	`
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	// CALL IN TRANSACTIONS cannot run inside an explicit transaction.
	if _, err := session.Run(ctx, query, nil); err != nil {
		return classify(err, "graph reset failed")
	}
	return nil
}

// Close releases the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// BatchDeadline bounds a single batched write.
const BatchDeadline = 30 * time.Second

// classify maps driver errors onto the store error taxonomy so the
// retry loop only re-attempts transient failures.
func classify(err error, message string) error {
	if neo4j.IsRetryable(err) {
		return errs.Wrap(err, errs.KindStoreTransient, message)
	}
	return errs.Wrap(err, errs.KindStorePermanent, message)
}
