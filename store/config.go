package store

import "time"

// Config holds configuration for the Store.
type Config struct {
	// TableName is the DynamoDB table holding every entity. Required;
	// there is no default, and a missing value is a startup error.
	TableName string

	// ListIndexName is the secondary index that lists all items of one
	// entity type (partition key attribute gsi1pk).
	// Default: "entity-list-index"
	ListIndexName string

	// GlobalIndexName is the secondary index that lists every item in
	// the table under a single partition (attribute gsi2pk). Only the
	// pager queries it.
	// Default: "all-entities-index"
	GlobalIndexName string

	// MaxRetries is the number of additional attempts made for
	// operations that fail with a transient store error.
	// Default: 3
	MaxRetries int

	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	// Default: 50ms
	RetryBaseDelay time.Duration
}

// DefaultConfig returns defaults for everything except the table name.
func DefaultConfig(tableName string) Config {
	return Config{
		TableName:       tableName,
		ListIndexName:   "entity-list-index",
		GlobalIndexName: "all-entities-index",
		MaxRetries:      3,
		RetryBaseDelay:  50 * time.Millisecond,
	}
}

// validate fills in defaults and rejects unusable configurations.
func (c *Config) validate() error {
	if c.TableName == "" {
		return ErrMissingTableName
	}
	if c.ListIndexName == "" {
		c.ListIndexName = "entity-list-index"
	}
	if c.GlobalIndexName == "" {
		c.GlobalIndexName = "all-entities-index"
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 50 * time.Millisecond
	}
	return nil
}
