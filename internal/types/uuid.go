package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex bill_01HZX3J8K2W9Q4T6M0RP5V7YBN
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	// Prefixes for all domains and entities

	UUID_PREFIX_CLIENT            = "cli"
	UUID_PREFIX_BILL              = "bill"
	UUID_PREFIX_PARTIAL_PAYMENT   = "ppay"
	UUID_PREFIX_CONNECTION_STATUS = "conn"
	UUID_PREFIX_EVENT             = "event"
)
