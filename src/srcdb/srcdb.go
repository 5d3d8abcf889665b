/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package srcdb

import (
	"context"
	"fmt"

	"github.com/yugabyte/oraddl/src/schema"
)

// SourceDB is the set of operations the exporter needs from a source
// database: one session, catalog enumeration and DDL generation.
type SourceDB interface {
	// Connect opens the single database session and applies the session
	// scoped DDL transform configuration.
	Connect(ctx context.Context) error
	// Disconnect closes the session. Safe to call when Connect failed.
	Disconnect()
	GetVersion(ctx context.Context) (string, error)
	// ListSchemas returns the schemas to export, restricted to the
	// operator supplied allow-list when one is set, sorted ascending.
	ListSchemas(ctx context.Context) ([]string, error)
	// ListObjects returns all objects of the given type owned by the given
	// schema, sorted ascending by name. An empty result is not an error.
	ListObjects(ctx context.Context, schemaName string, objType schema.ObjectType) ([]schema.ObjectDescriptor, error)
	// GetObjectCounts returns per-type object counts for the schema summary.
	// Types with no objects are absent from the map.
	GetObjectCounts(ctx context.Context, schemaName string) (map[schema.ObjectType]int, error)
	// GetDDL renders the DDL text of one object via the metadata service.
	GetDDL(ctx context.Context, objType schema.ObjectType, objectName string, schemaName string) (string, error)
}

func newSourceDB(source *Source) SourceDB {
	switch source.DBType {
	case "oracle":
		return newOracle(source)
	default:
		panic(fmt.Sprintf("unknown source database type %q", source.DBType))
	}
}
