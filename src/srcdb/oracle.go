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
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/godror/godror"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/oraddl/src/schema"
)

type Oracle struct {
	source *Source

	db *sql.DB
}

// schemas owned by the database itself; skipped when no allow-list is given
var oracleSystemSchemas = []string{"SYS", "SYSTEM", "OUTLN", "DBSNMP", "APPQOSSYS",
	"AUDSYS", "CTXSYS", "DVF", "DVSYS", "GGSYS", "GSMADMIN_INTERNAL", "LBACSYS",
	"MDSYS", "OJVMSYS", "OLAPSYS", "ORDDATA", "ORDPLUGINS", "ORDSYS",
	"REMOTE_SCHEDULER_AGENT", "WMSYS", "XDB", "XS$NULL", "ANONYMOUS", "DIP",
	"SYS$UMF", "DBSFWUSER"}

// Statements applied once per session so that DBMS_METADATA.GET_DDL emits
// portable DDL: no storage or segment clauses, SQL terminators on, pretty
// printed, constraints as separate ALTER statements.
var sessionTransformStmts = []string{
	"BEGIN DBMS_METADATA.SET_TRANSFORM_PARAM(DBMS_METADATA.SESSION_TRANSFORM, 'STORAGE', FALSE); END;",
	"BEGIN DBMS_METADATA.SET_TRANSFORM_PARAM(DBMS_METADATA.SESSION_TRANSFORM, 'SEGMENT_ATTRIBUTES', FALSE); END;",
	"BEGIN DBMS_METADATA.SET_TRANSFORM_PARAM(DBMS_METADATA.SESSION_TRANSFORM, 'SQLTERMINATOR', TRUE); END;",
	"BEGIN DBMS_METADATA.SET_TRANSFORM_PARAM(DBMS_METADATA.SESSION_TRANSFORM, 'PRETTY', TRUE); END;",
	"BEGIN DBMS_METADATA.SET_TRANSFORM_PARAM(DBMS_METADATA.SESSION_TRANSFORM, 'CONSTRAINTS_AS_ALTER', TRUE); END;",
}

func newOracle(s *Source) *Oracle {
	return &Oracle{source: s}
}

func (ora *Oracle) Connect(ctx context.Context) error {
	db, err := sql.Open("godror", ora.getConnectionUri())
	if err != nil {
		return fmt.Errorf("open connection to source database: %w", err)
	}
	// The transform parameters below are session scoped. Pin the pool to a
	// single connection so that every later statement runs on the session
	// that was configured here.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping source database: %w", err)
	}
	ora.db = db

	for _, stmt := range sessionTransformStmts {
		if _, err := ora.db.ExecContext(ctx, stmt); err != nil {
			ora.db.Close()
			ora.db = nil
			return fmt.Errorf("apply DDL transform parameter %q: %w", stmt, err)
		}
	}
	log.Infof("connected to the source database and applied %d DDL transform parameters", len(sessionTransformStmts))
	return nil
}

func (ora *Oracle) Disconnect() {
	if ora.db == nil {
		log.Infof("No connection to the source database to close")
		return
	}

	err := ora.db.Close()
	if err != nil {
		log.Infof("Failed to close connection to the source database: %s", err)
	}
}

func (ora *Oracle) GetVersion(ctx context.Context) (string, error) {
	var version string
	query := "SELECT BANNER FROM V$VERSION"
	// query sample output: Oracle Database 19c Enterprise Edition Release 19.0.0.0.0 - Production
	err := ora.db.QueryRowContext(ctx, query).Scan(&version)
	if err != nil {
		return "", fmt.Errorf("run query %q on source: %w", query, err)
	}
	ora.source.DBVersion = version
	return version, nil
}

func (ora *Oracle) ListSchemas(ctx context.Context) ([]string, error) {
	var query string
	if schemaList := ora.source.SchemaList(); len(schemaList) > 0 {
		query = fmt.Sprintf(`SELECT username FROM all_users WHERE username IN (%s) ORDER BY username ASC`,
			joinQuoted(schemaList))
	} else {
		query = fmt.Sprintf(`SELECT username FROM all_users WHERE username NOT IN (%s) ORDER BY username ASC`,
			joinQuoted(oracleSystemSchemas))
	}
	log.Infof(`query used to list schemas: "%s"`, query)

	rows, err := ora.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %q for schema list: %w", query, err)
	}
	defer rows.Close()

	var schemaNames []string
	for rows.Next() {
		var schemaName string
		if err := rows.Scan(&schemaName); err != nil {
			return nil, fmt.Errorf("scan schema name: %w", err)
		}
		schemaNames = append(schemaNames, schemaName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read schema list: %w", err)
	}
	return schemaNames, nil
}

func (ora *Oracle) ListObjects(ctx context.Context, schemaName string, objType schema.ObjectType) ([]schema.ObjectDescriptor, error) {
	switch objType {
	case schema.TABLE:
		return ora.listTables(ctx, schemaName)
	case schema.INDEX:
		return ora.listIndexes(ctx, schemaName)
	case schema.DATABASE_LINK:
		return ora.listDBLinks(ctx, schemaName)
	default:
		query := fmt.Sprintf(`SELECT object_name FROM all_objects
			WHERE owner = '%s' AND object_type = '%s' AND generated = 'N'
			ORDER BY object_name ASC`, schemaName, objType)
		return ora.queryObjectNames(ctx, query, schemaName, objType)
	}
}

// listTables excludes TEMPORARY tables, index related tables (DR$ prefix),
// queue tables (AQ$ prefix) and the backing tables of materialized views
// and their logs.
func (ora *Oracle) listTables(ctx context.Context, schemaName string) ([]schema.ObjectDescriptor, error) {
	query := fmt.Sprintf(`SELECT table_name
		FROM all_tables
		WHERE owner = '%s' AND TEMPORARY = 'N' AND table_name NOT LIKE 'DR$%%'
		AND table_name NOT LIKE 'AQ$%%' AND
		(owner, table_name) not in (
			SELECT owner, mview_name
			FROM all_mviews
			UNION ALL
			SELECT log_owner, log_table
			FROM all_mview_logs)
		ORDER BY table_name ASC`, schemaName)
	return ora.queryObjectNames(ctx, query, schemaName, schema.TABLE)
}

// listIndexes carries the owning table of each index, required for the
// identifying line in the artifact. LOB indexes have no standalone DDL.
func (ora *Oracle) listIndexes(ctx context.Context, schemaName string) ([]schema.ObjectDescriptor, error) {
	query := fmt.Sprintf(`SELECT index_name, table_name FROM all_indexes
		WHERE owner = '%s' AND index_type != 'LOB'
		ORDER BY index_name ASC`, schemaName)
	log.Infof(`query used to list indexes: "%s"`, query)

	rows, err := ora.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %q for index list: %w", query, err)
	}
	defer rows.Close()

	var objects []schema.ObjectDescriptor
	for rows.Next() {
		var indexName, tableName string
		if err := rows.Scan(&indexName, &tableName); err != nil {
			return nil, fmt.Errorf("scan index name: %w", err)
		}
		objects = append(objects, schema.ObjectDescriptor{
			Type:      schema.INDEX,
			Name:      indexName,
			Schema:    schemaName,
			TableName: tableName,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read index list: %w", err)
	}
	return objects, nil
}

// listDBLinks reads ALL_DB_LINKS rather than ALL_OBJECTS so that link names
// are reported without the database domain suffix handling of the latter.
func (ora *Oracle) listDBLinks(ctx context.Context, schemaName string) ([]schema.ObjectDescriptor, error) {
	query := fmt.Sprintf(`SELECT db_link FROM all_db_links
		WHERE owner = '%s' ORDER BY db_link ASC`, schemaName)
	return ora.queryObjectNames(ctx, query, schemaName, schema.DATABASE_LINK)
}

func (ora *Oracle) queryObjectNames(ctx context.Context, query string, schemaName string, objType schema.ObjectType) ([]schema.ObjectDescriptor, error) {
	log.Infof(`query used to list %s objects: "%s"`, objType, query)
	rows, err := ora.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %q for %s list: %w", query, objType, err)
	}
	defer rows.Close()

	var objects []schema.ObjectDescriptor
	for rows.Next() {
		var objectName string
		if err := rows.Scan(&objectName); err != nil {
			return nil, fmt.Errorf("scan %s name: %w", objType, err)
		}
		objects = append(objects, schema.ObjectDescriptor{
			Type:   objType,
			Name:   objectName,
			Schema: schemaName,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s list: %w", objType, err)
	}
	return objects, nil
}

// GetObjectCounts feeds the per-schema summary. TABLE, INDEX and DATABASE
// LINK counts come from the same catalog views and filters the enumeration
// queries use, so the summary always matches the artifacts.
func (ora *Oracle) GetObjectCounts(ctx context.Context, schemaName string) (map[schema.ObjectType]int, error) {
	query := fmt.Sprintf(`SELECT object_type, COUNT(*) FROM all_objects
		WHERE owner = '%s' AND generated = 'N'
		AND object_type IN ('VIEW', 'PROCEDURE', 'FUNCTION', 'PACKAGE', 'PACKAGE BODY',
			'TRIGGER', 'SEQUENCE', 'SYNONYM', 'TYPE', 'MATERIALIZED VIEW')
		GROUP BY object_type`, schemaName)
	log.Infof(`query used to count objects: "%s"`, query)

	rows, err := ora.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %q for object counts: %w", query, err)
	}
	defer rows.Close()

	counts := make(map[schema.ObjectType]int)
	for rows.Next() {
		var catalogType string
		var count int
		if err := rows.Scan(&catalogType, &count); err != nil {
			return nil, fmt.Errorf("scan object count: %w", err)
		}
		if objType, ok := schema.ObjectTypeFromCatalog(catalogType); ok {
			counts[objType] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read object counts: %w", err)
	}

	for _, objType := range []schema.ObjectType{schema.TABLE, schema.INDEX, schema.DATABASE_LINK} {
		objects, err := ora.ListObjects(ctx, schemaName, objType)
		if err != nil {
			return nil, err
		}
		if len(objects) > 0 {
			counts[objType] = len(objects)
		}
	}
	return counts, nil
}

func (ora *Oracle) GetDDL(ctx context.Context, objType schema.ObjectType, objectName string, schemaName string) (string, error) {
	var ddl string
	query := "SELECT DBMS_METADATA.GET_DDL(:1, :2, :3) FROM DUAL"
	err := ora.db.QueryRowContext(ctx, query, objType.MetadataName(), objectName, schemaName).Scan(&ddl)
	if err != nil {
		return "", fmt.Errorf("get ddl of %s %s.%s: %w", objType, schemaName, objectName, err)
	}
	return ddl, nil
}

func (ora *Oracle) getConnectionUri() string {
	source := ora.source
	if source.Uri != "" {
		return source.Uri
	}

	connectionString := GetOracleConnectionString(source.Host, source.Port, source.DBName, source.DBSid, source.TNSAlias)
	source.Uri = fmt.Sprintf(`user="%s" password="%s" connectString="%s"`, source.User, source.Password, connectionString)
	return source.Uri
}

func GetOracleConnectionString(host string, port int, dbname string, dbsid string, tnsalias string) string {
	switch true {
	case dbsid != "":
		return fmt.Sprintf(`(DESCRIPTION=(ADDRESS=(PROTOCOL=TCP)(HOST=%s)(PORT=%d))(CONNECT_DATA=(SID=%s)))`,
			host, port, dbsid)

	case tnsalias != "":
		return tnsalias

	case dbname != "":
		return fmt.Sprintf(`(DESCRIPTION=(ADDRESS=(PROTOCOL=TCP)(HOST=%s)(PORT=%d))(CONNECT_DATA=(SERVICE_NAME=%s)))`,
			host, port, dbname)
	}
	return ""
}

func joinQuoted(names []string) string {
	quoted := lo.Map(names, func(name string, _ int) string {
		return fmt.Sprintf("'%s'", name)
	})
	return strings.Join(quoted, ", ")
}
