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
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yugabyte/oraddl/src/schema"
	"github.com/yugabyte/oraddl/src/utils/jsonfile"
)

// fakeSourceDB serves canned catalog and DDL answers. Object lists are keyed
// by "<schema>/<type>", DDL texts and errors by "<type> <schema>.<name>".
type fakeSourceDB struct {
	schemas    []string
	schemasErr error
	connectErr error
	objects    map[string][]schema.ObjectDescriptor
	listErrs   map[string]error
	counts     map[string]map[schema.ObjectType]int
	ddls       map[string]string
	ddlErrs    map[string]error

	connected    bool
	disconnected bool
	ddlCalls     []string
	cancelAfter  int // interrupt the run after this many GetDDL calls
	cancel       context.CancelFunc
}

func (f *fakeSourceDB) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeSourceDB) Disconnect() {
	f.disconnected = true
}

func (f *fakeSourceDB) GetVersion(ctx context.Context) (string, error) {
	return "Oracle Database 19c Enterprise Edition Release 19.0.0.0.0 - Production", nil
}

func (f *fakeSourceDB) ListSchemas(ctx context.Context) ([]string, error) {
	return f.schemas, f.schemasErr
}

func (f *fakeSourceDB) ListObjects(ctx context.Context, schemaName string, objType schema.ObjectType) ([]schema.ObjectDescriptor, error) {
	key := schemaName + "/" + string(objType)
	if err := f.listErrs[key]; err != nil {
		return nil, err
	}
	return f.objects[key], nil
}

func (f *fakeSourceDB) GetObjectCounts(ctx context.Context, schemaName string) (map[schema.ObjectType]int, error) {
	return f.counts[schemaName], nil
}

func (f *fakeSourceDB) GetDDL(ctx context.Context, objType schema.ObjectType, objectName string, schemaName string) (string, error) {
	key := fmt.Sprintf("%s %s.%s", string(objType), schemaName, objectName)
	f.ddlCalls = append(f.ddlCalls, key)
	if f.cancelAfter > 0 && len(f.ddlCalls) >= f.cancelAfter && f.cancel != nil {
		f.cancel()
	}
	if err, ok := f.ddlErrs[key]; ok {
		return "", err
	}
	if ddl, ok := f.ddls[key]; ok {
		return ddl, nil
	}
	return "", fmt.Errorf("ORA-31603: object %q not found", objectName)
}

func tableObject(schemaName, name string) schema.ObjectDescriptor {
	return schema.ObjectDescriptor{Type: schema.TABLE, Name: name, Schema: schemaName}
}

func readDescriptor(t *testing.T, runRoot string) *RunDescriptor {
	t.Helper()
	descriptor, err := jsonfile.NewJsonFile[RunDescriptor](filepath.Join(runRoot, RUN_DESCRIPTOR_FILE_NAME)).Read()
	assert.NoError(t, err)
	return descriptor
}

func TestExportSingleSchemaTables(t *testing.T) {
	exportDir := t.TempDir()
	fake := &fakeSourceDB{
		schemas: []string{"HR"},
		objects: map[string][]schema.ObjectDescriptor{
			"HR/TABLE": {tableObject("HR", "DEPARTMENTS"), tableObject("HR", "EMPLOYEES")},
		},
		counts: map[string]map[schema.ObjectType]int{
			"HR": {schema.TABLE: 2},
		},
		ddls: map[string]string{
			"TABLE HR.DEPARTMENTS": `CREATE TABLE "HR"."DEPARTMENTS" ("ID" NUMBER);`,
			"TABLE HR.EMPLOYEES":   `CREATE TABLE "HR"."EMPLOYEES" ("ID" NUMBER);`,
		},
	}
	exporter := &Exporter{DB: fake, ExportDir: exportDir, DisablePb: true}

	err := exporter.Run(context.Background())
	assert.NoError(t, err)
	assert.True(t, fake.connected)
	assert.True(t, fake.disconnected)

	schemaDir := filepath.Join(exporter.RunRoot, "HR")
	summary := readFile(t, filepath.Join(schemaDir, SCHEMA_SUMMARY_FILE_NAME))
	assert.Contains(t, summary, "TABLE: 2")

	tables := readFile(t, filepath.Join(schemaDir, "tables.sql"))
	deptPos := strings.Index(tables, "-- TABLE: DEPARTMENTS")
	empPos := strings.Index(tables, "-- TABLE: EMPLOYEES")
	assert.Greater(t, deptPos, -1)
	assert.Greater(t, empPos, deptPos)

	// empty object types leave no artifact file behind
	assert.NoFileExists(t, filepath.Join(schemaDir, "views.sql"))

	assert.Equal(t, 2, exporter.ExportedObjects)
	assert.Equal(t, 0, exporter.FailedObjects)

	descriptor := readDescriptor(t, exporter.RunRoot)
	assert.Equal(t, RUN_STATUS_COMPLETED, descriptor.Status)
	assert.Equal(t, 2, descriptor.ExportedObjectCount)
	assert.NotEmpty(t, descriptor.RunID)
}

func TestExportKeepsEnumeratorOrder(t *testing.T) {
	// entries are written strictly in the order the object lists return them
	exportDir := t.TempDir()
	fake := &fakeSourceDB{
		schemas: []string{"APP"},
		objects: map[string][]schema.ObjectDescriptor{
			"APP/SEQUENCE": {
				{Type: schema.SEQUENCE, Name: "Z_SEQ", Schema: "APP"},
				{Type: schema.SEQUENCE, Name: "A_SEQ", Schema: "APP"},
			},
		},
		ddls: map[string]string{
			"SEQUENCE APP.Z_SEQ": "CREATE SEQUENCE Z_SEQ;",
			"SEQUENCE APP.A_SEQ": "CREATE SEQUENCE A_SEQ;",
		},
	}
	exporter := &Exporter{DB: fake, ExportDir: exportDir, DisablePb: true}
	assert.NoError(t, exporter.Run(context.Background()))

	sequences := readFile(t, filepath.Join(exporter.RunRoot, "APP", "sequences.sql"))
	assert.Less(t, strings.Index(sequences, "Z_SEQ"), strings.Index(sequences, "A_SEQ"))
}

func TestExportContinuesAfterDDLFailure(t *testing.T) {
	exportDir := t.TempDir()
	fake := &fakeSourceDB{
		schemas: []string{"HR"},
		objects: map[string][]schema.ObjectDescriptor{
			"HR/VIEW": {
				{Type: schema.VIEW, Name: "V_A", Schema: "HR"},
				{Type: schema.VIEW, Name: "V_B", Schema: "HR"},
				{Type: schema.VIEW, Name: "V_C", Schema: "HR"},
			},
		},
		ddls: map[string]string{
			"VIEW HR.V_A": "CREATE VIEW V_A AS SELECT 1 FROM DUAL;",
			"VIEW HR.V_C": "CREATE VIEW V_C AS SELECT 3 FROM DUAL;",
		},
		ddlErrs: map[string]error{
			"VIEW HR.V_B": errors.New(`ORA-31603: object "V_B" of type VIEW not found in schema "HR"`),
		},
	}
	exporter := &Exporter{DB: fake, ExportDir: exportDir, DisablePb: true}

	err := exporter.Run(context.Background())
	assert.NoError(t, err)

	views := readFile(t, filepath.Join(exporter.RunRoot, "HR", "views.sql"))
	assert.Contains(t, views, "-- VIEW: V_A")
	assert.Contains(t, views, "-- Error getting DDL for VIEW V_B")
	assert.Contains(t, views, "-- VIEW: V_C")
	// the failed object keeps its position between its neighbours
	assert.Less(t, strings.Index(views, "V_A"), strings.Index(views, "Error getting DDL for VIEW V_B"))
	assert.Less(t, strings.Index(views, "Error getting DDL for VIEW V_B"), strings.Index(views, "-- VIEW: V_C"))

	assert.Equal(t, 2, exporter.ExportedObjects)
	assert.Equal(t, 1, exporter.FailedObjects)
	assert.Equal(t, 1, exporter.Reports[0].FailedObjects)

	descriptor := readDescriptor(t, exporter.RunRoot)
	assert.Equal(t, RUN_STATUS_COMPLETED_WITH_FAILURES, descriptor.Status)
	assert.Equal(t, 1, descriptor.FailedObjectCount)
}

func TestExportPackageBodies(t *testing.T) {
	exportDir := t.TempDir()
	fake := &fakeSourceDB{
		schemas: []string{"HR"},
		objects: map[string][]schema.ObjectDescriptor{
			"HR/PACKAGE": {
				{Type: schema.PACKAGE, Name: "PKG_A", Schema: "HR"},
				{Type: schema.PACKAGE, Name: "PKG_B", Schema: "HR"},
				{Type: schema.PACKAGE, Name: "PKG_C", Schema: "HR"},
			},
			// PKG_B has no body in the catalog
			"HR/PACKAGE_BODY": {
				{Type: schema.PACKAGE_BODY, Name: "PKG_A", Schema: "HR"},
				{Type: schema.PACKAGE_BODY, Name: "PKG_C", Schema: "HR"},
			},
		},
		ddls: map[string]string{
			"PACKAGE HR.PKG_A":      "CREATE OR REPLACE PACKAGE PKG_A AS END;",
			"PACKAGE_BODY HR.PKG_A": "CREATE OR REPLACE PACKAGE BODY PKG_A AS END;",
			"PACKAGE HR.PKG_B":      "CREATE OR REPLACE PACKAGE PKG_B AS END;",
			"PACKAGE HR.PKG_C":      "CREATE OR REPLACE PACKAGE PKG_C AS END;",
		},
		ddlErrs: map[string]error{
			"PACKAGE_BODY HR.PKG_C": errors.New("ORA-04063: package body has errors"),
		},
	}
	exporter := &Exporter{DB: fake, ExportDir: exportDir, DisablePb: true}

	err := exporter.Run(context.Background())
	assert.NoError(t, err)

	schemaDir := filepath.Join(exporter.RunRoot, "HR")
	packages := readFile(t, filepath.Join(schemaDir, "packages.sql"))

	// body present and fetched
	assert.Contains(t, packages, "-- PACKAGE: PKG_A")
	assert.Contains(t, packages, "-- PACKAGE BODY: PKG_A")

	// body genuinely absent: marker, no body block, no fetch attempt
	assert.Contains(t, packages, "-- No package body found for PKG_B")
	assert.NotContains(t, packages, "-- PACKAGE BODY: PKG_B")
	assert.NotContains(t, fake.ddlCalls, "PACKAGE_BODY HR.PKG_B")

	// body present but fetch failed: error marker, not a "no body" marker
	assert.Contains(t, packages, "-- Error getting DDL for PACKAGE BODY PKG_C")
	assert.NotContains(t, packages, "-- No package body found for PKG_C")

	// package bodies never get their own artifact
	assert.NoFileExists(t, filepath.Join(schemaDir, schema.PACKAGE_BODY.FileName()))

	assert.Equal(t, 4, exporter.ExportedObjects) // 3 specs + 1 body
	assert.Equal(t, 1, exporter.FailedObjects)
}

func TestExportSkipsArtifactWhenListFails(t *testing.T) {
	exportDir := t.TempDir()
	fake := &fakeSourceDB{
		schemas: []string{"HR"},
		objects: map[string][]schema.ObjectDescriptor{
			"HR/TABLE": {tableObject("HR", "EMPLOYEES")},
		},
		listErrs: map[string]error{
			"HR/VIEW": errors.New("ORA-00942: table or view does not exist"),
		},
		ddls: map[string]string{
			"TABLE HR.EMPLOYEES": `CREATE TABLE "HR"."EMPLOYEES" ("ID" NUMBER);`,
		},
	}
	exporter := &Exporter{DB: fake, ExportDir: exportDir, DisablePb: true}

	err := exporter.Run(context.Background())
	assert.NoError(t, err)

	schemaDir := filepath.Join(exporter.RunRoot, "HR")
	assert.FileExists(t, filepath.Join(schemaDir, "tables.sql"))
	assert.NoFileExists(t, filepath.Join(schemaDir, "views.sql"))
	assert.Equal(t, 1, exporter.FailedArtifacts)
	assert.Equal(t, 1, exporter.ExportedObjects)

	descriptor := readDescriptor(t, exporter.RunRoot)
	assert.Equal(t, RUN_STATUS_COMPLETED_WITH_FAILURES, descriptor.Status)
}

func TestExportConnectFailureCreatesNoOutput(t *testing.T) {
	exportDir := t.TempDir()
	fake := &fakeSourceDB{connectErr: errors.New("ORA-01017: invalid username/password; logon denied")}
	exporter := &Exporter{DB: fake, ExportDir: exportDir, DisablePb: true}

	err := exporter.Run(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCancelled)

	entries, readErr := os.ReadDir(exportDir)
	assert.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestExportSchemaListFailureAborts(t *testing.T) {
	exportDir := t.TempDir()
	fake := &fakeSourceDB{schemasErr: errors.New("ORA-01031: insufficient privileges")}
	exporter := &Exporter{DB: fake, ExportDir: exportDir, DisablePb: true}

	err := exporter.Run(context.Background())
	assert.Error(t, err)
	assert.True(t, fake.disconnected)

	entries, readErr := os.ReadDir(exportDir)
	assert.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestExportReportsMissingSchemas(t *testing.T) {
	exportDir := t.TempDir()
	fake := &fakeSourceDB{schemas: []string{"HR"}}
	exporter := &Exporter{DB: fake, ExportDir: exportDir, SchemaList: []string{"HR", "TYPO"}, DisablePb: true}

	err := exporter.Run(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TYPO")

	entries, readErr := os.ReadDir(exportDir)
	assert.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestExportCancellationStopsPromptly(t *testing.T) {
	exportDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := &fakeSourceDB{
		schemas: []string{"APP1", "APP2"},
		objects: map[string][]schema.ObjectDescriptor{
			"APP1/TABLE": {tableObject("APP1", "T1"), tableObject("APP1", "T2")},
			"APP2/TABLE": {tableObject("APP2", "T1"), tableObject("APP2", "T2")},
		},
		ddls: map[string]string{
			"TABLE APP1.T1": "CREATE TABLE T1 (C NUMBER);",
			"TABLE APP1.T2": "CREATE TABLE T2 (C NUMBER);",
			"TABLE APP2.T1": "CREATE TABLE T1 (C NUMBER);",
			"TABLE APP2.T2": "CREATE TABLE T2 (C NUMBER);",
		},
		cancelAfter: 3,
		cancel:      cancel,
	}
	exporter := &Exporter{DB: fake, ExportDir: exportDir, DisablePb: true}

	err := exporter.Run(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, fake.disconnected)
	// no further metadata calls after the interrupt
	assert.Len(t, fake.ddlCalls, 3)

	// the completed artifact of the first schema is intact
	app1 := readFile(t, filepath.Join(exporter.RunRoot, "APP1", "tables.sql"))
	assert.Contains(t, app1, "-- TABLE: T1")
	assert.Contains(t, app1, "-- TABLE: T2")

	// the in-flight artifact ends at the last completed object
	app2 := readFile(t, filepath.Join(exporter.RunRoot, "APP2", "tables.sql"))
	assert.Contains(t, app2, "-- TABLE: T1")
	assert.NotContains(t, app2, "-- TABLE: T2")

	descriptor := readDescriptor(t, exporter.RunRoot)
	assert.Equal(t, RUN_STATUS_CANCELLED, descriptor.Status)
}

func TestExportReproducibleExceptTimestamp(t *testing.T) {
	exportDir := t.TempDir()
	newFake := func() *fakeSourceDB {
		return &fakeSourceDB{
			schemas: []string{"HR"},
			objects: map[string][]schema.ObjectDescriptor{
				"HR/TABLE": {tableObject("HR", "DEPARTMENTS"), tableObject("HR", "EMPLOYEES")},
			},
			counts: map[string]map[schema.ObjectType]int{
				"HR": {schema.TABLE: 2},
			},
			ddls: map[string]string{
				"TABLE HR.DEPARTMENTS": `CREATE TABLE "HR"."DEPARTMENTS" ("ID" NUMBER);`,
				"TABLE HR.EMPLOYEES":   `CREATE TABLE "HR"."EMPLOYEES" ("ID" NUMBER);`,
			},
		}
	}

	first := &Exporter{DB: newFake(), ExportDir: exportDir, DisablePb: true,
		StartTime: time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)}
	assert.NoError(t, first.Run(context.Background()))
	second := &Exporter{DB: newFake(), ExportDir: exportDir, DisablePb: true,
		StartTime: time.Date(2024, 5, 17, 11, 0, 0, 0, time.UTC)}
	assert.NoError(t, second.Run(context.Background()))

	dropHeader := func(content string) string {
		return content[strings.Index(content, "\n")+1:]
	}
	firstTables := readFile(t, filepath.Join(first.RunRoot, "HR", "tables.sql"))
	secondTables := readFile(t, filepath.Join(second.RunRoot, "HR", "tables.sql"))
	assert.NotEqual(t, firstTables, secondTables)
	assert.Equal(t, dropHeader(firstTables), dropHeader(secondTables))
}
