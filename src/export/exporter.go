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
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v8"

	"github.com/yugabyte/oraddl/src/pbreporter"
	"github.com/yugabyte/oraddl/src/schema"
	"github.com/yugabyte/oraddl/src/srcdb"
	"github.com/yugabyte/oraddl/src/utils"
)

const EXPORT_ROOT_PREFIX = "ddl_export_"

// ErrCancelled reports an operator initiated interrupt. The connection is
// released, completed artifacts are left intact and the in-flight artifact
// ends at the last completed object.
var ErrCancelled = errors.New("export cancelled by user")

// SchemaReport summarizes one schema for the end of run status table.
type SchemaReport struct {
	SchemaName      string
	ExportedObjects int
	FailedObjects   int
	Artifacts       int
}

// Exporter drives one export run: it owns the database session for the
// run's duration and walks schemas, object types and objects sequentially.
// Per-object failures are isolated; only a connection failure, a schema
// list failure or a cancellation abort the run.
type Exporter struct {
	DB          srcdb.SourceDB
	ExportDir   string
	SchemaList  []string // operator allow-list; empty means every non system schema
	ObjectTypes []schema.ObjectType
	DisablePb   bool
	Source      SourceInfo

	// populated during the run
	RunRoot         string
	StartTime       time.Time
	Reports         []*SchemaReport
	ExportedObjects int
	FailedObjects   int
	FailedArtifacts int

	descriptor        *runDescriptorFile
	progressContainer *mpb.Progress
}

func (e *Exporter) Run(ctx context.Context) error {
	if len(e.ObjectTypes) == 0 {
		e.ObjectTypes = schema.ObjectTypeList
	}
	if e.StartTime.IsZero() {
		e.StartTime = time.Now()
	}

	if err := e.DB.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		return fmt.Errorf("connect to source database: %w", err)
	}
	defer e.DB.Disconnect()

	dbVersion, err := e.DB.GetVersion(ctx)
	if err != nil {
		log.Warnf("failed to find source database version: %s", err)
	} else {
		utils.PrintAndLog("Source database version: %s", dbVersion)
		warnIfOldOracleVersion(dbVersion)
	}

	schemas, err := e.resolveSchemas(ctx)
	if err != nil {
		return err
	}
	if len(schemas) == 0 {
		return nil
	}
	if err := e.createRunRoot(); err != nil {
		return err
	}
	e.writeRunDescriptor(schemas)

	e.progressContainer = mpb.NewWithContext(ctx)
	for _, schemaName := range schemas {
		if err := e.exportSchema(ctx, schemaName); err != nil {
			if errors.Is(err, ErrCancelled) {
				e.finalizeRunDescriptor(RUN_STATUS_CANCELLED)
			} else {
				e.finalizeRunDescriptor(RUN_STATUS_FAILED)
			}
			return err
		}
	}
	e.progressContainer.Wait()

	status := RUN_STATUS_COMPLETED
	if e.FailedObjects > 0 || e.FailedArtifacts > 0 {
		status = RUN_STATUS_COMPLETED_WITH_FAILURES
	}
	e.finalizeRunDescriptor(status)
	log.Infof("export run finished with status %q: %d objects exported, %d failed",
		status, e.ExportedObjects, e.FailedObjects)
	return nil
}

func (e *Exporter) resolveSchemas(ctx context.Context) ([]string, error) {
	schemas, err := e.DB.ListSchemas(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("list schemas of source database: %w", err)
	}
	if len(e.SchemaList) > 0 {
		missing, _ := lo.Difference(e.SchemaList, schemas)
		if len(missing) > 0 {
			return nil, fmt.Errorf("schemas not found in the source database: %s", strings.Join(missing, ", "))
		}
	}
	if len(schemas) == 0 {
		utils.PrintAndLog("No schemas to export.")
		return nil, nil
	}
	utils.PrintAndLog("schemas to export: %s", strings.Join(schemas, ", "))
	return schemas, nil
}

func (e *Exporter) createRunRoot() error {
	e.RunRoot = filepath.Join(e.ExportDir, EXPORT_ROOT_PREFIX+e.StartTime.Format("20060102_150405"))
	if err := os.MkdirAll(e.RunRoot, 0755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}
	log.Infof("created output root %q", e.RunRoot)
	return nil
}

func (e *Exporter) exportSchema(ctx context.Context, schemaName string) error {
	utils.PrintAndLog("exporting schema %q", schemaName)
	report := &SchemaReport{SchemaName: schemaName}
	e.Reports = append(e.Reports, report)

	schemaDir := filepath.Join(e.RunRoot, schemaName)
	if err := os.MkdirAll(schemaDir, 0755); err != nil {
		return fmt.Errorf("create schema directory %s: %w", schemaDir, err)
	}

	counts, err := e.DB.GetObjectCounts(ctx, schemaName)
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		log.Errorf("count objects of schema %q: %s", schemaName, err)
	} else if err := WriteSchemaSummary(schemaDir, schemaName, counts); err != nil {
		log.Errorf("%s", err)
	}

	for _, objType := range e.ObjectTypes {
		if objType == schema.PACKAGE_BODY {
			// PACKAGE BODY is exported along with PACKAGE
			continue
		}
		if ctx.Err() != nil {
			return ErrCancelled
		}
		if err := e.exportObjectType(ctx, schemaName, schemaDir, objType, report); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) exportObjectType(ctx context.Context, schemaName, schemaDir string, objType schema.ObjectType, report *SchemaReport) error {
	objects, err := e.DB.ListObjects(ctx, schemaName, objType)
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		// a failing object list skips this artifact only, the run continues
		log.Errorf("list %s objects of schema %q: %s", objType, schemaName, err)
		e.FailedArtifacts++
		return nil
	}
	if len(objects) == 0 {
		// no artifact file for an empty object list
		log.Infof("schema %q has no %s objects", schemaName, objType)
		return nil
	}

	var packageBodies map[string]bool
	if objType == schema.PACKAGE {
		packageBodies = e.lookupPackageBodies(ctx, schemaName)
		if ctx.Err() != nil {
			return ErrCancelled
		}
	}

	writer, err := NewArtifactWriter(schemaDir, objType, e.StartTime)
	if err != nil {
		log.Errorf("%s", err)
		e.FailedArtifacts++
		return nil
	}
	defer writer.Close()
	report.Artifacts++

	progressName := fmt.Sprintf("%s/%s", schemaName, objType.FileName())
	progress := pbreporter.NewExportPB(e.progressContainer, progressName, e.DisablePb)
	progress.SetTotalObjectCount(int64(len(objects)), false)

	for i, object := range objects {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		if err := e.exportObject(ctx, writer, object, packageBodies, report); err != nil {
			return err
		}
		progress.SetExportedObjectCount(int64(i + 1))
	}
	progress.SetTotalObjectCount(int64(len(objects)), true)

	log.Infof("exported %d %s objects of schema %q to %q", len(objects), objType, schemaName, writer.Path())
	return nil
}

// exportObject fetches and writes the DDL of one object. A fetch failure is
// recorded in the artifact and the log, and never propagates; the only
// error returned is ErrCancelled.
func (e *Exporter) exportObject(ctx context.Context, writer *ArtifactWriter, object schema.ObjectDescriptor, packageBodies map[string]bool, report *SchemaReport) error {
	log.Infof("exporting %s %s.%s", object.Type, object.Schema, object.Name)
	ddl, err := e.DB.GetDDL(ctx, object.Type, object.Name, object.Schema)
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		log.Errorf("export %s %s.%s: %s", object.Type, object.Schema, object.Name, err)
		writer.WriteError(object)
		e.FailedObjects++
		report.FailedObjects++
		return nil
	}
	writer.WriteDDL(object, ddl)
	e.ExportedObjects++
	report.ExportedObjects++

	if object.Type == schema.PACKAGE {
		return e.exportPackageBody(ctx, writer, object, packageBodies, report)
	}
	return nil
}

func (e *Exporter) exportPackageBody(ctx context.Context, writer *ArtifactWriter, pkg schema.ObjectDescriptor, packageBodies map[string]bool, report *SchemaReport) error {
	if packageBodies != nil && !packageBodies[pkg.Name] {
		log.Infof("package %s.%s has no body", pkg.Schema, pkg.Name)
		writer.WriteNoPackageBody(pkg.Name)
		return nil
	}

	body := schema.ObjectDescriptor{Type: schema.PACKAGE_BODY, Name: pkg.Name, Schema: pkg.Schema}
	ddl, err := e.DB.GetDDL(ctx, body.Type, body.Name, body.Schema)
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		log.Errorf("export %s %s.%s: %s", body.Type, body.Schema, body.Name, err)
		writer.WriteError(body)
		e.FailedObjects++
		report.FailedObjects++
		return nil
	}
	writer.WriteDDL(body, ddl)
	e.ExportedObjects++
	report.ExportedObjects++
	return nil
}

// lookupPackageBodies returns the set of PACKAGE BODY names of the schema.
// A nil result means the lookup failed and body existence is unknown; the
// body fetch is then attempted for every package, so a missing body
// surfaces as a fetch error instead of a wrong "no body" marker.
func (e *Exporter) lookupPackageBodies(ctx context.Context, schemaName string) map[string]bool {
	bodies, err := e.DB.ListObjects(ctx, schemaName, schema.PACKAGE_BODY)
	if err != nil {
		log.Errorf("list package bodies of schema %q: %s", schemaName, err)
		return nil
	}
	bodySet := make(map[string]bool, len(bodies))
	for _, body := range bodies {
		bodySet[body.Name] = true
	}
	return bodySet
}

var oracleVersionRegexp = regexp.MustCompile(`\d+(\.\d+)+`)

// minOracleVersion is the oldest release this tool is regularly run
// against; DBMS_METADATA transform behaviour differs on older ones.
var minOracleVersion = version.Must(version.NewVersion("11.2"))

func warnIfOldOracleVersion(banner string) {
	match := oracleVersionRegexp.FindString(banner)
	if match == "" {
		log.Warnf("could not detect the source database version from banner %q", banner)
		return
	}
	dbVersion, err := version.NewVersion(match)
	if err != nil {
		log.Warnf("could not parse the source database version %q: %s", match, err)
		return
	}
	if dbVersion.LessThan(minOracleVersion) {
		utils.PrintAndLog("[WARNING] source database version %s is older than the oldest supported version %s. "+
			"Generated DDL may be incomplete.", dbVersion, minOracleVersion)
	}
}
