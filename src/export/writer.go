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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/oraddl/src/schema"
)

// reserved name, sorts before every artifact file
const SCHEMA_SUMMARY_FILE_NAME = "00_schema_info.txt"

// ArtifactWriter produces one artifact file holding every exported object of
// one (schema, object type) pair. Entries are written unbuffered in the
// order received, so an interrupted run leaves the file truncated at the
// last completed object. Entry level problems never fail the writer, they
// are logged and the export moves on.
type ArtifactWriter struct {
	file *os.File
	path string
}

// NewArtifactWriter creates (or truncates) the artifact file of the given
// object type under schemaDir and writes the header.
func NewArtifactWriter(schemaDir string, objType schema.ObjectType, generatedAt time.Time) (*ArtifactWriter, error) {
	path := filepath.Join(schemaDir, objType.FileName())
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create artifact file %s: %w", path, err)
	}
	w := &ArtifactWriter{file: file, path: path}
	w.printf("-- %s DDL exported at %s\n\n", objType, generatedAt.Format("2006-01-02 15:04:05"))
	return w, nil
}

// WriteDDL appends one object block: the identifying comment line, the DDL
// text and the statement separator.
func (w *ArtifactWriter) WriteDDL(object schema.ObjectDescriptor, ddl string) {
	w.printf("-- %s\n%s\n/\n\n", object.Identifier(), strings.TrimSpace(ddl))
}

// WriteError records a failed DDL fetch in place of the object's block.
func (w *ArtifactWriter) WriteError(object schema.ObjectDescriptor) {
	w.printf("-- Error getting DDL for %s %s\n\n", object.Type, object.Name)
}

// WriteNoPackageBody records that a package genuinely has no body, distinct
// from a failed body fetch.
func (w *ArtifactWriter) WriteNoPackageBody(packageName string) {
	w.printf("-- No package body found for %s\n\n", packageName)
}

func (w *ArtifactWriter) Path() string {
	return w.path
}

func (w *ArtifactWriter) Close() {
	if err := w.file.Close(); err != nil {
		log.Errorf("close artifact file %s: %s", w.path, err)
	}
}

func (w *ArtifactWriter) printf(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(w.file, format, args...); err != nil {
		log.Errorf("write to artifact file %s: %s", w.path, err)
	}
}

// WriteSchemaSummary writes the per-schema object count summary. Counts are
// listed in export order; types with no objects are omitted.
func WriteSchemaSummary(schemaDir string, schemaName string, counts map[schema.ObjectType]int) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Schema: %s\n\n", schemaName)
	for _, objType := range schema.ObjectTypeList {
		if count := counts[objType]; count > 0 {
			fmt.Fprintf(&sb, "%s: %d\n", objType, count)
		}
	}

	path := filepath.Join(schemaDir, SCHEMA_SUMMARY_FILE_NAME)
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write schema summary %s: %w", path, err)
	}
	return nil
}
