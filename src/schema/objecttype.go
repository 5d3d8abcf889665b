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
package schema

import (
	"strings"

	"golang.org/x/exp/slices"
)

// ObjectType identifies a category of Oracle schema object.
type ObjectType string

const (
	TABLE             ObjectType = "TABLE"
	INDEX             ObjectType = "INDEX"
	VIEW              ObjectType = "VIEW"
	PROCEDURE         ObjectType = "PROCEDURE"
	FUNCTION          ObjectType = "FUNCTION"
	PACKAGE           ObjectType = "PACKAGE"
	PACKAGE_BODY      ObjectType = "PACKAGE_BODY"
	TRIGGER           ObjectType = "TRIGGER"
	SEQUENCE          ObjectType = "SEQUENCE"
	SYNONYM           ObjectType = "SYNONYM"
	TYPE              ObjectType = "TYPE"
	MATERIALIZED_VIEW ObjectType = "MATERIALIZED_VIEW"
	DATABASE_LINK     ObjectType = "DATABASE_LINK"
)

// the list order determines the order in which artifacts are exported per schema
var ObjectTypeList = []ObjectType{TABLE, INDEX, VIEW, PROCEDURE, FUNCTION,
	PACKAGE, PACKAGE_BODY, TRIGGER, SEQUENCE, SYNONYM,
	TYPE, MATERIALIZED_VIEW, DATABASE_LINK}

// String returns the display label, which is also the OBJECT_TYPE value
// found in the ALL_OBJECTS catalog view ("PACKAGE BODY", "MATERIALIZED VIEW").
func (ot ObjectType) String() string {
	return strings.ReplaceAll(string(ot), "_", " ")
}

// MetadataName returns the object_type argument expected by DBMS_METADATA.GET_DDL.
// PACKAGE maps to PACKAGE_SPEC so that package bodies are fetched separately;
// GET_DDL('PACKAGE') would emit the spec and the body in one blob.
func (ot ObjectType) MetadataName() string {
	switch ot {
	case PACKAGE:
		return "PACKAGE_SPEC"
	case DATABASE_LINK:
		return "DB_LINK"
	default:
		return string(ot)
	}
}

// FileName returns the artifact file name for this object type:
// label lower-cased, spaces replaced with underscores, pluralized.
func (ot ObjectType) FileName() string {
	label := strings.ToLower(strings.ReplaceAll(ot.String(), " ", "_"))
	if strings.HasSuffix(label, "x") {
		return label + "es.sql"
	}
	return label + "s.sql"
}

// ObjectTypeFromCatalog maps an ALL_OBJECTS.OBJECT_TYPE value back to an
// ObjectType. The second return value is false for types we do not export
// (LOB, JOB, ...).
func ObjectTypeFromCatalog(label string) (ObjectType, bool) {
	ot := ObjectType(strings.ReplaceAll(label, " ", "_"))
	return ot, slices.Contains(ObjectTypeList, ot)
}

// ObjectDescriptor identifies one database object as returned by the catalog.
// TableName is populated only for INDEX objects and names the indexed table.
type ObjectDescriptor struct {
	Type      ObjectType `json:"object_type"`
	Name      string     `json:"name"`
	Schema    string     `json:"schema"`
	TableName string     `json:"table_name,omitempty"`
}

// Identifier returns the comment line identifying this object inside an
// artifact file. Indexes additionally carry the owning table.
func (o ObjectDescriptor) Identifier() string {
	if o.Type == INDEX && o.TableName != "" {
		return o.Type.String() + ": " + o.Name + " (TABLE: " + o.TableName + ")"
	}
	return o.Type.String() + ": " + o.Name
}
