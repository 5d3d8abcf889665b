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
	"strings"

	"github.com/samber/lo"
)

// Source holds the connection parameters of the source database, populated
// from the command line flags.
type Source struct {
	DBType      string `json:"db_type"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	User        string `json:"user"`
	Password    string `json:"-"`
	DBName      string `json:"db_name"`
	DBSid       string `json:"db_sid"`
	TNSAlias    string `json:"tns_alias"`
	Schema      string `json:"schema"`
	Uri         string `json:"-"`
	DBVersion   string `json:"db_version"`
	VerboseMode bool   `json:"verbose_mode"`

	sourceDB SourceDB
}

func (s *Source) Clone() *Source {
	newS := *s
	return &newS
}

func (s *Source) DB() SourceDB {
	if s.sourceDB == nil {
		s.sourceDB = newSourceDB(s)
	}
	return s.sourceDB
}

// SchemaList returns the schema allow-list parsed from the comma separated
// --source-db-schema value. Nil when no allow-list was given.
func (s *Source) SchemaList() []string {
	if s.Schema == "" {
		return nil
	}
	names := strings.Split(s.Schema, ",")
	return lo.Map(names, func(name string, _ int) string {
		return strings.TrimSpace(name)
	})
}
