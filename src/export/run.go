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
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/yugabyte/oraddl/src/schema"
	"github.com/yugabyte/oraddl/src/utils"
	"github.com/yugabyte/oraddl/src/utils/jsonfile"
)

const RUN_DESCRIPTOR_FILE_NAME = "export_run.json"

const (
	RUN_STATUS_EXPORTING               = "exporting"
	RUN_STATUS_COMPLETED               = "completed"
	RUN_STATUS_COMPLETED_WITH_FAILURES = "completed-with-failures"
	RUN_STATUS_CANCELLED               = "cancelled"
	RUN_STATUS_FAILED                  = "failed"
)

// SourceInfo identifies the source database inside the run descriptor.
// The password is never recorded.
type SourceInfo struct {
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	DBSid       string `json:"db_sid,omitempty"`
	TNSAlias    string `json:"tns_alias,omitempty"`
	User        string `json:"user,omitempty"`
}

// RunDescriptor is persisted as export_run.json inside the run root so a
// run can be identified post-mortem.
type RunDescriptor struct {
	RunID               string     `json:"run_id"`
	Version             string     `json:"version"`
	Source              SourceInfo `json:"source"`
	Schemas             []string   `json:"schemas,omitempty"`
	ObjectTypes         []string   `json:"object_types"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             *time.Time `json:"end_time,omitempty"`
	Status              string     `json:"status"`
	ExportedObjectCount int        `json:"exported_object_count"`
	FailedObjectCount   int        `json:"failed_object_count"`
}

type runDescriptorFile = jsonfile.JsonFile[RunDescriptor]

// The descriptor is informational; descriptor failures never fail the run.
func (e *Exporter) writeRunDescriptor(schemas []string) {
	e.descriptor = jsonfile.NewJsonFile[RunDescriptor](filepath.Join(e.RunRoot, RUN_DESCRIPTOR_FILE_NAME))
	desc := &RunDescriptor{
		RunID:   uuid.New().String(),
		Version: utils.ORADDL_VERSION,
		Source:  e.Source,
		Schemas: schemas,
		ObjectTypes: lo.Map(e.ObjectTypes, func(objType schema.ObjectType, _ int) string {
			return string(objType)
		}),
		StartTime: e.StartTime,
		Status:    RUN_STATUS_EXPORTING,
	}
	if err := e.descriptor.Create(desc); err != nil {
		log.Errorf("write run descriptor: %s", err)
		e.descriptor = nil
	}
}

func (e *Exporter) finalizeRunDescriptor(status string) {
	if e.descriptor == nil {
		return
	}
	err := e.descriptor.Update(func(d *RunDescriptor) {
		endTime := time.Now()
		d.EndTime = &endTime
		d.Status = status
		d.ExportedObjectCount = e.ExportedObjects
		d.FailedObjectCount = e.FailedObjects
	})
	if err != nil {
		log.Errorf("update run descriptor: %s", err)
	}
}
